package keys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/internal/models"
)

// RecordStore abstracts key record persistence so the manager can be
// exercised against a failing fake in tests.
type RecordStore interface {
	// FindLoadable returns all records eligible for the decryption key
	// set: not yet expired, in any status other than expired.
	FindLoadable(ctx context.Context, now time.Time) ([]models.EncryptionKey, error)
	// FindCurrent returns the single record serving new encryptions,
	// or nil when none exists.
	FindCurrent(ctx context.Context, now time.Time) (*models.EncryptionKey, error)
	// FindByID returns the record for a key id, or nil when missing.
	FindByID(ctx context.Context, keyID string) (*models.EncryptionKey, error)
	Insert(ctx context.Context, record *models.EncryptionKey) error
	Update(ctx context.Context, record *models.EncryptionKey) error
	// Transact runs fn against a store bound to a single transaction.
	Transact(ctx context.Context, fn func(RecordStore) error) error
}

// GormStore persists key records through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a RecordStore backed by the supplied database handle.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("keys: db is required")
	}
	return &GormStore{db: db}, nil
}

// FindLoadable returns all non-expired records, newest first.
func (s *GormStore) FindLoadable(ctx context.Context, now time.Time) ([]models.EncryptionKey, error) {
	var records []models.EncryptionKey
	err := s.db.WithContext(ctx).
		Where("expires_at > ?", now).
		Where("rotation_status <> ?", models.RotationStatusExpired).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("keys: find loadable: %w", err)
	}
	return records, nil
}

// FindCurrent returns the active encryption key record, if any.
func (s *GormStore) FindCurrent(ctx context.Context, now time.Time) (*models.EncryptionKey, error) {
	var record models.EncryptionKey
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("rotation_status = ?", models.RotationStatusActive).
		Where("expires_at > ?", now).
		Order("activated_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keys: find current: %w", err)
	}
	return &record, nil
}

// FindByID looks a record up by its key id.
func (s *GormStore) FindByID(ctx context.Context, keyID string) (*models.EncryptionKey, error) {
	var record models.EncryptionKey
	err := s.db.WithContext(ctx).Where("key_id = ?", keyID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keys: find by id: %w", err)
	}
	return &record, nil
}

// Insert persists a new key record.
func (s *GormStore) Insert(ctx context.Context, record *models.EncryptionKey) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("keys: insert record: %w", err)
	}
	return nil
}

// Update persists changes to an existing key record.
func (s *GormStore) Update(ctx context.Context, record *models.EncryptionKey) error {
	if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("keys: update record: %w", err)
	}
	return nil
}

// Transact runs fn inside a database transaction.
func (s *GormStore) Transact(ctx context.Context, fn func(RecordStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
