package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/internal/models"
	"github.com/fieldvault/fieldvault/pkg/logger"
)

// Audit action and result labels.
const (
	AuditActionKeyCreate   = "key.create"
	AuditActionKeyActivate = "key.activate"
	AuditActionKeyRotate   = "key.rotate"
	AuditActionKeyRetire   = "key.retire"
	AuditActionEncrypt     = "crypto.encrypt"
	AuditActionDecrypt     = "crypto.decrypt"

	AuditResultSuccess = "success"
	AuditResultFailure = "failure"
)

// AuditService records key lifecycle and crypto operations for
// compliance review. Entries carry no plaintext and no key material.
type AuditService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("services: db is required")
	}
	return &AuditService{db: db, log: logger.WithModule("audit")}, nil
}

// Record persists an audit entry. Failures are logged and swallowed so
// audit persistence problems never block the audited operation.
func (s *AuditService) Record(ctx context.Context, action, resource, result, correlationID string, metadata map[string]interface{}) {
	entry := models.AuditLog{
		Action:        action,
		Resource:      resource,
		Result:        result,
		CorrelationID: correlationID,
	}

	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			s.log.Warn("failed to marshal audit metadata", zap.Error(err))
		} else {
			entry.Metadata = datatypes.JSON(raw)
		}
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Error("failed to record audit entry",
			zap.String("action", action),
			zap.Error(err))
	}
}

// CleanupOlderThan deletes audit entries older than the retention period
// and returns how many rows were removed.
func (s *AuditService) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("services: cleanup audit entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// List returns the most recent audit entries, optionally filtered by action.
func (s *AuditService) List(ctx context.Context, action string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if action != "" {
		query = query.Where("action = ?", action)
	}

	var entries []models.AuditLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("services: list audit entries: %w", err)
	}
	return entries, nil
}
