package keys

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fieldvault/fieldvault/internal/cache"
	"github.com/fieldvault/fieldvault/internal/models"
	"github.com/fieldvault/fieldvault/pkg/crypto"
	apperrors "github.com/fieldvault/fieldvault/pkg/errors"
	"github.com/fieldvault/fieldvault/pkg/logger"
	"github.com/fieldvault/fieldvault/pkg/metrics"
)

const (
	// DefaultKeyID is the sentinel id of the zero-configuration fallback key.
	DefaultKeyID = "default"

	// DefaultMaxAge is how long a key may serve before automatic expiry.
	DefaultMaxAge = 90 * 24 * time.Hour

	// DefaultWarningWindow is how close to expiry a key must be before
	// it is reported as needing rotation.
	DefaultWarningWindow = 14 * 24 * time.Hour

	currentKeyCacheKey = "keys:current-key-id"
	currentKeyCacheTTL = 5 * time.Minute
)

// Manager owns the set of loadable encryption keys and the current
// encryption key pointer, and orchestrates rotation against persisted
// key records. All mutations are serialised behind a single mutex;
// reads go through immutable snapshots and need no lock.
type Manager struct {
	store         RecordStore
	cache         cache.Store
	secret        []byte
	params        crypto.PBKDF2Parameters
	maxAge        time.Duration
	warningWindow time.Duration
	now           func() time.Time
	log           *zap.Logger

	mu      sync.Mutex
	current atomic.Pointer[string]
	keys    atomic.Pointer[Set]
}

// Option customises the Manager.
type Option func(*Manager)

// WithCache injects an optional fast-path store for the current key id.
func WithCache(store cache.Store) Option {
	return func(m *Manager) {
		m.cache = store
	}
}

// WithClock overrides the clock, primarily for testing.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithParams overrides the key derivation parameters.
func WithParams(params crypto.PBKDF2Parameters) Option {
	return func(m *Manager) {
		m.params = params
	}
}

// WithMaxAge overrides the key maximum age.
func WithMaxAge(age time.Duration) Option {
	return func(m *Manager) {
		if age > 0 {
			m.maxAge = age
		}
	}
}

// WithWarningWindow overrides the rotation warning window.
func WithWarningWindow(window time.Duration) Option {
	return func(m *Manager) {
		if window > 0 {
			m.warningWindow = window
		}
	}
}

// WithLogger overrides the manager's logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager constructs a Manager with injected dependencies. The
// secret is required; key material is derived from it on demand and
// never persisted.
func NewManager(store RecordStore, secret []byte, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, apperrors.ErrConfig.WithInternal(fmt.Errorf("keys: record store is required"))
	}
	if len(secret) == 0 {
		return nil, apperrors.ErrConfig.WithInternal(fmt.Errorf("keys: encryption secret is required"))
	}

	m := &Manager{
		store:         store,
		secret:        secret,
		params:        crypto.DefaultPBKDF2Params(),
		maxAge:        DefaultMaxAge,
		warningWindow: DefaultWarningWindow,
		now:           func() time.Time { return time.Now().UTC() },
		log:           logger.WithModule("keys"),
	}

	for _, opt := range opts {
		opt(m)
	}

	if err := m.params.Validate(); err != nil {
		return nil, apperrors.ErrConfig.WithInternal(err)
	}

	return m, nil
}

// Initialize resolves the current key and loads the decryption key set.
// Called once at startup so initialisation failures surface fail-fast;
// read paths still self-initialise behind the mutex if it was skipped.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initLocked(ctx)
}

// CurrentKeyID returns the id of the key serving new encryptions,
// initialising from cache, database, or a freshly generated default
// key on first access.
func (m *Manager) CurrentKeyID(ctx context.Context) (string, error) {
	if id := m.current.Load(); id != nil {
		return *id, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id := m.current.Load(); id != nil {
		return *id, nil
	}
	if err := m.initLocked(ctx); err != nil {
		return "", err
	}
	return *m.current.Load(), nil
}

// Snapshot returns the immutable decryption key set, loading it on
// first access.
func (m *Manager) Snapshot(ctx context.Context) (*Set, error) {
	if set := m.keys.Load(); set != nil {
		return set, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if set := m.keys.Load(); set != nil {
		return set, nil
	}
	if err := m.initLocked(ctx); err != nil {
		return nil, err
	}
	return m.keys.Load(), nil
}

// Refresh rebuilds the decryption key set from the database, dropping
// keys that expired since the last load.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloadLocked(ctx)
}

// CreateKey generates and persists a new inactive key record. The
// current encryption key is unaffected.
func (m *Manager) CreateKey(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createKeyLocked(ctx)
}

// Activate makes keyID the current encryption key. The record is
// persisted first, the key set rebuilt second, and the in-memory
// pointer swapped last, so a failure at any step leaves the previous
// pointer referencing a key present in the loaded set.
func (m *Manager) Activate(ctx context.Context, keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activateLocked(ctx, keyID)
}

// MarkForRotation flags oldKeyID as being replaced by newKeyID. The old
// key stays loadable so not-yet-migrated data remains decryptable.
func (m *Manager) MarkForRotation(ctx context.Context, oldKeyID, newKeyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markForRotationLocked(ctx, oldKeyID, newKeyID)
}

// Retire removes keyID from encryption eligibility. Retired keys stay
// in the decryption set until they expire.
func (m *Manager) Retire(ctx context.Context, keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retireLocked(ctx, keyID)
}

// Rotate performs the composite create -> mark -> activate -> retire
// flow and returns the new current key id.
func (m *Manager) Rotate(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Load() == nil {
		if err := m.initLocked(ctx); err != nil {
			return "", err
		}
	}
	oldKeyID := *m.current.Load()

	newKeyID, err := m.createKeyLocked(ctx)
	if err != nil {
		return "", err
	}

	if err := m.markForRotationLocked(ctx, oldKeyID, newKeyID); err != nil {
		return "", err
	}

	if err := m.activateLocked(ctx, newKeyID); err != nil {
		return "", err
	}

	if err := m.retireLocked(ctx, oldKeyID); err != nil {
		return "", err
	}

	metrics.KeyRotations.Inc()
	m.log.Info("key rotation complete",
		zap.String("old_key_id", oldKeyID),
		zap.String("new_key_id", newKeyID))
	return newKeyID, nil
}

// NeedsRotation reports whether the record is inside the rotation
// warning window.
func (m *Manager) NeedsRotation(record models.EncryptionKey) bool {
	return record.ExpiresAt.Sub(m.now()) < m.warningWindow
}

// WarningWindow returns the configured rotation warning window.
func (m *Manager) WarningWindow() time.Duration {
	return m.warningWindow
}

func (m *Manager) createKeyLocked(ctx context.Context) (string, error) {
	suffix, err := crypto.RandomHex(4)
	if err != nil {
		return "", apperrors.ErrKeyCreationFailed.WithInternal(err)
	}

	now := m.now()
	record := &models.EncryptionKey{
		KeyID:          fmt.Sprintf("key_%d_%s", now.Unix(), suffix),
		IsActive:       false,
		RotationStatus: models.RotationStatusCreated,
		ExpiresAt:      now.Add(m.maxAge),
	}
	record.AppendNote(now, "created")

	if err := m.store.Insert(ctx, record); err != nil {
		return "", apperrors.ErrKeyCreationFailed.WithInternal(err)
	}

	m.log.Info("encryption key created", zap.String("key_id", record.KeyID))
	return record.KeyID, nil
}

func (m *Manager) activateLocked(ctx context.Context, keyID string) error {
	now := m.now()

	record, err := m.store.FindByID(ctx, keyID)
	if err != nil {
		return err
	}
	if record == nil {
		return apperrors.ErrKeyNotFound
	}
	if record.IsExpired(now) {
		return apperrors.NewBadRequest("cannot activate an expired key")
	}

	err = m.store.Transact(ctx, func(tx RecordStore) error {
		// Demote whatever key currently serves encryption so at most
		// one record is ever active.
		previous, err := tx.FindCurrent(ctx, now)
		if err != nil {
			return err
		}
		if previous != nil && previous.KeyID != keyID {
			previous.IsActive = false
			if previous.RotationStatus == models.RotationStatusActive {
				previous.RotationStatus = models.RotationStatusRotating
				previous.ReplacedBy = &record.KeyID
			}
			previous.AppendNote(now, "superseded by "+record.KeyID)
			if err := tx.Update(ctx, previous); err != nil {
				return err
			}
		}

		record.IsActive = true
		record.RotationStatus = models.RotationStatusActive
		record.ActivatedAt = &now
		record.AppendNote(now, "activated")
		return tx.Update(ctx, record)
	})
	if err != nil {
		return fmt.Errorf("keys: activate %s: %w", keyID, err)
	}

	// Rebuild before swapping so the pointer never references a key
	// absent from the loaded set.
	if err := m.reloadLocked(ctx); err != nil {
		return err
	}
	m.setCurrentLocked(ctx, keyID)

	m.log.Info("encryption key activated", zap.String("key_id", keyID))
	return nil
}

func (m *Manager) markForRotationLocked(ctx context.Context, oldKeyID, newKeyID string) error {
	now := m.now()

	oldRecord, err := m.store.FindByID(ctx, oldKeyID)
	if err != nil {
		return err
	}
	if oldRecord == nil {
		return apperrors.ErrKeyNotFound
	}

	newRecord, err := m.store.FindByID(ctx, newKeyID)
	if err != nil {
		return err
	}
	if newRecord == nil {
		return apperrors.ErrKeyNotFound
	}

	oldRecord.RotationStatus = models.RotationStatusRotating
	oldRecord.ReplacedBy = &newRecord.KeyID
	oldRecord.AppendNote(now, "rotation started, replaced by "+newRecord.KeyID)

	if err := m.store.Update(ctx, oldRecord); err != nil {
		return fmt.Errorf("keys: mark for rotation: %w", err)
	}
	return nil
}

func (m *Manager) retireLocked(ctx context.Context, keyID string) error {
	now := m.now()

	if id := m.current.Load(); id != nil && *id == keyID {
		return apperrors.NewBadRequest("cannot retire the current encryption key")
	}

	record, err := m.store.FindByID(ctx, keyID)
	if err != nil {
		return err
	}
	if record == nil {
		return apperrors.ErrKeyNotFound
	}

	record.IsActive = false
	record.RotationStatus = models.RotationStatusRetired
	record.AppendNote(now, "retired")

	if err := m.store.Update(ctx, record); err != nil {
		return fmt.Errorf("keys: retire: %w", err)
	}

	// Retired keys stay in the decryption set until expiry; reload so
	// the snapshot reflects the status change.
	if err := m.reloadLocked(ctx); err != nil {
		return err
	}

	m.log.Info("encryption key retired", zap.String("key_id", keyID))
	return nil
}

// initLocked resolves the current key id (cache, then database, then a
// freshly generated default key) and loads the key set.
func (m *Manager) initLocked(ctx context.Context) error {
	now := m.now()

	keyID := m.cachedCurrentKeyID(ctx, now)

	if keyID == "" {
		record, err := m.store.FindCurrent(ctx, now)
		if err != nil {
			return err
		}
		if record != nil {
			keyID = record.KeyID
		}
	}

	if keyID == "" {
		record, err := m.ensureDefaultKey(ctx, now)
		if err != nil {
			return err
		}
		keyID = record.KeyID
	}

	if err := m.reloadLocked(ctx); err != nil {
		return err
	}
	m.setCurrentLocked(ctx, keyID)
	return nil
}

func (m *Manager) cachedCurrentKeyID(ctx context.Context, now time.Time) string {
	if m.cache == nil {
		return ""
	}

	value, ok, err := m.cache.Get(ctx, currentKeyCacheKey)
	if err != nil || !ok || len(value) == 0 {
		return ""
	}

	// The cache is advisory; verify against the source of truth.
	record, err := m.store.FindByID(ctx, string(value))
	if err != nil || record == nil || !record.CanEncrypt(now) {
		return ""
	}
	return record.KeyID
}

func (m *Manager) ensureDefaultKey(ctx context.Context, now time.Time) (*models.EncryptionKey, error) {
	record := &models.EncryptionKey{
		KeyID:          DefaultKeyID,
		IsActive:       true,
		RotationStatus: models.RotationStatusActive,
		ExpiresAt:      now.Add(m.maxAge),
		ActivatedAt:    &now,
	}
	record.AppendNote(now, "generated as zero-configuration default key")

	if err := m.store.Insert(ctx, record); err != nil {
		// Another process may have generated the default key first.
		existing, findErr := m.store.FindByID(ctx, DefaultKeyID)
		if findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, apperrors.ErrKeyCreationFailed.WithInternal(err)
	}

	m.log.Info("generated default encryption key")
	return record, nil
}

// reloadLocked rebuilds the derived-key snapshot wholesale from all
// loadable records.
func (m *Manager) reloadLocked(ctx context.Context) error {
	now := m.now()

	records, err := m.store.FindLoadable(ctx, now)
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		if !record.Loadable(now) {
			continue
		}
		derived, err := crypto.DeriveKey(m.secret, record.KeyID, m.params)
		if err != nil {
			return apperrors.ErrConfig.WithInternal(err)
		}
		entries = append(entries, Entry{KeyID: record.KeyID, Key: derived})
	}

	legacy, err := crypto.DeriveKey(m.secret, "", m.params)
	if err != nil {
		return apperrors.ErrConfig.WithInternal(err)
	}

	m.keys.Store(newSet(entries, legacy))
	metrics.LoadedKeys.Set(float64(len(entries)))
	return nil
}

func (m *Manager) setCurrentLocked(ctx context.Context, keyID string) {
	m.current.Store(&keyID)

	if m.cache != nil {
		if err := m.cache.Set(ctx, currentKeyCacheKey, []byte(keyID), currentKeyCacheTTL); err != nil {
			m.log.Warn("failed to cache current key id", zap.Error(err))
		}
	}
}
