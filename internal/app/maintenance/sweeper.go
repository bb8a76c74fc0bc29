package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/internal/keys"
	"github.com/fieldvault/fieldvault/internal/models"
	"github.com/fieldvault/fieldvault/internal/services"
	"github.com/fieldvault/fieldvault/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultKeySpec            = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultCacheSpec          = "@hourly"
)

// Sweeper coordinates background maintenance: force-expiring overdue
// key records, warning about keys approaching expiry, enforcing audit
// retention, and purging stale cache entries.
type Sweeper struct {
	db        *gorm.DB
	manager   *keys.Manager
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention int

	keySchedule   string
	auditSchedule string
	cacheSchedule string
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(sweeper *Sweeper) {
		if c != nil {
			sweeper.cron = c
		}
	}
}

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(sweeper *Sweeper) {
		if now != nil {
			sweeper.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained.
func WithAuditRetentionDays(days int) Option {
	return func(sweeper *Sweeper) {
		if days > 0 {
			sweeper.retention = days
		}
	}
}

// WithKeySchedule overrides the cron specification for the key sweep.
func WithKeySchedule(spec string) Option {
	return func(sweeper *Sweeper) {
		if spec != "" {
			sweeper.keySchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(sweeper *Sweeper) {
		if spec != "" {
			sweeper.auditSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache entry cleanup.
func WithCacheSchedule(spec string) Option {
	return func(sweeper *Sweeper) {
		if spec != "" {
			sweeper.cacheSchedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper with sensible defaults. Any nil
// dependency results in the corresponding job being skipped.
func NewSweeper(db *gorm.DB, manager *keys.Manager, audit *services.AuditService, opts ...Option) *Sweeper {
	sweeper := &Sweeper{
		db:            db,
		manager:       manager,
		audit:         audit,
		now:           time.Now,
		retention:     defaultAuditRetentionDays,
		keySchedule:   defaultKeySpec,
		auditSchedule: defaultAuditSpec,
		cacheSchedule: defaultCacheSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	sweeper.enabled = sweeper.db != nil || sweeper.audit != nil

	return sweeper
}

// Start registers the jobs with the cron scheduler and launches it.
func (s *Sweeper) Start() error {
	if !s.enabled {
		return nil
	}

	if s.db != nil {
		if _, err := s.cron.AddFunc(s.keySchedule, func() {
			if err := s.SweepKeys(context.Background()); err != nil {
				s.log.Warn("key sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}

		if _, err := s.cron.AddFunc(s.cacheSchedule, func() {
			if _, err := CleanupCacheEntries(context.Background(), s.db, s.now()); err != nil {
				s.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.audit != nil && s.retention > 0 {
		if _, err := s.cron.AddFunc(s.auditSchedule, func() {
			if _, err := s.audit.CleanupOlderThan(context.Background(), s.retention); err != nil {
				s.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for running jobs to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes all configured jobs sequentially. Primarily used in
// tests and during graceful shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.db != nil {
		if err := s.SweepKeys(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
		if _, err := CleanupCacheEntries(ctx, s.db, s.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.audit != nil && s.retention > 0 {
		if _, err := s.audit.CleanupOlderThan(ctx, s.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// SweepKeys persists the expired status for overdue key records, logs a
// warning for keys approaching expiry, and refreshes the manager's key
// set when anything expired.
func (s *Sweeper) SweepKeys(ctx context.Context) error {
	now := s.now().UTC()

	var records []models.EncryptionKey
	err := s.db.WithContext(ctx).
		Where("rotation_status <> ?", models.RotationStatusExpired).
		Find(&records).Error
	if err != nil {
		return err
	}

	var errs error
	expired := 0
	for i := range records {
		record := &records[i]

		if record.IsExpired(now) {
			if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			expired++
			s.log.Info("encryption key expired",
				zap.String("key_id", record.KeyID),
				zap.Time("expired_at", record.ExpiresAt))
			continue
		}

		if s.manager != nil && s.manager.NeedsRotation(*record) {
			s.log.Warn("encryption key approaching expiry",
				zap.String("key_id", record.KeyID),
				zap.Time("expires_at", record.ExpiresAt))
		}
	}

	if expired > 0 && s.manager != nil {
		if err := s.manager.Refresh(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupCacheEntries deletes cache rows whose expiry has passed and
// returns how many rows were removed. Rows with a zero expiry never
// expire and are left alone.
func CleanupCacheEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("expires_at > ?", time.Time{}).
		Where("expires_at < ?", now.UTC()).
		Delete(&models.CacheEntry{})
	return result.RowsAffected, result.Error
}
