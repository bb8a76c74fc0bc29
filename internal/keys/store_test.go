package keys

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/internal/models"
)

func newTestGormStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.EncryptionKey{}))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	store, err := NewGormStore(db)
	require.NoError(t, err)
	return store, db
}

func TestGormStoreFindLoadableExcludesExpired(t *testing.T) {
	store, db := newTestGormStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Insert(ctx, &models.EncryptionKey{
		KeyID:          "key_live",
		RotationStatus: models.RotationStatusActive,
		IsActive:       true,
		ExpiresAt:      now.Add(time.Hour),
	}))
	require.NoError(t, store.Insert(ctx, &models.EncryptionKey{
		KeyID:          "key_retired",
		RotationStatus: models.RotationStatusRetired,
		ExpiresAt:      now.Add(time.Hour),
	}))
	require.NoError(t, store.Insert(ctx, &models.EncryptionKey{
		KeyID:          "key_gone",
		RotationStatus: models.RotationStatusActive,
		ExpiresAt:      now.Add(time.Hour),
	}))
	// Backdate the third record past its expiry without running hooks.
	require.NoError(t, db.Model(&models.EncryptionKey{}).
		Where("key_id = ?", "key_gone").
		UpdateColumn("expires_at", now.Add(-time.Hour)).Error)

	records, err := store.FindLoadable(ctx, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.KeyID)
	}
	require.ElementsMatch(t, []string{"key_live", "key_retired"}, ids)
}

func TestGormStoreFindCurrent(t *testing.T) {
	store, _ := newTestGormStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	record, err := store.FindCurrent(ctx, now)
	require.NoError(t, err)
	require.Nil(t, record)

	activatedAt := now
	require.NoError(t, store.Insert(ctx, &models.EncryptionKey{
		KeyID:          "key_current",
		RotationStatus: models.RotationStatusActive,
		IsActive:       true,
		ActivatedAt:    &activatedAt,
		ExpiresAt:      now.Add(time.Hour),
	}))

	record, err = store.FindCurrent(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "key_current", record.KeyID)
}

func TestGormStoreFindByIDMissing(t *testing.T) {
	store, _ := newTestGormStore(t)

	record, err := store.FindByID(context.Background(), "key_absent")
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestGormStoreTransactRollsBack(t *testing.T) {
	store, _ := newTestGormStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.Transact(ctx, func(tx RecordStore) error {
		if err := tx.Insert(ctx, &models.EncryptionKey{
			KeyID:          "key_tx",
			RotationStatus: models.RotationStatusCreated,
			ExpiresAt:      now.Add(time.Hour),
		}); err != nil {
			return err
		}
		return fmt.Errorf("force rollback")
	})
	require.Error(t, err)

	record, err := store.FindByID(ctx, "key_tx")
	require.NoError(t, err)
	require.Nil(t, record)
}
