package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/internal/models"
)

func newTestStore(t *testing.T) *DatabaseStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_fk=1"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CacheEntry{}))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return NewDatabaseStore(db)
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "current-key", []byte("key_1"), time.Minute))

	value, ok, err := store.Get(ctx, "current-key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("key_1"), value)

	// Upsert replaces the value in place.
	require.NoError(t, store.Set(ctx, "current-key", []byte("key_2"), time.Minute))
	value, ok, err = store.Get(ctx, "current-key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("key_2"), value)

	require.NoError(t, store.Delete(ctx, "current-key"))
	_, ok, err = store.Get(ctx, "current-key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreRespectsExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ephemeral", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := store.Get(ctx, "ephemeral")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreNilReceiver(t *testing.T) {
	var store *DatabaseStore
	require.Error(t, store.Set(context.Background(), "k", nil, 0))
	_, _, err := store.Get(context.Background(), "k")
	require.Error(t, err)
}
