package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldvault/fieldvault/internal/models"
)

func TestOpenSQLiteInMemoryAndMigrate(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(db))

	require.True(t, db.Migrator().HasTable(&models.EncryptionKey{}))
	require.True(t, db.Migrator().HasTable(&models.AuditLog{}))
	require.True(t, db.Migrator().HasTable(&models.CacheEntry{}))
}

func TestAutoMigrateRejectsNilHandle(t *testing.T) {
	require.Error(t, AutoMigrate(nil))
}
