package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/internal/models"
)

// AutoMigrate creates or updates the schema for all persistent models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := db.AutoMigrate(
		&models.EncryptionKey{},
		&models.AuditLog{},
		&models.CacheEntry{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}
