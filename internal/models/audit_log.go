package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records key lifecycle transitions and read-path decode
// failures. Metadata never contains plaintext or key material.
type AuditLog struct {
	ID            string         `gorm:"primaryKey;type:uuid" json:"id"`
	Action        string         `gorm:"not null;index" json:"action"`
	Resource      string         `gorm:"index" json:"resource"`
	Result        string         `gorm:"not null" json:"result"`
	CorrelationID string         `gorm:"index" json:"correlation_id"`
	Metadata      datatypes.JSON `json:"metadata"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
