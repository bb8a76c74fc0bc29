package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// RotationStatus tracks where a key sits in its lifecycle state machine.
type RotationStatus string

const (
	RotationStatusCreated  RotationStatus = "created"
	RotationStatusActive   RotationStatus = "active"
	RotationStatusRotating RotationStatus = "rotating"
	RotationStatusRetired  RotationStatus = "retired"
	RotationStatusExpired  RotationStatus = "expired"
)

// EncryptionKey describes one derivable encryption key. The derived key
// material itself is never stored; it is always re-derived from the
// process secret and the key id, so a datastore compromise alone does
// not expose key material.
type EncryptionKey struct {
	BaseModel

	KeyID          string         `gorm:"not null;uniqueIndex" json:"key_id"`
	IsActive       bool           `gorm:"not null;default:false;index" json:"is_active"`
	RotationStatus RotationStatus `gorm:"not null;default:created;index" json:"rotation_status"`
	ExpiresAt      time.Time      `gorm:"not null;index" json:"expires_at"`
	ActivatedAt    *time.Time     `json:"activated_at,omitempty"`
	ReplacedBy     *string        `json:"replaced_by,omitempty"`
	Notes          string         `json:"notes"`
}

// BeforeSave validates the record and force-expires keys whose expiry
// has passed, regardless of their prior status.
func (k *EncryptionKey) BeforeSave(tx *gorm.DB) error {
	k.KeyID = strings.TrimSpace(k.KeyID)
	if k.KeyID == "" {
		return errors.New("encryption_key: key_id is required")
	}

	switch k.RotationStatus {
	case RotationStatusCreated, RotationStatusActive, RotationStatusRotating,
		RotationStatusRetired, RotationStatusExpired:
	case "":
		k.RotationStatus = RotationStatusCreated
	default:
		return errors.New("encryption_key: invalid rotation_status")
	}

	if k.ExpiresAt.IsZero() {
		return errors.New("encryption_key: expires_at is required")
	}

	if k.IsExpired(time.Now().UTC()) {
		k.RotationStatus = RotationStatusExpired
		k.IsActive = false
	}

	return nil
}

// AfterFind applies the automatic expiry transition on the read path.
// The flip is in-memory; the next save persists it.
func (k *EncryptionKey) AfterFind(tx *gorm.DB) error {
	if k.IsExpired(time.Now().UTC()) && k.RotationStatus != RotationStatusExpired {
		k.RotationStatus = RotationStatusExpired
		k.IsActive = false
	}
	return nil
}

// IsExpired reports whether the key's maximum age has passed.
func (k *EncryptionKey) IsExpired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// CanEncrypt reports whether the key may serve new encryptions.
func (k *EncryptionKey) CanEncrypt(now time.Time) bool {
	return k.IsActive && k.RotationStatus == RotationStatusActive && !k.IsExpired(now)
}

// Loadable reports whether the key belongs in the decryption key set.
// Retired keys stay loadable until they expire so historical ciphertext
// remains readable after rotation.
func (k *EncryptionKey) Loadable(now time.Time) bool {
	if k.IsExpired(now) {
		return false
	}
	switch k.RotationStatus {
	case RotationStatusActive, RotationStatusRotating, RotationStatusRetired, RotationStatusCreated:
		return true
	default:
		return false
	}
}

// AppendNote appends a line to the key's free-form audit trail.
func (k *EncryptionKey) AppendNote(now time.Time, note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	line := now.UTC().Format(time.RFC3339) + " " + note
	if k.Notes == "" {
		k.Notes = line
		return
	}
	k.Notes += "\n" + line
}
