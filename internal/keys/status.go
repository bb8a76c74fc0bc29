package keys

import (
	"context"
	"time"
)

// KeyStatus describes one key record for operators.
type KeyStatus struct {
	KeyID          string     `json:"key_id"`
	IsActive       bool       `json:"is_active"`
	RotationStatus string     `json:"rotation_status"`
	CreatedAt      time.Time  `json:"created_at"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
	AgeDays        int        `json:"age_days"`
	ExpiresInDays  int        `json:"expires_in_days"`
	NeedsRotation  bool       `json:"needs_rotation"`
	ReplacedBy     *string    `json:"replaced_by,omitempty"`
}

// StatusReport summarises the key inventory.
type StatusReport struct {
	CurrentKeyID string      `json:"current_key_id"`
	LoadedKeys   int         `json:"loaded_keys"`
	Keys         []KeyStatus `json:"keys"`
}

// Status reports the current key, the loaded key count and per-record
// rotation posture.
func (m *Manager) Status(ctx context.Context) (*StatusReport, error) {
	currentKeyID, err := m.CurrentKeyID(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	records, err := m.store.FindLoadable(ctx, now)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		CurrentKeyID: currentKeyID,
		Keys:         make([]KeyStatus, 0, len(records)),
	}
	if set := m.keys.Load(); set != nil {
		report.LoadedKeys = set.Len()
	}

	for _, record := range records {
		report.Keys = append(report.Keys, KeyStatus{
			KeyID:          record.KeyID,
			IsActive:       record.IsActive,
			RotationStatus: string(record.RotationStatus),
			CreatedAt:      record.CreatedAt,
			ActivatedAt:    record.ActivatedAt,
			ExpiresAt:      record.ExpiresAt,
			AgeDays:        int(now.Sub(record.CreatedAt).Hours() / 24),
			ExpiresInDays:  int(record.ExpiresAt.Sub(now).Hours() / 24),
			NeedsRotation:  m.NeedsRotation(record),
			ReplacedBy:     record.ReplacedBy,
		})
	}

	return report, nil
}
