package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldvault/fieldvault/internal/keys"
	"github.com/fieldvault/fieldvault/pkg/logger"
)

// KeyService fronts the key manager for the API layer and records an
// audit trail for every lifecycle mutation.
type KeyService struct {
	manager *keys.Manager
	audit   *AuditService
	log     *zap.Logger
}

// NewKeyService constructs a KeyService. The audit service is optional.
func NewKeyService(manager *keys.Manager, audit *AuditService) (*KeyService, error) {
	if manager == nil {
		return nil, errors.New("services: key manager is required")
	}
	return &KeyService{
		manager: manager,
		audit:   audit,
		log:     logger.WithModule("keys"),
	}, nil
}

// Status reports the key inventory.
func (s *KeyService) Status(ctx context.Context) (*keys.StatusReport, error) {
	return s.manager.Status(ctx)
}

// Create generates a new inactive key.
func (s *KeyService) Create(ctx context.Context) (string, error) {
	keyID, err := s.manager.CreateKey(ctx)
	s.recordAudit(ctx, AuditActionKeyCreate, keyID, err, nil)
	return keyID, err
}

// Activate makes an existing key the current encryption key.
func (s *KeyService) Activate(ctx context.Context, keyID string) error {
	err := s.manager.Activate(ctx, keyID)
	s.recordAudit(ctx, AuditActionKeyActivate, keyID, err, nil)
	return err
}

// Retire removes a key from encryption eligibility.
func (s *KeyService) Retire(ctx context.Context, keyID string) error {
	err := s.manager.Retire(ctx, keyID)
	s.recordAudit(ctx, AuditActionKeyRetire, keyID, err, nil)
	return err
}

// Rotate runs the full rotation flow and returns the new current key id.
func (s *KeyService) Rotate(ctx context.Context) (string, error) {
	previousKeyID, _ := s.manager.CurrentKeyID(ctx)

	newKeyID, err := s.manager.Rotate(ctx)
	s.recordAudit(ctx, AuditActionKeyRotate, newKeyID, err, map[string]interface{}{
		"previous_key_id": previousKeyID,
	})
	return newKeyID, err
}

func (s *KeyService) recordAudit(ctx context.Context, action, keyID string, opErr error, metadata map[string]interface{}) {
	if s.audit == nil {
		return
	}

	result := AuditResultSuccess
	if opErr != nil {
		result = AuditResultFailure
	}
	s.audit.Record(ctx, action, keyID, result, uuid.NewString(), metadata)
}
