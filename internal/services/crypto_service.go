package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldvault/fieldvault/internal/fieldcrypt"
	"github.com/fieldvault/fieldvault/pkg/logger"
)

// CryptoService exposes encode and decode to operational tooling such
// as migration scripts and health checks.
type CryptoService struct {
	codec *fieldcrypt.Codec
	audit *AuditService
	log   *zap.Logger
}

// NewCryptoService constructs a CryptoService. The audit service is optional.
func NewCryptoService(codec *fieldcrypt.Codec, audit *AuditService) (*CryptoService, error) {
	if codec == nil {
		return nil, errors.New("services: codec is required")
	}
	return &CryptoService{
		codec: codec,
		audit: audit,
		log:   logger.WithModule("crypto"),
	}, nil
}

// Encrypt encodes plaintext under the current key.
func (s *CryptoService) Encrypt(ctx context.Context, plaintext string) (string, error) {
	encoded, err := s.codec.Encode(ctx, plaintext)
	if err != nil {
		s.recordAudit(ctx, AuditActionEncrypt, err)
		return "", err
	}
	return encoded, nil
}

// Decrypt decodes a wire value. Failures are audited with a correlation
// id; the value itself is never logged.
func (s *CryptoService) Decrypt(ctx context.Context, wireValue string) (string, error) {
	plaintext, err := s.codec.Decode(ctx, wireValue)
	if err != nil {
		s.recordAudit(ctx, AuditActionDecrypt, err)
		return "", err
	}
	return plaintext, nil
}

func (s *CryptoService) recordAudit(ctx context.Context, action string, opErr error) {
	correlationID := uuid.NewString()
	s.log.Error("crypto operation failed",
		zap.String("action", action),
		zap.String("correlation_id", correlationID),
		zap.Error(opErr))

	if s.audit != nil {
		s.audit.Record(ctx, action, "", AuditResultFailure, correlationID, nil)
	}
}
