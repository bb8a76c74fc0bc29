package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldvault/fieldvault/internal/fieldcrypt"
	"github.com/fieldvault/fieldvault/internal/keys"
)

func newTestCryptoService(t *testing.T) (*CryptoService, *AuditService) {
	t.Helper()

	db := newTestDB(t)
	store, err := keys.NewGormStore(db)
	require.NoError(t, err)
	manager, err := keys.NewManager(store, []byte("service-test-secret"))
	require.NoError(t, err)
	require.NoError(t, manager.Initialize(context.Background()))

	audit, err := NewAuditService(db)
	require.NoError(t, err)
	service, err := NewCryptoService(fieldcrypt.NewCodec(manager), audit)
	require.NoError(t, err)
	return service, audit
}

func TestCryptoServiceRoundTrip(t *testing.T) {
	service, _ := newTestCryptoService(t)
	ctx := context.Background()

	encoded, err := service.Encrypt(ctx, "secret value")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, fieldcrypt.PrefixV2))

	decoded, err := service.Decrypt(ctx, encoded)
	require.NoError(t, err)
	require.Equal(t, "secret value", decoded)
}

func TestCryptoServiceDecryptFailureAudited(t *testing.T) {
	service, audit := newTestCryptoService(t)
	ctx := context.Background()

	_, err := service.Decrypt(ctx, fieldcrypt.PrefixV2+"k1:garbage")
	require.Error(t, err)

	entries, err := audit.List(ctx, AuditActionDecrypt, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, AuditResultFailure, entries[0].Result)
	require.NotEmpty(t, entries[0].CorrelationID)
}
