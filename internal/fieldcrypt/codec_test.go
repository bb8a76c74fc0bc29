package fieldcrypt

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/internal/keys"
	"github.com/fieldvault/fieldvault/internal/models"
	"github.com/fieldvault/fieldvault/pkg/crypto"
	apperrors "github.com/fieldvault/fieldvault/pkg/errors"
)

const testSecret = "fieldcrypt-test-secret"

func newTestManager(t *testing.T) *keys.Manager {
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

	store, err := keys.NewGormStore(db)
	require.NoError(t, err)
	manager, err := keys.NewManager(store, []byte(testSecret))
	require.NoError(t, err)
	require.NoError(t, manager.Initialize(context.Background()))
	return manager
}

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	return NewCodec(newTestManager(t))
}

func legacyWireValue(t *testing.T, plaintext string) string {
	t.Helper()

	var buf bytes.Buffer
	writer := zlib.NewWriter(&buf)
	_, err := writer.Write([]byte(plaintext))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return PrefixLegacy + base64.RawURLEncoding.EncodeToString(buf.Bytes())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	plaintexts := []string{
		"alice@example.com",
		"",
		"unicode: héllo wörld 日本語",
		"embedded\x00null",
	}
	for _, plaintext := range plaintexts {
		encoded, err := codec.Encode(ctx, plaintext)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(encoded, PrefixV2))

		decoded, err := codec.Decode(ctx, encoded)
		require.NoError(t, err)
		require.Equal(t, plaintext, decoded)
	}
}

func TestEncodeIsNondeterministic(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	first, err := codec.Encode(ctx, "same input")
	require.NoError(t, err)
	second, err := codec.Encode(ctx, "same input")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestEncodeIdempotentOnEncodedInput(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	encoded, err := codec.Encode(ctx, "once")
	require.NoError(t, err)

	again, err := codec.Encode(ctx, encoded)
	require.NoError(t, err)
	require.Equal(t, encoded, again)
}

func TestDecodeTamperedPayloadFails(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	encoded, err := codec.Encode(ctx, "sensitive")
	require.NoError(t, err)

	// Flip one character deep in the payload.
	tampered := []byte(encoded)
	pos := len(tampered) - 2
	if tampered[pos] == 'A' {
		tampered[pos] = 'B'
	} else {
		tampered[pos] = 'A'
	}

	_, err = codec.Decode(ctx, string(tampered))
	require.ErrorIs(t, err, apperrors.ErrDecryptionFailed)
}

func TestDecodeGarbagePayloadFails(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Decode(context.Background(), PrefixV2+keys.DefaultKeyID+":!!!not-base64!!!")
	require.ErrorIs(t, err, apperrors.ErrDecryptionFailed)
}

func TestDecodeUnknownKeyIDFallsBackToTryAll(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	encoded, err := codec.Encode(ctx, "recoverable")
	require.NoError(t, err)

	// Rewrite the inline key id to one the manager never loaded.
	payload := strings.TrimPrefix(encoded, PrefixV2+keys.DefaultKeyID+":")
	relabeled := PrefixV2 + "mystery_key" + ":" + payload

	decoded, err := codec.Decode(ctx, relabeled)
	require.NoError(t, err)
	require.Equal(t, "recoverable", decoded)
}

func TestDecodeV1SingleKeyFormat(t *testing.T) {
	codec := newTestCodec(t)

	// V1 payloads were written under the key-id-less derivation.
	legacyKey, err := crypto.DeriveKey([]byte(testSecret), "", crypto.DefaultPBKDF2Params())
	require.NoError(t, err)
	payload, err := crypto.Encrypt([]byte("from-an-old-writer"), legacyKey)
	require.NoError(t, err)

	decoded, err := codec.Decode(context.Background(), PrefixV1+payload)
	require.NoError(t, err)
	require.Equal(t, "from-an-old-writer", decoded)
}

func TestDecodeLegacyCompressedFormat(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	wireValue := legacyWireValue(t, "legacy@example.com")
	decoded, err := codec.Decode(ctx, wireValue)
	require.NoError(t, err)
	require.Equal(t, "legacy@example.com", decoded)

	// Re-encoding migrates the value to real encryption.
	migrated, err := codec.Encode(ctx, decoded)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(migrated, PrefixV2))
	require.False(t, strings.HasPrefix(migrated, PrefixLegacy))

	roundTripped, err := codec.Decode(ctx, migrated)
	require.NoError(t, err)
	require.Equal(t, "legacy@example.com", roundTripped)
}

func TestDecodeCorruptLegacyFails(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Decode(context.Background(), PrefixLegacy+"bm90LXpsaWI")
	require.ErrorIs(t, err, apperrors.ErrDecryptionFailed)
}

func TestDecodeUnversionedPlaintextPassthrough(t *testing.T) {
	codec := newTestCodec(t)

	decoded, err := codec.Decode(context.Background(), "never-encrypted@example.com")
	require.NoError(t, err)
	require.Equal(t, "never-encrypted@example.com", decoded)
}

func TestCrossKeyDecryptAfterRotation(t *testing.T) {
	manager := newTestManager(t)
	codec := NewCodec(manager)
	ctx := context.Background()

	beforeRotation, err := codec.Encode(ctx, "pre-rotation data")
	require.NoError(t, err)

	newKeyID, err := manager.Rotate(ctx)
	require.NoError(t, err)

	// New writes use the new key.
	afterRotation, err := codec.Encode(ctx, "post-rotation data")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(afterRotation, PrefixV2+newKeyID+":"))

	// Data written under the retired key stays readable until expiry.
	decoded, err := codec.Decode(ctx, beforeRotation)
	require.NoError(t, err)
	require.Equal(t, "pre-rotation data", decoded)

	decoded, err = codec.Decode(ctx, afterRotation)
	require.NoError(t, err)
	require.Equal(t, "post-rotation data", decoded)
}

func TestEncodeWithUnknownKey(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.EncodeWithKey(context.Background(), "data", "key_never_created")
	require.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}
