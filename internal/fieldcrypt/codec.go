package fieldcrypt

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldvault/fieldvault/internal/keys"
	"github.com/fieldvault/fieldvault/pkg/crypto"
	apperrors "github.com/fieldvault/fieldvault/pkg/errors"
	"github.com/fieldvault/fieldvault/pkg/logger"
	"github.com/fieldvault/fieldvault/pkg/metrics"
)

// Codec translates between plaintext and the versioned wire formats.
// Encoding always emits the V2 format under the manager's current key;
// decoding accepts every format ever written.
type Codec struct {
	manager *keys.Manager
	log     *zap.Logger
}

// NewCodec constructs a Codec over the supplied key manager.
func NewCodec(manager *keys.Manager) *Codec {
	return &Codec{
		manager: manager,
		log:     logger.WithModule("fieldcrypt"),
	}
}

// Encode encrypts plaintext under the current key. Already-encoded
// values are returned unchanged so double encryption cannot occur.
func (c *Codec) Encode(ctx context.Context, plaintext string) (string, error) {
	keyID, err := c.manager.CurrentKeyID(ctx)
	if err != nil {
		metrics.EncryptOperations.WithLabelValues("failure").Inc()
		return "", err
	}
	return c.EncodeWithKey(ctx, plaintext, keyID)
}

// EncodeWithKey encrypts plaintext under a specific loaded key.
func (c *Codec) EncodeWithKey(ctx context.Context, plaintext, keyID string) (string, error) {
	if strings.HasPrefix(plaintext, PrefixV2) {
		return plaintext, nil
	}

	set, err := c.manager.Snapshot(ctx)
	if err != nil {
		metrics.EncryptOperations.WithLabelValues("failure").Inc()
		return "", err
	}

	key, ok := set.Get(keyID)
	if !ok {
		metrics.EncryptOperations.WithLabelValues("failure").Inc()
		return "", apperrors.ErrKeyNotFound
	}

	payload, err := crypto.Encrypt([]byte(plaintext), key)
	if err != nil {
		metrics.EncryptOperations.WithLabelValues("failure").Inc()
		return "", err
	}

	metrics.EncryptOperations.WithLabelValues("success").Inc()
	return PrefixV2 + keyID + ":" + payload, nil
}

// Decode recovers plaintext from any supported wire format. Unversioned
// values that decrypt under no loaded key are returned as-is: rows
// written before encryption existed are plaintext.
func (c *Codec) Decode(ctx context.Context, wireValue string) (string, error) {
	wire := ParseWire(wireValue)

	set, err := c.manager.Snapshot(ctx)
	if err != nil {
		metrics.DecryptOperations.WithLabelValues(wire.Kind.String(), "failure").Inc()
		return "", err
	}

	plaintext, err := c.decode(wire, set)
	if err != nil {
		metrics.DecryptOperations.WithLabelValues(wire.Kind.String(), "failure").Inc()
		return "", err
	}
	metrics.DecryptOperations.WithLabelValues(wire.Kind.String(), "success").Inc()
	return plaintext, nil
}

func (c *Codec) decode(wire Wire, set *keys.Set) (string, error) {
	switch wire.Kind {
	case WireV2:
		if key, ok := set.Get(wire.KeyID); ok {
			plaintext, err := crypto.Decrypt(wire.Payload, key)
			if err != nil {
				return "", apperrors.ErrDecryptionFailed.WithInternal(err)
			}
			return string(plaintext), nil
		}
		// The key id predates the loaded set or was never recorded
		// here; trial decryption is the only recovery path.
		return c.tryAll(wire.Payload, set)

	case WireV1:
		return c.tryAll(wire.Payload, set)

	case WireLegacy:
		plaintext, err := decompressLegacy(wire.Payload)
		if err != nil {
			return "", apperrors.ErrDecryptionFailed.WithInternal(err)
		}
		return plaintext, nil

	default:
		plaintext, err := c.tryAll(wire.Payload, set)
		if err == nil {
			return plaintext, nil
		}
		// Rows written before encryption existed carry raw plaintext.
		return wire.Payload, nil
	}
}

// tryAll attempts decryption with every loaded key, the legacy
// single-key derivation last, returning the first success.
func (c *Codec) tryAll(payload string, set *keys.Set) (string, error) {
	for _, entry := range set.All() {
		metrics.TryAllAttempts.Inc()
		plaintext, err := crypto.Decrypt(payload, entry.Key)
		if err == nil {
			return string(plaintext), nil
		}
	}
	return "", apperrors.ErrDecryptionFailed
}

func decompressLegacy(payload string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", err
	}
	reader, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer reader.Close()

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
