package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const saltLength = 16

// PBKDF2Parameters controls the cost factors for PBKDF2 key derivation.
type PBKDF2Parameters struct {
	// Iterations is the PBKDF2-HMAC-SHA256 iteration count.
	Iterations int
	// KeyLength is the desired length of the derived key in bytes.
	KeyLength int
}

// DefaultPBKDF2Params returns the default parameters used for field
// encryption key derivation.
func DefaultPBKDF2Params() PBKDF2Parameters {
	return PBKDF2Parameters{
		Iterations: 100_000,
		KeyLength:  32,
	}
}

// Validate ensures the parameters are suitable for key derivation.
func (p PBKDF2Parameters) Validate() error {
	if p.Iterations < 100_000 {
		return fmt.Errorf("pbkdf2: iteration count must be at least 100000 (got %d)", p.Iterations)
	}
	switch p.KeyLength {
	case 16, 24, 32:
	default:
		return fmt.Errorf("pbkdf2: key length must be 16, 24, or 32 bytes (got %d)", p.KeyLength)
	}
	return nil
}

// DeriveKey derives a symmetric key from the process secret and a key
// identifier using PBKDF2-HMAC-SHA256. The salt is computed from the
// key id, so the same (secret, keyID) pair always yields the same key
// and key material never needs to be persisted.
func DeriveKey(secret []byte, keyID string, params PBKDF2Parameters) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("pbkdf2: secret is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	salt := DeriveSalt([]byte(keyID))
	if keyID == "" {
		// Legacy single-key derivation salts on the secret itself.
		salt = DeriveSalt(secret)
	}

	return pbkdf2.Key(secret, salt, params.Iterations, params.KeyLength, sha256.New), nil
}

// DeriveSalt computes the deterministic 16-byte salt for the given input.
func DeriveSalt(input []byte) []byte {
	sum := sha256.Sum256(input)
	return sum[:saltLength]
}
