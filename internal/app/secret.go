package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeSecret decodes the configured process secret to raw bytes.
// It tries hex first, then base64 variants, and finally treats the
// input as raw bytes. Key derivation is deterministic over whatever
// this returns, so the decode order must never change.
func DecodeSecret(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("secret value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}

	return []byte(v), nil
}
