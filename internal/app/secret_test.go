package app

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeSecretHex(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	decoded, err := DecodeSecret(hex.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestDecodeSecretBase64(t *testing.T) {
	raw := []byte("secret-bytes!")
	decoded, err := DecodeSecret(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestDecodeSecretRawFallback(t *testing.T) {
	decoded, err := DecodeSecret("not hex, not base64!")
	require.NoError(t, err)
	require.Equal(t, []byte("not hex, not base64!"), decoded)
}

func TestDecodeSecretEmpty(t *testing.T) {
	_, err := DecodeSecret("   ")
	require.Error(t, err)
}
