package crypto

import (
	"bytes"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	params := DefaultPBKDF2Params()
	secret := []byte("super-secret-passphrase")

	key1, err := DeriveKey(secret, "key_1700000000_abcd", params)
	if err != nil {
		t.Fatalf("derive key (first): %v", err)
	}
	key2, err := DeriveKey(secret, "key_1700000000_abcd", params)
	if err != nil {
		t.Fatalf("derive key (second): %v", err)
	}

	if !bytes.Equal(key1, key2) {
		t.Fatal("expected deterministic key derivation; keys differ")
	}
	if len(key1) != params.KeyLength {
		t.Fatalf("expected key length %d, got %d", params.KeyLength, len(key1))
	}
}

func TestDeriveKeyDifferentKeyIDs(t *testing.T) {
	params := DefaultPBKDF2Params()
	secret := []byte("super-secret-passphrase")

	keyA, err := DeriveKey(secret, "key_a", params)
	if err != nil {
		t.Fatalf("derive key (A): %v", err)
	}
	keyB, err := DeriveKey(secret, "key_b", params)
	if err != nil {
		t.Fatalf("derive key (B): %v", err)
	}

	if bytes.Equal(keyA, keyB) {
		t.Fatal("expected different keys for different key ids")
	}
}

func TestDeriveKeyLegacySalt(t *testing.T) {
	params := DefaultPBKDF2Params()
	secret := []byte("super-secret-passphrase")

	legacy, err := DeriveKey(secret, "", params)
	if err != nil {
		t.Fatalf("derive key (legacy): %v", err)
	}

	// The empty key id salts on the secret, not on the empty string.
	salted, err := DeriveKey(secret, "default", params)
	if err != nil {
		t.Fatalf("derive key (default): %v", err)
	}
	if bytes.Equal(legacy, salted) {
		t.Fatal("expected legacy derivation to differ from key id derivation")
	}
}

func TestDeriveKeyValidatesInput(t *testing.T) {
	params := DefaultPBKDF2Params()

	if _, err := DeriveKey(nil, "key_a", params); err == nil {
		t.Fatal("expected error when secret is empty")
	}

	weak := params
	weak.Iterations = 1_000
	if _, err := DeriveKey([]byte("secret"), "key_a", weak); err == nil {
		t.Fatal("expected error for weak iteration count")
	}
}

func TestPBKDF2ParametersValidate(t *testing.T) {
	cases := []struct {
		name   string
		params PBKDF2Parameters
		valid  bool
	}{
		{"default", DefaultPBKDF2Params(), true},
		{"low iterations", PBKDF2Parameters{Iterations: 50_000, KeyLength: 32}, false},
		{"zero key length", PBKDF2Parameters{Iterations: 100_000, KeyLength: 0}, false},
		{"invalid key length", PBKDF2Parameters{Iterations: 100_000, KeyLength: 48}, false},
		{"aes-128 length", PBKDF2Parameters{Iterations: 100_000, KeyLength: 16}, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.valid && err != nil {
				t.Fatalf("expected params to be valid: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatal("expected validation error for params")
			}
		})
	}
}
