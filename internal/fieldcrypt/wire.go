package fieldcrypt

import "strings"

// Wire format prefixes, oldest to newest. Only the V2 format is ever
// written; the rest are recognised for decryption.
const (
	PrefixLegacy = "ENC_V1:"
	PrefixV1     = "FERNET_V1:"
	PrefixV2     = "FERNET_V2:"
)

// WireKind identifies which wire format a persisted value carries.
type WireKind int

const (
	// WireUnversioned is a value with no recognised prefix: either raw
	// plaintext or ciphertext from before prefixes existed.
	WireUnversioned WireKind = iota
	// WireLegacy is the compressed-only format. It is not encrypted.
	WireLegacy
	// WireV1 is the single-key encrypted format without a key id.
	WireV1
	// WireV2 is the canonical format carrying the key id inline.
	WireV2
)

// String returns the label used in logs and metrics.
func (k WireKind) String() string {
	switch k {
	case WireLegacy:
		return "legacy"
	case WireV1:
		return "v1"
	case WireV2:
		return "v2"
	default:
		return "unversioned"
	}
}

// Wire is the parsed form of a persisted value. Parsing is pure string
// inspection; payloads are validated later by the codec.
type Wire struct {
	Kind    WireKind
	KeyID   string
	Payload string
}

// ParseWire classifies a persisted value by prefix. It never fails:
// values matching no prefix come back as WireUnversioned with the full
// value as payload.
func ParseWire(value string) Wire {
	switch {
	case strings.HasPrefix(value, PrefixV2):
		rest := strings.TrimPrefix(value, PrefixV2)
		keyID, payload, found := strings.Cut(rest, ":")
		if !found {
			// A V2 prefix without a key id separator is malformed;
			// surface it as an empty payload so decryption fails cleanly.
			return Wire{Kind: WireV2, KeyID: rest}
		}
		return Wire{Kind: WireV2, KeyID: keyID, Payload: payload}
	case strings.HasPrefix(value, PrefixV1):
		return Wire{Kind: WireV1, Payload: strings.TrimPrefix(value, PrefixV1)}
	case strings.HasPrefix(value, PrefixLegacy):
		return Wire{Kind: WireLegacy, Payload: strings.TrimPrefix(value, PrefixLegacy)}
	default:
		return Wire{Kind: WireUnversioned, Payload: value}
	}
}
