package fieldcrypt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWire(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Wire
	}{
		{
			name:  "v2 with key id",
			input: "FERNET_V2:key_123:payload==",
			want:  Wire{Kind: WireV2, KeyID: "key_123", Payload: "payload=="},
		},
		{
			name:  "v2 payload keeps embedded colons",
			input: "FERNET_V2:k1:a:b:c",
			want:  Wire{Kind: WireV2, KeyID: "k1", Payload: "a:b:c"},
		},
		{
			name:  "v2 missing separator",
			input: "FERNET_V2:orphan",
			want:  Wire{Kind: WireV2, KeyID: "orphan"},
		},
		{
			name:  "v1",
			input: "FERNET_V1:payload",
			want:  Wire{Kind: WireV1, Payload: "payload"},
		},
		{
			name:  "legacy",
			input: "ENC_V1:compressed",
			want:  Wire{Kind: WireLegacy, Payload: "compressed"},
		},
		{
			name:  "unversioned",
			input: "plain old value",
			want:  Wire{Kind: WireUnversioned, Payload: "plain old value"},
		},
		{
			name:  "empty",
			input: "",
			want:  Wire{Kind: WireUnversioned},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ParseWire(tt.input))
		})
	}
}

func TestWireKindString(t *testing.T) {
	require.Equal(t, "v2", WireV2.String())
	require.Equal(t, "v1", WireV1.String())
	require.Equal(t, "legacy", WireLegacy.String())
	require.Equal(t, "unversioned", WireUnversioned.String())
}
