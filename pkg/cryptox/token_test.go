package cryptox

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewHexKey(t *testing.T) {
	key, err := NewHexKey()
	require.NoError(t, err)
	require.Len(t, key, HexKeyLength)

	raw, err := hex.DecodeString(key)
	require.NoError(t, err)
	require.Len(t, raw, 16, "key should carry 128 bits")
}

func TestNewHexKey_Unique(t *testing.T) {
	const count = 200
	seen := make(map[string]bool, count)

	for range count {
		key := MustNewHexKey()
		require.NotContains(t, seen, key, "duplicate key generated")
		seen[key] = true
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{"empty", "", "***"},
		{"short", "abc", "***"},
		{"hex key", "0123456789abcdef0123456789abcdef", "012345***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Redact(tt.secret))
		})
	}
}
