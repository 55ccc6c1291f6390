package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	tests := []struct {
		name string
		data string
		id   uint64
	}{
		{"empty", "", 0xef46db3751d8e999},
		{"short", "test", 0x4fdcca5ddb678139},
		{"long", "this is a longer test string to hash", 0x69275f7f7ee59dbd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.id, Digest([]byte(tt.data)))
		})
	}
}

func TestDigestHex(t *testing.T) {
	require.Equal(t, "4fdcca5ddb678139", DigestHex([]byte("test")))
	require.Len(t, DigestHex([]byte{0x01, 0x02}), DigestHexLen)
}

func TestFormatDigest_Pads(t *testing.T) {
	require.Equal(t, "0000000000000001", FormatDigest(1))
	require.Equal(t, "ffffffffffffffff", FormatDigest(^uint64(0)))
}

func TestIsDigestHex(t *testing.T) {
	require.True(t, IsDigestHex("4fdcca5ddb678139"))
	require.False(t, IsDigestHex("4FDCCA5DDB678139"))
	require.False(t, IsDigestHex("4fdcca5ddb67813"))
	require.False(t, IsDigestHex("../../etc/passwd"))
	require.False(t, IsDigestHex("4fdcca5ddb67813g"))
}
