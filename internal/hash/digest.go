// Package hash provides content digests for artifacts served by lvbits.
package hash

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DigestHexLen is the length of a hex-encoded digest.
const DigestHexLen = 16

// Digest computes the xxHash64 of data.
func Digest(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// DigestHex returns the xxHash64 of data as a zero-padded, 16-character lowercase hex string.
func DigestHex(data []byte) string {
	return FormatDigest(Digest(data))
}

// FormatDigest formats a digest as a zero-padded, 16-character lowercase hex string.
func FormatDigest(d uint64) string {
	s := strconv.FormatUint(d, 16)
	if len(s) < DigestHexLen {
		s = "0000000000000000"[:DigestHexLen-len(s)] + s
	}

	return s
}

// IsDigestHex reports whether s looks like a value produced by FormatDigest.
func IsDigestHex(s string) bool {
	if len(s) != DigestHexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
