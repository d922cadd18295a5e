package u_hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// SumHex returns the lowercase hex-encoded SHA-256 digest of data. Identical
// byte sequences always produce identical digests, which makes this the
// content identity used for duplicate detection within a lot.
func SumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
