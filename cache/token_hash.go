package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey hashes a caller-supplied key so stored keys have a fixed length and
// never contain the raw value.
func HashKey(key string) string {
	hasher := sha256.New()
	hasher.Write([]byte(key))
	return hex.EncodeToString(hasher.Sum(nil))
}
