package utils

import (
	"crypto/sha256"
	"encoding/base64"
)

// Base64HashOf returns the base64-encoded SHA-256 digest of the input string.
// Used for deriving opaque session keys.
func Base64HashOf(input string) string {
	digest := sha256.Sum256([]byte(input))
	return base64.StdEncoding.EncodeToString(digest[:])
}
