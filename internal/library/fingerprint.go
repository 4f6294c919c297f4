package library

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint derives the stable cache key for a recommendation request from
// provider identity, requested count, and the library profile signature.
func Fingerprint(provider, model string, targetCount int, profile Profile) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", provider, model, targetCount, profile.Signature())))
	return hex.EncodeToString(sum[:])
}
