package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashClientKey returns a filesystem-safe identifier for a client identity.
// Client ids are self-reported, so they never appear verbatim in storage paths.
func HashClientKey(clientID string) string {
	sum := sha256.Sum256([]byte(clientID))
	return hex.EncodeToString(sum[:])
}
