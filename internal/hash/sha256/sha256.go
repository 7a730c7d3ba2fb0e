// Package sha256 derives stable ad identifiers from scraped content.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FingerprintLength is the number of hex characters kept by Fingerprint.
const FingerprintLength = 16

// Hasher implements ads.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint hashes the NUL-joined parts and truncates the digest. Sources
// without native identifiers use it to give the same ad the same ID on every
// run.
func (h *Hasher) Fingerprint(parts ...string) string {
	return h.Hash([]byte(strings.Join(parts, "\x00")))[:FingerprintLength]
}
