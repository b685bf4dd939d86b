// Package sha256 derives stable object keys from update URLs.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/regwatch/regwatch/internal/regwatch"
)

// Hasher implements regwatch.Hasher using SHA-256.
type Hasher struct{}

var _ regwatch.Hasher = (*Hasher)(nil)

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// URLKey hashes a URL after trimming surrounding whitespace, so the same
// update always lands on the same archive object.
func (h *Hasher) URLKey(rawURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(rawURL)))
	return hex.EncodeToString(sum[:])
}
