package ingest

import (
	"context"
	"path"
	"strings"

	"github.com/regwatch/regwatch/internal/hash/sha256"
	"github.com/regwatch/regwatch/internal/regwatch"
)

// Archive writes extracted article text to a blob store keyed by URL hash.
type Archive struct {
	blobs  regwatch.BlobStore
	hasher regwatch.Hasher
	prefix string
}

// NewArchive returns an Archive under prefix (default "updates"). A nil hasher
// selects SHA-256 keys.
func NewArchive(blobs regwatch.BlobStore, hasher regwatch.Hasher, prefix string) *Archive {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "updates"
	}
	if hasher == nil {
		hasher = sha256.New()
	}
	return &Archive{blobs: blobs, hasher: hasher, prefix: prefix}
}

// Path returns the object path used for url.
func (a *Archive) Path(url string) string {
	return path.Join(a.prefix, a.hasher.URLKey(url)+".txt")
}

// Store writes text for url and returns the blob URI.
func (a *Archive) Store(ctx context.Context, url, text string) (string, error) {
	return a.blobs.PutObject(ctx, a.Path(url), "text/plain; charset=utf-8", strings.NewReader(text))
}
