package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regwatch/internal/storage/memory"
)

// TestArchiveKeysObjectsWithHasher ensures object paths come from the
// configured hasher.
func TestArchiveKeysObjectsWithHasher(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	archive := NewArchive(blobs, constKey("k1"), "")

	require.Equal(t, "updates/k1.txt", archive.Path("https://x.example/1"))
	uri, err := archive.Store(context.Background(), "https://x.example/1", "text")
	require.NoError(t, err)
	require.NotEmpty(t, uri)
	got, _, ok := blobs.Get("updates/k1.txt")
	require.True(t, ok)
	require.Equal(t, "text", string(got))
}

type constKey string

func (k constKey) URLKey(string) string { return string(k) }
