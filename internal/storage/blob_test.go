package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	content := []byte("hello annotations")
	require.NoError(t, store.Put(ctx, "projects/p1/f1.txt", bytes.NewReader(content), int64(len(content)), "text/plain"))

	rc, size, err := store.Get(ctx, "projects/p1/f1.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)
	assert.Equal(t, content, got)

	require.NoError(t, store.Remove(ctx, "projects/p1/f1.txt"))
	_, _, err = store.Get(ctx, "projects/p1/f1.txt")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	// removing twice is not an error
	assert.NoError(t, store.Remove(ctx, "projects/p1/f1.txt"))
}

func TestFileSystemStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../outside", "/etc/passwd", "a/../../b"} {
		err := store.Put(context.Background(), key, bytes.NewReader(nil), 0, "")
		assert.Error(t, err, key)
	}
}
