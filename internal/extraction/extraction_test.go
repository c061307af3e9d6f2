package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	p := filepath.Join(t.TempDir(), "upload.zip")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func TestWalkSkipsHiddenAndSystemFiles(t *testing.T) {
	archivePath := writeZip(t, map[string]string{
		"images/cat.png":         "png",
		"notes.txt":              "hello",
		".DS_Store":              "x",
		"__MACOSX/images/._cat":  "x",
		"images/.hidden/dog.png": "x",
		"Thumbs.db":              "x",
	})

	got := map[string]string{}
	err := Walk(context.Background(), archivePath, func(e Entry) error {
		f, err := e.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		got[e.Path] = string(data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"images/cat.png": "png", "notes.txt": "hello"}, got)
}

func TestShouldIgnore(t *testing.T) {
	for name, want := range map[string]bool{
		"a.png":              false,
		"dir/a.png":          false,
		"._a.png":            true,
		"dir/.secret":        true,
		"__MACOSX/dir/a.png": true,
		"THUMBS.DB":          true,
		"dir/":               true,
	} {
		assert.Equal(t, want, ShouldIgnore(name), name)
	}
}

func TestIsArchive(t *testing.T) {
	assert.True(t, IsArchive("batch.ZIP"))
	assert.True(t, IsArchive("batch.tar.gz"))
	assert.False(t, IsArchive("image.png"))
}

func TestSpoolKeepsExtension(t *testing.T) {
	p, cleanup, err := Spool(bytes.NewReader([]byte("data")), "batch.tar.gz")
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, ".gz", filepath.Ext(p))
	assert.Contains(t, filepath.Base(p), ".tar.gz")

	cleanup()
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}
