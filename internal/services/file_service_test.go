package services

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
	"annotation-service/internal/storage"
)

func TestFileTypeFor(t *testing.T) {
	cases := map[string]models.FileType{
		"a.JPG":  models.FileTypeImage,
		"b.tiff": models.FileTypeImage,
		"c.txt":  models.FileTypeText,
		"d.csv":  models.FileTypeText,
		"e.pdf":  models.FileTypeDocument,
		"f.docx": models.FileTypeDocument,
	}
	for name, want := range cases {
		got, ok := FileTypeFor(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := FileTypeFor("movie.mp4")
	assert.False(t, ok)
}

func TestFileUploadAndDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	member := f.user(t, "member")
	p := f.activeProject(t, owner, models.ProjectTypeTextClassification, member)

	file := f.upload(t, member, p.ID, "dir/notes.TXT", "hello world")
	assert.Equal(t, "notes.TXT", file.Filename)
	assert.Equal(t, models.FileTypeText, file.FileType)
	assert.Equal(t, int64(11), file.FileSize)
	assert.Equal(t, "projects/"+p.ID.String()+"/"+file.ID.String()+".txt", file.StorageKey)
	assert.Equal(t, 1, f.project(t, p.ID).TotalFiles)

	for i := 0; i < 2; i++ {
		_, rc, size, err := f.files.Download(ctx, owner, file.ID)
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		assert.Equal(t, int64(11), size)
		assert.Equal(t, "hello world", string(body))
	}
	stats := f.cache.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Hits)

	res, err := f.files.List(ctx, member, p.ID, repository.FileFilter{FileType: models.FileTypeText}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
}

func TestFileUploadValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	stranger := f.user(t, "stranger")
	p := f.activeProject(t, owner, models.ProjectTypeImageClassification)

	cases := map[string]FileUpload{
		"extension": {Filename: "run.exe", Size: 3, Body: strings.NewReader("abc")},
		"empty":     {Filename: "a.png", Size: 0, Body: strings.NewReader("")},
		"too large": {Filename: "a.png", Size: 2 << 20, Body: strings.NewReader("abc")},
		"no name":   {Filename: "", Size: 3, Body: strings.NewReader("abc")},
	}
	for name, up := range cases {
		_, err := f.files.Upload(ctx, owner, p.ID, up)
		assert.ErrorIs(t, err, apperrors.ErrInvalidFile, name)
	}

	_, err := f.files.Upload(ctx, stranger, p.ID, FileUpload{Filename: "a.png", Size: 3, Body: strings.NewReader("abc")})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	assert.Equal(t, 0, f.project(t, p.ID).TotalFiles)
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFileUploadArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	p := f.activeProject(t, owner, models.ProjectTypeImageClassification)

	archive := zipArchive(t, map[string]string{
		"images/cat.png":          "png",
		"images/dog.jpg":          "jpg",
		"images/.hidden.png":      "png",
		"__MACOSX/images/cat.png": "junk",
		"readme.md":               "# notes",
		"empty.txt":               "",
	})
	created, skipped, err := f.files.UploadArchive(ctx, owner, p.ID, "batch.zip", bytes.NewReader(archive))
	require.NoError(t, err)
	assert.Len(t, created, 2)

	var paths []string
	for _, s := range skipped {
		paths = append(paths, s.Path)
	}
	assert.ElementsMatch(t, []string{"readme.md", "empty.txt"}, paths)
	assert.Equal(t, 2, f.project(t, p.ID).TotalFiles)

	_, _, err = f.files.UploadArchive(ctx, owner, p.ID, "batch.rpm", bytes.NewReader(archive))
	assert.ErrorIs(t, err, apperrors.ErrInvalidFile)
	_, _, err = f.files.UploadArchive(ctx, owner, p.ID, "broken.zip", strings.NewReader("not a zip"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidFile)
}

func TestFileDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	member := f.user(t, "member")
	p := f.activeProject(t, owner, models.ProjectTypeImageClassification, member)
	file := f.upload(t, member, p.ID, "cat.jpg", "jpeg-bytes")
	_, err := f.annotations.Create(ctx, member, file.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.files.Delete(ctx, member, file.ID), apperrors.ErrPermissionDenied)
	require.NoError(t, f.files.Delete(ctx, owner, file.ID))

	project := f.project(t, p.ID)
	assert.Equal(t, 0, project.TotalFiles)
	assert.Equal(t, 0, project.AnnotatedFiles)
	_, _, err = f.blobs.Get(ctx, file.StorageKey)
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)
	_, _, _, err = f.files.Download(ctx, owner, file.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
