package extraction

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"github.com/pkg/errors"
)

var archiveSuffixes = []string{".zip", ".tar", ".tar.gz", ".tgz", ".tar.xz", ".tar.bz2", ".7z", ".rar"}

// IsArchive reports whether the file name has a supported archive extension.
func IsArchive(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// ShouldIgnore reports whether an archive member is a system or hidden file.
// Every element of the path is checked, so members of hidden directories and
// macOS resource folders are skipped too.
func ShouldIgnore(name string) bool {
	if name == "" || strings.HasSuffix(name, "/") {
		return true
	}
	for _, part := range strings.Split(path.Clean(filepath.ToSlash(name)), "/") {
		switch {
		case part == "__MACOSX":
			return true
		case strings.HasPrefix(part, "."):
			// covers ._ resource forks and .DS_Store
			return true
		case strings.EqualFold(part, "thumbs.db"), strings.EqualFold(part, "desktop.ini"):
			return true
		}
	}
	return false
}

// Entry is a regular file inside an archive.
type Entry struct {
	Path string
	Size int64
	fsys fs.FS
}

// Name returns the base name of the member.
func (e Entry) Name() string {
	return path.Base(e.Path)
}

// Open opens the member for reading.
func (e Entry) Open() (fs.File, error) {
	return e.fsys.Open(e.Path)
}

// Walk calls fn for every regular file in the archive at archivePath that is
// not ignored. Walking stops at the first error returned by fn.
func Walk(ctx context.Context, archivePath string, fn func(Entry) error) error {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return errors.Wrap(err, "failed to open archive")
	}
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if ShouldIgnore(p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(Entry{Path: p, Size: info.Size(), fsys: fsys})
	})
}

// Spool copies an uploaded archive into a temporary file, keeping the
// original extension so the format can be identified. The returned cleanup
// removes the file.
func Spool(r io.Reader, originalName string) (string, func(), error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if strings.HasSuffix(strings.ToLower(originalName), ".tar"+ext) {
		ext = ".tar" + ext
	}
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return "", nil, errors.Wrap(err, "could not create temporary file for archive")
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, errors.Wrap(err, "failed to write uploaded archive")
	}
	return tmp.Name(), cleanup, nil
}
