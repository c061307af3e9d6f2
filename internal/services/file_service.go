package services

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"annotation-service/internal/access"
	"annotation-service/internal/apperrors"
	"annotation-service/internal/extraction"
	"annotation-service/internal/metrics"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
	"annotation-service/internal/services/cache"
	"annotation-service/internal/storage"
)

// DefaultMaxUploadBytes is the largest accepted single file.
const DefaultMaxUploadBytes = 10 << 20

var fileTypesByExtension = map[string]models.FileType{
	".jpg": models.FileTypeImage, ".jpeg": models.FileTypeImage, ".png": models.FileTypeImage,
	".gif": models.FileTypeImage, ".bmp": models.FileTypeImage, ".tiff": models.FileTypeImage,
	".txt": models.FileTypeText, ".csv": models.FileTypeText, ".json": models.FileTypeText,
	".xml": models.FileTypeText,
	".pdf": models.FileTypeDocument, ".doc": models.FileTypeDocument, ".docx": models.FileTypeDocument,
}

// FileTypeFor returns the file type implied by the name's extension.
func FileTypeFor(filename string) (models.FileType, bool) {
	ft, ok := fileTypesByExtension[strings.ToLower(filepath.Ext(filename))]
	return ft, ok
}

// FileUpload is one uploaded file as received from the transport.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SkippedEntry reports an archive member that was not imported.
type SkippedEntry struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// FileService manages the files of a project and their blobs.
type FileService struct {
	repos    *repository.Repositories
	blobs    storage.BlobStore
	cache    *CacheService
	metrics  *metrics.Metrics
	maxBytes int64
}

func NewFileService(repos *repository.Repositories, blobs storage.BlobStore, cache *CacheService, m *metrics.Metrics, maxBytes int64) *FileService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &FileService{repos: repos, blobs: blobs, cache: cache, metrics: m, maxBytes: maxBytes}
}

func (s *FileService) validate(filename string, size int64) (models.FileType, error) {
	name := path.Base(filepath.ToSlash(filename))
	if name == "" || name == "." || name == "/" {
		return "", errors.Wrap(apperrors.ErrInvalidFile, "file name is required")
	}
	ft, ok := FileTypeFor(name)
	if !ok {
		return "", errors.Wrapf(apperrors.ErrInvalidFile, "extension %q is not allowed", filepath.Ext(name))
	}
	if size <= 0 {
		return "", errors.Wrapf(apperrors.ErrInvalidFile, "%s is empty", name)
	}
	if size > s.maxBytes {
		return "", errors.Wrapf(apperrors.ErrInvalidFile, "%s exceeds the %d byte limit", name, s.maxBytes)
	}
	return ft, nil
}

// Upload stores one file in a project the user is a member of.
func (s *FileService) Upload(ctx context.Context, user *models.User, projectID uuid.UUID, up FileUpload) (*models.ProjectFile, error) {
	p, err := loadProjectFor(ctx, s.repos, user, projectID, access.ActionUpload)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, user, p, up)
}

func (s *FileService) store(ctx context.Context, user *models.User, p *models.Project, up FileUpload) (*models.ProjectFile, error) {
	ft, err := s.validate(up.Filename, up.Size)
	if err != nil {
		return nil, err
	}
	name := path.Base(filepath.ToSlash(up.Filename))
	ext := strings.ToLower(filepath.Ext(name))
	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			contentType = guessed
		}
	}

	uploader := user.ID
	file := &models.ProjectFile{
		ID:           uuid.New(),
		ProjectID:    p.ID,
		Filename:     name,
		FileType:     ft,
		ContentType:  contentType,
		FileSize:     up.Size,
		UploadedByID: &uploader,
	}
	file.StorageKey = "projects/" + p.ID.String() + "/" + file.ID.String() + ext

	// Guard against a body longer than the declared size.
	body := io.LimitReader(up.Body, up.Size)
	if err := s.blobs.Put(ctx, file.StorageKey, body, up.Size, contentType); err != nil {
		return nil, errors.Wrapf(err, "store %s", name)
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Files.Create(ctx, file); err != nil {
			return apperrors.FromStore(err, "create file", nil)
		}
		return apperrors.FromStore(tx.Projects.RecomputeFileCounters(ctx, p.ID), "update project counters", nil)
	})
	if err != nil {
		if rerr := s.blobs.Remove(context.WithoutCancel(ctx), file.StorageKey); rerr != nil {
			slog.Error("failed to remove orphaned blob", "key", file.StorageKey, "error", rerr)
		}
		return nil, err
	}
	s.metrics.FileUploaded(string(ft), up.Size)
	return file, nil
}

// UploadArchive imports every acceptable member of an archive. Hidden and
// system entries are skipped silently; members that fail validation are
// reported in the skipped list.
func (s *FileService) UploadArchive(ctx context.Context, user *models.User, projectID uuid.UUID, archiveName string, body io.Reader) ([]models.ProjectFile, []SkippedEntry, error) {
	p, err := loadProjectFor(ctx, s.repos, user, projectID, access.ActionUpload)
	if err != nil {
		return nil, nil, err
	}
	if !extraction.IsArchive(archiveName) {
		return nil, nil, errors.Wrapf(apperrors.ErrInvalidFile, "%s is not a supported archive", archiveName)
	}
	archivePath, cleanup, err := extraction.Spool(body, archiveName)
	if err != nil {
		return nil, nil, err
	}
	defer cleanup()

	var created []models.ProjectFile
	var skipped []SkippedEntry
	var storeErr error
	err = extraction.Walk(ctx, archivePath, func(e extraction.Entry) error {
		if _, err := s.validate(e.Name(), e.Size); err != nil {
			skipped = append(skipped, SkippedEntry{Path: e.Path, Reason: err.Error()})
			return nil
		}
		r, err := e.Open()
		if err != nil {
			return errors.Wrapf(err, "open %s", e.Path)
		}
		defer r.Close()
		f, err := s.store(ctx, user, p, FileUpload{Filename: e.Name(), Size: e.Size, Body: r})
		if err != nil {
			storeErr = err
			return err
		}
		created = append(created, *f)
		return nil
	})
	switch {
	case storeErr != nil:
		return created, skipped, storeErr
	case err != nil:
		return created, skipped, errors.Wrapf(apperrors.ErrInvalidFile, "cannot read archive %s: %v", archiveName, err)
	}
	return created, skipped, nil
}

// List returns one page of a project's files.
func (s *FileService) List(ctx context.Context, user *models.User, projectID uuid.UUID, f repository.FileFilter, page int) (repository.PageResult[models.ProjectFile], error) {
	if _, err := loadProjectFor(ctx, s.repos, user, projectID, access.ActionView); err != nil {
		return repository.PageResult[models.ProjectFile]{}, err
	}
	res, err := s.repos.Files.List(ctx, projectID, f, pageOf(page, FilePageSize))
	return res, apperrors.FromStore(err, "list files", nil)
}

// fileFor loads a file and its project and checks action on the project.
func (s *FileService) fileFor(ctx context.Context, user *models.User, fileID uuid.UUID, action access.Action) (*models.ProjectFile, *models.Project, error) {
	f, err := s.repos.Files.Get(ctx, fileID)
	if err != nil {
		return nil, nil, apperrors.FromStore(err, "file", nil)
	}
	p, err := loadProjectFor(ctx, s.repos, user, f.ProjectID, action)
	if err != nil {
		return nil, nil, err
	}
	return f, p, nil
}

func (s *FileService) Get(ctx context.Context, user *models.User, fileID uuid.UUID) (*models.ProjectFile, error) {
	f, _, err := s.fileFor(ctx, user, fileID, access.ActionView)
	return f, err
}

// Download opens a file's content. The caller closes the reader.
func (s *FileService) Download(ctx context.Context, user *models.User, fileID uuid.UUID) (*models.ProjectFile, io.ReadCloser, int64, error) {
	f, _, err := s.fileFor(ctx, user, fileID, access.ActionView)
	if err != nil {
		return nil, nil, 0, err
	}
	rc, size, layer, err := s.cache.Open(ctx, f.ID, f.StorageKey)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, nil, 0, errors.Wrap(apperrors.ErrNotFound, "file content")
	}
	if err != nil {
		return nil, nil, 0, err
	}
	slog.Debug("serving file", "file_id", f.ID, "layer", layer, "size", size)
	return f, rc, size, nil
}

// Delete removes a file with its annotations. Only the project owner may delete files.
func (s *FileService) Delete(ctx context.Context, user *models.User, fileID uuid.UUID) error {
	var file *models.ProjectFile
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		f, err := tx.Files.GetForUpdate(ctx, fileID)
		if err != nil {
			return apperrors.FromStore(err, "file", nil)
		}
		if _, err := loadProjectFor(ctx, tx, user, f.ProjectID, access.ActionManage); err != nil {
			return err
		}
		if err := tx.Files.Delete(ctx, f.ID); err != nil {
			return apperrors.FromStore(err, "delete file", nil)
		}
		file = f
		if err := tx.Projects.RecomputeFileCounters(ctx, f.ProjectID); err != nil {
			return apperrors.FromStore(err, "update project counters", nil)
		}
		return refreshProjectQuality(ctx, tx, f.ProjectID)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, file.ID)
	if err := s.blobs.Remove(ctx, file.StorageKey); err != nil {
		slog.Warn("failed to remove blob", "key", file.StorageKey, "error", err)
	}
	return nil
}

// PreloadResult reports which files were warmed into the cache.
type PreloadResult struct {
	Preloaded []uuid.UUID    `json:"preloaded"`
	Skipped   []SkippedEntry `json:"skipped"`
}

// Preload reads files through the cache so that later downloads are served
// from it. Files the user cannot view or that no longer exist are skipped.
func (s *FileService) Preload(ctx context.Context, user *models.User, ids []uuid.UUID) (*PreloadResult, error) {
	if len(ids) == 0 {
		return nil, apperrors.Invalid("no file ids provided")
	}
	out := &PreloadResult{Preloaded: []uuid.UUID{}, Skipped: []SkippedEntry{}}
	for _, id := range ids {
		f, _, err := s.fileFor(ctx, user, id, access.ActionView)
		if err != nil {
			if apperrors.Kind(err) == "internal" {
				return nil, err
			}
			out.Skipped = append(out.Skipped, SkippedEntry{Path: id.String(), Reason: err.Error()})
			continue
		}
		rc, _, _, err := s.cache.Open(ctx, f.ID, f.StorageKey)
		if err != nil {
			out.Skipped = append(out.Skipped, SkippedEntry{Path: id.String(), Reason: err.Error()})
			continue
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", f.Filename)
		}
		out.Preloaded = append(out.Preloaded, f.ID)
	}
	return out, nil
}

// Evict drops a file from every cache layer. Project owner only.
func (s *FileService) Evict(ctx context.Context, user *models.User, id uuid.UUID) error {
	f, _, err := s.fileFor(ctx, user, id, access.ActionManage)
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, f.ID)
	return nil
}

// CacheStats returns per-layer cache statistics.
func (s *FileService) CacheStats() []cache.LayerStats {
	return s.cache.Stats()
}
