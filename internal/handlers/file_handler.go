package handlers

import (
	"log/slog"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
	"annotation-service/internal/services"
)

// FileHandler serves project files and their content.
type FileHandler struct {
	files *services.FileService
}

func NewFileHandler(files *services.FileService) *FileHandler {
	return &FileHandler{files: files}
}

// UploadResult reports the outcome of a multi-file or archive upload.
type UploadResult struct {
	Created []models.ProjectFile    `json:"created"`
	Skipped []services.SkippedEntry `json:"skipped"`
}

// UploadFiles handles POST /projects/:id/files.
// @Summary Upload files
// @Description Upload one or more files to a project. Files that fail validation are reported as skipped.
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param files formData file true "Files to upload"
// @Success 201 {object} UploadResult
// @Failure 400 {object} ErrorResponse "No acceptable file"
// @Failure 403 {object} ErrorResponse "Not a member"
// @Router /projects/{id}/files [post]
func (h *FileHandler) UploadFiles(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	form, err := c.MultipartForm()
	if err != nil {
		return WriteError(c, errors.Wrap(apperrors.ErrInvalidFile, "failed to read multipart form"))
	}
	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		return WriteError(c, errors.Wrap(apperrors.ErrInvalidFile, "no files provided"))
	}

	result := UploadResult{Created: []models.ProjectFile{}, Skipped: []services.SkippedEntry{}}
	for _, fh := range headers {
		file, err := h.uploadOne(c, user, projectID, fh)
		if err == nil {
			result.Created = append(result.Created, *file)
			continue
		}
		// one bad file does not abort the batch; authorization failures do
		if !errors.Is(err, apperrors.ErrInvalidFile) {
			return WriteError(c, err)
		}
		result.Skipped = append(result.Skipped, services.SkippedEntry{Path: fh.Filename, Reason: err.Error()})
	}
	if len(result.Created) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "no file was accepted", "kind": "invalid_file", "skipped": result.Skipped,
		})
	}
	slog.Info("files uploaded", "project_id", projectID, "created", len(result.Created), "skipped", len(result.Skipped))
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *FileHandler) uploadOne(c *fiber.Ctx, user *models.User, projectID uuid.UUID, fh *multipart.FileHeader) (*models.ProjectFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrInvalidFile, "cannot open %s", fh.Filename)
	}
	defer f.Close()
	return h.files.Upload(c.UserContext(), user, projectID, services.FileUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	})
}

// UploadArchive handles POST /projects/:id/files/archive.
// @Summary Upload an archive
// @Description Extract a zip, tar or 7z archive into the project. Hidden and system entries are ignored.
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param archive formData file true "Archive"
// @Success 201 {object} UploadResult
// @Failure 400 {object} ErrorResponse "Unsupported or unreadable archive"
// @Router /projects/{id}/files/archive [post]
func (h *FileHandler) UploadArchive(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	fh, err := c.FormFile("archive")
	if err != nil {
		return WriteError(c, errors.Wrap(apperrors.ErrInvalidFile, "archive field is required"))
	}
	f, err := fh.Open()
	if err != nil {
		return WriteError(c, errors.Wrapf(apperrors.ErrInvalidFile, "cannot open %s", fh.Filename))
	}
	defer f.Close()

	created, skipped, err := h.files.UploadArchive(c.UserContext(), user, projectID, fh.Filename, f)
	if err != nil {
		return WriteError(c, err)
	}
	if created == nil {
		created = []models.ProjectFile{}
	}
	if skipped == nil {
		skipped = []services.SkippedEntry{}
	}
	slog.Info("archive imported", "project_id", projectID, "archive", fh.Filename, "created", len(created), "skipped", len(skipped))
	return c.Status(fiber.StatusCreated).JSON(UploadResult{Created: created, Skipped: skipped})
}

// ListFiles handles GET /projects/:id/files.
// @Summary List project files
// @Tags files
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param file_type query string false "image, text, video, audio or document"
// @Param search query string false "Search in file names"
// @Param page query int false "Page number"
// @Success 200 {object} repository.PageResult[models.ProjectFile]
// @Router /projects/{id}/files [get]
func (h *FileHandler) ListFiles(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	filter := repository.FileFilter{FileType: models.FileType(c.Query("file_type")), Search: c.Query("search")}
	res, err := h.files.List(c.UserContext(), user, projectID, filter, page(c))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(res)
}

// GetFile handles GET /files/:id.
// @Summary Get file metadata
// @Tags files
// @Produce json
// @Security BearerAuth
// @Param id path string true "File ID" Format(uuid)
// @Success 200 {object} models.ProjectFile
// @Failure 404 {object} ErrorResponse "File not found"
// @Router /files/{id} [get]
func (h *FileHandler) GetFile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	f, err := h.files.Get(c.UserContext(), user, id)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(f)
}

// DownloadFile handles GET /files/:id/download to stream the file content.
// @Summary Download a file
// @Description Stream file content through the read-through cache
// @Tags files
// @Produce application/octet-stream
// @Security BearerAuth
// @Param id path string true "File ID" Format(uuid)
// @Success 200 {file} binary "File content"
// @Failure 404 {object} ErrorResponse "File not found"
// @Router /files/{id}/download [get]
func (h *FileHandler) DownloadFile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	f, rc, size, err := h.files.Download(c.UserContext(), user, id)
	if err != nil {
		return WriteError(c, err)
	}
	c.Attachment(f.Filename)
	if f.ContentType != "" {
		c.Set(fiber.HeaderContentType, f.ContentType)
	}
	return c.SendStream(rc, int(size))
}

// DeleteFile handles DELETE /files/:id.
// @Summary Delete a file
// @Description Delete a file with its annotations. Project owner only.
// @Tags files
// @Security BearerAuth
// @Param id path string true "File ID" Format(uuid)
// @Success 204 "File deleted"
// @Failure 403 {object} ErrorResponse "Not the owner"
// @Router /files/{id} [delete]
func (h *FileHandler) DeleteFile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	if err := h.files.Delete(c.UserContext(), user, id); err != nil {
		return WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
