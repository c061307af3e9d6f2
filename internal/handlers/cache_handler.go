package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/services"
)

// CacheHandler handles cache-related HTTP endpoints
type CacheHandler struct {
	files *services.FileService
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(files *services.FileService) *CacheHandler {
	return &CacheHandler{files: files}
}

// PreloadRequest represents the request body for preloading files
type PreloadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100"`
}

// PreloadFiles handles POST /cache/preload to warm the cache with files
// @Summary Preload files into cache
// @Description Read files through the cache so the next downloads are served from memory or Redis
// @Tags cache
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PreloadRequest true "List of file IDs to preload"
// @Success 200 {object} services.PreloadResult "Preload result"
// @Failure 400 {object} ErrorResponse "Bad request"
// @Router /cache/preload [post]
func (h *CacheHandler) PreloadFiles(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	var req PreloadRequest
	if err := bindJSON(c, &req); err != nil {
		return WriteError(c, err)
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return WriteError(c, apperrors.Invalid("%s: %q", InvalidUuidError, raw))
		}
		ids = append(ids, id)
	}
	res, err := h.files.Preload(c.UserContext(), user, ids)
	if err != nil {
		return WriteError(c, err)
	}
	slog.Info("cache preloaded", "requested", len(ids), "preloaded", len(res.Preloaded))
	return c.JSON(res)
}

// GetCacheStats handles GET /cache/stats to retrieve cache statistics
// @Summary Get cache statistics
// @Description Per-layer object counts, sizes and hit rates
// @Tags cache
// @Produce json
// @Security BearerAuth
// @Success 200 {array} cache.LayerStats "Cache statistics"
// @Router /cache/stats [get]
func (h *CacheHandler) GetCacheStats(c *fiber.Ctx) error {
	return c.JSON(h.files.CacheStats())
}

// InvalidateFile handles DELETE /cache/files/:id to remove a file from cache
// @Summary Invalidate cached file
// @Description Remove a file from every cache layer. Project owner only.
// @Tags cache
// @Security BearerAuth
// @Param id path string true "File ID" Format(uuid)
// @Success 204 "No Content"
// @Failure 400 {object} ErrorResponse "Invalid UUID"
// @Failure 403 {object} ErrorResponse "Not the owner"
// @Router /cache/files/{id} [delete]
func (h *CacheHandler) InvalidateFile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	if err := h.files.Evict(c.UserContext(), user, id); err != nil {
		return WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
