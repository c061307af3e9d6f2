package handlers

import (
	"github.com/gofiber/fiber/v2"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
	"annotation-service/internal/services"
)

// AnnotationHandler exposes the annotation lifecycle.
type AnnotationHandler struct {
	annotations *services.AnnotationService
}

func NewAnnotationHandler(annotations *services.AnnotationService) *AnnotationHandler {
	return &AnnotationHandler{annotations: annotations}
}

// CreateAnnotation handles POST /files/:id/annotations.
// @Summary Start an annotation
// @Description Create an empty draft annotation of a file for the caller
// @Tags annotations
// @Produce json
// @Security BearerAuth
// @Param id path string true "File ID" Format(uuid)
// @Success 201 {object} services.AnnotationView
// @Failure 403 {object} ErrorResponse "Not a member"
// @Failure 409 {object} ErrorResponse "Annotation already exists"
// @Router /files/{id}/annotations [post]
func (h *AnnotationHandler) CreateAnnotation(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	fileID, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	view, err := h.annotations.Create(c.UserContext(), user, fileID)
	if err != nil {
		return WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// ListAnnotations handles GET /annotations.
// @Summary List own annotations
// @Tags annotations
// @Produce json
// @Security BearerAuth
// @Param status query string false "Annotation status"
// @Param project query string false "Project ID" Format(uuid)
// @Param search query string false "Search in file names and notes"
// @Param page query int false "Page number"
// @Success 200 {object} repository.PageResult[services.AnnotationView]
// @Router /annotations [get]
func (h *AnnotationHandler) ListAnnotations(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := queryID(c, "project")
	if err != nil {
		return WriteError(c, err)
	}
	filter := repository.AnnotationFilter{ProjectID: projectID, Search: c.Query("search")}
	if raw := c.Query("status"); raw != "" {
		status, ok := models.AsAnnotationStatus(raw)
		if !ok {
			return WriteError(c, apperrors.Invalid("unknown annotation status %q", raw))
		}
		filter.Status = status
	}
	res, err := h.annotations.List(c.UserContext(), user, filter, page(c))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(res)
}

// GetAnnotation handles GET /annotations/:id.
// @Summary Get an annotation
// @Tags annotations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Annotation ID" Format(uuid)
// @Success 200 {object} services.AnnotationView
// @Failure 403 {object} ErrorResponse "Neither annotator nor project owner"
// @Router /annotations/{id} [get]
func (h *AnnotationHandler) GetAnnotation(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	view, err := h.annotations.Get(c.UserContext(), user, id)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(view)
}

// UpdateAnnotation handles PUT /annotations/:id.
// @Summary Save or submit an annotation
// @Description Save the payload as a draft, or submit it for review when submit is true
// @Tags annotations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Annotation ID" Format(uuid)
// @Param annotation body services.AnnotationUpdate true "Payload"
// @Success 200 {object} services.AnnotationView
// @Failure 409 {object} ErrorResponse "Invalid status transition"
// @Failure 422 {object} ErrorResponse "Payload does not match the project type"
// @Router /annotations/{id} [put]
func (h *AnnotationHandler) UpdateAnnotation(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var in services.AnnotationUpdate
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	view, err := h.annotations.Update(c.UserContext(), user, id, in)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(view)
}

// DeleteAnnotation handles DELETE /annotations/:id.
// @Summary Delete an annotation
// @Tags annotations
// @Security BearerAuth
// @Param id path string true "Annotation ID" Format(uuid)
// @Success 204 "Annotation deleted"
// @Failure 403 {object} ErrorResponse "Not the annotator"
// @Router /annotations/{id} [delete]
func (h *AnnotationHandler) DeleteAnnotation(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	if err := h.annotations.Delete(c.UserContext(), user, id); err != nil {
		return WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
