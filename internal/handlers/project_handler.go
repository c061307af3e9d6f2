package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"annotation-service/internal/models"
	"annotation-service/internal/repository"
	"annotation-service/internal/services"
)

type ProjectHandler struct {
	projects *services.ProjectService
	exports  *services.ExportService
}

func NewProjectHandler(projects *services.ProjectService, exports *services.ExportService) *ProjectHandler {
	return &ProjectHandler{projects: projects, exports: exports}
}

// CollaboratorRequest names the user to share a project with.
type CollaboratorRequest struct {
	Username string `json:"username" validate:"required"`
}

// CreateProject creates a new project
// @Summary Create a project
// @Description Create a draft project owned by the caller, with default settings
// @Tags projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param project body services.ProjectInput true "Project data"
// @Success 201 {object} services.ProjectView "Project created"
// @Failure 400 {object} ErrorResponse "Invalid project data"
// @Failure 401 {object} ErrorResponse "Unauthenticated"
// @Router /projects [post]
func (h *ProjectHandler) CreateProject(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	var in services.ProjectInput
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	view, err := h.projects.Create(c.UserContext(), user, in)
	if err != nil {
		return WriteError(c, err)
	}
	slog.Info("project created", "project_id", view.ID, "owner", user.Username)
	return c.Status(fiber.StatusCreated).JSON(view)
}

// ListProjects lists the caller's projects
// @Summary List projects
// @Description Projects the caller owns or collaborates on, most recently updated first
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Param status query string false "Project status"
// @Param search query string false "Search in name and description"
// @Param page query int false "Page number"
// @Success 200 {object} repository.PageResult[services.ProjectView]
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Router /projects [get]
func (h *ProjectHandler) ListProjects(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	filter := repository.ProjectFilter{
		Status: models.ProjectStatus(c.Query("status")),
		Search: c.Query("search"),
	}
	res, err := h.projects.List(c.UserContext(), user, filter, page(c))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(res)
}

// GetProject returns a project by ID
// @Summary Get a project
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Success 200 {object} services.ProjectView
// @Failure 403 {object} ErrorResponse "Not a member"
// @Failure 404 {object} ErrorResponse "Project not found"
// @Router /projects/{id} [get]
func (h *ProjectHandler) GetProject(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	view, err := h.projects.Get(c.UserContext(), user, id)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(view)
}

// UpdateProject updates a project
// @Summary Update a project
// @Description Change project fields; status changes follow the project lifecycle
// @Tags projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param project body services.ProjectUpdate true "Changed fields"
// @Success 200 {object} services.ProjectView
// @Failure 403 {object} ErrorResponse "Not the owner"
// @Failure 409 {object} ErrorResponse "Invalid status transition"
// @Router /projects/{id} [put]
func (h *ProjectHandler) UpdateProject(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var in services.ProjectUpdate
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	view, err := h.projects.Update(c.UserContext(), user, id, in)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(view)
}

// DeleteProject deletes a project
// @Summary Delete a project
// @Description Delete a project with its files, annotations and reviews
// @Tags projects
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Success 204 "Project deleted"
// @Failure 403 {object} ErrorResponse "Not the owner"
// @Failure 404 {object} ErrorResponse "Project not found"
// @Router /projects/{id} [delete]
func (h *ProjectHandler) DeleteProject(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	if err := h.projects.Delete(c.UserContext(), user, id); err != nil {
		return WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddCollaborator shares a project
// @Summary Add a collaborator
// @Tags projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param request body CollaboratorRequest true "User to add"
// @Success 200 {object} services.ProjectView
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /projects/{id}/collaborators [post]
func (h *ProjectHandler) AddCollaborator(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var in CollaboratorRequest
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	view, err := h.projects.AddCollaborator(c.UserContext(), user, id, in.Username)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(view)
}

// RemoveCollaborator revokes a membership
// @Summary Remove a collaborator
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param username path string true "Collaborator username"
// @Success 200 {object} services.ProjectView
// @Router /projects/{id}/collaborators/{username} [delete]
func (h *ProjectHandler) RemoveCollaborator(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	view, err := h.projects.RemoveCollaborator(c.UserContext(), user, id, c.Params("username"))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(view)
}

// GetSettings returns project settings
// @Summary Get project settings
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Success 200 {object} models.ProjectSettings
// @Router /projects/{id}/settings [get]
func (h *ProjectHandler) GetSettings(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	settings, err := h.projects.Settings(c.UserContext(), user, id)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(settings)
}

// UpdateSettings replaces project settings
// @Summary Update project settings
// @Tags projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param settings body services.SettingsInput true "Settings"
// @Success 200 {object} models.ProjectSettings
// @Failure 400 {object} ErrorResponse "Settings out of range"
// @Router /projects/{id}/settings [put]
func (h *ProjectHandler) UpdateSettings(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var in services.SettingsInput
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	settings, err := h.projects.UpdateSettings(c.UserContext(), user, id, in)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(settings)
}

// ExportProject downloads the project's annotations
// @Summary Export annotations
// @Description Render annotations as json, csv, xml or coco. Defaults to the project's export format.
// @Tags projects
// @Produce json
// @Produce text/csv
// @Produce application/xml
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param format query string false "Export format"
// @Success 200 {file} binary "Export document"
// @Failure 400 {object} ErrorResponse "Unsupported format"
// @Failure 403 {object} ErrorResponse "Not the owner"
// @Router /projects/{id}/export [get]
func (h *ProjectHandler) ExportProject(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	out, err := h.exports.Export(c.UserContext(), user, id, c.Query("format"))
	if err != nil {
		return WriteError(c, err)
	}
	slog.Info("project exported", "project_id", id, "annotations", out.Count, "bytes", len(out.Body))
	c.Attachment(out.Filename)
	c.Set(fiber.HeaderContentType, out.ContentType)
	return c.Send(out.Body)
}
