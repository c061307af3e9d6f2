package handlers

import (
	"github.com/gofiber/fiber/v2"

	"annotation-service/internal/services"
)

// LabelHandler manages a project's label vocabulary and annotation templates.
type LabelHandler struct {
	labels    *services.LabelService
	templates *services.TemplateService
}

func NewLabelHandler(labels *services.LabelService, templates *services.TemplateService) *LabelHandler {
	return &LabelHandler{labels: labels, templates: templates}
}

// ListLabels handles GET /projects/:id/labels.
// @Summary List labels
// @Tags labels
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param active query bool false "Only active labels"
// @Success 200 {array} models.AnnotationLabel
// @Router /projects/{id}/labels [get]
func (h *LabelHandler) ListLabels(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	labels, err := h.labels.List(c.UserContext(), user, projectID, c.QueryBool("active", false))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(labels)
}

// LabelTree handles GET /projects/:id/labels/tree.
// @Summary Label hierarchy
// @Tags labels
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Success 200 {array} models.LabelNode
// @Router /projects/{id}/labels/tree [get]
func (h *LabelHandler) LabelTree(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	tree, err := h.labels.Tree(c.UserContext(), user, projectID)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(tree)
}

// CreateLabel handles POST /projects/:id/labels.
// @Summary Create a label
// @Tags labels
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param label body services.LabelInput true "Label"
// @Success 201 {object} models.AnnotationLabel
// @Failure 409 {object} ErrorResponse "Label name already used"
// @Router /projects/{id}/labels [post]
func (h *LabelHandler) CreateLabel(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var in services.LabelInput
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	label, err := h.labels.Create(c.UserContext(), user, projectID, in)
	if err != nil {
		return WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(label)
}

// UpdateLabel handles PUT /labels/:id.
// @Summary Update a label
// @Tags labels
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Label ID" Format(uuid)
// @Param label body services.LabelUpdate true "Changed fields"
// @Success 200 {object} models.AnnotationLabel
// @Failure 422 {object} ErrorResponse "Parent would create a cycle"
// @Router /labels/{id} [put]
func (h *LabelHandler) UpdateLabel(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var in services.LabelUpdate
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	label, err := h.labels.Update(c.UserContext(), user, id, in)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(label)
}

// DeleteLabel handles DELETE /labels/:id.
// @Summary Delete a label and its descendants
// @Tags labels
// @Produce json
// @Security BearerAuth
// @Param id path string true "Label ID" Format(uuid)
// @Success 200 {object} map[string]int "Number of removed labels"
// @Router /labels/{id} [delete]
func (h *LabelHandler) DeleteLabel(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	removed, err := h.labels.Delete(c.UserContext(), user, id)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(fiber.Map{"removed": removed})
}

// ListTemplates handles GET /projects/:id/templates.
// @Summary List templates
// @Tags templates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Success 200 {array} models.AnnotationTemplate
// @Router /projects/{id}/templates [get]
func (h *LabelHandler) ListTemplates(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	templates, err := h.templates.List(c.UserContext(), user, projectID)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(templates)
}

// CreateTemplate handles POST /projects/:id/templates.
// @Summary Create a template
// @Description The schema is a JSON Schema document. A default template replaces the previous default.
// @Tags templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Param template body services.TemplateInput true "Template"
// @Success 201 {object} models.AnnotationTemplate
// @Failure 400 {object} ErrorResponse "Invalid schema"
// @Router /projects/{id}/templates [post]
func (h *LabelHandler) CreateTemplate(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var in services.TemplateInput
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	t, err := h.templates.Create(c.UserContext(), user, projectID, in)
	if err != nil {
		return WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// GetTemplate handles GET /templates/:id.
// @Summary Get a template
// @Tags templates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Template ID" Format(uuid)
// @Success 200 {object} models.AnnotationTemplate
// @Router /templates/{id} [get]
func (h *LabelHandler) GetTemplate(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	t, err := h.templates.Get(c.UserContext(), user, id)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(t)
}

// UpdateTemplate handles PUT /templates/:id.
// @Summary Update a template
// @Tags templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Template ID" Format(uuid)
// @Param template body services.TemplateUpdate true "Changed fields"
// @Success 200 {object} models.AnnotationTemplate
// @Router /templates/{id} [put]
func (h *LabelHandler) UpdateTemplate(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var in services.TemplateUpdate
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	t, err := h.templates.Update(c.UserContext(), user, id, in)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(t)
}

// DeleteTemplate handles DELETE /templates/:id.
// @Summary Delete a template
// @Tags templates
// @Security BearerAuth
// @Param id path string true "Template ID" Format(uuid)
// @Success 204 "Template deleted"
// @Router /templates/{id} [delete]
func (h *LabelHandler) DeleteTemplate(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	if err := h.templates.Delete(c.UserContext(), user, id); err != nil {
		return WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
