package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"annotation-service/internal/services"
)

// UserHandler serves the caller's own profile, dashboard, sessions and
// notifications.
type UserHandler struct {
	users         *services.UserService
	sessions      *services.SessionService
	notifications *services.NotificationService
}

func NewUserHandler(users *services.UserService, sessions *services.SessionService, notifications *services.NotificationService) *UserHandler {
	return &UserHandler{users: users, sessions: sessions, notifications: notifications}
}

// MarkReadRequest lists notifications to mark as read. An empty list marks all.
type MarkReadRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// Dashboard handles GET /dashboard.
// @Summary Dashboard
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.Dashboard
// @Router /dashboard [get]
func (h *UserHandler) Dashboard(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	d, err := h.users.Dashboard(c.UserContext(), user)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(d)
}

// GetProfile handles GET /profile.
// @Summary Own profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.Profile
// @Router /profile [get]
func (h *UserHandler) GetProfile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	p, err := h.users.GetProfile(c.UserContext(), user)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(p)
}

// UpdateProfile handles PUT /profile.
// @Summary Update own profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body services.ProfileUpdate true "Changed fields"
// @Success 200 {object} services.Profile
// @Failure 400 {object} ErrorResponse "Invalid profile"
// @Router /profile [put]
func (h *UserHandler) UpdateProfile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	var in services.ProfileUpdate
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	p, err := h.users.UpdateProfile(c.UserContext(), user, in)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(p)
}

// StartSession handles POST /projects/:id/sessions.
// @Summary Start an annotation session
// @Description Returns the already open session in the project if there is one
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID" Format(uuid)
// @Success 200 {object} models.AnnotationSession
// @Router /projects/{id}/sessions [post]
func (h *UserHandler) StartSession(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	s, err := h.sessions.Start(c.UserContext(), user, projectID, c.Get(fiber.HeaderUserAgent), c.IP())
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(s)
}

// EndSession handles POST /sessions/:id/end.
// @Summary End an annotation session
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID" Format(uuid)
// @Success 200 {object} models.AnnotationSession
// @Failure 409 {object} ErrorResponse "Session already ended"
// @Router /sessions/{id}/end [post]
func (h *UserHandler) EndSession(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	s, err := h.sessions.End(c.UserContext(), user, id)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(s)
}

// ListSessions handles GET /sessions.
// @Summary Own annotation sessions
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Success 200 {object} repository.PageResult[models.AnnotationSession]
// @Router /sessions [get]
func (h *UserHandler) ListSessions(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	res, err := h.sessions.List(c.UserContext(), user, page(c))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(res)
}

// ListNotifications handles GET /notifications.
// @Summary Own notifications
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "Only unread notifications"
// @Param page query int false "Page number"
// @Success 200 {object} repository.PageResult[models.Notification]
// @Router /notifications [get]
func (h *UserHandler) ListNotifications(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	res, err := h.notifications.List(c.UserContext(), user, c.QueryBool("unread", false), page(c))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(res)
}

// MarkNotificationsRead handles POST /notifications/read.
// @Summary Mark notifications as read
// @Tags notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body MarkReadRequest false "Notification IDs"
// @Success 200 {object} map[string]int64 "Number of updated notifications"
// @Router /notifications/read [post]
func (h *UserHandler) MarkNotificationsRead(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	var in MarkReadRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &in); err != nil {
			return WriteError(c, err)
		}
	}
	n, err := h.notifications.MarkRead(c.UserContext(), user, in.IDs)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

// UnreadCount handles GET /notifications/unread-count.
// @Summary Number of unread notifications
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64
// @Router /notifications/unread-count [get]
func (h *UserHandler) UnreadCount(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	n, err := h.notifications.UnreadCount(c.UserContext(), user)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(fiber.Map{"unread": n})
}
