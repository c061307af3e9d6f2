package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Handlers groups every HTTP handler of the API.
type Handlers struct {
	Health      *HealthHandler
	Projects    *ProjectHandler
	Files       *FileHandler
	Annotations *AnnotationHandler
	Reviews     *ReviewHandler
	Labels      *LabelHandler
	Users       *UserHandler
	Cache       *CacheHandler
}

// Register mounts the API on router. Everything except the health check
// requires authenticate to pass.
func Register(router fiber.Router, h *Handlers, authenticate fiber.Handler) {
	router.Get("/health", h.Health.Health)

	api := router.Group("", authenticate)

	api.Get("/dashboard", h.Users.Dashboard)
	api.Get("/profile", h.Users.GetProfile)
	api.Put("/profile", h.Users.UpdateProfile)

	api.Get("/projects", h.Projects.ListProjects)
	api.Post("/projects", h.Projects.CreateProject)
	api.Get("/projects/:id", h.Projects.GetProject)
	api.Put("/projects/:id", h.Projects.UpdateProject)
	api.Delete("/projects/:id", h.Projects.DeleteProject)
	api.Post("/projects/:id/collaborators", h.Projects.AddCollaborator)
	api.Delete("/projects/:id/collaborators/:username", h.Projects.RemoveCollaborator)
	api.Get("/projects/:id/settings", h.Projects.GetSettings)
	api.Put("/projects/:id/settings", h.Projects.UpdateSettings)
	api.Get("/projects/:id/export", h.Projects.ExportProject)

	api.Get("/projects/:id/files", h.Files.ListFiles)
	api.Post("/projects/:id/files", h.Files.UploadFiles)
	api.Post("/projects/:id/files/archive", h.Files.UploadArchive)
	api.Get("/files/:id", h.Files.GetFile)
	api.Get("/files/:id/download", h.Files.DownloadFile)
	api.Delete("/files/:id", h.Files.DeleteFile)

	api.Post("/files/:id/annotations", h.Annotations.CreateAnnotation)
	api.Get("/annotations", h.Annotations.ListAnnotations)
	api.Get("/annotations/:id", h.Annotations.GetAnnotation)
	api.Put("/annotations/:id", h.Annotations.UpdateAnnotation)
	api.Delete("/annotations/:id", h.Annotations.DeleteAnnotation)

	api.Get("/annotations/:id/reviews", h.Reviews.ListReviews)
	api.Post("/annotations/:id/reviews", h.Reviews.SubmitReview)
	api.Get("/reviews/queue", h.Reviews.ReviewQueue)
	api.Put("/reviews/:id", h.Reviews.UpdateReview)

	api.Get("/projects/:id/labels", h.Labels.ListLabels)
	api.Get("/projects/:id/labels/tree", h.Labels.LabelTree)
	api.Post("/projects/:id/labels", h.Labels.CreateLabel)
	api.Put("/labels/:id", h.Labels.UpdateLabel)
	api.Delete("/labels/:id", h.Labels.DeleteLabel)

	api.Get("/projects/:id/templates", h.Labels.ListTemplates)
	api.Post("/projects/:id/templates", h.Labels.CreateTemplate)
	api.Get("/templates/:id", h.Labels.GetTemplate)
	api.Put("/templates/:id", h.Labels.UpdateTemplate)
	api.Delete("/templates/:id", h.Labels.DeleteTemplate)

	api.Post("/projects/:id/sessions", h.Users.StartSession)
	api.Get("/sessions", h.Users.ListSessions)
	api.Post("/sessions/:id/end", h.Users.EndSession)

	api.Get("/notifications", h.Users.ListNotifications)
	api.Get("/notifications/unread-count", h.Users.UnreadCount)
	api.Post("/notifications/read", h.Users.MarkNotificationsRead)

	api.Post("/cache/preload", h.Cache.PreloadFiles)
	api.Get("/cache/stats", h.Cache.GetCacheStats)
	api.Delete("/cache/files/:id", h.Cache.InvalidateFile)
}
