package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"annotation-service/internal/access"
	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
	"annotation-service/internal/storage"
)

const blobCleanupConcurrency = 8

// ProjectService manages projects, their settings and collaborators.
type ProjectService struct {
	repos         *repository.Repositories
	blobs         storage.BlobStore
	cache         *CacheService
	notifications *NotificationService
}

func NewProjectService(repos *repository.Repositories, blobs storage.BlobStore, cache *CacheService, notifications *NotificationService) *ProjectService {
	return &ProjectService{repos: repos, blobs: blobs, cache: cache, notifications: notifications}
}

// ProjectInput is the payload for creating a project.
type ProjectInput struct {
	Name         string             `json:"name" validate:"required,max=200"`
	Description  string             `json:"description"`
	ProjectType  models.ProjectType `json:"project_type" validate:"required"`
	Instructions string             `json:"instructions"`
	Guidelines   string             `json:"guidelines"`
	Deadline     *time.Time         `json:"deadline"`
}

// ProjectUpdate carries changed project fields; nil fields are left alone.
type ProjectUpdate struct {
	Name         *string               `json:"name" validate:"omitempty,max=200"`
	Description  *string               `json:"description"`
	ProjectType  *models.ProjectType   `json:"project_type"`
	Status       *models.ProjectStatus `json:"status"`
	Instructions *string               `json:"instructions"`
	Guidelines   *string               `json:"guidelines"`
	Deadline     *time.Time            `json:"deadline"`
}

// ProjectView is a project with derived progress.
type ProjectView struct {
	*models.Project
	ProgressPercentage float64 `json:"progress_percentage"`
}

func viewOf(p *models.Project) *ProjectView {
	return &ProjectView{Project: p, ProgressPercentage: p.ProgressPercentage()}
}

// Create makes user the owner of a new draft project with default settings.
func (s *ProjectService) Create(ctx context.Context, user *models.User, in ProjectInput) (*ProjectView, error) {
	name := trimmed(in.Name)
	if name == "" {
		return nil, apperrors.Invalid("name is required")
	}
	if !in.ProjectType.Valid() {
		return nil, apperrors.Invalid("unknown project type %q", in.ProjectType)
	}
	p := &models.Project{
		Name:         name,
		Description:  in.Description,
		ProjectType:  in.ProjectType,
		Status:       models.ProjectDraft,
		OwnerID:      user.ID,
		Instructions: in.Instructions,
		Guidelines:   in.Guidelines,
		Deadline:     in.Deadline,
		Settings:     models.DefaultSettings(uuid.Nil),
	}
	if err := s.repos.Projects.Create(ctx, p); err != nil {
		return nil, apperrors.FromStore(err, "create project", nil)
	}
	s.notifications.Notify(ctx, user.ID, models.NotificationProjectCreated,
		"Project created", "Your project \""+p.Name+"\" has been created.")
	return s.Get(ctx, user, p.ID)
}

// Get returns a project the user is a member of.
func (s *ProjectService) Get(ctx context.Context, user *models.User, id uuid.UUID) (*ProjectView, error) {
	p, err := loadProjectFor(ctx, s.repos, user, id, access.ActionView)
	if err != nil {
		return nil, err
	}
	return viewOf(p), nil
}

// List returns one page of the projects the user owns or collaborates on.
func (s *ProjectService) List(ctx context.Context, user *models.User, f repository.ProjectFilter, page int) (repository.PageResult[ProjectView], error) {
	if f.Status != "" && !f.Status.Valid() {
		return repository.PageResult[ProjectView]{}, apperrors.Invalid("unknown project status %q", f.Status)
	}
	res, err := s.repos.Projects.ListForMember(ctx, user.ID, f, pageOf(page, ProjectPageSize))
	if err != nil {
		return repository.PageResult[ProjectView]{}, apperrors.FromStore(err, "list projects", nil)
	}
	out := repository.PageResult[ProjectView]{
		Items:      make([]ProjectView, 0, len(res.Items)),
		Total:      res.Total,
		Page:       res.Page,
		PageSize:   res.PageSize,
		TotalPages: res.TotalPages,
	}
	for i := range res.Items {
		out.Items = append(out.Items, *viewOf(&res.Items[i]))
	}
	return out, nil
}

// Update changes project fields. Status changes follow the project lifecycle
// and the type is fixed once the project holds annotations.
func (s *ProjectService) Update(ctx context.Context, user *models.User, id uuid.UUID, in ProjectUpdate) (*ProjectView, error) {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		p, err := loadProjectFor(ctx, tx, user, id, access.ActionManage)
		if err != nil {
			return err
		}
		if in.Name != nil {
			name := trimmed(*in.Name)
			if name == "" {
				return apperrors.Invalid("name is required")
			}
			p.Name = name
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.Instructions != nil {
			p.Instructions = *in.Instructions
		}
		if in.Guidelines != nil {
			p.Guidelines = *in.Guidelines
		}
		if in.Deadline != nil {
			p.Deadline = in.Deadline
		}
		if in.ProjectType != nil && *in.ProjectType != p.ProjectType {
			if !in.ProjectType.Valid() {
				return apperrors.Invalid("unknown project type %q", *in.ProjectType)
			}
			n, err := tx.Annotations.CountByProject(ctx, p.ID)
			if err != nil {
				return apperrors.FromStore(err, "count annotations", nil)
			}
			if n > 0 {
				return apperrors.Invalid("project type cannot change once annotations exist")
			}
			p.ProjectType = *in.ProjectType
		}
		if in.Status != nil {
			if !in.Status.Valid() {
				return apperrors.Invalid("unknown project status %q", *in.Status)
			}
			if !p.Status.CanBecome(*in.Status) {
				return apperrors.NewInvalidTransition(string(p.Status), string(*in.Status))
			}
			p.Status = *in.Status
		}
		return apperrors.FromStore(tx.Projects.Save(ctx, p), "update project", nil)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, user, id)
}

// Delete removes a project with everything it contains, then deletes the
// blobs of its files.
func (s *ProjectService) Delete(ctx context.Context, user *models.User, id uuid.UUID) error {
	var files []models.ProjectFile
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		p, err := loadProjectFor(ctx, tx, user, id, access.ActionManage)
		if err != nil {
			return err
		}
		if files, err = tx.Files.ListByProject(ctx, p.ID); err != nil {
			return apperrors.FromStore(err, "list files", nil)
		}
		return apperrors.FromStore(tx.Projects.Delete(ctx, p.ID), "delete project", nil)
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobCleanupConcurrency)
	for _, f := range files {
		g.Go(func() error {
			if s.cache != nil {
				s.cache.Invalidate(gctx, f.ID)
			}
			if err := s.blobs.Remove(gctx, f.StorageKey); err != nil {
				// the rows are gone; an orphaned blob is logged, not fatal
				slog.Warn("failed to remove blob", "key", f.StorageKey, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	slog.Info("deleted project", "project_id", id, "files", len(files))
	return nil
}

// AddCollaborator shares the project with the user named username.
func (s *ProjectService) AddCollaborator(ctx context.Context, user *models.User, id uuid.UUID, username string) (*ProjectView, error) {
	p, err := loadProjectFor(ctx, s.repos, user, id, access.ActionManage)
	if err != nil {
		return nil, err
	}
	other, err := s.repos.Users.GetByUsername(ctx, trimmed(username))
	if err != nil {
		return nil, apperrors.FromStore(err, "user "+username, nil)
	}
	if other.ID == p.OwnerID {
		return nil, apperrors.Invalid("the owner cannot be a collaborator")
	}
	if err := s.repos.Projects.AddCollaborator(ctx, p, other); err != nil {
		return nil, apperrors.FromStore(err, "add collaborator", nil)
	}
	s.notifications.Notify(ctx, other.ID, models.NotificationSystem,
		"Added to project", "You were added as a collaborator to \""+p.Name+"\".")
	return s.Get(ctx, user, id)
}

// RemoveCollaborator revokes the user's membership.
func (s *ProjectService) RemoveCollaborator(ctx context.Context, user *models.User, id uuid.UUID, username string) (*ProjectView, error) {
	p, err := loadProjectFor(ctx, s.repos, user, id, access.ActionManage)
	if err != nil {
		return nil, err
	}
	other, err := s.repos.Users.GetByUsername(ctx, trimmed(username))
	if err != nil {
		return nil, apperrors.FromStore(err, "user "+username, nil)
	}
	if err := s.repos.Projects.RemoveCollaborator(ctx, p, other); err != nil {
		return nil, apperrors.FromStore(err, "remove collaborator", nil)
	}
	return s.Get(ctx, user, id)
}

// SettingsInput is the full set of editable project settings.
type SettingsInput struct {
	RequireQualityCheck   bool    `json:"require_quality_check"`
	MinAnnotationsPerFile int     `json:"min_annotations_per_file"`
	MaxAnnotationsPerFile int     `json:"max_annotations_per_file"`
	QualityThreshold      float64 `json:"quality_threshold"`
	AutoApproveThreshold  float64 `json:"auto_approve_threshold"`
	ExportFormat          string  `json:"export_format"`
	IncludeMetadata       bool    `json:"include_metadata"`
}

// Validate checks the settings bounds.
func (in SettingsInput) Validate() error {
	if in.MinAnnotationsPerFile < 1 || in.MaxAnnotationsPerFile > 10 || in.MinAnnotationsPerFile > in.MaxAnnotationsPerFile {
		return apperrors.Invalid("annotations per file must satisfy 1 <= min <= max <= 10")
	}
	if !models.ScoreInRange(in.QualityThreshold) || !models.ScoreInRange(in.AutoApproveThreshold) {
		return apperrors.Invalid("thresholds must be between 0 and 1")
	}
	for _, f := range models.ExportFormats {
		if f == in.ExportFormat {
			return nil
		}
	}
	return apperrors.Invalid("unknown export format %q", in.ExportFormat)
}

func (s *ProjectService) Settings(ctx context.Context, user *models.User, id uuid.UUID) (*models.ProjectSettings, error) {
	p, err := loadProjectFor(ctx, s.repos, user, id, access.ActionManage)
	if err != nil {
		return nil, err
	}
	settings, err := s.repos.Projects.GetSettings(ctx, p.ID)
	return settings, apperrors.FromStore(err, "load settings", nil)
}

func (s *ProjectService) UpdateSettings(ctx context.Context, user *models.User, id uuid.UUID, in SettingsInput) (*models.ProjectSettings, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx, user, id)
	if err != nil {
		return nil, err
	}
	settings.RequireQualityCheck = in.RequireQualityCheck
	settings.MinAnnotationsPerFile = in.MinAnnotationsPerFile
	settings.MaxAnnotationsPerFile = in.MaxAnnotationsPerFile
	settings.QualityThreshold = in.QualityThreshold
	settings.AutoApproveThreshold = in.AutoApproveThreshold
	settings.ExportFormat = in.ExportFormat
	settings.IncludeMetadata = in.IncludeMetadata
	if err := s.repos.Projects.SaveSettings(ctx, settings); err != nil {
		return nil, apperrors.FromStore(err, "save settings", nil)
	}
	return settings, nil
}
