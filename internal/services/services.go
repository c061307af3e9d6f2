package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"annotation-service/internal/access"
	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
)

// Listing page sizes.
const (
	ProjectPageSize      = 12
	FilePageSize         = 20
	AnnotationPageSize   = 20
	ReviewQueuePageSize  = 10
	SessionPageSize      = 20
	NotificationPageSize = 20
)

func loadProject(ctx context.Context, repos *repository.Repositories, id uuid.UUID) (*models.Project, error) {
	p, err := repos.Projects.Get(ctx, id)
	if err != nil {
		return nil, apperrors.FromStore(err, "project", nil)
	}
	return p, nil
}

func authorize(user *models.User, res access.Resource, action access.Action) error {
	if user == nil || !access.CanAccess(user.ID, res, action) {
		return errors.Wrapf(apperrors.ErrPermissionDenied, "action %s not allowed", action)
	}
	return nil
}

// loadProjectFor loads a project and checks that user may perform action on it.
func loadProjectFor(ctx context.Context, repos *repository.Repositories, user *models.User, id uuid.UUID, action access.Action) (*models.Project, error) {
	p, err := loadProject(ctx, repos, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(user, access.ForProject(p), action); err != nil {
		return nil, err
	}
	return p, nil
}

func pageOf(number, size int) repository.Page {
	return repository.Page{Number: number, Size: size}
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

// refreshProjectQuality recomputes the project's mean review score.
func refreshProjectQuality(ctx context.Context, repos *repository.Repositories, projectID uuid.UUID) error {
	mean, err := repos.Annotations.MeanQualityScore(ctx, projectID)
	if err != nil {
		return apperrors.FromStore(err, "project quality", nil)
	}
	return apperrors.FromStore(repos.Projects.SetQualityScore(ctx, projectID, mean), "project quality", nil)
}
