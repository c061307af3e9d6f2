package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"annotation-service/internal/access"
	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
)

// SessionService tracks annotation work sessions.
type SessionService struct {
	repos *repository.Repositories
	now   func() time.Time
}

func NewSessionService(repos *repository.Repositories) *SessionService {
	return &SessionService{repos: repos, now: time.Now}
}

// Start opens a session in the project, or returns the one already open.
func (s *SessionService) Start(ctx context.Context, user *models.User, projectID uuid.UUID, userAgent, ip string) (*models.AnnotationSession, error) {
	var out *models.AnnotationSession
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := loadProjectFor(ctx, tx, user, projectID, access.ActionAnnotate); err != nil {
			return err
		}
		open, err := tx.Sessions.Open(ctx, user.ID, projectID)
		if err != nil {
			return apperrors.FromStore(err, "load session", nil)
		}
		if open != nil {
			out = open
			return nil
		}
		if len(ip) > 45 {
			ip = ip[:45]
		}
		out = &models.AnnotationSession{
			AnnotatorID: user.ID,
			ProjectID:   projectID,
			StartedAt:   s.now().UTC(),
			UserAgent:   userAgent,
			IPAddress:   ip,
		}
		return apperrors.FromStore(tx.Sessions.Create(ctx, out), "start session", nil)
	})
	return out, err
}

// End closes one of the user's sessions and records its duration.
func (s *SessionService) End(ctx context.Context, user *models.User, sessionID uuid.UUID) (*models.AnnotationSession, error) {
	sess, err := s.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, apperrors.FromStore(err, "session", nil)
	}
	if sess.AnnotatorID != user.ID {
		return nil, errors.Wrap(apperrors.ErrPermissionDenied, "session belongs to another user")
	}
	if sess.EndedAt != nil {
		return nil, apperrors.NewInvalidTransition("ended", "ended")
	}
	ended := s.now().UTC()
	sess.EndedAt = &ended
	sess.TotalTimeMinutes = sess.DurationMinutes()
	if err := s.repos.Sessions.Save(ctx, sess); err != nil {
		return nil, apperrors.FromStore(err, "end session", nil)
	}
	return sess, nil
}

// List returns one page of the user's sessions.
func (s *SessionService) List(ctx context.Context, user *models.User, page int) (repository.PageResult[models.AnnotationSession], error) {
	res, err := s.repos.Sessions.ListForAnnotator(ctx, user.ID, pageOf(page, SessionPageSize))
	return res, apperrors.FromStore(err, "list sessions", nil)
}
