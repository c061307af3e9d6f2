package services

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/auth"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
)

// UserService provisions users from identities and serves profiles and the dashboard.
type UserService struct {
	repos *repository.Repositories
}

func NewUserService(repos *repository.Repositories) *UserService {
	return &UserService{repos: repos}
}

// EnsureUser returns the local user for an identity, creating it on first
// sight. A subject that is a UUID becomes the user id.
func (s *UserService) EnsureUser(ctx context.Context, id auth.Identity) (*models.User, error) {
	user, err := s.repos.Users.GetByUsername(ctx, id.Username)
	if err == nil {
		if id.Email != "" && id.Email != user.Email {
			user.Email = id.Email
			if err := s.repos.Users.Save(ctx, user); err != nil {
				slog.Warn("failed to update user email", "user_id", user.ID, "error", err)
			}
		}
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.FromStore(err, "load user", nil)
	}

	user = &models.User{Username: id.Username, Email: id.Email}
	if uid, perr := uuid.Parse(id.Subject); perr == nil {
		user.ID = uid
	}
	if err := s.repos.Users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// created concurrently by another request
			user, err = s.repos.Users.GetByUsername(ctx, id.Username)
			return user, apperrors.FromStore(err, "load user", nil)
		}
		return nil, apperrors.FromStore(err, "create user", nil)
	}
	slog.Info("provisioned user", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Profile is a user with the descriptive profile attributes.
type Profile struct {
	User    *models.User        `json:"user"`
	Profile *models.UserProfile `json:"profile"`
}

// ProfileUpdate carries editable profile fields; nil fields are left alone.
type ProfileUpdate struct {
	Email        *string `json:"email" validate:"omitempty,email"`
	Bio          *string `json:"bio"`
	Organization *string `json:"organization"`
	Role         *string `json:"role"`
}

func (s *UserService) GetProfile(ctx context.Context, user *models.User) (*Profile, error) {
	profile, err := s.repos.Users.GetOrCreateProfile(ctx, user.ID)
	if err != nil {
		return nil, apperrors.FromStore(err, "load profile", nil)
	}
	return &Profile{User: user, Profile: profile}, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, user *models.User, in ProfileUpdate) (*Profile, error) {
	limits := []struct {
		name  string
		value *string
		max   int
	}{{"bio", in.Bio, 500}, {"organization", in.Organization, 100}, {"role", in.Role, 50}}
	for _, l := range limits {
		if l.value != nil && utf8.RuneCountInString(*l.value) > l.max {
			return nil, apperrors.Invalid("%s must be at most %d characters", l.name, l.max)
		}
	}

	var out *Profile
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		profile, err := tx.Users.GetOrCreateProfile(ctx, user.ID)
		if err != nil {
			return apperrors.FromStore(err, "load profile", nil)
		}
		if in.Bio != nil {
			profile.Bio = *in.Bio
		}
		if in.Organization != nil {
			profile.Organization = *in.Organization
		}
		if in.Role != nil {
			profile.Role = *in.Role
		}
		if err := tx.Users.SaveProfile(ctx, profile); err != nil {
			return apperrors.FromStore(err, "save profile", nil)
		}
		if in.Email != nil && *in.Email != user.Email {
			user.Email = *in.Email
			if err := tx.Users.Save(ctx, user); err != nil {
				return apperrors.FromStore(err, "save user", nil)
			}
		}
		out = &Profile{User: user, Profile: profile}
		return nil
	})
	return out, err
}

// Dashboard summarises a user's work.
type Dashboard struct {
	OwnedProjects         int64                      `json:"owned_projects"`
	CollaboratingProjects int64                      `json:"collaborating_projects"`
	ActiveProjects        int64                      `json:"active_projects"`
	TotalAnnotations      int64                      `json:"total_annotations"`
	ApprovedAnnotations   int64                      `json:"approved_annotations"`
	UnreadNotifications   int64                      `json:"unread_notifications"`
	RecentSessions        []models.AnnotationSession `json:"recent_sessions"`
}

const dashboardRecentSessions = 5

func (s *UserService) Dashboard(ctx context.Context, user *models.User) (*Dashboard, error) {
	var d Dashboard
	counts := []struct {
		dst *int64
		fn  func() (int64, error)
	}{
		{&d.OwnedProjects, func() (int64, error) { return s.repos.Projects.CountOwned(ctx, user.ID, "") }},
		{&d.CollaboratingProjects, func() (int64, error) { return s.repos.Projects.CountCollaborating(ctx, user.ID) }},
		{&d.ActiveProjects, func() (int64, error) { return s.repos.Projects.CountActiveForMember(ctx, user.ID) }},
		{&d.TotalAnnotations, func() (int64, error) { return s.repos.Annotations.CountByAnnotator(ctx, user.ID, "") }},
		{&d.ApprovedAnnotations, func() (int64, error) {
			return s.repos.Annotations.CountByAnnotator(ctx, user.ID, models.AnnotationApproved)
		}},
		{&d.UnreadNotifications, func() (int64, error) { return s.repos.Notifications.UnreadCount(ctx, user.ID) }},
	}
	for _, c := range counts {
		n, err := c.fn()
		if err != nil {
			return nil, apperrors.FromStore(err, "dashboard", nil)
		}
		*c.dst = n
	}
	sessions, err := s.repos.Sessions.ListForAnnotator(ctx, user.ID, pageOf(1, dashboardRecentSessions))
	if err != nil {
		return nil, apperrors.FromStore(err, "dashboard", nil)
	}
	d.RecentSessions = sessions.Items
	return &d, nil
}
