package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/metrics"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
)

// Publisher fans notifications out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, message []byte) error
}

// NotificationService records notifications and pushes them to subscribers.
type NotificationService struct {
	repos     *repository.Repositories
	publisher Publisher
	metrics   *metrics.Metrics
}

// NewNotificationService creates the service. publisher may be nil.
func NewNotificationService(repos *repository.Repositories, publisher Publisher, m *metrics.Metrics) *NotificationService {
	return &NotificationService{repos: repos, publisher: publisher, metrics: m}
}

// NotificationChannel is the pub/sub channel carrying a user's notifications.
func NotificationChannel(userID uuid.UUID) string {
	return fmt.Sprintf("notifications:%s", userID)
}

// Notify records a notification for userID. Failures are logged and never
// reach the caller.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, kind models.NotificationType, title, message string) {
	if s == nil {
		return
	}
	n := &models.Notification{UserID: userID, Type: kind, Title: title, Message: message}
	if err := s.repos.Notifications.Create(ctx, n); err != nil {
		slog.Error("failed to store notification", "user_id", userID, "type", kind, "error", err)
		return
	}
	s.metrics.NotificationCreated(string(kind))

	if s.publisher == nil {
		return
	}
	body, err := json.Marshal(n)
	if err != nil {
		slog.Error("failed to encode notification", "id", n.ID, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, NotificationChannel(userID), body); err != nil {
		slog.Warn("failed to publish notification", "id", n.ID, "error", err)
	}
}

// List returns one page of the user's notifications.
func (s *NotificationService) List(ctx context.Context, user *models.User, unreadOnly bool, page int) (repository.PageResult[models.Notification], error) {
	res, err := s.repos.Notifications.ListForUser(ctx, user.ID, unreadOnly, pageOf(page, NotificationPageSize))
	if err != nil {
		return res, apperrors.FromStore(err, "list notifications", nil)
	}
	return res, nil
}

// MarkRead marks the given notifications of the user as read; an empty list
// marks all of them. Ids belonging to other users are ignored.
func (s *NotificationService) MarkRead(ctx context.Context, user *models.User, ids []uuid.UUID) (int64, error) {
	n, err := s.repos.Notifications.MarkRead(ctx, user.ID, ids)
	if err != nil {
		return 0, apperrors.FromStore(err, "mark notifications read", nil)
	}
	return n, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, user *models.User) (int64, error) {
	n, err := s.repos.Notifications.UnreadCount(ctx, user.ID)
	if err != nil {
		return 0, apperrors.FromStore(err, "count notifications", nil)
	}
	return n, nil
}
