package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"annotation-service/internal/access"
	"annotation-service/internal/apperrors"
	"annotation-service/internal/metrics"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
)

// ReviewService records quality reviews and applies their outcome.
type ReviewService struct {
	repos         *repository.Repositories
	notifications *NotificationService
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewReviewService(repos *repository.Repositories, notifications *NotificationService, m *metrics.Metrics) *ReviewService {
	return &ReviewService{repos: repos, notifications: notifications, metrics: m, now: time.Now}
}

// ReviewInput is a reviewer's assessment. IsApproved and NeedsRevision are
// independent flags chosen by the reviewer; they may not both be set.
type ReviewInput struct {
	ReviewType        models.ReviewType `json:"review_type"`
	AccuracyScore     float64           `json:"accuracy_score"`
	CompletenessScore float64           `json:"completeness_score"`
	ConsistencyScore  float64           `json:"consistency_score"`
	Comments          string            `json:"comments"`
	Suggestions       string            `json:"suggestions"`
	IsApproved        bool              `json:"is_approved"`
	NeedsRevision     bool              `json:"needs_revision"`
}

func (in *ReviewInput) validate() error {
	for _, s := range []struct {
		name  string
		value float64
	}{
		{"accuracy", in.AccuracyScore},
		{"completeness", in.CompletenessScore},
		{"consistency", in.ConsistencyScore},
	} {
		if !models.ScoreInRange(s.value) {
			return errors.Wrapf(apperrors.ErrInvalidScore, "%s score %v", s.name, s.value)
		}
	}
	if in.ReviewType == "" {
		in.ReviewType = models.ReviewManual
	}
	if !in.ReviewType.Valid() {
		return apperrors.Invalid("unknown review type %q", in.ReviewType)
	}
	if in.IsApproved && in.NeedsRevision {
		return apperrors.Invalid("a review cannot both approve and request revision")
	}
	return nil
}

// outcome maps the reviewer's flags to the resulting annotation status.
func (in *ReviewInput) outcome() models.AnnotationStatus {
	switch {
	case in.IsApproved:
		return models.AnnotationApproved
	case in.NeedsRevision:
		return models.AnnotationNeedsReview
	default:
		return models.AnnotationRejected
	}
}

func (in *ReviewInput) applyTo(r *models.QualityReview) {
	r.ReviewType = in.ReviewType
	r.AccuracyScore = in.AccuracyScore
	r.CompletenessScore = in.CompletenessScore
	r.ConsistencyScore = in.ConsistencyScore
	r.Comments = in.Comments
	r.Suggestions = in.Suggestions
	r.IsApproved = in.IsApproved
	r.NeedsRevision = in.NeedsRevision
}

// Submit records a review of a submitted or already reviewed annotation by
// the project owner.
func (s *ReviewService) Submit(ctx context.Context, reviewer *models.User, annotationID uuid.UUID, in ReviewInput) (*models.QualityReview, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	review := &models.QualityReview{AnnotationID: annotationID, ReviewerID: reviewer.ID}
	in.applyTo(review)

	a, p, err := s.record(ctx, reviewer, review, &in)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, a, p, review)
	return review, nil
}

// Update revises a review. Only its author may do so; the outcome is
// applied to the annotation again.
func (s *ReviewService) Update(ctx context.Context, reviewer *models.User, reviewID uuid.UUID, in ReviewInput) (*models.QualityReview, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	review, err := s.repos.Reviews.Get(ctx, reviewID)
	if err != nil {
		return nil, apperrors.FromStore(err, "review", nil)
	}
	if review.ReviewerID != reviewer.ID {
		return nil, errors.Wrap(apperrors.ErrPermissionDenied, "only the reviewer may change a review")
	}
	in.applyTo(review)

	a, p, err := s.record(ctx, reviewer, review, &in)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, a, p, review)
	return review, nil
}

// record persists the review and applies its outcome in one transaction.
func (s *ReviewService) record(ctx context.Context, reviewer *models.User, review *models.QualityReview, in *ReviewInput) (*models.Annotation, *models.Project, error) {
	var (
		annotation *models.Annotation
		project    *models.Project
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		a, err := tx.Annotations.Get(ctx, review.AnnotationID)
		if err != nil {
			return apperrors.FromStore(err, "annotation", nil)
		}
		p, err := loadProject(ctx, tx, a.ProjectID)
		if err != nil {
			return err
		}
		res := access.ForAnnotation(a, p)
		if !access.CanAccess(reviewer.ID, res, access.ActionReview) {
			return errors.Wrap(apperrors.ErrPermissionDenied, "only the project owner may review")
		}
		if a.AnnotatorID == reviewer.ID {
			return errors.Wrap(apperrors.ErrPermissionDenied, "annotators cannot review their own work")
		}
		next := in.outcome()
		if a.Status != models.AnnotationSubmitted && !a.Status.Reviewed() {
			return apperrors.NewInvalidTransition(string(a.Status), string(next))
		}

		if err := tx.Reviews.Save(ctx, review); err != nil {
			if errors.Is(err, models.ErrScoreOutOfRange) {
				return errors.Wrap(apperrors.ErrInvalidScore, err.Error())
			}
			return apperrors.FromStore(err, "save review", nil)
		}

		now := s.now().UTC()
		reviewerID := reviewer.ID
		overall := review.OverallScore
		a.Status = next
		a.QualityScore = &overall
		a.ReviewedByID = &reviewerID
		a.ReviewedAt = &now
		a.ReviewerNotes = review.Comments
		if err := tx.Annotations.Save(ctx, a); err != nil {
			return apperrors.FromStore(err, "update annotation", nil)
		}
		if err := refreshProjectQuality(ctx, tx, p.ID); err != nil {
			return err
		}
		annotation, project = a, p
		return nil
	})
	return annotation, project, err
}

func (s *ReviewService) announce(ctx context.Context, a *models.Annotation, p *models.Project, review *models.QualityReview) {
	s.metrics.ReviewRecorded(string(a.Status), review.OverallScore)
	s.notifications.Notify(ctx, a.AnnotatorID, models.NotificationQualityReview,
		"Annotation reviewed",
		fmt.Sprintf("Your annotation in %q was reviewed: %s (score %.2f).", p.Name, a.Status, review.OverallScore))
}

// Queue returns submitted annotations awaiting review in the owner's
// projects. projectID narrows the queue to one project when not nil.
func (s *ReviewService) Queue(ctx context.Context, owner *models.User, projectID uuid.UUID, page int) (repository.PageResult[models.Annotation], error) {
	if projectID != uuid.Nil {
		if _, err := loadProjectFor(ctx, s.repos, owner, projectID, access.ActionReview); err != nil {
			return repository.PageResult[models.Annotation]{}, err
		}
	}
	res, err := s.repos.Annotations.ReviewQueue(ctx, owner.ID, projectID, pageOf(page, ReviewQueuePageSize))
	return res, apperrors.FromStore(err, "review queue", nil)
}

// ListForAnnotation returns the reviews of an annotation to its annotator or
// the project owner.
func (s *ReviewService) ListForAnnotation(ctx context.Context, user *models.User, annotationID uuid.UUID) ([]models.QualityReview, error) {
	a, err := s.repos.Annotations.Get(ctx, annotationID)
	if err != nil {
		return nil, apperrors.FromStore(err, "annotation", nil)
	}
	p, err := loadProject(ctx, s.repos, a.ProjectID)
	if err != nil {
		return nil, err
	}
	if !access.CanViewAnnotation(user.ID, access.ForAnnotation(a, p)) {
		return nil, errors.Wrap(apperrors.ErrPermissionDenied, "annotation")
	}
	reviews, err := s.repos.Reviews.ListForAnnotation(ctx, a.ID)
	return reviews, apperrors.FromStore(err, "list reviews", nil)
}
