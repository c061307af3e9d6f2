package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"annotation-service/internal/models"
)

// SessionRepository persists annotation sessions.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *models.AnnotationSession) error {
	return r.db.WithContext(ctx).Omit("Project").Create(s).Error
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*models.AnnotationSession, error) {
	var s models.AnnotationSession
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *SessionRepository) Save(ctx context.Context, s *models.AnnotationSession) error {
	return r.db.WithContext(ctx).Omit("Project").Save(s).Error
}

// Open returns the annotator's unfinished session in the project, or nil.
func (r *SessionRepository) Open(ctx context.Context, annotatorID, projectID uuid.UUID) (*models.AnnotationSession, error) {
	var s models.AnnotationSession
	err := r.db.WithContext(ctx).
		Where("annotator_id = ? AND project_id = ? AND ended_at IS NULL", annotatorID, projectID).
		Order("started_at DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// IncrementFilesAnnotated counts one more submitted file on the annotator's
// open sessions in the project.
func (r *SessionRepository) IncrementFilesAnnotated(ctx context.Context, annotatorID, projectID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.AnnotationSession{}).
		Where("annotator_id = ? AND project_id = ? AND ended_at IS NULL", annotatorID, projectID).
		UpdateColumn("files_annotated", gorm.Expr("files_annotated + 1")).Error
}

// ListForAnnotator returns one page of the annotator's sessions, newest first.
func (r *SessionRepository) ListForAnnotator(ctx context.Context, annotatorID uuid.UUID, p Page) (PageResult[models.AnnotationSession], error) {
	q := r.db.WithContext(ctx).Model(&models.AnnotationSession{}).Where("annotator_id = ?", annotatorID)
	return paginate[models.AnnotationSession](q, "started_at DESC", p)
}
