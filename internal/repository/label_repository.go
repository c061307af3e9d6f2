package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"annotation-service/internal/models"
)

// LabelRepository persists a project's label vocabulary.
type LabelRepository struct {
	db *gorm.DB
}

func NewLabelRepository(db *gorm.DB) *LabelRepository {
	return &LabelRepository{db: db}
}

func (r *LabelRepository) Create(ctx context.Context, label *models.AnnotationLabel) error {
	return r.db.WithContext(ctx).Omit("Project").Create(label).Error
}

func (r *LabelRepository) Get(ctx context.Context, id uuid.UUID) (*models.AnnotationLabel, error) {
	var label models.AnnotationLabel
	err := r.db.WithContext(ctx).First(&label, "id = ?", id).Error
	return &label, err
}

func (r *LabelRepository) Save(ctx context.Context, label *models.AnnotationLabel) error {
	return r.db.WithContext(ctx).Omit("Project").Save(label).Error
}

// ListByProject returns the project's labels ordered by name.
func (r *LabelRepository) ListByProject(ctx context.Context, projectID uuid.UUID, activeOnly bool) ([]models.AnnotationLabel, error) {
	q := r.db.WithContext(ctx).Where("project_id = ?", projectID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var labels []models.AnnotationLabel
	err := q.Order("name").Find(&labels).Error
	return labels, err
}

// DeleteIDs removes the given labels.
func (r *LabelRepository) DeleteIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.AnnotationLabel{}).Error
}

// CountByProject counts every label of a project, active or not.
func (r *LabelRepository) CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.AnnotationLabel{}).Where("project_id = ?", projectID).Count(&n).Error
	return n, err
}
