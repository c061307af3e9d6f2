package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"annotation-service/internal/models"
)

// TemplateRepository persists annotation templates.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.AnnotationTemplate) error {
	return r.db.WithContext(ctx).Omit("Project").Create(t).Error
}

func (r *TemplateRepository) Get(ctx context.Context, id uuid.UUID) (*models.AnnotationTemplate, error) {
	var t models.AnnotationTemplate
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	return &t, err
}

func (r *TemplateRepository) Save(ctx context.Context, t *models.AnnotationTemplate) error {
	return r.db.WithContext(ctx).Omit("Project").Save(t).Error
}

func (r *TemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.AnnotationTemplate{}, "id = ?", id).Error
}

func (r *TemplateRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.AnnotationTemplate, error) {
	var out []models.AnnotationTemplate
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("name").Find(&out).Error
	return out, err
}

// ActiveDefault returns the project's active default template, or nil when
// the project has none.
func (r *TemplateRepository) ActiveDefault(ctx context.Context, projectID uuid.UUID) (*models.AnnotationTemplate, error) {
	var t models.AnnotationTemplate
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND is_default = ? AND is_active = ?", projectID, true, true).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ClearDefault unsets the default flag on every other template of the project.
func (r *TemplateRepository) ClearDefault(ctx context.Context, projectID, keepID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.AnnotationTemplate{}).
		Where("project_id = ? AND id <> ? AND is_default = ?", projectID, keepID, true).
		UpdateColumn("is_default", false).Error
}
