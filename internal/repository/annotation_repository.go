package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"annotation-service/internal/models"
)

// AnnotationRepository persists annotations.
type AnnotationRepository struct {
	db *gorm.DB
}

func NewAnnotationRepository(db *gorm.DB) *AnnotationRepository {
	return &AnnotationRepository{db: db}
}

// AnnotationFilter narrows an annotator's listing.
type AnnotationFilter struct {
	Status    models.AnnotationStatus
	ProjectID uuid.UUID
	Search    string
}

func (r *AnnotationRepository) Create(ctx context.Context, a *models.Annotation) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(a).Error
}

// Get loads an annotation with its file.
func (r *AnnotationRepository) Get(ctx context.Context, id uuid.UUID) (*models.Annotation, error) {
	var a models.Annotation
	err := r.db.WithContext(ctx).Preload("File").First(&a, "id = ?", id).Error
	return &a, err
}

func (r *AnnotationRepository) Save(ctx context.Context, a *models.Annotation) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(a).Error
}

// Delete removes an annotation and its reviews.
func (r *AnnotationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("annotation_id = ?", id).Delete(&models.QualityReview{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.Annotation{}, "id = ?", id).Error
}

// Exists reports whether the annotator already annotated the file.
func (r *AnnotationRepository) Exists(ctx context.Context, fileID, annotatorID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Annotation{}).
		Where("file_id = ? AND annotator_id = ?", fileID, annotatorID).
		Count(&n).Error
	return n > 0, err
}

// ListForAnnotator returns one page of the annotator's work, newest first.
// Search matches the file name and both note fields.
func (r *AnnotationRepository) ListForAnnotator(ctx context.Context, annotatorID uuid.UUID, f AnnotationFilter, p Page) (PageResult[models.Annotation], error) {
	q := r.db.WithContext(ctx).Model(&models.Annotation{}).
		Joins("JOIN project_files ON project_files.id = annotations.file_id").
		Where("annotations.annotator_id = ?", annotatorID)
	if f.Status != "" {
		q = q.Where("annotations.status = ?", f.Status)
	}
	if f.ProjectID != uuid.Nil {
		q = q.Where("annotations.project_id = ?", f.ProjectID)
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		q = q.Where("(LOWER(project_files.filename) LIKE ?"+likeEscape+
			" OR LOWER(annotations.annotator_notes) LIKE ?"+likeEscape+
			" OR LOWER(annotations.reviewer_notes) LIKE ?"+likeEscape+")",
			pattern, pattern, pattern)
	}
	return paginate[models.Annotation](q, "annotations.created_at DESC", p, "File")
}

// ReviewQueue returns submitted annotations in projects owned by ownerID,
// most recently submitted first. projectID narrows to one project when set.
func (r *AnnotationRepository) ReviewQueue(ctx context.Context, ownerID, projectID uuid.UUID, p Page) (PageResult[models.Annotation], error) {
	q := r.db.WithContext(ctx).Model(&models.Annotation{}).
		Joins("JOIN projects ON projects.id = annotations.project_id").
		Where("projects.owner_id = ? AND annotations.status = ?", ownerID, models.AnnotationSubmitted)
	if projectID != uuid.Nil {
		q = q.Where("annotations.project_id = ?", projectID)
	}
	return paginate[models.Annotation](q, "annotations.submitted_at DESC", p, "File")
}

// ListByProject returns every annotation of a project with its file.
func (r *AnnotationRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Annotation, error) {
	var out []models.Annotation
	err := r.db.WithContext(ctx).Preload("File").
		Where("project_id = ?", projectID).
		Order("created_at").
		Find(&out).Error
	return out, err
}

// CountByAnnotator counts the annotator's annotations, optionally in one status.
func (r *AnnotationRepository) CountByAnnotator(ctx context.Context, annotatorID uuid.UUID, status models.AnnotationStatus) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Annotation{}).Where("annotator_id = ?", annotatorID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// CountByProject counts the annotations of a project.
func (r *AnnotationRepository) CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Annotation{}).Where("project_id = ?", projectID).Count(&n).Error
	return n, err
}

// MeanQualityScore averages the scores of the project's reviewed annotations.
// Each annotation carries the overall score of its latest review.
func (r *AnnotationRepository) MeanQualityScore(ctx context.Context, projectID uuid.UUID) (float64, error) {
	var mean *float64
	err := r.db.WithContext(ctx).Model(&models.Annotation{}).
		Select("AVG(quality_score)").
		Where("project_id = ? AND quality_score IS NOT NULL", projectID).
		Scan(&mean).Error
	if err != nil || mean == nil {
		return 0, err
	}
	return *mean, nil
}
