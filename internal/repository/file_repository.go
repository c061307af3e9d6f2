package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"annotation-service/internal/models"
)

// FileRepository provides methods to interact with project files in the database.
type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

// FileFilter narrows file listings.
type FileFilter struct {
	FileType models.FileType
	Search   string
}

func (r *FileRepository) Create(ctx context.Context, file *models.ProjectFile) error {
	return r.db.WithContext(ctx).Omit("Project").Create(file).Error
}

func (r *FileRepository) Get(ctx context.Context, id uuid.UUID) (*models.ProjectFile, error) {
	var file models.ProjectFile
	err := r.db.WithContext(ctx).First(&file, "id = ?", id).Error
	return &file, err
}

// GetForUpdate loads a file and locks its row until the transaction ends.
func (r *FileRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.ProjectFile, error) {
	var file models.ProjectFile
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&file, "id = ?", id).Error
	return &file, err
}

// Delete removes a file together with its annotations and their reviews.
func (r *FileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	annotations := db.Model(&models.Annotation{}).Select("id").Where("file_id = ?", id)
	if err := db.Where("annotation_id IN (?)", annotations).Delete(&models.QualityReview{}).Error; err != nil {
		return err
	}
	if err := db.Where("file_id = ?", id).Delete(&models.Annotation{}).Error; err != nil {
		return err
	}
	return db.Delete(&models.ProjectFile{}, "id = ?", id).Error
}

// List returns one page of a project's files, newest first.
func (r *FileRepository) List(ctx context.Context, projectID uuid.UUID, f FileFilter, p Page) (PageResult[models.ProjectFile], error) {
	q := r.db.WithContext(ctx).Model(&models.ProjectFile{}).Where("project_id = ?", projectID)
	if f.FileType != "" {
		q = q.Where("file_type = ?", f.FileType)
	}
	if f.Search != "" {
		q = q.Where("LOWER(filename) LIKE ?"+likeEscape, likePattern(f.Search))
	}
	return paginate[models.ProjectFile](q, "uploaded_at DESC", p)
}

// ListByProject returns every file of a project.
func (r *FileRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectFile, error) {
	var files []models.ProjectFile
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("uploaded_at").Find(&files).Error
	return files, err
}

// AdjustAnnotationCount adds delta to the file's annotation count, never
// going below zero, and keeps is_annotated in step with it.
func (r *FileRepository) AdjustAnnotationCount(ctx context.Context, id uuid.UUID, delta int) error {
	db := r.db.WithContext(ctx).Model(&models.ProjectFile{}).Where("id = ?", id)
	err := db.UpdateColumn("annotation_count",
		gorm.Expr("CASE WHEN annotation_count + ? < 0 THEN 0 ELSE annotation_count + ? END", delta, delta)).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&models.ProjectFile{}).Where("id = ?", id).
		UpdateColumn("is_annotated", gorm.Expr("annotation_count > 0")).Error
}
