package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"annotation-service/internal/models"
)

// ProjectRepository provides methods to interact with the Project model in the database.
type ProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository instance with the provided GORM database connection.
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// ProjectFilter narrows project listings.
type ProjectFilter struct {
	Status models.ProjectStatus
	Search string
}

// Create inserts a project together with its settings.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Omit("Owner", "Collaborators").Create(project).Error
}

// Get retrieves a Project by its ID with owner, collaborators and settings.
func (r *ProjectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("Collaborators").
		Preload("Settings").
		First(&project, "id = ?", id).Error
	return &project, err
}

// Save updates the project's own columns.
func (r *ProjectRepository) Save(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(project).Error
}

// Delete removes a project and everything that belongs to it.
func (r *ProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	annotations := db.Model(&models.Annotation{}).Select("id").Where("project_id = ?", id)
	steps := []func() error{
		func() error {
			return db.Where("annotation_id IN (?)", annotations).Delete(&models.QualityReview{}).Error
		},
		func() error { return db.Where("project_id = ?", id).Delete(&models.Annotation{}).Error },
		func() error { return db.Where("project_id = ?", id).Delete(&models.AnnotationSession{}).Error },
		func() error { return db.Where("project_id = ?", id).Delete(&models.AnnotationTemplate{}).Error },
		func() error { return db.Where("project_id = ?", id).Delete(&models.AnnotationLabel{}).Error },
		func() error { return db.Where("project_id = ?", id).Delete(&models.ProjectFile{}).Error },
		func() error { return db.Where("project_id = ?", id).Delete(&models.ProjectSettings{}).Error },
		func() error { return db.Exec("DELETE FROM project_collaborators WHERE project_id = ?", id).Error },
		func() error { return db.Delete(&models.Project{}, "id = ?", id).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// memberScope restricts a query on projects to those the user owns or collaborates on.
func memberScope(userID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("projects.owner_id = ? OR projects.id IN (?)", userID,
			db.Session(&gorm.Session{NewDB: true}).
				Table("project_collaborators").Select("project_id").Where("user_id = ?", userID))
	}
}

// ListForMember lists projects the user owns or collaborates on, most recently updated first.
func (r *ProjectRepository) ListForMember(ctx context.Context, userID uuid.UUID, f ProjectFilter, p Page) (PageResult[models.Project], error) {
	q := r.db.WithContext(ctx).Model(&models.Project{}).Scopes(memberScope(userID))
	if f.Status != "" {
		q = q.Where("projects.status = ?", f.Status)
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		q = q.Where("(LOWER(projects.name) LIKE ?"+likeEscape+" OR LOWER(projects.description) LIKE ?"+likeEscape+")", pattern, pattern)
	}
	return paginate[models.Project](q, "projects.updated_at DESC", p, "Owner")
}

// CountOwned counts projects owned by the user, optionally limited to one status.
func (r *ProjectRepository) CountOwned(ctx context.Context, userID uuid.UUID, status models.ProjectStatus) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Project{}).Where("owner_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// CountCollaborating counts projects the user collaborates on.
func (r *ProjectRepository) CountCollaborating(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Table("project_collaborators").Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// CountActiveForMember counts active projects the user owns or collaborates on.
func (r *ProjectRepository) CountActiveForMember(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Project{}).
		Scopes(memberScope(userID)).
		Where("projects.status = ?", models.ProjectActive).
		Count(&n).Error
	return n, err
}

func (r *ProjectRepository) AddCollaborator(ctx context.Context, project *models.Project, user *models.User) error {
	return r.db.WithContext(ctx).Model(project).Association("Collaborators").Append(user)
}

func (r *ProjectRepository) RemoveCollaborator(ctx context.Context, project *models.Project, user *models.User) error {
	return r.db.WithContext(ctx).Model(project).Association("Collaborators").Delete(user)
}

// RecomputeFileCounters sets total_files and annotated_files from the project's files.
func (r *ProjectRepository) RecomputeFileCounters(ctx context.Context, projectID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	var total, annotated int64
	if err := db.Model(&models.ProjectFile{}).Where("project_id = ?", projectID).Count(&total).Error; err != nil {
		return err
	}
	if err := db.Model(&models.ProjectFile{}).Where("project_id = ? AND is_annotated = ?", projectID, true).Count(&annotated).Error; err != nil {
		return err
	}
	return db.Model(&models.Project{}).Where("id = ?", projectID).
		UpdateColumns(map[string]any{"total_files": total, "annotated_files": annotated}).Error
}

// SetQualityScore stores the project's aggregate review score.
func (r *ProjectRepository) SetQualityScore(ctx context.Context, projectID uuid.UUID, score float64) error {
	return r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).
		UpdateColumn("quality_score", score).Error
}

// GetSettings returns the project's settings, creating the defaults when missing.
func (r *ProjectRepository) GetSettings(ctx context.Context, projectID uuid.UUID) (*models.ProjectSettings, error) {
	var settings models.ProjectSettings
	err := r.db.WithContext(ctx).
		Where(models.ProjectSettings{ProjectID: projectID}).
		Attrs(models.DefaultSettings(projectID)).
		FirstOrCreate(&settings).Error
	return &settings, err
}

func (r *ProjectRepository) SaveSettings(ctx context.Context, settings *models.ProjectSettings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}
