package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectType declares what kind of annotation work a project holds.
type ProjectType string

const (
	ProjectTypeImageClassification    ProjectType = "image_classification"
	ProjectTypeObjectDetection        ProjectType = "object_detection"
	ProjectTypeSemanticSegmentation   ProjectType = "semantic_segmentation"
	ProjectTypeTextClassification     ProjectType = "text_classification"
	ProjectTypeNamedEntityRecognition ProjectType = "named_entity_recognition"
	ProjectTypeSentimentAnalysis      ProjectType = "sentiment_analysis"
	ProjectTypeCustom                 ProjectType = "custom"
)

// ProjectTypes lists every supported project type.
func ProjectTypes() []ProjectType {
	return []ProjectType{
		ProjectTypeImageClassification, ProjectTypeObjectDetection,
		ProjectTypeSemanticSegmentation, ProjectTypeTextClassification,
		ProjectTypeNamedEntityRecognition, ProjectTypeSentimentAnalysis,
		ProjectTypeCustom,
	}
}

func (t ProjectType) Valid() bool {
	for _, pt := range ProjectTypes() {
		if pt == t {
			return true
		}
	}
	return false
}

type ProjectStatus string

const (
	ProjectDraft     ProjectStatus = "draft"
	ProjectActive    ProjectStatus = "active"
	ProjectPaused    ProjectStatus = "paused"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectDraft:     {ProjectActive},
	ProjectActive:    {ProjectPaused, ProjectCompleted},
	ProjectPaused:    {ProjectActive, ProjectCompleted, ProjectArchived},
	ProjectCompleted: {ProjectArchived},
	ProjectArchived:  {},
}

func (s ProjectStatus) Valid() bool {
	_, ok := projectTransitions[s]
	return ok
}

// CanBecome reports whether a project may move from s to next.
// Staying in the same status is always allowed.
func (s ProjectStatus) CanBecome(next ProjectStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range projectTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Project is a unit of annotation work owned by one user and shared with collaborators.
type Project struct {
	ID             uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	Name           string        `json:"name" gorm:"size:200;not null"`
	Description    string        `json:"description"`
	ProjectType    ProjectType   `json:"project_type" gorm:"size:30;not null"`
	Status         ProjectStatus `json:"status" gorm:"size:20;not null;default:draft;index"`
	OwnerID        uuid.UUID     `json:"owner_id" gorm:"type:uuid;not null;index"`
	Owner          *User         `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Collaborators  []User        `json:"collaborators,omitempty" gorm:"many2many:project_collaborators;constraint:OnDelete:CASCADE"`
	Instructions   string        `json:"instructions"`
	Guidelines     string        `json:"guidelines"`
	TotalFiles     int           `json:"total_files" gorm:"not null;default:0"`
	AnnotatedFiles int           `json:"annotated_files" gorm:"not null;default:0"`
	QualityScore   float64       `json:"quality_score" gorm:"not null;default:0"`
	Deadline       *time.Time    `json:"deadline,omitempty"`
	CreatedAt      time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time     `json:"updated_at" gorm:"autoUpdateTime"`

	Settings *ProjectSettings `json:"settings,omitempty" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProgressPercentage returns the share of annotated files, 0 for an empty project.
func (p *Project) ProgressPercentage() float64 {
	return ProgressPercentage(p.AnnotatedFiles, p.TotalFiles)
}

// ProgressPercentage computes annotated/total*100, defined as 0 when total is 0.
func ProgressPercentage(annotated, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(annotated) / float64(total) * 100
}

// CollaboratorIDs returns the ids of the loaded collaborators.
func (p *Project) CollaboratorIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Collaborators))
	for _, u := range p.Collaborators {
		ids = append(ids, u.ID)
	}
	return ids
}

var ExportFormats = []string{"json", "csv", "xml", "yolo", "coco"}

// ProjectSettings holds per-project quality and export preferences.
type ProjectSettings struct {
	ID                    uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID             uuid.UUID `json:"project_id" gorm:"type:uuid;not null;uniqueIndex"`
	RequireQualityCheck   bool      `json:"require_quality_check" gorm:"not null"`
	MinAnnotationsPerFile int       `json:"min_annotations_per_file" gorm:"not null"`
	MaxAnnotationsPerFile int       `json:"max_annotations_per_file" gorm:"not null"`
	QualityThreshold      float64   `json:"quality_threshold" gorm:"not null"`
	AutoApproveThreshold  float64   `json:"auto_approve_threshold" gorm:"not null"`
	ExportFormat          string    `json:"export_format" gorm:"size:20;not null"`
	IncludeMetadata       bool      `json:"include_metadata" gorm:"not null"`
	CreatedAt             time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (s *ProjectSettings) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// DefaultSettings returns the settings a new project starts with.
func DefaultSettings(projectID uuid.UUID) *ProjectSettings {
	return &ProjectSettings{
		ProjectID:             projectID,
		RequireQualityCheck:   true,
		MinAnnotationsPerFile: 1,
		MaxAnnotationsPerFile: 3,
		QualityThreshold:      0.8,
		AutoApproveThreshold:  0.95,
		ExportFormat:          "json",
		IncludeMetadata:       true,
	}
}
