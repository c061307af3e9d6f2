package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AnnotationStatus string

const (
	AnnotationDraft       AnnotationStatus = "draft"
	AnnotationSubmitted   AnnotationStatus = "submitted"
	AnnotationApproved    AnnotationStatus = "approved"
	AnnotationRejected    AnnotationStatus = "rejected"
	AnnotationNeedsReview AnnotationStatus = "needs_review"
)

var annotationTransitions = map[AnnotationStatus][]AnnotationStatus{
	AnnotationDraft:       {AnnotationSubmitted},
	AnnotationSubmitted:   {AnnotationDraft, AnnotationSubmitted, AnnotationApproved, AnnotationRejected, AnnotationNeedsReview},
	AnnotationNeedsReview: {AnnotationDraft, AnnotationSubmitted, AnnotationApproved, AnnotationRejected, AnnotationNeedsReview},
	AnnotationApproved:    {AnnotationApproved, AnnotationRejected, AnnotationNeedsReview},
	AnnotationRejected:    {AnnotationApproved, AnnotationRejected, AnnotationNeedsReview},
}

// AsAnnotationStatus parses a status filter value.
func AsAnnotationStatus(s string) (AnnotationStatus, bool) {
	st := AnnotationStatus(s)
	_, ok := annotationTransitions[st]
	return st, ok
}

// CanBecome reports whether the lifecycle allows moving from s to next.
// A draft may be saved again as a draft.
func (s AnnotationStatus) CanBecome(next AnnotationStatus) bool {
	if s == AnnotationDraft && next == AnnotationDraft {
		return true
	}
	for _, allowed := range annotationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reviewed reports whether a reviewer has already decided on the annotation.
func (s AnnotationStatus) Reviewed() bool {
	switch s {
	case AnnotationApproved, AnnotationRejected, AnnotationNeedsReview:
		return true
	default:
		return false
	}
}

// Annotation is one annotator's labeling of one file.
type Annotation struct {
	ID             uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID      uuid.UUID        `json:"project_id" gorm:"type:uuid;not null;index"`
	Project        *Project         `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	FileID         uuid.UUID        `json:"file_id" gorm:"type:uuid;not null;uniqueIndex:idx_annotation_file_annotator"`
	File           *ProjectFile     `json:"file,omitempty" gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE"`
	AnnotatorID    uuid.UUID        `json:"annotator_id" gorm:"type:uuid;not null;uniqueIndex:idx_annotation_file_annotator;index"`
	AnnotationData datatypes.JSON   `json:"annotation_data" swaggertype:"object"`
	Status         AnnotationStatus `json:"status" gorm:"size:20;not null;default:draft;index"`
	QualityScore   *float64         `json:"quality_score,omitempty"`
	AnnotatorNotes string           `json:"annotator_notes"`
	ReviewerNotes  string           `json:"reviewer_notes"`
	SubmittedAt    *time.Time       `json:"submitted_at,omitempty" gorm:"index"`
	ReviewedAt     *time.Time       `json:"reviewed_at,omitempty"`
	ReviewedByID   *uuid.UUID       `json:"reviewed_by_id,omitempty" gorm:"type:uuid"`
	CreatedAt      time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

func (a *Annotation) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	if len(a.AnnotationData) == 0 {
		a.AnnotationData = datatypes.JSON("{}")
	}
	return nil
}

func (a *Annotation) BeforeSave(tx *gorm.DB) error {
	if a.QualityScore != nil && !ScoreInRange(*a.QualityScore) {
		return ErrScoreOutOfRange
	}
	return nil
}
