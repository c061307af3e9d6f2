package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrScoreOutOfRange is returned by model hooks when a score leaves [0,1].
var ErrScoreOutOfRange = errors.New("score out of range [0,1]")

type ReviewType string

const (
	ReviewManual    ReviewType = "manual"
	ReviewAutomatic ReviewType = "automatic"
	ReviewPeer      ReviewType = "peer"
)

func (t ReviewType) Valid() bool {
	switch t {
	case ReviewManual, ReviewAutomatic, ReviewPeer:
		return true
	}
	return false
}

// QualityReview is a reviewer's scored assessment of an annotation.
type QualityReview struct {
	ID                uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	AnnotationID      uuid.UUID   `json:"annotation_id" gorm:"type:uuid;not null;index"`
	Annotation        *Annotation `json:"-" gorm:"foreignKey:AnnotationID;constraint:OnDelete:CASCADE"`
	ReviewerID        uuid.UUID   `json:"reviewer_id" gorm:"type:uuid;not null;index"`
	ReviewType        ReviewType  `json:"review_type" gorm:"size:20;not null"`
	AccuracyScore     float64     `json:"accuracy_score" gorm:"not null"`
	CompletenessScore float64     `json:"completeness_score" gorm:"not null"`
	ConsistencyScore  float64     `json:"consistency_score" gorm:"not null"`
	OverallScore      float64     `json:"overall_score" gorm:"not null"`
	Comments          string      `json:"comments"`
	Suggestions       string      `json:"suggestions"`
	IsApproved        bool        `json:"is_approved" gorm:"not null;default:false"`
	NeedsRevision     bool        `json:"needs_revision" gorm:"not null;default:false"`
	CreatedAt         time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

func (r *QualityReview) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// BeforeSave recomputes the composite score on every persisted write.
func (r *QualityReview) BeforeSave(tx *gorm.DB) error {
	for _, s := range []float64{r.AccuracyScore, r.CompletenessScore, r.ConsistencyScore} {
		if !ScoreInRange(s) {
			return ErrScoreOutOfRange
		}
	}
	r.OverallScore = OverallScore(r.AccuracyScore, r.CompletenessScore, r.ConsistencyScore)
	return nil
}

// OverallScore is the unweighted mean of the three component scores.
func OverallScore(accuracy, completeness, consistency float64) float64 {
	return (accuracy + completeness + consistency) / 3
}

func ScoreInRange(s float64) bool {
	return s >= 0 && s <= 1
}
