package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnnotationSession tracks a stretch of annotation work by one annotator.
type AnnotationSession struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	AnnotatorID      uuid.UUID  `json:"annotator_id" gorm:"type:uuid;not null;index"`
	ProjectID        uuid.UUID  `json:"project_id" gorm:"type:uuid;not null;index"`
	Project          *Project   `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	FilesAnnotated   int        `json:"files_annotated" gorm:"not null;default:0"`
	TotalTimeMinutes int        `json:"total_time_minutes" gorm:"not null;default:0"`
	StartedAt        time.Time  `json:"started_at" gorm:"not null;index"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	UserAgent        string     `json:"user_agent"`
	IPAddress        string     `json:"ip_address" gorm:"size:45"`
}

func (s *AnnotationSession) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// DurationMinutes returns the whole minutes between start and end, 0 while open.
func (s *AnnotationSession) DurationMinutes() int {
	if s.EndedAt == nil {
		return 0
	}
	return int(s.EndedAt.Sub(s.StartedAt) / time.Minute)
}
