package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationProjectCreated      NotificationType = "project_created"
	NotificationAnnotationCompleted NotificationType = "annotation_completed"
	NotificationQualityReview       NotificationType = "quality_review"
	NotificationSystem              NotificationType = "system"
)

type Notification struct {
	ID        uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID        `json:"user_id" gorm:"type:uuid;not null;index"`
	Type      NotificationType `json:"notification_type" gorm:"size:20;not null"`
	Title     string           `json:"title" gorm:"size:200;not null"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"is_read" gorm:"not null;default:false;index"`
	CreatedAt time.Time        `json:"created_at" gorm:"autoCreateTime"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	ensureID(&n.ID)
	return nil
}

// All lists every persisted model, in dependency order, for auto-migration.
func All() []any {
	return []any{
		&User{}, &UserProfile{}, &Project{}, &ProjectSettings{}, &ProjectFile{},
		&Annotation{}, &QualityReview{}, &AnnotationLabel{}, &AnnotationTemplate{},
		&AnnotationSession{}, &Notification{},
	}
}
