package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnnotationLabel is one entry of a project's label vocabulary. Labels form a
// tree through ParentID; the tree is kept acyclic by the label service.
type AnnotationLabel struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID   uuid.UUID  `json:"project_id" gorm:"type:uuid;not null;uniqueIndex:idx_label_project_name"`
	Project     *Project   `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Name        string     `json:"name" gorm:"size:100;not null;uniqueIndex:idx_label_project_name"`
	Description string     `json:"description"`
	Color       string     `json:"color" gorm:"size:7;not null;default:'#007bff'"`
	IsActive    bool       `json:"is_active" gorm:"not null"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (l *AnnotationLabel) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// LabelNode is a label with its children, used for tree read models.
type LabelNode struct {
	AnnotationLabel
	Children []*LabelNode `json:"children,omitempty"`
}
