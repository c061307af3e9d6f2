package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AnnotationTemplate carries a JSON Schema that annotation payloads of the
// project must satisfy while the template is the active default.
type AnnotationTemplate struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID   uuid.UUID      `json:"project_id" gorm:"type:uuid;not null;index"`
	Project     *Project       `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Name        string         `json:"name" gorm:"size:100;not null"`
	Description string         `json:"description"`
	Schema      datatypes.JSON `json:"schema" swaggertype:"object"`
	IsDefault   bool           `json:"is_default" gorm:"not null;default:false"`
	IsActive    bool           `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (t *AnnotationTemplate) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
