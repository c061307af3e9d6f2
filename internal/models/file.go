package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeText     FileType = "text"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
)

// ProjectFile is the metadata of an uploaded artifact stored in the blob store.
type ProjectFile struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID       uuid.UUID  `json:"project_id" gorm:"type:uuid;not null;index"`
	Project         *Project   `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Filename        string     `json:"filename" gorm:"size:255;not null"`
	FileType        FileType   `json:"file_type" gorm:"size:10;not null"`
	ContentType     string     `json:"content_type"`
	FileSize        int64      `json:"file_size" gorm:"not null;default:0"`
	StorageKey      string     `json:"storage_key" gorm:"not null"`
	IsAnnotated     bool       `json:"is_annotated" gorm:"not null;default:false"`
	AnnotationCount int        `json:"annotation_count" gorm:"not null;default:0"`
	UploadedByID    *uuid.UUID `json:"uploaded_by_id,omitempty" gorm:"type:uuid"`
	UploadedAt      time.Time  `json:"uploaded_at" gorm:"autoCreateTime"`
}

func (f *ProjectFile) BeforeCreate(tx *gorm.DB) error {
	ensureID(&f.ID)
	return nil
}
