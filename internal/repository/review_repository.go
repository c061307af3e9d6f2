package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"annotation-service/internal/models"
)

// ReviewRepository persists quality reviews.
type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Save inserts or updates a review. The model hook recomputes the overall score.
func (r *ReviewRepository) Save(ctx context.Context, review *models.QualityReview) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(review).Error
}

func (r *ReviewRepository) Get(ctx context.Context, id uuid.UUID) (*models.QualityReview, error) {
	var review models.QualityReview
	err := r.db.WithContext(ctx).First(&review, "id = ?", id).Error
	return &review, err
}

// ListForAnnotation returns an annotation's reviews, newest first.
func (r *ReviewRepository) ListForAnnotation(ctx context.Context, annotationID uuid.UUID) ([]models.QualityReview, error) {
	var reviews []models.QualityReview
	err := r.db.WithContext(ctx).
		Where("annotation_id = ?", annotationID).
		Order("created_at DESC").
		Find(&reviews).Error
	return reviews, err
}
