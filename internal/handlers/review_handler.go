package handlers

import (
	"github.com/gofiber/fiber/v2"

	"annotation-service/internal/services"
)

// ReviewHandler exposes quality reviews and the review queue.
type ReviewHandler struct {
	reviews *services.ReviewService
}

func NewReviewHandler(reviews *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// SubmitReview handles POST /annotations/:id/reviews.
// @Summary Review an annotation
// @Description Record scores for a submitted annotation. Project owner only; annotators cannot review their own work.
// @Tags reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Annotation ID" Format(uuid)
// @Param review body services.ReviewInput true "Review"
// @Success 201 {object} models.QualityReview
// @Failure 403 {object} ErrorResponse "Not allowed to review"
// @Failure 409 {object} ErrorResponse "Annotation is not awaiting review"
// @Failure 422 {object} ErrorResponse "Score out of range"
// @Router /annotations/{id}/reviews [post]
func (h *ReviewHandler) SubmitReview(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var in services.ReviewInput
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	review, err := h.reviews.Submit(c.UserContext(), user, id, in)
	if err != nil {
		return WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(review)
}

// UpdateReview handles PUT /reviews/:id.
// @Summary Revise a review
// @Tags reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Review ID" Format(uuid)
// @Param review body services.ReviewInput true "Review"
// @Success 200 {object} models.QualityReview
// @Failure 403 {object} ErrorResponse "Not the reviewer"
// @Router /reviews/{id} [put]
func (h *ReviewHandler) UpdateReview(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var in services.ReviewInput
	if err := bindJSON(c, &in); err != nil {
		return WriteError(c, err)
	}
	review, err := h.reviews.Update(c.UserContext(), user, id, in)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(review)
}

// ListReviews handles GET /annotations/:id/reviews.
// @Summary List reviews of an annotation
// @Tags reviews
// @Produce json
// @Security BearerAuth
// @Param id path string true "Annotation ID" Format(uuid)
// @Success 200 {array} models.QualityReview
// @Router /annotations/{id}/reviews [get]
func (h *ReviewHandler) ListReviews(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	reviews, err := h.reviews.ListForAnnotation(c.UserContext(), user, id)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(reviews)
}

// ReviewQueue handles GET /reviews/queue.
// @Summary Annotations awaiting review
// @Description Submitted annotations in projects owned by the caller, newest submission first
// @Tags reviews
// @Produce json
// @Security BearerAuth
// @Param project query string false "Project ID" Format(uuid)
// @Param page query int false "Page number"
// @Success 200 {object} repository.PageResult[models.Annotation]
// @Router /reviews/queue [get]
func (h *ReviewHandler) ReviewQueue(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return WriteError(c, err)
	}
	projectID, err := queryID(c, "project")
	if err != nil {
		return WriteError(c, err)
	}
	res, err := h.reviews.Queue(c.UserContext(), user, projectID, page(c))
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(res)
}
