package handlers

import (
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/auth"
	"annotation-service/internal/models"
)

const InvalidUuidError = "invalid UUID"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

var statusByKind = map[string]int{
	"not_found":             fiber.StatusNotFound,
	"permission_denied":     fiber.StatusForbidden,
	"unauthenticated":       fiber.StatusUnauthorized,
	"duplicate_annotation":  fiber.StatusConflict,
	"duplicate_label":       fiber.StatusConflict,
	"invalid_transition":    fiber.StatusConflict,
	"invalid_score":         fiber.StatusUnprocessableEntity,
	"invalid_payload_shape": fiber.StatusUnprocessableEntity,
	"label_cycle":           fiber.StatusUnprocessableEntity,
	"invalid_input":         fiber.StatusBadRequest,
	"invalid_file":          fiber.StatusBadRequest,
}

// WriteError renders err with the status of its kind. Internal errors are
// logged and their details withheld from the client.
func WriteError(c *fiber.Ctx, err error) error {
	kind := apperrors.Kind(err)
	status, ok := statusByKind[kind]
	if !ok {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorResponse{Error: true, Message: fe.Message, Kind: "http"})
		}
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: true, Message: "internal server error", Kind: kind,
		})
	}
	slog.Info("request rejected", "method", c.Method(), "path", c.Path(), "kind", kind, "error", err)
	return c.Status(status).JSON(ErrorResponse{Error: true, Message: err.Error(), Kind: kind})
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// bindJSON parses the request body into dst and checks its validate tags.
func bindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.Invalid("invalid request format: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
			}
			return apperrors.Invalid("%s", strings.Join(msgs, "; "))
		}
		return apperrors.Invalid("%v", err)
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperrors.Invalid("%s: %q", InvalidUuidError, c.Params(name))
	}
	return id, nil
}

// queryID parses an optional uuid query parameter.
func queryID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.Invalid("%s: %q", InvalidUuidError, raw)
	}
	return id, nil
}

func page(c *fiber.Ctx) int {
	return c.QueryInt("page", 1)
}

// currentUser returns the user resolved by the auth middleware.
func currentUser(c *fiber.Ctx) (*models.User, error) {
	return auth.CurrentUser(c)
}
