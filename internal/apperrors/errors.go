// Package apperrors defines the error kinds returned by the service layer.
//
// Services wrap these sentinels with context; handlers map them to HTTP
// statuses with errors.Is.
package apperrors

import (
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrDuplicateAnnotation = errors.New("annotation already exists for this file and annotator")
	ErrInvalidScore        = errors.New("score must be between 0 and 1")
	ErrInvalidPayloadShape = errors.New("annotation payload does not match the project type")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidFile         = errors.New("invalid file")
	ErrDuplicateLabel      = errors.New("label name already exists in project")
	ErrLabelCycle          = errors.New("label parent would create a cycle")
)

// NewInvalidTransition reports a refused status change.
func NewInvalidTransition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Invalid wraps ErrInvalidInput with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// FromStore translates gorm errors into error kinds. duplicate is the kind
// reported for a unique constraint violation; when nil the raw error is kept.
func FromStore(err error, what string, duplicate error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case duplicate != nil && errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, duplicate)
	default:
		return errors.Wrap(err, what)
	}
}

// Kind returns a short machine readable name for err.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "not_found"},
	{ErrPermissionDenied, "permission_denied"},
	{ErrUnauthenticated, "unauthenticated"},
	{ErrDuplicateAnnotation, "duplicate_annotation"},
	{ErrInvalidScore, "invalid_score"},
	{ErrInvalidPayloadShape, "invalid_payload_shape"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrInvalidInput, "invalid_input"},
	{ErrInvalidFile, "invalid_file"},
	{ErrDuplicateLabel, "duplicate_label"},
	{ErrLabelCycle, "label_cycle"},
}
