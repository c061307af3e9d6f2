// Package payload decodes and validates annotation content.
//
// Each project type maps to exactly one payload variant. A variant knows its
// own JSON shape, its validation rules and how to summarise itself; adding a
// project type means adding a variant and an entry in variants.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
)

// Payload is a decoded, validated annotation body.
type Payload interface {
	// Labels returns the label names the payload refers to.
	Labels() []string
	Summary() string
}

type variant interface {
	Payload
	validate() error
}

var variants = map[models.ProjectType]func() variant{
	models.ProjectTypeImageClassification:    func() variant { return &Classification{} },
	models.ProjectTypeTextClassification:     func() variant { return &Classification{} },
	models.ProjectTypeObjectDetection:        func() variant { return &Detection{} },
	models.ProjectTypeSemanticSegmentation:   func() variant { return &Segmentation{} },
	models.ProjectTypeNamedEntityRecognition: func() variant { return &NamedEntities{} },
	models.ProjectTypeSentimentAnalysis:      func() variant { return &Sentiment{} },
	models.ProjectTypeCustom:                 func() variant { return &Custom{} },
}

var structValidate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses raw as the payload variant of project type pt and validates it.
// Unknown fields are rejected so that a payload shaped for another project
// type does not pass silently. Errors wrap apperrors.ErrInvalidPayloadShape.
func Decode(pt models.ProjectType, raw []byte) (Payload, error) {
	newVariant, ok := variants[pt]
	if !ok {
		return nil, fmt.Errorf("%w: no payload variant for project type %q", apperrors.ErrInvalidPayloadShape, pt)
	}
	v := newVariant()

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidPayloadShape, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after payload", apperrors.ErrInvalidPayloadShape)
	}
	if err := v.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidPayloadShape, err)
	}
	return v, nil
}

// Summarize renders a one-line description of stored annotation data. It does
// not validate, so drafts with partial content still summarise.
func Summarize(pt models.ProjectType, raw []byte) string {
	newVariant, ok := variants[pt]
	if !ok {
		return "Annotation completed"
	}
	v := newVariant()
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, v)
	}
	return v.Summary()
}

// Supported reports whether a payload variant exists for pt.
func Supported(pt models.ProjectType) bool {
	_, ok := variants[pt]
	return ok
}

func validateStruct(v any) error {
	if err := structValidate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("field %s failed %q", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}
