package payload

import (
	"fmt"
	"unicode/utf8"
)

// Classification assigns a single label to a file.
type Classification struct {
	Label      string   `json:"label" validate:"required"`
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

func (c *Classification) validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.Confidence == nil {
		one := 1.0
		c.Confidence = &one
	}
	return nil
}

func (c *Classification) Labels() []string { return []string{c.Label} }

func (c *Classification) Summary() string {
	if c.Label == "" {
		return "Classified as: Unknown"
	}
	return "Classified as: " + c.Label
}

// BoundingBox is one detected object, in pixel coordinates.
type BoundingBox struct {
	Label      string   `json:"label" validate:"required"`
	X          float64  `json:"x" validate:"gte=0"`
	Y          float64  `json:"y" validate:"gte=0"`
	Width      float64  `json:"width" validate:"gt=0"`
	Height     float64  `json:"height" validate:"gt=0"`
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Detection lists the objects found in an image. An empty list is a valid
// answer ("nothing to detect"); a missing list is not.
type Detection struct {
	Objects []BoundingBox `json:"objects" validate:"required,dive"`
}

func (d *Detection) validate() error { return validateStruct(d) }

func (d *Detection) Labels() []string {
	out := make([]string, 0, len(d.Objects))
	for _, o := range d.Objects {
		out = append(out, o.Label)
	}
	return out
}

func (d *Detection) Summary() string { return fmt.Sprintf("Detected %d objects", len(d.Objects)) }

// Segment is a labelled polygon.
type Segment struct {
	Label  string      `json:"label" validate:"required"`
	Points [][]float64 `json:"points" validate:"min=3,dive,len=2"`
}

type Segmentation struct {
	Segments []Segment `json:"segments" validate:"required,dive"`
}

func (s *Segmentation) validate() error { return validateStruct(s) }

func (s *Segmentation) Labels() []string {
	out := make([]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		out = append(out, seg.Label)
	}
	return out
}

func (s *Segmentation) Summary() string { return fmt.Sprintf("Segmented %d regions", len(s.Segments)) }

// Entity is a labelled span of characters [Start, End).
type Entity struct {
	Label string `json:"label" validate:"required"`
	Start int    `json:"start" validate:"gte=0"`
	End   int    `json:"end" validate:"gtfield=Start"`
}

type NamedEntities struct {
	Text     string   `json:"text,omitempty"`
	Entities []Entity `json:"entities" validate:"required,dive"`
}

func (n *NamedEntities) validate() error {
	if err := validateStruct(n); err != nil {
		return err
	}
	if n.Text == "" {
		return nil
	}
	length := utf8.RuneCountInString(n.Text)
	for i, e := range n.Entities {
		if e.End > length {
			return fmt.Errorf("entity %d ends at %d beyond text length %d", i, e.End, length)
		}
	}
	return nil
}

func (n *NamedEntities) Labels() []string {
	out := make([]string, 0, len(n.Entities))
	for _, e := range n.Entities {
		out = append(out, e.Label)
	}
	return out
}

func (n *NamedEntities) Summary() string { return fmt.Sprintf("Tagged %d entities", len(n.Entities)) }

type Sentiment struct {
	Sentiment  string   `json:"sentiment" validate:"required,oneof=positive negative neutral mixed"`
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

func (s *Sentiment) validate() error { return validateStruct(s) }

func (s *Sentiment) Labels() []string { return []string{s.Sentiment} }

func (s *Sentiment) Summary() string {
	if s.Sentiment == "" {
		return "Sentiment: Unknown"
	}
	return "Sentiment: " + s.Sentiment
}

// Custom accepts any JSON object; its shape is governed by the project's
// annotation template, if any.
type Custom map[string]any

func (c *Custom) validate() error {
	if *c == nil {
		return fmt.Errorf("custom payload must be a JSON object")
	}
	return nil
}

func (c *Custom) Labels() []string { return nil }

func (c *Custom) Summary() string { return "Annotation completed" }
