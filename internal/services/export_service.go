package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"annotation-service/internal/access"
	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
	"annotation-service/internal/payload"
	"annotation-service/internal/repository"
)

// Export is a rendered project export ready to be sent to the client.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
	Count       int
}

// ExportService renders a project's annotations in an interchange format.
type ExportService struct {
	repos *repository.Repositories
	now   func() time.Time
}

func NewExportService(repos *repository.Repositories) *ExportService {
	return &ExportService{repos: repos, now: time.Now}
}

// ExportRecord is one annotation in an export. Metadata fields are left
// empty when the project's settings exclude metadata.
type ExportRecord struct {
	XMLName        xml.Name        `json:"-" xml:"annotation"`
	AnnotationID   uuid.UUID       `json:"annotation_id" xml:"id,attr"`
	FileID         uuid.UUID       `json:"file_id" xml:"file_id"`
	Filename       string          `json:"filename" xml:"filename"`
	FileType       models.FileType `json:"file_type" xml:"file_type"`
	Status         string          `json:"status" xml:"status"`
	AnnotationData json.RawMessage `json:"annotation_data" xml:"-"`
	DataText       string          `json:"-" xml:"data"`

	AnnotatorID    *uuid.UUID `json:"annotator_id,omitempty" xml:"annotator_id,omitempty"`
	QualityScore   *float64   `json:"quality_score,omitempty" xml:"quality_score,omitempty"`
	AnnotatorNotes string     `json:"annotator_notes,omitempty" xml:"annotator_notes,omitempty"`
	ReviewerNotes  string     `json:"reviewer_notes,omitempty" xml:"reviewer_notes,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty" xml:"created_at,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty" xml:"submitted_at,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty" xml:"reviewed_at,omitempty"`
}

type exportDocument struct {
	XMLName     xml.Name       `json:"-" xml:"export"`
	ProjectID   uuid.UUID      `json:"project_id" xml:"project_id,attr"`
	ProjectName string         `json:"project_name" xml:"project_name"`
	ProjectType string         `json:"project_type" xml:"project_type"`
	ExportedAt  time.Time      `json:"exported_at" xml:"exported_at"`
	Metadata    bool           `json:"include_metadata" xml:"include_metadata,attr"`
	Annotations []ExportRecord `json:"annotations" xml:"annotations>annotation"`
}

var exportRenderers = map[string]func(*exportDocument, []models.ProjectFile, []models.AnnotationLabel) ([]byte, string, error){
	"json": renderJSON,
	"csv":  renderCSV,
	"xml":  renderXML,
	"coco": renderCOCO,
}

// Export renders the project's annotations. An empty format falls back to the
// project's configured export format.
func (s *ExportService) Export(ctx context.Context, user *models.User, projectID uuid.UUID, format string) (*Export, error) {
	p, err := loadProjectFor(ctx, s.repos, user, projectID, access.ActionExport)
	if err != nil {
		return nil, err
	}
	settings, err := s.repos.Projects.GetSettings(ctx, p.ID)
	if err != nil {
		return nil, apperrors.FromStore(err, "project settings", nil)
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = settings.ExportFormat
	}
	render, ok := exportRenderers[format]
	if !ok {
		return nil, apperrors.Invalid("export format %q is not supported", format)
	}

	annotations, err := s.repos.Annotations.ListByProject(ctx, p.ID)
	if err != nil {
		return nil, apperrors.FromStore(err, "list annotations", nil)
	}
	files, err := s.repos.Files.ListByProject(ctx, p.ID)
	if err != nil {
		return nil, apperrors.FromStore(err, "list files", nil)
	}
	labels, err := s.repos.Labels.ListByProject(ctx, p.ID, true)
	if err != nil {
		return nil, apperrors.FromStore(err, "list labels", nil)
	}

	doc := &exportDocument{
		ProjectID:   p.ID,
		ProjectName: p.Name,
		ProjectType: string(p.ProjectType),
		ExportedAt:  s.now().UTC(),
		Metadata:    settings.IncludeMetadata,
		Annotations: make([]ExportRecord, 0, len(annotations)),
	}
	for i := range annotations {
		doc.Annotations = append(doc.Annotations, recordOf(&annotations[i], settings.IncludeMetadata))
	}

	body, contentType, err := render(doc, files, labels)
	if err != nil {
		return nil, errors.Wrapf(err, "render %s export", format)
	}
	return &Export{
		Filename:    fmt.Sprintf("%s_annotations.%s", slugify(p.Name), extensionFor(format)),
		ContentType: contentType,
		Body:        body,
		Count:       len(doc.Annotations),
	}, nil
}

func recordOf(a *models.Annotation, withMetadata bool) ExportRecord {
	data := json.RawMessage(a.AnnotationData)
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	r := ExportRecord{
		AnnotationID:   a.ID,
		FileID:         a.FileID,
		Status:         string(a.Status),
		AnnotationData: data,
		DataText:       string(data),
	}
	if a.File != nil {
		r.Filename = a.File.Filename
		r.FileType = a.File.FileType
	}
	if withMetadata {
		annotator := a.AnnotatorID
		created := a.CreatedAt
		r.AnnotatorID = &annotator
		r.QualityScore = a.QualityScore
		r.AnnotatorNotes = a.AnnotatorNotes
		r.ReviewerNotes = a.ReviewerNotes
		r.CreatedAt = &created
		r.SubmittedAt = a.SubmittedAt
		r.ReviewedAt = a.ReviewedAt
	}
	return r
}

func renderJSON(doc *exportDocument, _ []models.ProjectFile, _ []models.AnnotationLabel) ([]byte, string, error) {
	body, err := json.MarshalIndent(doc, "", "  ")
	return body, "application/json", err
}

func renderXML(doc *exportDocument, _ []models.ProjectFile, _ []models.AnnotationLabel) ([]byte, string, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return append([]byte(xml.Header), body...), "application/xml", nil
}

func renderCSV(doc *exportDocument, _ []models.ProjectFile, _ []models.AnnotationLabel) ([]byte, string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"annotation_id", "file_id", "filename", "file_type", "status", "annotation_data"}
	if doc.Metadata {
		header = append(header, "annotator_id", "quality_score", "annotator_notes", "reviewer_notes",
			"created_at", "submitted_at", "reviewed_at")
	}
	if err := w.Write(header); err != nil {
		return nil, "", err
	}
	for _, r := range doc.Annotations {
		row := []string{r.AnnotationID.String(), r.FileID.String(), r.Filename, string(r.FileType), r.Status, r.DataText}
		if doc.Metadata {
			row = append(row, r.AnnotatorID.String(), formatScore(r.QualityScore), r.AnnotatorNotes, r.ReviewerNotes,
				formatTime(r.CreatedAt), formatTime(r.SubmittedAt), formatTime(r.ReviewedAt))
		}
		if err := w.Write(row); err != nil {
			return nil, "", err
		}
	}
	w.Flush()
	return buf.Bytes(), "text/csv", w.Error()
}

type cocoImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	FileID   string `json:"file_uuid"`
}

type cocoCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type cocoAnnotation struct {
	ID           int         `json:"id"`
	ImageID      int         `json:"image_id"`
	CategoryID   int         `json:"category_id"`
	BBox         []float64   `json:"bbox,omitempty"`
	Area         float64     `json:"area,omitempty"`
	Segmentation [][]float64 `json:"segmentation,omitempty"`
	IsCrowd      int         `json:"iscrowd"`
	Score        *float64    `json:"score,omitempty"`
}

type cocoDocument struct {
	Info struct {
		Description string    `json:"description"`
		DateCreated time.Time `json:"date_created"`
	} `json:"info"`
	Images      []cocoImage      `json:"images"`
	Categories  []cocoCategory   `json:"categories"`
	Annotations []cocoAnnotation `json:"annotations"`
}

// renderCOCO writes a COCO-style dataset. Files become images and labels
// become categories; label names used by a payload but missing from the
// vocabulary are appended as extra categories. Payloads that do not decode
// for the project type are left out.
func renderCOCO(doc *exportDocument, files []models.ProjectFile, labels []models.AnnotationLabel) ([]byte, string, error) {
	out := cocoDocument{
		Images:      make([]cocoImage, 0, len(files)),
		Categories:  make([]cocoCategory, 0, len(labels)),
		Annotations: []cocoAnnotation{},
	}
	out.Info.Description = doc.ProjectName
	out.Info.DateCreated = doc.ExportedAt

	images := make(map[uuid.UUID]int, len(files))
	for i, f := range files {
		images[f.ID] = i + 1
		out.Images = append(out.Images, cocoImage{ID: i + 1, FileName: f.Filename, FileID: f.ID.String()})
	}
	categories := make(map[string]int, len(labels))
	category := func(name string) int {
		if id, ok := categories[name]; ok {
			return id
		}
		id := len(out.Categories) + 1
		categories[name] = id
		out.Categories = append(out.Categories, cocoCategory{ID: id, Name: name})
		return id
	}
	for _, l := range labels {
		category(l.Name)
	}

	pt := models.ProjectType(doc.ProjectType)
	add := func(a cocoAnnotation) {
		a.ID = len(out.Annotations) + 1
		out.Annotations = append(out.Annotations, a)
	}
	for _, r := range doc.Annotations {
		imageID, ok := images[r.FileID]
		if !ok {
			continue
		}
		decoded, err := payload.Decode(pt, r.AnnotationData)
		if err != nil {
			continue
		}
		switch v := decoded.(type) {
		case *payload.Detection:
			for _, box := range v.Objects {
				add(cocoAnnotation{
					ImageID:    imageID,
					CategoryID: category(box.Label),
					BBox:       []float64{box.X, box.Y, box.Width, box.Height},
					Area:       box.Width * box.Height,
					Score:      box.Confidence,
				})
			}
		case *payload.Segmentation:
			for _, seg := range v.Segments {
				flat, bbox := flattenPolygon(seg.Points)
				add(cocoAnnotation{
					ImageID:      imageID,
					CategoryID:   category(seg.Label),
					BBox:         bbox,
					Area:         polygonArea(seg.Points),
					Segmentation: [][]float64{flat},
				})
			}
		default:
			for _, name := range decoded.Labels() {
				add(cocoAnnotation{ImageID: imageID, CategoryID: category(name)})
			}
		}
	}
	body, err := json.MarshalIndent(out, "", "  ")
	return body, "application/json", err
}

func flattenPolygon(points [][]float64) ([]float64, []float64) {
	flat := make([]float64, 0, len(points)*2)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pt := range points {
		x, y := pt[0], pt[1]
		flat = append(flat, x, y)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return flat, []float64{minX, minY, maxX - minX, maxY - minY}
}

// polygonArea uses the shoelace formula.
func polygonArea(points [][]float64) float64 {
	var sum float64
	for i := range points {
		j := (i + 1) % len(points)
		sum += points[i][0]*points[j][1] - points[j][0]*points[i][1]
	}
	return math.Abs(sum) / 2
}

func extensionFor(format string) string {
	if format == "coco" {
		return "json"
	}
	return format
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" {
		return "project"
	}
	return s
}

func formatScore(s *float64) string {
	if s == nil {
		return ""
	}
	return strconv.FormatFloat(*s, 'f', 4, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
