package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
)

type exportSetup struct {
	f       *fixture
	owner   *models.User
	member  *models.User
	project *models.Project
}

func newExportSetup(t *testing.T) *exportSetup {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	member := f.user(t, "member")
	p := f.activeProject(t, owner, models.ProjectTypeObjectDetection, member)
	_, err := f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "car"})
	require.NoError(t, err)
	_, err = f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "person"})
	require.NoError(t, err)

	file := f.upload(t, owner, p.ID, "street.png", "png-bytes")
	f.upload(t, owner, p.ID, "empty-road.png", "png-bytes")
	a, err := f.annotations.Create(ctx, member, file.ID)
	require.NoError(t, err)
	_, err = f.annotations.Update(ctx, member, a.ID, AnnotationUpdate{
		Data:  json.RawMessage(`{"objects":[{"label":"car","x":10,"y":20,"width":30,"height":40},{"label":"person","x":1,"y":1,"width":2,"height":5}]}`),
		Notes: "two objects",
	})
	require.NoError(t, err)
	return &exportSetup{f: f, owner: owner, member: member, project: p}
}

func TestExportJSON(t *testing.T) {
	ctx := context.Background()
	s := newExportSetup(t)

	out, err := s.f.exports.Export(ctx, s.owner, s.project.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", out.ContentType)
	assert.True(t, strings.HasSuffix(out.Filename, "_annotations.json"))
	assert.Equal(t, 1, out.Count)

	var doc struct {
		ProjectID   string `json:"project_id"`
		Annotations []struct {
			Filename       string          `json:"filename"`
			AnnotatorID    string          `json:"annotator_id"`
			AnnotatorNotes string          `json:"annotator_notes"`
			AnnotationData json.RawMessage `json:"annotation_data"`
		} `json:"annotations"`
	}
	require.NoError(t, json.Unmarshal(out.Body, &doc))
	assert.Equal(t, s.project.ID.String(), doc.ProjectID)
	require.Len(t, doc.Annotations, 1)
	assert.Equal(t, "street.png", doc.Annotations[0].Filename)
	assert.Equal(t, s.member.ID.String(), doc.Annotations[0].AnnotatorID)
	assert.Equal(t, "two objects", doc.Annotations[0].AnnotatorNotes)
	assert.Contains(t, string(doc.Annotations[0].AnnotationData), `"car"`)
}

func TestExportCSVWithoutMetadata(t *testing.T) {
	ctx := context.Background()
	s := newExportSetup(t)
	_, err := s.f.projects.UpdateSettings(ctx, s.owner, s.project.ID, SettingsInput{
		MinAnnotationsPerFile: 1, MaxAnnotationsPerFile: 3, QualityThreshold: 0.8, AutoApproveThreshold: 0.95,
		ExportFormat: "csv", IncludeMetadata: false,
	})
	require.NoError(t, err)

	out, err := s.f.exports.Export(ctx, s.owner, s.project.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", out.ContentType)

	rows, err := csv.NewReader(strings.NewReader(string(out.Body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"annotation_id", "file_id", "filename", "file_type", "status", "annotation_data"}, rows[0])
	assert.Equal(t, "street.png", rows[1][2])
	assert.Equal(t, "draft", rows[1][4])
	assert.NotContains(t, string(out.Body), s.member.ID.String())
}

func TestExportXML(t *testing.T) {
	ctx := context.Background()
	s := newExportSetup(t)

	out, err := s.f.exports.Export(ctx, s.owner, s.project.ID, "XML")
	require.NoError(t, err)
	assert.Equal(t, "application/xml", out.ContentType)

	var doc struct {
		XMLName     xml.Name `xml:"export"`
		Annotations []struct {
			Filename string `xml:"filename"`
			Data     string `xml:"data"`
		} `xml:"annotations>annotation"`
	}
	require.NoError(t, xml.Unmarshal(out.Body, &doc))
	require.Len(t, doc.Annotations, 1)
	assert.Equal(t, "street.png", doc.Annotations[0].Filename)
	assert.Contains(t, doc.Annotations[0].Data, "person")
}

func TestExportCOCO(t *testing.T) {
	ctx := context.Background()
	s := newExportSetup(t)

	out, err := s.f.exports.Export(ctx, s.owner, s.project.ID, "coco")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.Filename, ".json"))

	var doc cocoDocument
	require.NoError(t, json.Unmarshal(out.Body, &doc))
	assert.Len(t, doc.Images, 2)
	require.Len(t, doc.Categories, 2)
	assert.Equal(t, "car", doc.Categories[0].Name)
	require.Len(t, doc.Annotations, 2)
	assert.Equal(t, []float64{10, 20, 30, 40}, doc.Annotations[0].BBox)
	assert.InDelta(t, 1200.0, doc.Annotations[0].Area, 1e-9)
	assert.Equal(t, 2, doc.Annotations[1].CategoryID)
}

func TestExportRejections(t *testing.T) {
	ctx := context.Background()
	s := newExportSetup(t)

	_, err := s.f.exports.Export(ctx, s.owner, s.project.ID, "yolo")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = s.f.exports.Export(ctx, s.member, s.project.ID, "json")
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}

func TestPolygonHelpers(t *testing.T) {
	square := [][]float64{{0, 0}, {4, 0}, {4, 4}, {0, 4}}
	flat, bbox := flattenPolygon(square)
	assert.Equal(t, []float64{0, 0, 4, 0, 4, 4, 0, 4}, flat)
	assert.Equal(t, []float64{0, 0, 4, 4}, bbox)
	assert.InDelta(t, 16.0, polygonArea(square), 1e-9)
	assert.Equal(t, "my_cats_2", slugify("My Cats #2"))
	assert.Equal(t, "project", slugify("%%%"))
}
