package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
)

func TestDecodeValidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		pt      models.ProjectType
		raw     string
		labels  []string
		summary string
	}{
		{"image classification", models.ProjectTypeImageClassification, `{"label":"cat","confidence":0.7}`, []string{"cat"}, "Classified as: cat"},
		{"text classification without confidence", models.ProjectTypeTextClassification, `{"label":"spam"}`, []string{"spam"}, "Classified as: spam"},
		{"detection", models.ProjectTypeObjectDetection, `{"objects":[{"label":"car","x":1,"y":2,"width":10,"height":5}]}`, []string{"car"}, "Detected 1 objects"},
		{"empty detection", models.ProjectTypeObjectDetection, `{"objects":[]}`, []string{}, "Detected 0 objects"},
		{"segmentation", models.ProjectTypeSemanticSegmentation, `{"segments":[{"label":"road","points":[[0,0],[1,0],[1,1]]}]}`, []string{"road"}, "Segmented 1 regions"},
		{"ner", models.ProjectTypeNamedEntityRecognition, `{"text":"Alice met Bob","entities":[{"label":"PER","start":0,"end":5},{"label":"PER","start":10,"end":13}]}`, []string{"PER", "PER"}, "Tagged 2 entities"},
		{"sentiment", models.ProjectTypeSentimentAnalysis, `{"sentiment":"positive"}`, []string{"positive"}, "Sentiment: positive"},
		{"custom", models.ProjectTypeCustom, `{"anything":{"nested":[1,2,3]}}`, nil, "Annotation completed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode(tt.pt, []byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.labels, p.Labels())
			assert.Equal(t, tt.summary, p.Summary())
		})
	}
}

func TestDecodeRejectsWrongShape(t *testing.T) {
	tests := []struct {
		name string
		pt   models.ProjectType
		raw  string
	}{
		{"classification missing label", models.ProjectTypeImageClassification, `{"confidence":0.5}`},
		{"classification confidence above one", models.ProjectTypeImageClassification, `{"label":"cat","confidence":1.5}`},
		{"classification with detection body", models.ProjectTypeImageClassification, `{"objects":[]}`},
		{"detection missing objects", models.ProjectTypeObjectDetection, `{}`},
		{"detection zero width", models.ProjectTypeObjectDetection, `{"objects":[{"label":"car","x":0,"y":0,"width":0,"height":1}]}`},
		{"segmentation with two points", models.ProjectTypeSemanticSegmentation, `{"segments":[{"label":"road","points":[[0,0],[1,1]]}]}`},
		{"ner end before start", models.ProjectTypeNamedEntityRecognition, `{"entities":[{"label":"PER","start":4,"end":2}]}`},
		{"ner beyond text", models.ProjectTypeNamedEntityRecognition, `{"text":"abc","entities":[{"label":"PER","start":0,"end":9}]}`},
		{"sentiment outside vocabulary", models.ProjectTypeSentimentAnalysis, `{"sentiment":"furious"}`},
		{"custom must be object", models.ProjectTypeCustom, `[1,2]`},
		{"custom null", models.ProjectTypeCustom, `null`},
		{"trailing data", models.ProjectTypeImageClassification, `{"label":"cat"} {"label":"dog"}`},
		{"unknown project type", models.ProjectType("audio_tagging"), `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.pt, []byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidPayloadShape)
		})
	}
}

func TestClassificationDefaultsConfidence(t *testing.T) {
	p, err := Decode(models.ProjectTypeImageClassification, []byte(`{"label":"cat"}`))
	require.NoError(t, err)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"cat","confidence":1}`, string(out))
}

func TestSummarizeDraft(t *testing.T) {
	assert.Equal(t, "Classified as: Unknown", Summarize(models.ProjectTypeImageClassification, []byte(`{}`)))
	assert.Equal(t, "Detected 0 objects", Summarize(models.ProjectTypeObjectDetection, nil))
	assert.Equal(t, "Annotation completed", Summarize(models.ProjectType("nope"), []byte(`{}`)))
}

func TestEveryProjectTypeHasVariant(t *testing.T) {
	for _, pt := range models.ProjectTypes() {
		assert.True(t, Supported(pt), pt)
	}
}
