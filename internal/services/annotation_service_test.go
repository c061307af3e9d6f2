package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
)

func TestAnnotationCreateUpdatesCounters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	annotator := f.user(t, "annotator")
	p := f.activeProject(t, owner, models.ProjectTypeImageClassification, annotator)
	file := f.upload(t, owner, p.ID, "cat.jpg", "jpeg-bytes")
	f.upload(t, owner, p.ID, "dog.jpg", "jpeg-bytes")

	a, err := f.annotations.Create(ctx, annotator, file.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnnotationDraft, a.Status)
	assert.Equal(t, annotator.ID, a.AnnotatorID)

	got, err := f.repos.Files.Get(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AnnotationCount)
	assert.True(t, got.IsAnnotated)

	project := f.project(t, p.ID)
	assert.Equal(t, 2, project.TotalFiles)
	assert.Equal(t, 1, project.AnnotatedFiles)
	assert.InDelta(t, 50.0, project.ProgressPercentage(), 1e-9)

	_, err = f.annotations.Create(ctx, annotator, file.ID)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateAnnotation)

	// a second annotator may annotate the same file
	_, err = f.annotations.Create(ctx, owner, file.ID)
	require.NoError(t, err)
	got, err = f.repos.Files.Get(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AnnotationCount)
}

func TestAnnotationCreateRequiresMembershipAndActiveProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	stranger := f.user(t, "stranger")
	p := f.activeProject(t, owner, models.ProjectTypeImageClassification)
	file := f.upload(t, owner, p.ID, "cat.jpg", "jpeg-bytes")

	_, err := f.annotations.Create(ctx, stranger, file.ID)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	_, err = f.annotations.Create(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	paused := models.ProjectPaused
	_, err = f.projects.Update(ctx, owner, p.ID, ProjectUpdate{Status: &paused})
	require.NoError(t, err)
	_, err = f.annotations.Create(ctx, owner, file.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAnnotationUpdateValidatesPayload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	annotator := f.user(t, "annotator")
	p := f.activeProject(t, owner, models.ProjectTypeObjectDetection, annotator)
	file := f.upload(t, owner, p.ID, "street.png", "png-bytes")
	a, err := f.annotations.Create(ctx, annotator, file.ID)
	require.NoError(t, err)

	_, err = f.annotations.Update(ctx, annotator, a.ID, AnnotationUpdate{Data: json.RawMessage(`{"label":"cat"}`)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidPayloadShape)

	_, err = f.annotations.Update(ctx, annotator, a.ID, AnnotationUpdate{
		Data: json.RawMessage(`{"objects":[{"label":"car","x":1,"y":2,"width":0,"height":3}]}`),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidPayloadShape)

	view, err := f.annotations.Update(ctx, annotator, a.ID, AnnotationUpdate{
		Data:  json.RawMessage(`{"objects":[{"label":"car","x":1,"y":2,"width":3,"height":4}]}`),
		Notes: "one car",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnnotationDraft, view.Status)
	assert.Equal(t, "one car", view.AnnotatorNotes)
	assert.Equal(t, "Detected 1 objects", view.Summary)

	_, err = f.annotations.Update(ctx, owner, a.ID, AnnotationUpdate{Submit: true})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}

func TestAnnotationUpdateChecksLabelVocabulary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	p := f.activeProject(t, owner, models.ProjectTypeImageClassification)
	file := f.upload(t, owner, p.ID, "cat.jpg", "jpeg-bytes")
	_, err := f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "cat"})
	require.NoError(t, err)
	a, err := f.annotations.Create(ctx, owner, file.ID)
	require.NoError(t, err)

	_, err = f.annotations.Update(ctx, owner, a.ID, AnnotationUpdate{Data: json.RawMessage(`{"label":"dog"}`)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidPayloadShape)

	_, err = f.annotations.Update(ctx, owner, a.ID, AnnotationUpdate{Data: json.RawMessage(`{"label":"cat"}`)})
	assert.NoError(t, err)
}

func TestAnnotationUpdateAppliesDefaultTemplate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	p := f.activeProject(t, owner, models.ProjectTypeCustom)
	file := f.upload(t, owner, p.ID, "notes.txt", "some text")
	_, err := f.templates.Create(ctx, owner, p.ID, TemplateInput{
		Name:      "needs answer",
		Schema:    json.RawMessage(`{"type":"object","required":["answer"],"properties":{"answer":{"type":"string"}}}`),
		IsDefault: true,
	})
	require.NoError(t, err)
	a, err := f.annotations.Create(ctx, owner, file.ID)
	require.NoError(t, err)

	_, err = f.annotations.Update(ctx, owner, a.ID, AnnotationUpdate{Data: json.RawMessage(`{"question":"?"}`)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidPayloadShape)

	_, err = f.annotations.Update(ctx, owner, a.ID, AnnotationUpdate{Data: json.RawMessage(`{"answer":"yes"}`)})
	assert.NoError(t, err)
}

func TestAnnotationSubmitNotifiesOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	annotator := f.user(t, "annotator")
	p := f.activeProject(t, owner, models.ProjectTypeSentimentAnalysis, annotator)
	file := f.upload(t, owner, p.ID, "review.txt", "great product")
	session, err := f.sessions.Start(ctx, annotator, p.ID, "test-agent", "127.0.0.1")
	require.NoError(t, err)
	a, err := f.annotations.Create(ctx, annotator, file.ID)
	require.NoError(t, err)

	view, err := f.annotations.Update(ctx, annotator, a.ID, AnnotationUpdate{
		Data:   json.RawMessage(`{"sentiment":"positive","confidence":0.9}`),
		Submit: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnnotationSubmitted, view.Status)
	require.NotNil(t, view.SubmittedAt)

	unread, err := f.notifications.UnreadCount(ctx, owner)
	require.NoError(t, err)
	// project_created and annotation_completed
	assert.Equal(t, int64(2), unread)

	got, err := f.repos.Sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FilesAnnotated)

	// the annotator may pull submitted work back to draft
	_, err = f.annotations.Update(ctx, annotator, a.ID, AnnotationUpdate{})
	require.NoError(t, err)
}

func TestAnnotationLifecycleBlocksReviewedEdits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	annotator := f.user(t, "annotator")
	p := f.activeProject(t, owner, models.ProjectTypeImageClassification, annotator)
	file := f.upload(t, owner, p.ID, "cat.jpg", "jpeg-bytes")
	a, err := f.annotations.Create(ctx, annotator, file.ID)
	require.NoError(t, err)
	_, err = f.annotations.Update(ctx, annotator, a.ID, AnnotationUpdate{Data: json.RawMessage(`{"label":"cat"}`), Submit: true})
	require.NoError(t, err)
	_, err = f.reviews.Submit(ctx, owner, a.ID, ReviewInput{AccuracyScore: 1, CompletenessScore: 1, ConsistencyScore: 1, IsApproved: true})
	require.NoError(t, err)

	_, err = f.annotations.Update(ctx, annotator, a.ID, AnnotationUpdate{Submit: true})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestAnnotationDeleteRestoresCounters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	annotator := f.user(t, "annotator")
	p := f.activeProject(t, owner, models.ProjectTypeImageClassification, annotator)
	file := f.upload(t, owner, p.ID, "cat.jpg", "jpeg-bytes")
	a, err := f.annotations.Create(ctx, annotator, file.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.annotations.Delete(ctx, owner, a.ID), apperrors.ErrPermissionDenied)
	require.NoError(t, f.annotations.Delete(ctx, annotator, a.ID))

	got, err := f.repos.Files.Get(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AnnotationCount)
	assert.False(t, got.IsAnnotated)
	assert.Equal(t, 0, f.project(t, p.ID).AnnotatedFiles)

	_, err = f.annotations.Get(ctx, annotator, a.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAnnotationListIsScopedToAnnotator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	annotator := f.user(t, "annotator")
	p := f.activeProject(t, owner, models.ProjectTypeImageClassification, annotator)
	first := f.upload(t, owner, p.ID, "a.jpg", "x")
	second := f.upload(t, owner, p.ID, "b.jpg", "y")
	_, err := f.annotations.Create(ctx, annotator, first.ID)
	require.NoError(t, err)
	_, err = f.annotations.Create(ctx, annotator, second.ID)
	require.NoError(t, err)
	_, err = f.annotations.Create(ctx, owner, first.ID)
	require.NoError(t, err)

	res, err := f.annotations.List(ctx, annotator, repository.AnnotationFilter{}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	for _, v := range res.Items {
		assert.Equal(t, annotator.ID, v.AnnotatorID)
	}

	res, err = f.annotations.List(ctx, annotator, repository.AnnotationFilter{Search: "b.jp"}, 1)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, second.ID, res.Items[0].FileID)
}
