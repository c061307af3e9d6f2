package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
)

func TestLabelHierarchy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	member := f.user(t, "member")
	p := f.activeProject(t, owner, models.ProjectTypeObjectDetection, member)

	animal, err := f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "animal"})
	require.NoError(t, err)
	assert.Equal(t, "#007bff", animal.Color)
	assert.True(t, animal.IsActive)
	cat, err := f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "cat", Color: "#ff0000", ParentID: &animal.ID})
	require.NoError(t, err)
	kitten, err := f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "kitten", ParentID: &cat.ID})
	require.NoError(t, err)
	_, err = f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "car"})
	require.NoError(t, err)

	_, err = f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "cat"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateLabel)
	_, err = f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "dog", Color: "blue"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = f.labels.Create(ctx, member, p.ID, LabelInput{Name: "dog"})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	_, err = f.labels.Update(ctx, owner, animal.ID, LabelUpdate{ParentID: &kitten.ID})
	assert.ErrorIs(t, err, apperrors.ErrLabelCycle)
	_, err = f.labels.Update(ctx, owner, cat.ID, LabelUpdate{ParentID: &cat.ID})
	assert.ErrorIs(t, err, apperrors.ErrLabelCycle)

	tree, err := f.labels.Tree(ctx, member, p.ID)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, "animal", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "kitten", tree[0].Children[0].Children[0].Name)

	removed, err := f.labels.Delete(ctx, owner, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	labels, err := f.labels.List(ctx, member, p.ID, false)
	require.NoError(t, err)
	assert.Len(t, labels, 2)
}

func TestLabelDeactivationShrinksVocabulary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	p := f.activeProject(t, owner, models.ProjectTypeImageClassification)
	cat, err := f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "cat"})
	require.NoError(t, err)
	_, err = f.labels.Create(ctx, owner, p.ID, LabelInput{Name: "dog"})
	require.NoError(t, err)

	inactive := false
	_, err = f.labels.Update(ctx, owner, cat.ID, LabelUpdate{IsActive: &inactive})
	require.NoError(t, err)

	active, err := f.labels.List(ctx, owner, p.ID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "dog", active[0].Name)
}

func TestTemplateDefaultIsUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	p := f.activeProject(t, owner, models.ProjectTypeCustom)

	first, err := f.templates.Create(ctx, owner, p.ID, TemplateInput{Name: "first", IsDefault: true})
	require.NoError(t, err)
	second, err := f.templates.Create(ctx, owner, p.ID, TemplateInput{Name: "second", IsDefault: true})
	require.NoError(t, err)

	def, err := f.repos.Templates.ActiveDefault(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, second.ID, def.ID)

	yes := true
	_, err = f.templates.Update(ctx, owner, first.ID, TemplateUpdate{IsDefault: &yes})
	require.NoError(t, err)
	list, err := f.templates.List(ctx, owner, p.ID)
	require.NoError(t, err)
	defaults := 0
	for _, tpl := range list {
		if tpl.IsDefault {
			defaults++
			assert.Equal(t, first.ID, tpl.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestTemplateSchemaValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "owner")
	p := f.activeProject(t, owner, models.ProjectTypeCustom)

	_, err := f.templates.Create(ctx, owner, p.ID, TemplateInput{Name: "bad", Schema: json.RawMessage(`{"type":`)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = f.templates.Create(ctx, owner, p.ID, TemplateInput{Name: "bad", Schema: json.RawMessage(`{"type":12}`)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	tpl, err := f.templates.Create(ctx, owner, p.ID, TemplateInput{Name: "open"})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(tpl.Schema))

	resolved, err := CompileSchema([]byte(`{"type":"object","properties":{"n":{"type":"number","minimum":1}}}`))
	require.NoError(t, err)
	assert.NoError(t, resolved.Validate(map[string]any{"n": 2.0}))
	assert.Error(t, resolved.Validate(map[string]any{"n": 0.0}))
}
