package services

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"annotation-service/internal/access"
	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
)

// TemplateService manages annotation templates. The active default template
// of a project constrains the shape of its annotation payloads.
type TemplateService struct {
	repos *repository.Repositories
}

func NewTemplateService(repos *repository.Repositories) *TemplateService {
	return &TemplateService{repos: repos}
}

// TemplateInput describes a new template.
type TemplateInput struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema" swaggertype:"object"`
	IsDefault   bool            `json:"is_default"`
}

// TemplateUpdate carries changed template fields.
type TemplateUpdate struct {
	Name        *string         `json:"name" validate:"omitempty,max=100"`
	Description *string         `json:"description"`
	Schema      json.RawMessage `json:"schema" swaggertype:"object"`
	IsDefault   *bool           `json:"is_default"`
	IsActive    *bool           `json:"is_active"`
}

// CompileSchema parses and resolves a JSON Schema document. An empty
// document is the schema that accepts everything.
func CompileSchema(raw []byte) (*jsonschema.Resolved, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, apperrors.Invalid("schema is not valid JSON Schema: %v", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, apperrors.Invalid("schema cannot be resolved: %v", err)
	}
	return resolved, nil
}

func normalizedSchema(raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if _, err := CompileSchema(raw); err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func (s *TemplateService) List(ctx context.Context, user *models.User, projectID uuid.UUID) ([]models.AnnotationTemplate, error) {
	if _, err := loadProjectFor(ctx, s.repos, user, projectID, access.ActionView); err != nil {
		return nil, err
	}
	out, err := s.repos.Templates.ListByProject(ctx, projectID)
	return out, apperrors.FromStore(err, "list templates", nil)
}

func (s *TemplateService) Get(ctx context.Context, user *models.User, id uuid.UUID) (*models.AnnotationTemplate, error) {
	t, err := s.repos.Templates.Get(ctx, id)
	if err != nil {
		return nil, apperrors.FromStore(err, "template", nil)
	}
	if _, err := loadProjectFor(ctx, s.repos, user, t.ProjectID, access.ActionView); err != nil {
		return nil, err
	}
	return t, nil
}

// Create adds a template. A default template replaces the previous default.
func (s *TemplateService) Create(ctx context.Context, user *models.User, projectID uuid.UUID, in TemplateInput) (*models.AnnotationTemplate, error) {
	name := trimmed(in.Name)
	if name == "" {
		return nil, apperrors.Invalid("template name is required")
	}
	schema, err := normalizedSchema(in.Schema)
	if err != nil {
		return nil, err
	}
	t := &models.AnnotationTemplate{
		ProjectID:   projectID,
		Name:        name,
		Description: in.Description,
		Schema:      schema,
		IsDefault:   in.IsDefault,
		IsActive:    true,
	}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := loadProjectFor(ctx, tx, user, projectID, access.ActionManage); err != nil {
			return err
		}
		if err := tx.Templates.Create(ctx, t); err != nil {
			return apperrors.FromStore(err, "create template", nil)
		}
		if t.IsDefault {
			return apperrors.FromStore(tx.Templates.ClearDefault(ctx, projectID, t.ID), "update templates", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) Update(ctx context.Context, user *models.User, id uuid.UUID, in TemplateUpdate) (*models.AnnotationTemplate, error) {
	var out *models.AnnotationTemplate
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		t, err := tx.Templates.Get(ctx, id)
		if err != nil {
			return apperrors.FromStore(err, "template", nil)
		}
		if _, err := loadProjectFor(ctx, tx, user, t.ProjectID, access.ActionManage); err != nil {
			return err
		}
		if in.Name != nil {
			name := trimmed(*in.Name)
			if name == "" {
				return apperrors.Invalid("template name is required")
			}
			t.Name = name
		}
		if in.Description != nil {
			t.Description = *in.Description
		}
		if in.Schema != nil {
			schema, err := normalizedSchema(in.Schema)
			if err != nil {
				return err
			}
			t.Schema = schema
		}
		if in.IsDefault != nil {
			t.IsDefault = *in.IsDefault
		}
		if in.IsActive != nil {
			t.IsActive = *in.IsActive
		}
		if err := tx.Templates.Save(ctx, t); err != nil {
			return apperrors.FromStore(err, "update template", nil)
		}
		if t.IsDefault {
			if err := tx.Templates.ClearDefault(ctx, t.ProjectID, t.ID); err != nil {
				return apperrors.FromStore(err, "update templates", nil)
			}
		}
		out = t
		return nil
	})
	return out, err
}

func (s *TemplateService) Delete(ctx context.Context, user *models.User, id uuid.UUID) error {
	return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		t, err := tx.Templates.Get(ctx, id)
		if err != nil {
			return apperrors.FromStore(err, "template", nil)
		}
		if _, err := loadProjectFor(ctx, tx, user, t.ProjectID, access.ActionManage); err != nil {
			return err
		}
		return apperrors.FromStore(tx.Templates.Delete(ctx, id), "delete template", nil)
	})
}

// validateAgainstDefault checks raw against the project's active default
// template. Projects without one accept any payload.
func validateAgainstDefault(ctx context.Context, repos *repository.Repositories, projectID uuid.UUID, raw []byte) error {
	t, err := repos.Templates.ActiveDefault(ctx, projectID)
	if err != nil {
		return apperrors.FromStore(err, "load template", nil)
	}
	if t == nil {
		return nil
	}
	resolved, err := CompileSchema(t.Schema)
	if err != nil {
		return errors.Wrapf(err, "template %s", t.Name)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return errors.Wrap(apperrors.ErrInvalidPayloadShape, err.Error())
	}
	if err := resolved.Validate(instance); err != nil {
		return errors.Wrapf(apperrors.ErrInvalidPayloadShape, "does not match template %q: %v", t.Name, err)
	}
	return nil
}
