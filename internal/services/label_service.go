package services

import (
	"context"
	"regexp"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"annotation-service/internal/access"
	"annotation-service/internal/apperrors"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

const defaultLabelColor = "#007bff"

// LabelService manages a project's label vocabulary.
type LabelService struct {
	repos *repository.Repositories
}

func NewLabelService(repos *repository.Repositories) *LabelService {
	return &LabelService{repos: repos}
}

// LabelInput describes a new label.
type LabelInput struct {
	Name        string     `json:"name" validate:"required,max=100"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	ParentID    *uuid.UUID `json:"parent_id"`
}

// LabelUpdate carries changed label fields. Detach moves the label to the
// root; otherwise a non-nil ParentID reparents it.
type LabelUpdate struct {
	Name        *string    `json:"name" validate:"omitempty,max=100"`
	Description *string    `json:"description"`
	Color       *string    `json:"color"`
	IsActive    *bool      `json:"is_active"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Detach      bool       `json:"detach"`
}

// labelArena indexes a project's labels by id for hierarchy checks.
type labelArena map[uuid.UUID]*models.AnnotationLabel

func newLabelArena(labels []models.AnnotationLabel) labelArena {
	arena := make(labelArena, len(labels))
	for i := range labels {
		arena[labels[i].ID] = &labels[i]
	}
	return arena
}

// createsCycle reports whether making parent the parent of id would close a loop.
func (a labelArena) createsCycle(id, parent uuid.UUID) bool {
	seen := map[uuid.UUID]bool{}
	for cur := parent; cur != uuid.Nil; {
		if cur == id || seen[cur] {
			return true
		}
		seen[cur] = true
		l, ok := a[cur]
		if !ok || l.ParentID == nil {
			return false
		}
		cur = *l.ParentID
	}
	return false
}

// subtree returns id and all of its descendants.
func (a labelArena) subtree(id uuid.UUID) []uuid.UUID {
	children := map[uuid.UUID][]uuid.UUID{}
	for _, l := range a {
		if l.ParentID != nil {
			children[*l.ParentID] = append(children[*l.ParentID], l.ID)
		}
	}
	out := []uuid.UUID{}
	seen := map[uuid.UUID]bool{}
	stack := []uuid.UUID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		stack = append(stack, children[cur]...)
	}
	return out
}

// BuildLabelTree arranges labels into trees ordered by name. Labels whose
// parent is not in the list become roots.
func BuildLabelTree(labels []models.AnnotationLabel) []*models.LabelNode {
	nodes := make(map[uuid.UUID]*models.LabelNode, len(labels))
	for _, l := range labels {
		nodes[l.ID] = &models.LabelNode{AnnotationLabel: l}
	}
	var roots []*models.LabelNode
	for _, l := range labels {
		n := nodes[l.ID]
		if l.ParentID != nil {
			if parent, ok := nodes[*l.ParentID]; ok && *l.ParentID != l.ID {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	var sortNodes func([]*models.LabelNode)
	sortNodes = func(ns []*models.LabelNode) {
		sort.Slice(ns, func(i, j int) bool { return ns[i].Name < ns[j].Name })
		for _, n := range ns {
			sortNodes(n.Children)
		}
	}
	sortNodes(roots)
	return roots
}

func validColor(c string) error {
	if !colorPattern.MatchString(c) {
		return apperrors.Invalid("color must be a #rrggbb hex value")
	}
	return nil
}

// List returns the project's labels, flat and ordered by name.
func (s *LabelService) List(ctx context.Context, user *models.User, projectID uuid.UUID, activeOnly bool) ([]models.AnnotationLabel, error) {
	if _, err := loadProjectFor(ctx, s.repos, user, projectID, access.ActionView); err != nil {
		return nil, err
	}
	labels, err := s.repos.Labels.ListByProject(ctx, projectID, activeOnly)
	return labels, apperrors.FromStore(err, "list labels", nil)
}

// Tree returns the project's labels as a forest.
func (s *LabelService) Tree(ctx context.Context, user *models.User, projectID uuid.UUID) ([]*models.LabelNode, error) {
	labels, err := s.List(ctx, user, projectID, false)
	if err != nil {
		return nil, err
	}
	return BuildLabelTree(labels), nil
}

// Create adds a label to the project vocabulary.
func (s *LabelService) Create(ctx context.Context, user *models.User, projectID uuid.UUID, in LabelInput) (*models.AnnotationLabel, error) {
	name := trimmed(in.Name)
	if name == "" {
		return nil, apperrors.Invalid("label name is required")
	}
	color := in.Color
	if color == "" {
		color = defaultLabelColor
	}
	if err := validColor(color); err != nil {
		return nil, err
	}
	label := &models.AnnotationLabel{
		ProjectID:   projectID,
		Name:        name,
		Description: in.Description,
		Color:       color,
		IsActive:    true,
		ParentID:    in.ParentID,
	}
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := loadProjectFor(ctx, tx, user, projectID, access.ActionManage); err != nil {
			return err
		}
		if in.ParentID != nil {
			if err := checkParent(ctx, tx, projectID, *in.ParentID); err != nil {
				return err
			}
		}
		return apperrors.FromStore(tx.Labels.Create(ctx, label), "label "+name, apperrors.ErrDuplicateLabel)
	})
	if err != nil {
		return nil, err
	}
	return label, nil
}

func checkParent(ctx context.Context, tx *repository.Repositories, projectID, parentID uuid.UUID) error {
	parent, err := tx.Labels.Get(ctx, parentID)
	if err != nil {
		return apperrors.FromStore(err, "parent label", nil)
	}
	if parent.ProjectID != projectID {
		return apperrors.Invalid("parent label belongs to another project")
	}
	return nil
}

// Update changes a label. Reparenting is refused when it would make the
// label its own ancestor.
func (s *LabelService) Update(ctx context.Context, user *models.User, labelID uuid.UUID, in LabelUpdate) (*models.AnnotationLabel, error) {
	var label *models.AnnotationLabel
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		l, err := tx.Labels.Get(ctx, labelID)
		if err != nil {
			return apperrors.FromStore(err, "label", nil)
		}
		if _, err := loadProjectFor(ctx, tx, user, l.ProjectID, access.ActionManage); err != nil {
			return err
		}
		if in.Name != nil {
			name := trimmed(*in.Name)
			if name == "" {
				return apperrors.Invalid("label name is required")
			}
			l.Name = name
		}
		if in.Description != nil {
			l.Description = *in.Description
		}
		if in.Color != nil {
			if err := validColor(*in.Color); err != nil {
				return err
			}
			l.Color = *in.Color
		}
		if in.IsActive != nil {
			l.IsActive = *in.IsActive
		}
		switch {
		case in.Detach:
			l.ParentID = nil
		case in.ParentID != nil:
			if err := checkParent(ctx, tx, l.ProjectID, *in.ParentID); err != nil {
				return err
			}
			all, err := tx.Labels.ListByProject(ctx, l.ProjectID, false)
			if err != nil {
				return apperrors.FromStore(err, "list labels", nil)
			}
			if newLabelArena(all).createsCycle(l.ID, *in.ParentID) {
				return errors.Wrapf(apperrors.ErrLabelCycle, "label %s cannot be placed under %s", l.ID, *in.ParentID)
			}
			parent := *in.ParentID
			l.ParentID = &parent
		}
		if err := tx.Labels.Save(ctx, l); err != nil {
			return apperrors.FromStore(err, "label "+l.Name, apperrors.ErrDuplicateLabel)
		}
		label = l
		return nil
	})
	return label, err
}

// Delete removes a label together with its descendants.
func (s *LabelService) Delete(ctx context.Context, user *models.User, labelID uuid.UUID) (int, error) {
	var removed int
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		l, err := tx.Labels.Get(ctx, labelID)
		if err != nil {
			return apperrors.FromStore(err, "label", nil)
		}
		if _, err := loadProjectFor(ctx, tx, user, l.ProjectID, access.ActionManage); err != nil {
			return err
		}
		all, err := tx.Labels.ListByProject(ctx, l.ProjectID, false)
		if err != nil {
			return apperrors.FromStore(err, "list labels", nil)
		}
		ids := newLabelArena(all).subtree(l.ID)
		removed = len(ids)
		return apperrors.FromStore(tx.Labels.DeleteIDs(ctx, ids), "delete labels", nil)
	})
	return removed, err
}

// activeVocabulary returns the names of the project's active labels.
func activeVocabulary(ctx context.Context, repos *repository.Repositories, projectID uuid.UUID) (map[string]bool, error) {
	labels, err := repos.Labels.ListByProject(ctx, projectID, true)
	if err != nil {
		return nil, apperrors.FromStore(err, "list labels", nil)
	}
	vocab := make(map[string]bool, len(labels))
	for _, l := range labels {
		vocab[l.Name] = true
	}
	return vocab, nil
}
