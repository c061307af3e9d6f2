package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"annotation-service/internal/access"
	"annotation-service/internal/apperrors"
	"annotation-service/internal/metrics"
	"annotation-service/internal/models"
	"annotation-service/internal/payload"
	"annotation-service/internal/repository"
)

// AnnotationService runs the annotation lifecycle.
type AnnotationService struct {
	repos         *repository.Repositories
	notifications *NotificationService
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewAnnotationService(repos *repository.Repositories, notifications *NotificationService, m *metrics.Metrics) *AnnotationService {
	return &AnnotationService{repos: repos, notifications: notifications, metrics: m, now: time.Now}
}

// AnnotationUpdate is an annotator's edit. Submit moves the annotation to
// review; otherwise it is saved as a draft.
type AnnotationUpdate struct {
	Data   json.RawMessage `json:"annotation_data" swaggertype:"object"`
	Notes  string          `json:"annotator_notes"`
	Submit bool            `json:"submit"`
}

// AnnotationView is an annotation with its rendered summary.
type AnnotationView struct {
	*models.Annotation
	Summary string `json:"summary"`
}

// projectTypeOf returns the type of a project for rendering summaries.
// Unknown projects render with the generic summary.
func (s *AnnotationService) projectTypeOf(ctx context.Context, projectID uuid.UUID) models.ProjectType {
	var p models.Project
	if err := s.repos.DB().WithContext(ctx).Select("project_type").First(&p, "id = ?", projectID).Error; err != nil {
		return models.ProjectTypeCustom
	}
	return p.ProjectType
}

// Create starts an empty draft annotation of a file for user.
func (s *AnnotationService) Create(ctx context.Context, user *models.User, fileID uuid.UUID) (*AnnotationView, error) {
	var out *models.Annotation
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		file, err := tx.Files.GetForUpdate(ctx, fileID)
		if err != nil {
			return apperrors.FromStore(err, "file", nil)
		}
		p, err := loadProjectFor(ctx, tx, user, file.ProjectID, access.ActionAnnotate)
		if err != nil {
			return err
		}
		if p.Status != models.ProjectActive {
			return apperrors.Invalid("project %q is %s, annotations need an active project", p.Name, p.Status)
		}
		exists, err := tx.Annotations.Exists(ctx, file.ID, user.ID)
		if err != nil {
			return apperrors.FromStore(err, "check annotation", nil)
		}
		if exists {
			return errors.Wrapf(apperrors.ErrDuplicateAnnotation, "file %s", file.Filename)
		}

		a := &models.Annotation{
			ProjectID:      p.ID,
			FileID:         file.ID,
			AnnotatorID:    user.ID,
			Status:         models.AnnotationDraft,
			AnnotationData: datatypes.JSON("{}"),
		}
		if err := tx.Annotations.Create(ctx, a); err != nil {
			return apperrors.FromStore(err, "create annotation", apperrors.ErrDuplicateAnnotation)
		}
		if err := tx.Files.AdjustAnnotationCount(ctx, file.ID, 1); err != nil {
			return apperrors.FromStore(err, "update file counters", nil)
		}
		if err := tx.Projects.RecomputeFileCounters(ctx, p.ID); err != nil {
			return apperrors.FromStore(err, "update project counters", nil)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AnnotationEvent("created")
	return s.Get(ctx, user, out.ID)
}

// Get returns an annotation to its annotator or the project owner.
func (s *AnnotationService) Get(ctx context.Context, user *models.User, id uuid.UUID) (*AnnotationView, error) {
	a, p, err := s.load(ctx, s.repos, id)
	if err != nil {
		return nil, err
	}
	if !access.CanViewAnnotation(user.ID, access.ForAnnotation(a, p)) {
		return nil, errors.Wrap(apperrors.ErrPermissionDenied, "annotation")
	}
	return &AnnotationView{Annotation: a, Summary: payload.Summarize(p.ProjectType, a.AnnotationData)}, nil
}

func (s *AnnotationService) load(ctx context.Context, repos *repository.Repositories, id uuid.UUID) (*models.Annotation, *models.Project, error) {
	a, err := repos.Annotations.Get(ctx, id)
	if err != nil {
		return nil, nil, apperrors.FromStore(err, "annotation", nil)
	}
	p, err := loadProject(ctx, repos, a.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return a, p, nil
}

// Update saves or submits the annotator's payload. The payload must decode as
// the project type's variant, only use active project labels when the
// project defines any, and satisfy the project's default template.
func (s *AnnotationService) Update(ctx context.Context, user *models.User, id uuid.UUID, in AnnotationUpdate) (*AnnotationView, error) {
	next := models.AnnotationDraft
	if in.Submit {
		next = models.AnnotationSubmitted
	}
	var (
		out     *models.Annotation
		project *models.Project
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		a, p, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorize(user, access.ForAnnotation(a, p), access.ActionEdit); err != nil {
			return err
		}
		if !a.Status.CanBecome(next) {
			return apperrors.NewInvalidTransition(string(a.Status), string(next))
		}

		raw := []byte(in.Data)
		if len(raw) == 0 {
			raw = a.AnnotationData
		}
		decoded, err := payload.Decode(p.ProjectType, raw)
		if err != nil {
			return err
		}
		if err := checkVocabulary(ctx, tx, p.ID, decoded); err != nil {
			return err
		}
		normalized, err := json.Marshal(decoded)
		if err != nil {
			return errors.Wrap(err, "encode annotation payload")
		}
		if err := validateAgainstDefault(ctx, tx, p.ID, normalized); err != nil {
			return err
		}

		a.AnnotationData = datatypes.JSON(normalized)
		a.AnnotatorNotes = in.Notes
		a.Status = next
		if in.Submit {
			now := s.now().UTC()
			a.SubmittedAt = &now
			if err := tx.Sessions.IncrementFilesAnnotated(ctx, user.ID, p.ID); err != nil {
				return apperrors.FromStore(err, "update session", nil)
			}
		}
		if err := tx.Annotations.Save(ctx, a); err != nil {
			return apperrors.FromStore(err, "save annotation", nil)
		}
		out, project = a, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.Submit {
		s.metrics.AnnotationEvent("submitted")
		if project.OwnerID != user.ID {
			filename := out.FileID.String()
			if out.File != nil {
				filename = out.File.Filename
			}
			s.notifications.Notify(ctx, project.OwnerID, models.NotificationAnnotationCompleted,
				"Annotation submitted",
				fmt.Sprintf("%s submitted an annotation of %s in %q.", user.Username, filename, project.Name))
		}
	}
	return &AnnotationView{Annotation: out, Summary: payload.Summarize(project.ProjectType, out.AnnotationData)}, nil
}

func checkVocabulary(ctx context.Context, repos *repository.Repositories, projectID uuid.UUID, p payload.Payload) error {
	used := p.Labels()
	if len(used) == 0 {
		return nil
	}
	vocab, err := activeVocabulary(ctx, repos, projectID)
	if err != nil {
		return err
	}
	if len(vocab) == 0 {
		return nil
	}
	var unknown []string
	for _, l := range used {
		if !vocab[l] {
			unknown = append(unknown, l)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.Wrapf(apperrors.ErrInvalidPayloadShape, "unknown labels: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// Delete removes the annotator's annotation in any status and keeps the file
// and project counters consistent.
func (s *AnnotationService) Delete(ctx context.Context, user *models.User, id uuid.UUID) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		a, p, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorize(user, access.ForAnnotation(a, p), access.ActionDelete); err != nil {
			return err
		}
		if _, err := tx.Files.GetForUpdate(ctx, a.FileID); err != nil {
			return apperrors.FromStore(err, "file", nil)
		}
		if err := tx.Annotations.Delete(ctx, a.ID); err != nil {
			return apperrors.FromStore(err, "delete annotation", nil)
		}
		if err := tx.Files.AdjustAnnotationCount(ctx, a.FileID, -1); err != nil {
			return apperrors.FromStore(err, "update file counters", nil)
		}
		if err := tx.Projects.RecomputeFileCounters(ctx, p.ID); err != nil {
			return apperrors.FromStore(err, "update project counters", nil)
		}
		return refreshProjectQuality(ctx, tx, p.ID)
	})
	if err != nil {
		return err
	}
	s.metrics.AnnotationEvent("deleted")
	return nil
}

// List returns one page of the user's own annotations.
func (s *AnnotationService) List(ctx context.Context, user *models.User, f repository.AnnotationFilter, page int) (repository.PageResult[AnnotationView], error) {
	res, err := s.repos.Annotations.ListForAnnotator(ctx, user.ID, f, pageOf(page, AnnotationPageSize))
	if err != nil {
		return repository.PageResult[AnnotationView]{}, apperrors.FromStore(err, "list annotations", nil)
	}
	return s.views(ctx, res), nil
}

// views renders summaries for a page, loading each project type once.
func (s *AnnotationService) views(ctx context.Context, res repository.PageResult[models.Annotation]) repository.PageResult[AnnotationView] {
	types := map[uuid.UUID]models.ProjectType{}
	out := repository.PageResult[AnnotationView]{
		Items:      make([]AnnotationView, 0, len(res.Items)),
		Total:      res.Total,
		Page:       res.Page,
		PageSize:   res.PageSize,
		TotalPages: res.TotalPages,
	}
	for i := range res.Items {
		a := &res.Items[i]
		pt, ok := types[a.ProjectID]
		if !ok {
			pt = s.projectTypeOf(ctx, a.ProjectID)
			types[a.ProjectID] = pt
		}
		out.Items = append(out.Items, AnnotationView{Annotation: a, Summary: payload.Summarize(pt, a.AnnotationData)})
	}
	return out
}
