// Package access decides whether a user may perform an action on a resource.
//
// The check is a pure predicate over identities; callers load the resource
// and evaluate CanAccess before every read or mutation.
package access

import (
	"github.com/google/uuid"

	"annotation-service/internal/models"
)

type Action string

const (
	// Owner or collaborator.
	ActionView     Action = "view"
	ActionUpload   Action = "upload"
	ActionAnnotate Action = "annotate"

	// Project owner only.
	ActionManage Action = "manage"
	ActionReview Action = "review"
	ActionExport Action = "export"

	// Resource creator only.
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Resource is the identity view of anything access is checked against.
type Resource struct {
	// CreatorID is the user who produced the resource: the owner of a
	// project, the annotator of an annotation, the reviewer of a review.
	CreatorID     uuid.UUID
	ProjectOwner  uuid.UUID
	Collaborators []uuid.UUID
}

// ForProject describes a project. Collaborators must be preloaded.
func ForProject(p *models.Project) Resource {
	return Resource{
		CreatorID:     p.OwnerID,
		ProjectOwner:  p.OwnerID,
		Collaborators: p.CollaboratorIDs(),
	}
}

// ForAnnotation describes an annotation inside its project.
func ForAnnotation(a *models.Annotation, p *models.Project) Resource {
	r := ForProject(p)
	r.CreatorID = a.AnnotatorID
	return r
}

// ForReview describes a quality review inside its project.
func ForReview(rv *models.QualityReview, p *models.Project) Resource {
	r := ForProject(p)
	r.CreatorID = rv.ReviewerID
	return r
}

// CanAccess reports whether user may perform action on res.
func CanAccess(user uuid.UUID, res Resource, action Action) bool {
	if user == uuid.Nil {
		return false
	}
	switch action {
	case ActionView, ActionUpload, ActionAnnotate:
		return isMember(user, res)
	case ActionManage, ActionReview, ActionExport:
		return user == res.ProjectOwner
	case ActionEdit, ActionDelete:
		return user == res.CreatorID
	default:
		return false
	}
}

// CanViewAnnotation lets the annotator and the project owner read an annotation.
func CanViewAnnotation(user uuid.UUID, res Resource) bool {
	return CanAccess(user, res, ActionEdit) || CanAccess(user, res, ActionReview)
}

func isMember(user uuid.UUID, res Resource) bool {
	if user == res.ProjectOwner {
		return true
	}
	for _, c := range res.Collaborators {
		if c == user {
			return true
		}
	}
	return false
}
