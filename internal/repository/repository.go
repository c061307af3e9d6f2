package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

// Repositories bundles every repository over one connection or transaction.
type Repositories struct {
	db            *gorm.DB
	Users         *UserRepository
	Projects      *ProjectRepository
	Files         *FileRepository
	Annotations   *AnnotationRepository
	Reviews       *ReviewRepository
	Labels        *LabelRepository
	Templates     *TemplateRepository
	Sessions      *SessionRepository
	Notifications *NotificationRepository
}

// New creates the repositories over db.
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:            db,
		Users:         NewUserRepository(db),
		Projects:      NewProjectRepository(db),
		Files:         NewFileRepository(db),
		Annotations:   NewAnnotationRepository(db),
		Reviews:       NewReviewRepository(db),
		Labels:        NewLabelRepository(db),
		Templates:     NewTemplateRepository(db),
		Sessions:      NewSessionRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

// Transaction runs fn with repositories bound to a single transaction. The
// transaction commits when fn returns nil.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// DB exposes the underlying handle, used for migrations and health checks.
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// Page selects one page of a listing. Number starts at 1.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = 20
	}
	return p
}

// PageResult is one page of results plus totals for navigation.
type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// paginate counts q and loads the requested page. Ordering and preloads are
// applied to the page query only.
func paginate[T any](q *gorm.DB, order string, p Page, preload ...string) (PageResult[T], error) {
	p = p.normalize()
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return PageResult[T]{}, err
	}
	items := make([]T, 0, p.Size)
	pq := q.Session(&gorm.Session{})
	for _, rel := range preload {
		pq = pq.Preload(rel)
	}
	err := pq.
		Order(order).
		Offset((p.Number - 1) * p.Size).
		Limit(p.Size).
		Find(&items).Error
	if err != nil {
		return PageResult[T]{}, err
	}
	pages := int((total + int64(p.Size) - 1) / int64(p.Size))
	return PageResult[T]{Items: items, Total: total, Page: p.Number, PageSize: p.Size, TotalPages: pages}, nil
}

const likeEscape = ` ESCAPE '\'`

// likePattern builds a case-insensitive LIKE pattern for a free-text search.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(strings.TrimSpace(search))) + "%"
}
