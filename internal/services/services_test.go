package services

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"annotation-service/internal/config"
	"annotation-service/internal/metrics"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
	"annotation-service/internal/services/caches"
	"annotation-service/internal/storage"
)

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return nil
}

type fixture struct {
	repos         *repository.Repositories
	blobs         *storage.FileSystemStore
	cache         *CacheService
	publisher     *recordingPublisher
	notifications *NotificationService
	projects      *ProjectService
	files         *FileService
	annotations   *AnnotationService
	reviews       *ReviewService
	labels        *LabelService
	templates     *TemplateService
	sessions      *SessionService
	exports       *ExportService
	users         *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := config.OpenSQLite(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	repos := repository.New(db)

	blobs, err := storage.NewFileSystemStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	cache := NewCacheService(blobs, 1<<20, m, caches.NewMemoryCache(4<<20, time.Minute))
	pub := &recordingPublisher{}
	notifications := NewNotificationService(repos, pub, m)

	return &fixture{
		repos:         repos,
		blobs:         blobs,
		cache:         cache,
		publisher:     pub,
		notifications: notifications,
		projects:      NewProjectService(repos, blobs, cache, notifications),
		files:         NewFileService(repos, blobs, cache, m, 1<<20),
		annotations:   NewAnnotationService(repos, notifications, m),
		reviews:       NewReviewService(repos, notifications, m),
		labels:        NewLabelService(repos),
		templates:     NewTemplateService(repos),
		sessions:      NewSessionService(repos),
		exports:       NewExportService(repos),
		users:         NewUserService(repos),
	}
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name}
	require.NoError(t, f.repos.Users.Create(context.Background(), u))
	return u
}

// activeProject creates a project owned by owner, shares it with the given
// collaborators and activates it.
func (f *fixture) activeProject(t *testing.T, owner *models.User, pt models.ProjectType, collaborators ...*models.User) *models.Project {
	t.Helper()
	ctx := context.Background()
	view, err := f.projects.Create(ctx, owner, ProjectInput{Name: "Project " + uuid.NewString()[:6], ProjectType: pt})
	require.NoError(t, err)
	for _, c := range collaborators {
		_, err := f.projects.AddCollaborator(ctx, owner, view.ID, c.Username)
		require.NoError(t, err)
	}
	active := models.ProjectActive
	view, err = f.projects.Update(ctx, owner, view.ID, ProjectUpdate{Status: &active})
	require.NoError(t, err)
	return view.Project
}

func (f *fixture) upload(t *testing.T, user *models.User, projectID uuid.UUID, name, content string) *models.ProjectFile {
	t.Helper()
	file, err := f.files.Upload(context.Background(), user, projectID, FileUpload{
		Filename: name,
		Size:     int64(len(content)),
		Body:     strings.NewReader(content),
	})
	require.NoError(t, err)
	return file
}

func (f *fixture) project(t *testing.T, id uuid.UUID) *models.Project {
	t.Helper()
	p, err := f.repos.Projects.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}
