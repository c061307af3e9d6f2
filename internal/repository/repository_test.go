package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"annotation-service/internal/config"
	"annotation-service/internal/models"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return New(db)
}

func seedProject(t *testing.T, repos *Repositories) (*models.User, *models.Project) {
	t.Helper()
	ctx := context.Background()
	owner := &models.User{Username: "owner-" + uuid.NewString()[:8]}
	require.NoError(t, repos.Users.Create(ctx, owner))
	project := &models.Project{
		Name:        "Cats",
		ProjectType: models.ProjectTypeImageClassification,
		Status:      models.ProjectActive,
		OwnerID:     owner.ID,
	}
	project.Settings = models.DefaultSettings(uuid.Nil)
	require.NoError(t, repos.Projects.Create(ctx, project))
	return owner, project
}

func TestProjectCreateWithSettings(t *testing.T) {
	repos := newTestRepos(t)
	_, project := seedProject(t, repos)

	got, err := repos.Projects.Get(context.Background(), project.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Settings)
	assert.Equal(t, 3, got.Settings.MaxAnnotationsPerFile)
	assert.Equal(t, "json", got.Settings.ExportFormat)
}

func TestListForMemberIncludesCollaborations(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	_, owned := seedProject(t, repos)
	_, other := seedProject(t, repos)
	_, hidden := seedProject(t, repos)

	member := &models.User{Username: "member"}
	require.NoError(t, repos.Users.Create(ctx, member))
	require.NoError(t, repos.Projects.AddCollaborator(ctx, other, member))

	owned.OwnerID = member.ID
	require.NoError(t, repos.Projects.Save(ctx, owned))

	page, err := repos.Projects.ListForMember(ctx, member.ID, ProjectFilter{}, Page{Number: 1, Size: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	ids := []uuid.UUID{page.Items[0].ID, page.Items[1].ID}
	assert.ElementsMatch(t, []uuid.UUID{owned.ID, other.ID}, ids)
	assert.NotContains(t, ids, hidden.ID)

	n, err := repos.Projects.CountCollaborating(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFileCountersAndCascade(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	owner, project := seedProject(t, repos)

	file := &models.ProjectFile{ProjectID: project.ID, Filename: "a.png", FileType: models.FileTypeImage, StorageKey: "k"}
	require.NoError(t, repos.Files.Create(ctx, file))
	require.NoError(t, repos.Files.AdjustAnnotationCount(ctx, file.ID, 1))
	require.NoError(t, repos.Projects.RecomputeFileCounters(ctx, project.ID))

	got, err := repos.Files.Get(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AnnotationCount)
	assert.True(t, got.IsAnnotated)

	p, err := repos.Projects.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.TotalFiles)
	assert.Equal(t, 1, p.AnnotatedFiles)

	require.NoError(t, repos.Files.AdjustAnnotationCount(ctx, file.ID, -5))
	got, err = repos.Files.Get(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AnnotationCount)
	assert.False(t, got.IsAnnotated)

	a := &models.Annotation{ProjectID: project.ID, FileID: file.ID, AnnotatorID: owner.ID, Status: models.AnnotationDraft}
	require.NoError(t, repos.Annotations.Create(ctx, a))
	require.NoError(t, repos.Projects.Delete(ctx, project.ID))

	_, err = repos.Annotations.Get(ctx, a.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repos.Files.Get(ctx, file.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDuplicateAnnotationIsTranslated(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	owner, project := seedProject(t, repos)
	file := &models.ProjectFile{ProjectID: project.ID, Filename: "a.png", FileType: models.FileTypeImage, StorageKey: "k"}
	require.NoError(t, repos.Files.Create(ctx, file))

	first := &models.Annotation{ProjectID: project.ID, FileID: file.ID, AnnotatorID: owner.ID, Status: models.AnnotationDraft}
	require.NoError(t, repos.Annotations.Create(ctx, first))
	second := &models.Annotation{ProjectID: project.ID, FileID: file.ID, AnnotatorID: owner.ID, Status: models.AnnotationDraft}
	assert.ErrorIs(t, repos.Annotations.Create(ctx, second), gorm.ErrDuplicatedKey)
}

func TestPagination(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	user := &models.User{Username: "reader"}
	require.NoError(t, repos.Users.Create(ctx, user))
	for i := 0; i < 5; i++ {
		require.NoError(t, repos.Notifications.Create(ctx, &models.Notification{
			UserID: user.ID, Type: models.NotificationSystem, Title: "hello",
		}))
	}

	page, err := repos.Notifications.ListForUser(ctx, user.ID, false, Page{Number: 3, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Items, 1)

	changed, err := repos.Notifications.MarkRead(ctx, user.ID, []uuid.UUID{page.Items[0].ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)
	unread, err := repos.Notifications.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), unread)
}

func TestLikePatternEscapes(t *testing.T) {
	assert.Equal(t, `%50\%\_off%`, likePattern(" 50%_OFF "))
}
