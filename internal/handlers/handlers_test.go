package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotation-service/internal/apperrors"
	"annotation-service/internal/auth"
	"annotation-service/internal/config"
	"annotation-service/internal/metrics"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
	"annotation-service/internal/services"
	"annotation-service/internal/services/caches"
	"annotation-service/internal/storage"
)

type testServer struct {
	app           *fiber.App
	authenticator *auth.Authenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := config.OpenSQLite(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	repos := repository.New(db)
	blobs, err := storage.NewFileSystemStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	cache := services.NewCacheService(blobs, 1<<20, m, caches.NewMemoryCache(4<<20, time.Minute))
	notifications := services.NewNotificationService(repos, nil, m)
	users := services.NewUserService(repos)
	files := services.NewFileService(repos, blobs, cache, m, 1<<20)

	h := &Handlers{
		Health:      NewHealthHandler(db, files),
		Projects:    NewProjectHandler(services.NewProjectService(repos, blobs, cache, notifications), services.NewExportService(repos)),
		Files:       NewFileHandler(files),
		Annotations: NewAnnotationHandler(services.NewAnnotationService(repos, notifications, m)),
		Reviews:     NewReviewHandler(services.NewReviewService(repos, notifications, m)),
		Labels:      NewLabelHandler(services.NewLabelService(repos), services.NewTemplateService(repos)),
		Users:       NewUserHandler(users, services.NewSessionService(repos), notifications),
		Cache:       NewCacheHandler(files),
	}
	authenticator := auth.NewAuthenticator("test-secret", "annotation-service", time.Hour)
	app := fiber.New()
	app.Use(m.Middleware())
	Register(app.Group("/api"), h, auth.Middleware(authenticator, users, WriteError))
	return &testServer{app: app, authenticator: authenticator}
}

func (s *testServer) token(t *testing.T, username string) string {
	t.Helper()
	tok, err := s.authenticator.Issue(auth.Identity{Username: username})
	require.NoError(t, err)
	return tok
}

// do sends a request as username (anonymous when empty) and decodes a JSON
// response into out when out is not nil.
func (s *testServer) do(t *testing.T, username, method, path string, body any, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return s.send(t, username, req, out)
}

func (s *testServer) send(t *testing.T, username string, req *http.Request, out any) *http.Response {
	t.Helper()
	if username != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.token(t, username))
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	if out != nil {
		defer resp.Body.Close()
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (s *testServer) upload(t *testing.T, username, path, field string, files map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return s.send(t, username, req, nil)
}

// activeProject creates and activates a project owned by owner.
func (s *testServer) activeProject(t *testing.T, owner string, pt models.ProjectType, collaborators ...string) services.ProjectView {
	t.Helper()
	var p services.ProjectView
	resp := s.do(t, owner, http.MethodPost, "/api/projects", services.ProjectInput{Name: "Project", ProjectType: pt}, &p)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	for _, c := range collaborators {
		// resolve the collaborator's account first
		s.do(t, c, http.MethodGet, "/api/profile", nil, nil)
		resp = s.do(t, owner, http.MethodPost, "/api/projects/"+p.ID.String()+"/collaborators", CollaboratorRequest{Username: c}, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp = s.do(t, owner, http.MethodPut, "/api/projects/"+p.ID.String(), map[string]any{"status": "active"}, &p)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	return p
}

func TestWriteErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperrors.ErrNotFound, fiber.StatusNotFound},
		{apperrors.ErrPermissionDenied, fiber.StatusForbidden},
		{apperrors.ErrUnauthenticated, fiber.StatusUnauthorized},
		{apperrors.ErrDuplicateAnnotation, fiber.StatusConflict},
		{apperrors.ErrInvalidTransition, fiber.StatusConflict},
		{apperrors.ErrInvalidScore, fiber.StatusUnprocessableEntity},
		{apperrors.ErrInvalidPayloadShape, fiber.StatusUnprocessableEntity},
		{apperrors.ErrLabelCycle, fiber.StatusUnprocessableEntity},
		{apperrors.Invalid("bad"), fiber.StatusBadRequest},
		{apperrors.ErrInvalidFile, fiber.StatusBadRequest},
		{io.ErrUnexpectedEOF, fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		app := fiber.New()
		app.Get("/", func(c *fiber.Ctx) error { return WriteError(c, tc.err) })
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.err.Error())

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body.Error)
		assert.Equal(t, apperrors.Kind(tc.err), body.Kind)
		if tc.status == fiber.StatusInternalServerError {
			assert.Equal(t, "internal server error", body.Message)
		}
	}
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, "", http.MethodGet, "/api/projects", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var health map[string]any
	resp = s.do(t, "", http.MethodGet, "/api/health", nil, &health)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
}

func TestProjectEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.activeProject(t, "alice", models.ProjectTypeImageClassification, "bob")
	assert.Equal(t, models.ProjectActive, p.Status)

	var list repository.PageResult[services.ProjectView]
	resp := s.do(t, "bob", http.MethodGet, "/api/projects?status=active", nil, &list)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), list.Total)

	resp = s.do(t, "bob", http.MethodDelete, "/api/projects/"+p.ID.String(), nil, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = s.do(t, "alice", http.MethodPut, "/api/projects/"+p.ID.String(), map[string]any{"status": "draft"}, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = s.do(t, "alice", http.MethodGet, "/api/projects/not-a-uuid", nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, "alice", http.MethodPost, "/api/projects", map[string]any{"name": ""}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, "alice", http.MethodDelete, "/api/projects/"+p.ID.String(), nil, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	resp = s.do(t, "alice", http.MethodGet, "/api/projects/"+p.ID.String(), nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAnnotationWorkflow(t *testing.T) {
	s := newTestServer(t)
	p := s.activeProject(t, "alice", models.ProjectTypeImageClassification, "bob")
	base := "/api/projects/" + p.ID.String()

	resp := s.upload(t, "bob", base+"/files", "files", map[string]string{"cat.png": "png-bytes", "virus.exe": "MZ"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var uploaded UploadResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	require.Len(t, uploaded.Created, 1)
	require.Len(t, uploaded.Skipped, 1)
	file := uploaded.Created[0]

	resp = s.do(t, "bob", http.MethodGet, "/api/files/"+file.ID.String()+"/download", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(content))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "cat.png")

	var annotation services.AnnotationView
	resp = s.do(t, "bob", http.MethodPost, "/api/files/"+file.ID.String()+"/annotations", nil, &annotation)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp = s.do(t, "bob", http.MethodPost, "/api/files/"+file.ID.String()+"/annotations", nil, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	path := "/api/annotations/" + annotation.ID.String()
	resp = s.do(t, "bob", http.MethodPut, path, map[string]any{"annotation_data": map[string]any{"objects": []any{}}}, nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = s.do(t, "bob", http.MethodPut, path, map[string]any{"annotation_data": map[string]any{"label": "cat"}, "submit": true}, &annotation)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.AnnotationSubmitted, annotation.Status)
	assert.Equal(t, "Classified as: cat", annotation.Summary)

	var queue repository.PageResult[models.Annotation]
	resp = s.do(t, "alice", http.MethodGet, "/api/reviews/queue", nil, &queue)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, queue.Items, 1)

	review := services.ReviewInput{AccuracyScore: 1.5, CompletenessScore: 1, ConsistencyScore: 1, IsApproved: true}
	resp = s.do(t, "alice", http.MethodPost, path+"/reviews", review, nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	review.AccuracyScore = 0.7
	resp = s.do(t, "bob", http.MethodPost, path+"/reviews", review, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var saved models.QualityReview
	resp = s.do(t, "alice", http.MethodPost, path+"/reviews", review, &saved)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.InDelta(t, 0.9, saved.OverallScore, 1e-9)

	var unread map[string]int64
	s.do(t, "bob", http.MethodGet, "/api/notifications/unread-count", nil, &unread)
	// added to project, quality review
	assert.Equal(t, int64(2), unread["unread"])

	var marked map[string]int64
	resp = s.do(t, "bob", http.MethodPost, "/api/notifications/read", nil, &marked)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), marked["updated"])

	resp = s.do(t, "alice", http.MethodGet, "/api/projects/"+p.ID.String()+"/export?format=csv", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get(fiber.HeaderContentType))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "approved")

	resp = s.do(t, "alice", http.MethodGet, "/api/projects/"+p.ID.String()+"/export?format=yolo", nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLabelEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.activeProject(t, "alice", models.ProjectTypeImageClassification)
	base := "/api/projects/" + p.ID.String() + "/labels"

	var parent, child models.AnnotationLabel
	resp := s.do(t, "alice", http.MethodPost, base, services.LabelInput{Name: "animal"}, &parent)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp = s.do(t, "alice", http.MethodPost, base, services.LabelInput{Name: "cat", ParentID: &parent.ID}, &child)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = s.do(t, "alice", http.MethodPost, base, services.LabelInput{Name: "cat"}, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = s.do(t, "alice", http.MethodPut, "/api/labels/"+parent.ID.String(), map[string]any{"parent_id": child.ID}, nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	var tree []models.LabelNode
	resp = s.do(t, "alice", http.MethodGet, base+"/tree", nil, &tree)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, tree, 1)
	assert.Len(t, tree[0].Children, 1)
}

func TestUploadArchiveEndpoint(t *testing.T) {
	s := newTestServer(t)
	p := s.activeProject(t, "alice", models.ProjectTypeTextClassification)

	resp := s.upload(t, "alice", "/api/projects/"+p.ID.String()+"/files/archive", "archive", map[string]string{"notes.rar": "junk"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = s.upload(t, "alice", "/api/projects/"+p.ID.String()+"/files/archive", "archive", map[string]string{"notes.txt": "hello"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_file", body.Kind)
	assert.True(t, strings.Contains(body.Message, "archive"))
}
