package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alimgiray/gscout/internal/ml"
	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/internal/repositories"
	"github.com/alimgiray/gscout/internal/services"
	"github.com/alimgiray/gscout/internal/workers"
	"github.com/alimgiray/gscout/pkg/database"
	"github.com/alimgiray/gscout/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	Success bool            `json:"success"`
	Reason  string          `json:"reason"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type stubFollower struct {
	following map[string]bool
	follows   int
	err       error
}

func (f *stubFollower) IsFollowing(_ context.Context, login string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.following[login], nil
}

func (f *stubFollower) Follow(_ context.Context, login string) error {
	if f.err != nil {
		return f.err
	}
	f.follows++
	f.following[login] = true
	return nil
}

func (f *stubFollower) Unfollow(_ context.Context, login string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.following, login)
	return nil
}

type testServer struct {
	router   *gin.Engine
	db       *sql.DB
	repo     *repositories.CandidateRepository
	buffer   *workers.ResultBuffer
	manager  *workers.RunManager
	release  chan struct{}
	follower *stubFollower
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	recorder := metrics.New(prometheus.NewRegistry())
	repo := repositories.NewCandidateRepository(db)
	params := ml.FitParams{Forest: ml.DefaultForestParams(), MaxFeatures: 20}
	params.Forest.Trees = 5
	modelService := services.NewModelService(repo, repositories.NewModelArtifactRepository(db), params, recorder)

	s := &testServer{
		db:       db,
		repo:     repo,
		buffer:   workers.NewResultBuffer(),
		release:  make(chan struct{}),
		follower: &stubFollower{following: map[string]bool{}},
	}
	s.manager = workers.NewRunManager(workers.RunnerFunc(func(ctx context.Context, runID string, opts models.RunOptions) *models.RunReport {
		report := models.NewRunReport(runID, opts.Mode)
		select {
		case <-s.release:
			c := models.NewCandidate("found")
			report.Selected = []*models.Candidate{c}
			s.buffer.Push(c)
			report.Finish(true, "done")
		case <-ctx.Done():
			report.Finish(false, "cancelled")
		}
		return report
	}), nil)
	t.Cleanup(s.manager.StopAll)

	runHandler := NewRunHandler(s.manager, s.buffer)
	modelHandler := NewModelHandler(modelService)
	candidateHandler := NewCandidateHandler(repo, s.follower)
	exportHandler := NewExportHandler(services.NewExportService(repo))
	healthHandler := NewHealthHandler(db)

	router := gin.New()
	router.NoRoute(NewNotFoundHandler().NotFound)
	router.GET("/health", healthHandler.Health)
	api := router.Group("/api")
	api.POST("/runs", runHandler.StartRun)
	api.POST("/runs/cancel", runHandler.CancelRun)
	api.GET("/runs/status", runHandler.Status)
	api.GET("/results", runHandler.Results)
	api.POST("/model/retrain", modelHandler.Retrain)
	api.GET("/model", modelHandler.Current)
	api.GET("/candidates/uncertain", candidateHandler.Uncertain)
	api.GET("/candidates", candidateHandler.List)
	api.GET("/candidates/search", candidateHandler.Search)
	api.GET("/candidates/:id", candidateHandler.Get)
	api.POST("/candidates/:id/annotation", candidateHandler.Annotate)
	api.POST("/candidates/:id/follow", candidateHandler.Follow)
	api.POST("/candidates/:id/unfollow", candidateHandler.Unfollow)
	api.POST("/admin/reset", candidateHandler.Reset)
	api.GET("/export/:format", exportHandler.Export)
	s.router = router
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (s *testServer) seed(t *testing.T, id string, location string, prob *float64) {
	t.Helper()
	c := models.NewCandidate(id)
	if location != "" {
		c.Location = &location
	}
	c.ModelProbability = prob
	require.NoError(t, s.repo.Upsert(context.Background(), c))
}

func floatPtr(f float64) *float64 { return &f }

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, resp := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)
	w, resp := s.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, resp.Success)
}

func TestRunLifecycle(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodPost, "/api/runs", `{"mode":"heuristic","limit":3}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, resp.Success)
	var started struct {
		RunID string `json:"run_id"`
		Mode  string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &started))
	assert.NotEmpty(t, started.RunID)
	assert.Equal(t, "heuristic", started.Mode)

	w, resp = s.do(t, http.MethodPost, "/api/runs", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, workers.ErrRunInProgress.Error(), resp.Error)

	_, resp = s.do(t, http.MethodGet, "/api/runs/status", "")
	var status workers.RunStatus
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, "running", status.State)
	assert.Equal(t, started.RunID, status.ActiveRun)

	close(s.release)
	s.manager.Wait()

	_, resp = s.do(t, http.MethodGet, "/api/runs/status", "")
	var idle struct {
		State          string            `json:"state"`
		LastRun        *models.RunReport `json:"last_run"`
		PendingResults int               `json:"pending_results"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &idle))
	assert.Equal(t, "idle", idle.State)
	assert.Equal(t, 1, idle.PendingResults)
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	require.NotNil(t, status.LastRun)
	assert.Equal(t, started.RunID, status.LastRun.RunID)
	assert.True(t, status.LastRun.Success)

	var results struct {
		Count      int                 `json:"count"`
		Candidates []*models.Candidate `json:"candidates"`
	}
	_, resp = s.do(t, http.MethodGet, "/api/results", "")
	require.NoError(t, json.Unmarshal(resp.Data, &results))
	assert.Equal(t, 1, results.Count)

	_, resp = s.do(t, http.MethodGet, "/api/results", "")
	require.NoError(t, json.Unmarshal(resp.Data, &results))
	assert.Equal(t, 0, results.Count)
	assert.NotNil(t, results.Candidates)
}

func TestStartRunValidation(t *testing.T) {
	tests := []struct {
		name        string
		description string
		body        string
	}{
		{name: "Bad mode", description: "Unknown modes are rejected", body: `{"mode":"magic"}`},
		{name: "Bad band", description: "Band above 0.5 is rejected", body: `{"uncertainty_band":0.7}`},
		{name: "Bad json", description: "Malformed bodies are rejected", body: `{"mode":`},
		{name: "Negative limit", description: "Limits must not be negative", body: `{"limit":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			w, resp := s.do(t, http.MethodPost, "/api/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, tt.description)
			assert.False(t, resp.Success)
			assert.Equal(t, models.RunStateIdle, s.manager.State())
		})
	}
}

func TestCancelRun(t *testing.T) {
	s := newTestServer(t)

	_, resp := s.do(t, http.MethodPost, "/api/runs/cancel", "")
	assert.True(t, resp.Success)
	assert.Equal(t, "no active run", resp.Reason)

	w, _ := s.do(t, http.MethodPost, "/api/runs", "{}")
	require.Equal(t, http.StatusAccepted, w.Code)

	_, resp = s.do(t, http.MethodPost, "/api/runs/cancel", "")
	assert.Equal(t, "run cancelled", resp.Reason)
	s.manager.Wait()
	assert.False(t, s.manager.Status().LastRun.Success)
}

func TestRetrain(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	w, resp := s.do(t, http.MethodPost, "/api/model/retrain", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, services.ErrNoLabeledData.Error(), resp.Error)

	w, _ = s.do(t, http.MethodGet, "/api/model", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	for i := range 6 {
		id := fmt.Sprintf("c%d", i)
		label := models.Annotation(i % 2)
		location := "Berlin"
		if label == models.AnnotationAccepted {
			location = "Enna"
		}
		s.seed(t, id, location, nil)
		require.NoError(t, s.repo.SetAnnotation(ctx, id, label))
	}

	w, resp = s.do(t, http.MethodPost, "/api/model/retrain", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	var trained struct {
		ArtifactID string `json:"artifact_id"`
		TrainedOn  int    `json:"trained_on"`
		Classes    []int  `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &trained))
	assert.NotEmpty(t, trained.ArtifactID)
	assert.Equal(t, 6, trained.TrainedOn)
	assert.Equal(t, []int{0, 1}, trained.Classes)

	w, _ = s.do(t, http.MethodGet, "/api/model", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

type candidateList struct {
	Count      int                 `json:"count"`
	Total      int                 `json:"total"`
	Candidates []*models.Candidate `json:"candidates"`
}

func TestCandidateListings(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "low", "Rome", floatPtr(0.2))
	s.seed(t, "high", "Enna", floatPtr(0.9))
	s.seed(t, "fresh", "Milan", nil)
	s.seed(t, "done", "Enna", floatPtr(0.95))
	require.NoError(t, s.repo.SetAnnotation(context.Background(), "done", models.AnnotationAccepted))

	tests := []struct {
		name        string
		description string
		path        string
		wantStatus  int
		wantIDs     []string
	}{
		{
			name:        "Uncertain",
			description: "Unannotated candidates, probability descending, unscored last",
			path:        "/api/candidates/uncertain",
			wantStatus:  http.StatusOK,
			wantIDs:     []string{"high", "low", "fresh"},
		},
		{
			name:        "Uncertain paged",
			description: "skip and limit page the same ordering",
			path:        "/api/candidates/uncertain?skip=1&limit=1",
			wantStatus:  http.StatusOK,
			wantIDs:     []string{"low"},
		},
		{
			name:        "Search by location",
			description: "Search is case-insensitive on location",
			path:        "/api/candidates/search?q=enna",
			wantStatus:  http.StatusOK,
			wantIDs:     []string{"done", "high"},
		},
		{
			name:        "Search without query",
			description: "q is required",
			path:        "/api/candidates/search",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "Bad paging",
			description: "Non-numeric skip is rejected",
			path:        "/api/candidates?skip=abc",
			wantStatus:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := s.do(t, http.MethodGet, tt.path, "")
			require.Equal(t, tt.wantStatus, w.Code, tt.description)
			if tt.wantIDs == nil {
				assert.False(t, resp.Success)
				return
			}
			var list candidateList
			require.NoError(t, json.Unmarshal(resp.Data, &list))
			got := make([]string, len(list.Candidates))
			for i, c := range list.Candidates {
				got[i] = c.ID
			}
			if strings.Contains(tt.path, "search") {
				assert.ElementsMatch(t, tt.wantIDs, got, tt.description)
			} else {
				assert.Equal(t, tt.wantIDs, got, tt.description)
			}
		})
	}

	_, resp := s.do(t, http.MethodGet, "/api/candidates?limit=2", "")
	var list candidateList
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.Equal(t, 4, list.Total)
	assert.Len(t, list.Candidates, 2)
}

func TestGetCandidate(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "dev", "Enna", floatPtr(0.4))

	w, resp := s.do(t, http.MethodGet, "/api/candidates/dev", "")
	require.Equal(t, http.StatusOK, w.Code)
	var c models.Candidate
	require.NoError(t, json.Unmarshal(resp.Data, &c))
	assert.Equal(t, "dev", c.ID)
	assert.Equal(t, "Enna", c.LocationText())

	w, resp = s.do(t, http.MethodGet, "/api/candidates/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, resp.Success)
}

func TestAnnotate(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "dev", "", nil)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{name: "Accept", path: "/api/candidates/dev/annotation", body: `{"annotation":1}`, wantStatus: http.StatusOK},
		{name: "Reject", path: "/api/candidates/dev/annotation", body: `{"annotation":0}`, wantStatus: http.StatusOK},
		{name: "Out of range", path: "/api/candidates/dev/annotation", body: `{"annotation":2}`, wantStatus: http.StatusBadRequest},
		{name: "Missing field", path: "/api/candidates/dev/annotation", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "Unknown candidate", path: "/api/candidates/ghost/annotation", body: `{"annotation":1}`, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	c, err := s.repo.GetByID(context.Background(), "dev")
	require.NoError(t, err)
	require.NotNil(t, c.Annotation)
	assert.Equal(t, models.AnnotationRejected, *c.Annotation)
}

func TestFollow(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodPost, "/api/candidates/octocat/follow", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "followed", resp.Reason)
	assert.True(t, s.follower.following["octocat"])

	w, resp = s.do(t, http.MethodPost, "/api/candidates/octocat/follow", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "already followed", resp.Reason)
	assert.Equal(t, 1, s.follower.follows)

	w, resp = s.do(t, http.MethodPost, "/api/candidates/octocat/unfollow", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unfollowed", resp.Reason)
	assert.False(t, s.follower.following["octocat"])

	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
	}{
		{
			name:       "Follow unknown user",
			path:       "/api/candidates/ghost/follow",
			err:        &services.FetchError{Kind: services.FetchRejected, Status: http.StatusNotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Follow upstream failure",
			path:       "/api/candidates/octocat/follow",
			err:        &services.FetchError{Kind: services.FetchExhausted, Status: http.StatusBadGateway},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "Unfollow unknown user",
			path:       "/api/candidates/ghost/unfollow",
			err:        &services.FetchError{Kind: services.FetchRejected, Status: http.StatusNotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Unfollow upstream failure",
			path:       "/api/candidates/octocat/unfollow",
			err:        &services.FetchError{Kind: services.FetchExhausted, Status: http.StatusServiceUnavailable},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.follower.err = tt.err
			w, resp := s.do(t, http.MethodPost, tt.path, "")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.False(t, resp.Success)
		})
	}
}

func TestReset(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "a", "", nil)
	s.seed(t, "b", "", nil)

	_, resp := s.do(t, http.MethodPost, "/api/admin/reset", "")
	assert.True(t, resp.Success)
	var data struct {
		Deleted int64 `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, int64(2), data.Deleted)

	count, err := s.repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestExport(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "dev", "Enna", nil)

	w, _ := s.do(t, http.MethodGet, "/api/export/csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("username,")))

	w, _ = s.do(t, http.MethodGet, "/api/export/xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w, resp := s.do(t, http.MethodGet, "/api/export/pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
}
