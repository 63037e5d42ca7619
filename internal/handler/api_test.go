package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"entity-learning-service/internal/middleware"
	"entity-learning-service/internal/model"
	"entity-learning-service/internal/model/lexicon"
	"entity-learning-service/internal/models"
	"entity-learning-service/internal/registry"
	"entity-learning-service/internal/repository"
	"entity-learning-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

type testServer struct {
	router *gin.Engine
	jobs   *service.Jobs
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	dir := t.TempDir()

	db, err := repository.Open(repository.DialectSQLite, filepath.Join(dir, "api.db"), logger)
	require.NoError(t, err)
	repo := repository.NewRepository(db, logger)
	t.Cleanup(func() { repo.Close() })

	reg, err := registry.New(filepath.Join(dir, "models"), logger)
	require.NoError(t, err)

	live := model.NewLive(lexicon.New)
	learner := service.NewLearner(repo, live, lexicon.NewTrainer(logger), nil, reg, service.Config{
		ModelName:       "ner",
		ActiveModelPath: filepath.Join(dir, "models", "ner.zip"),
		TempDir:         filepath.Join(dir, "tmp"),
		DefaultSeed:     42,
		AutoPublish:     true,
	}, logger)
	jobs := service.NewJobs(learner, repo, nil, logger)

	r := gin.New()
	NewHandler(learner, jobs, Config{DefaultTopN: 10, JWTSecret: testSecret}, logger).RegisterRoutes(r)

	token, _, err := middleware.IssueToken(testSecret, "tester", "admin", time.Hour)
	require.NoError(t, err)

	return &testServer{router: r, jobs: jobs, token: token}
}

func (s *testServer) do(t *testing.T, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"model_loaded":false`)
}

func TestScenarioLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/scenarios", `{"name":"invoices","entity_types":["ORG","AMOUNT"]}`, false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var scenario models.Scenario
	decode(t, w, &scenario)
	assert.Equal(t, models.StringList{"ORG", "AMOUNT"}, scenario.EntityTypes)

	w = s.do(t, http.MethodPost, "/api/v1/scenarios", `{"description":"no name"}`, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/scenarios/9999", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/scenarios/abc", "", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	path := fmt.Sprintf("/api/v1/scenarios/%d", scenario.ID)
	w = s.do(t, http.MethodDelete, path, "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodDelete, path, "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestActiveLearningFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/scenarios", `{"name":"orgs","entity_types":["ORG"]}`, false)
	require.Equal(t, http.StatusCreated, w.Code)
	var scenario models.Scenario
	decode(t, w, &scenario)
	base := fmt.Sprintf("/api/v1/scenarios/%d", scenario.ID)

	w = s.do(t, http.MethodPost, base+"/uncertain", `{"texts":["Acme buys steel","Acme sells copper","Acme hires staff"]}`, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"inserted":3}`, w.Body.String())

	w = s.do(t, http.MethodGet, base+"/uncertain", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var queue struct {
		Entries []models.UncertainEntry `json:"entries"`
		Total   int                     `json:"total"`
	}
	decode(t, w, &queue)
	require.Equal(t, 3, queue.Total)

	for i, entry := range queue.Entries {
		body := fmt.Sprintf(`{"raw_text":%q,"entities":[{"start_index":0,"end_index":4,"entity_type":"ORG"}],"uncertain_entry_id":%d}`,
			entry.RawText, entry.ID)
		if i == 2 {
			w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/uncertain/%d/skip", entry.ID), `{"reason":"duplicate"}`, false)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			continue
		}
		w = s.do(t, http.MethodPost, base+"/corrections", body, false)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, base+"/stats", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var stats service.QueueStats
	decode(t, w, &stats)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 2, stats.Verified)

	// two verified texts are below the training minimum
	w = s.do(t, http.MethodPost, base+"/train", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, base+"/train", `{"seed":7}`, true)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var started struct {
		JobID string `json:"job_id"`
	}
	decode(t, w, &started)
	s.jobs.Wait()

	w = s.do(t, http.MethodGet, "/api/v1/jobs/"+started.JobID, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var job models.TrainingJob
	decode(t, w, &job)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, service.OutcomeInsufficientSamples, job.Outcome)

	w = s.do(t, http.MethodGet, base+"/sessions", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)

	w = s.do(t, http.MethodPost, base+"/predict", `{"text":"Acme again"}`, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"model_loaded":false`)

	w = s.do(t, http.MethodGet, base+"/export/csv", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, 3, strings.Count(strings.TrimSpace(w.Body.String()), "\n")+1)

	w = s.do(t, http.MethodGet, "/api/v1/jobs/unknown", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegistryEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/models/current", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/models/publish", `{"source_path":"/does/not/exist.zip","accuracy":0.9}`, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/models/rollback", `{"version":"v3"}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/models/versions", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)
}
