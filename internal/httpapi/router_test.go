package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/scanflow/platform/internal/jobrepo"
	"github.com/scanflow/platform/internal/platformconfig"
	"github.com/scanflow/platform/internal/workflowconfig"
)

func init() { gin.SetMode(gin.TestMode) }

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := jobrepo.New(rdb, nil)

	wfDir := t.TempDir()
	require.NoError(t, os.WriteFile(wfDir+"/kurly-validation.yaml", []byte(
		"id: kurly-validation\nversion: \"1\"\nstart_node: a\nnodes:\n  a:\n    type: noop\n"), 0o644))
	workflows, err := workflowconfig.Load(wfDir)
	require.NoError(t, err)

	cfgDir := t.TempDir()
	require.NoError(t, os.WriteFile(cfgDir+"/kurly.yaml", []byte(
		"id: kurly\nstrategies:\n  - type: http\n    priority: 0\n"), 0o644))
	configs, err := platformconfig.Load(cfgDir)
	require.NoError(t, err)

	return NewRouter(RouterConfig{Repo: repo, Workflows: workflows, PlatformConfigs: configs})
}

func TestHealth_ReadyWhenConfigsLoaded(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestExecute_EnqueuesAndReturnsJobID(t *testing.T) {
	r := testRouter(t)

	body, err := json.Marshal(map[string]any{
		"workflow_id": "kurly-validation",
		"priority":    5,
		"params":      map[string]any{"platform": "kurly"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows/execute", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out.JobID)

	statusReq := httptest.NewRequest(http.MethodGet, "/workflows/jobs/"+out.JobID, nil)
	statusRR := httptest.NewRecorder()
	r.ServeHTTP(statusRR, statusReq)
	require.Equal(t, http.StatusOK, statusRR.Code)
}

func TestExecute_RejectsUnknownPlatform(t *testing.T) {
	r := testRouter(t)

	body, err := json.Marshal(map[string]any{
		"workflow_id": "kurly-validation",
		"params":      map[string]any{"platform": "not-a-real-platform"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows/execute", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExecute_RejectsUnknownWorkflow(t *testing.T) {
	r := testRouter(t)

	body, err := json.Marshal(map[string]any{
		"workflow_id": "does-not-exist",
		"params":      map[string]any{"platform": "kurly"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows/execute", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetJob_UnknownIDReturns404(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/jobs/does-not-exist", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}
