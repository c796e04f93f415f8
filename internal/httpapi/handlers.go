// Package httpapi implements the thin HTTP surface spec §6 calls out as an
// external-collaborator-level interface: POST /workflows/execute to
// enqueue a job, GET /workflows/jobs/:jobId for its status record, and
// GET /health for process readiness. It is intentionally a thin CLI-style
// shim over internal/jobrepo — no auth, no business logic beyond request
// validation (spec §1 "HTTP API surface (thin CLI over the engine)").
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/jobrepo"
	"github.com/scanflow/platform/internal/platformconfig"
	"github.com/scanflow/platform/internal/workflowconfig"
)

// WorkflowHandler serves the enqueue/status endpoints.
type WorkflowHandler struct {
	repo      *jobrepo.Repo
	workflows *workflowconfig.Store
}

func NewWorkflowHandler(repo *jobrepo.Repo, workflows *workflowconfig.Store) *WorkflowHandler {
	return &WorkflowHandler{repo: repo, workflows: workflows}
}

// executeRequest is the POST /workflows/execute request body (spec §6
// "JSON with workflow_id, priority, params (must contain platform), and
// arbitrary metadata").
type executeRequest struct {
	WorkflowID string         `json:"workflow_id" binding:"required"`
	Priority   int            `json:"priority"`
	Params     map[string]any `json:"params" binding:"required"`
	Metadata   map[string]any `json:"metadata"`
}

// Execute handles POST /workflows/execute.
func (h *WorkflowHandler) Execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	platformRaw, ok := req.Params["platform"]
	if !ok {
		respondError(c, http.StatusBadRequest, "missing_platform", errors.New("params.platform is required"))
		return
	}
	platformStr, ok := platformRaw.(string)
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid_platform", errors.New("params.platform must be a string"))
		return
	}
	platform := domain.Platform(platformStr)
	if !platform.Valid() {
		respondError(c, http.StatusBadRequest, "unknown_platform", errors.New("params.platform is not a recognized platform"))
		return
	}

	if _, ok := h.workflows.Get(req.WorkflowID); !ok {
		respondError(c, http.StatusBadRequest, "unknown_workflow", errors.New("workflow_id is not registered"))
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "id_generation_failed", err)
		return
	}

	job := &domain.Job{
		ID:         id.String(),
		WorkflowID: req.WorkflowID,
		Platform:   platform,
		Priority:   req.Priority,
		Status:     domain.JobPending,
		Params:     req.Params,
		Metadata:   req.Metadata,
	}
	if err := h.repo.Enqueue(c.Request.Context(), job); err != nil {
		respondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	respondOK(c, gin.H{"job_id": job.ID})
}

// GetJob handles GET /workflows/jobs/:jobId (spec §6 "returns the job
// status record defined in §3").
func (h *WorkflowHandler) GetJob(c *gin.Context) {
	jobID := c.Param("jobId")
	job, err := h.repo.Load(c.Request.Context(), jobID)
	if errors.Is(err, jobrepo.ErrNotFound) {
		respondError(c, http.StatusNotFound, "job_not_found", err)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "load_failed", err)
		return
	}
	respondOK(c, job)
}

// HealthHandler serves GET /health: readiness derived from whether
// platform configurations loaded (spec §6).
type HealthHandler struct {
	configs *platformconfig.Store
}

func NewHealthHandler(configs *platformconfig.Store) *HealthHandler {
	return &HealthHandler{configs: configs}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ready := h.configs != nil && h.configs.Len() > 0
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "platforms_loaded": h.configsLen()})
}

func (h *HealthHandler) configsLen() int {
	if h.configs == nil {
		return 0
	}
	return h.configs.Len()
}
