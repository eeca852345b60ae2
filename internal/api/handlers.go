package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/forgeml/orchestrator/internal/config"
	"github.com/forgeml/orchestrator/internal/engine"
	"github.com/forgeml/orchestrator/internal/handler"
	"github.com/forgeml/orchestrator/internal/store"
	"github.com/forgeml/orchestrator/internal/validator"
	"github.com/forgeml/orchestrator/pkg/types"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	store     store.Store
	engine    *engine.Engine
	registry  *handler.Registry
	validator *validator.Validator
	config    *config.Config
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st store.Store, eng *engine.Engine, reg *handler.Registry, v *validator.Validator, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:     st,
		engine:    eng,
		registry:  reg,
		validator: v,
		config:    cfg,
		logger:    logger,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking dependencies.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.store.AdapterInfo(ctx)
	if err != nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "store unhealthy", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"store":  info,
	})
}

// --- Execution Management ---

// SubmitRequest is the request body for submitting a pipeline.
type SubmitRequest struct {
	Name string          `json:"name"`
	Jobs []types.JobSpec `json:"jobs"`
}

// SubmitResponse is returned after a pipeline is accepted.
type SubmitResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	SSEURL      string `json:"sse_url"`
}

// Submit handles POST /api/v1/executions. Bodies may be JSON or YAML; YAML is
// converted before validation.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := h.readPipelineBody(r)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if h.validator != nil {
		result := h.validator.ValidatePipelineJSON(body)
		if !result.Valid {
			writeErrorResponse(w, r, http.StatusBadRequest, "pipeline failed schema validation", map[string]interface{}{
				"errors": result.Errors,
			})
			return
		}
	}

	var req SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	execID, err := h.engine.Start(ctx, req.Name, req.Jobs)
	if err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			h.respondError(w, r, http.StatusBadRequest, "pipeline rejected", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to start execution", err)
		return
	}

	h.respondJSON(w, http.StatusCreated, SubmitResponse{
		ExecutionID: execID,
		Status:      string(types.ExecutionStatusRunning),
		SSEURL:      "/api/v1/executions/" + execID + "/events",
	})
}

// readPipelineBody reads the request body and converts YAML bodies to JSON.
func (h *Handlers) readPipelineBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "yaml") || strings.Contains(ct, "yml") {
		var doc map[string]interface{}
		if err := yaml.Unmarshal(body, &doc); err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	}
	return body, nil
}

// Validate handles POST /api/v1/pipelines/validate. It runs schema validation
// without starting an execution.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	body, err := h.readPipelineBody(r)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if h.validator == nil {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
		return
	}
	h.respondJSON(w, http.StatusOK, h.validator.ValidatePipelineJSON(body))
}

// ListExecutions handles GET /api/v1/executions
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	metas, err := h.store.ListExecutions(ctx)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list executions", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"executions": metas})
}

// GetExecution handles GET /api/v1/executions/{id}
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	execID := mux.Vars(r)["id"]

	exec, err := h.store.GetExecution(ctx, execID)
	if err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			h.respondError(w, r, http.StatusNotFound, "execution not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get execution", err)
		return
	}

	h.respondJSON(w, http.StatusOK, exec)
}

// CancelExecution handles POST /api/v1/executions/{id}/cancel
func (h *Handlers) CancelExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	execID := mux.Vars(r)["id"]

	if err := h.engine.Cancel(ctx, execID); err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			h.respondError(w, r, http.StatusNotFound, "execution not running", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to cancel execution", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": string(types.ExecutionStatusCancelled)})
}

// PauseRequest is the optional body for pausing an execution.
type PauseRequest struct {
	// Checkpoint controls whether a manual checkpoint is taken. Defaults to
	// true when the body is omitted.
	Checkpoint *bool `json:"checkpoint,omitempty"`
}

// PauseExecution handles POST /api/v1/executions/{id}/pause
func (h *Handlers) PauseExecution(w http.ResponseWriter, r *http.Request) {
	execID := mux.Vars(r)["id"]

	checkpoint := true
	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Checkpoint != nil {
		checkpoint = *req.Checkpoint
	}

	if err := h.engine.Pause(execID, checkpoint); err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			h.respondError(w, r, http.StatusNotFound, "execution not running", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to pause execution", err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":     "pausing",
		"checkpoint": checkpoint,
	})
}

// ResumeRequest is the optional body for resuming an execution.
type ResumeRequest struct {
	// CheckpointID selects the checkpoint to resume from; empty means latest.
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// ResumeExecution handles POST /api/v1/executions/{id}/resume
func (h *Handlers) ResumeExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	execID := mux.Vars(r)["id"]

	var req ResumeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.engine.Resume(ctx, execID, req.CheckpointID); err != nil {
		switch {
		case errors.Is(err, store.ErrExecutionNotFound):
			h.respondError(w, r, http.StatusNotFound, "execution not found", err)
		case errors.Is(err, store.ErrCheckpointNotFound):
			h.respondError(w, r, http.StatusNotFound, "checkpoint not found", err)
		case strings.Contains(err.Error(), "still running"):
			h.respondError(w, r, http.StatusConflict, "execution is still running", err)
		default:
			h.respondError(w, r, http.StatusInternalServerError, "failed to resume execution", err)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": execID,
		"status":       string(types.ExecutionStatusRunning),
		"sse_url":      "/api/v1/executions/" + execID + "/events",
	})
}

// --- Checkpoints and Audit ---

// ListCheckpoints handles GET /api/v1/executions/{id}/checkpoints
func (h *Handlers) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	execID := mux.Vars(r)["id"]

	cps, err := h.store.ListCheckpoints(ctx, execID)
	if err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			h.respondError(w, r, http.StatusNotFound, "execution not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to list checkpoints", err)
		return
	}

	// Summaries only; full checkpoints can be large.
	summaries := make([]map[string]interface{}, 0, len(cps))
	for _, cp := range cps {
		summaries = append(summaries, map[string]interface{}{
			"id":            cp.ID,
			"triggered_by":  cp.TriggeredBy,
			"terminal_jobs": len(cp.Runs),
			"remaining":     len(cp.Remaining),
			"created_at":    cp.CreatedAt,
		})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"checkpoints": summaries})
}

// GetCheckpoint handles GET /api/v1/executions/{id}/checkpoints/{cpid}
func (h *Handlers) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	cp, err := h.store.GetCheckpoint(ctx, vars["id"], vars["cpid"])
	if err != nil {
		if errors.Is(err, store.ErrCheckpointNotFound) || errors.Is(err, store.ErrExecutionNotFound) {
			h.respondError(w, r, http.StatusNotFound, "checkpoint not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get checkpoint", err)
		return
	}

	h.respondJSON(w, http.StatusOK, cp)
}

// ListAudit handles GET /api/v1/executions/{id}/audit
func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	execID := mux.Vars(r)["id"]

	entries, err := h.store.ListAudit(ctx, execID)
	if err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			h.respondError(w, r, http.StatusNotFound, "execution not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to list audit entries", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"audit": entries})
}

// --- Handler Registry ---

// ListHandlers handles GET /api/v1/handlers
func (h *Handlers) ListHandlers(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{"handlers": []string{}})
		return
	}

	types := h.registry.Types()
	out := make([]map[string]string, 0, len(types))
	for _, t := range types {
		out = append(out, map[string]string{
			"type":    t,
			"version": h.registry.Version(t),
		})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"handlers": out})
}

// --- Store Diagnostics ---

// StoreInfo handles GET /api/v1/store/info
func (h *Handlers) StoreInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.store.AdapterInfo(ctx)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to get store info", err)
		return
	}

	h.respondJSON(w, http.StatusOK, info)
}

// StoreSelfCheck handles GET /api/v1/store/selfcheck. It exercises the write
// and read path with a throwaway execution.
func (h *Handlers) StoreSelfCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	execID, err := h.store.CreateExecution(ctx, "_selfcheck", []types.JobSpec{{ID: "probe", Type: "noop"}})
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "selfcheck failed: create", err)
		return
	}

	if _, err := h.store.AppendEvent(ctx, execID, &types.EventInput{
		Type: types.EventTypeLog,
		Data: map[string]string{"message": "selfcheck"},
	}); err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "selfcheck failed: append", err)
		return
	}

	events, err := h.store.GetEventsSince(ctx, execID, "")
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "selfcheck failed: read", err)
		return
	}

	if err := h.store.UpdateExecutionStatus(ctx, execID, types.ExecutionStatusCancelled, ""); err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "selfcheck failed: cleanup", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"latency_ms":  time.Since(start).Milliseconds(),
		"event_count": len(events),
	})
}

// --- Helper Methods ---

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	h.logger.Error(message, "error", err, "status", status)
	var details map[string]interface{}
	if err != nil {
		details = map[string]interface{}{"cause": err.Error()}
	}
	writeErrorResponse(w, r, status, message, details)
}
