package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgeml/orchestrator/internal/config"
	"github.com/forgeml/orchestrator/internal/engine"
	"github.com/forgeml/orchestrator/internal/handler"
	"github.com/forgeml/orchestrator/internal/store"
	"github.com/forgeml/orchestrator/internal/validator"
	"github.com/forgeml/orchestrator/pkg/types"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	st := store.NewMemoryStore(nil)
	t.Cleanup(func() { st.Close() })

	registry := handler.NewRegistry()
	registry.RegisterFunc("noop", func(ctx context.Context, spec *types.JobSpec, hctx *handler.Context) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}, "v1")

	eng := engine.New(st, nil, registry, nil, nil, nil, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	t.Cleanup(eng.Close)

	v, err := validator.New()
	if err != nil {
		t.Fatalf("validator.New() failed: %v", err)
	}

	cfg := &config.Config{CORSOrigins: []string{"*"}}
	h := NewHandlers(st, eng, registry, v, cfg, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	return NewServer(h), st
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimSpace(p)))
	return len(p), nil
}

func waitForStatus(t *testing.T, st store.Store, execID string, want types.ExecutionStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := st.GetExecution(context.Background(), execID)
		if err == nil && exec.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("execution %s never reached status %s", execID, want)
}

func TestSubmit_JSONPipeline(t *testing.T) {
	srv, st := newTestServer(t)

	body := `{"name": "smoke", "jobs": [
		{"id": "a", "type": "noop"},
		{"id": "b", "type": "noop", "depends_on": ["a"]}
	]}`
	req := httptest.NewRequest("POST", "/api/v1/executions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ExecutionID == "" {
		t.Fatal("expected execution id")
	}

	waitForStatus(t, st, resp.ExecutionID, types.ExecutionStatusCompleted)
}

func TestSubmit_YAMLPipeline(t *testing.T) {
	srv, st := newTestServer(t)

	body := "name: yaml-smoke\njobs:\n  - id: a\n    type: noop\n"
	req := httptest.NewRequest("POST", "/api/v1/executions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/yaml")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	waitForStatus(t, st, resp.ExecutionID, types.ExecutionStatusCompleted)
}

func TestSubmit_RejectsCycle(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"jobs": [
		{"id": "a", "type": "noop", "depends_on": ["b"]},
		{"id": "b", "type": "noop", "depends_on": ["a"]}
	]}`
	req := httptest.NewRequest("POST", "/api/v1/executions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
	}
}

func TestSubmit_RejectsSchemaViolation(t *testing.T) {
	srv, _ := newTestServer(t)

	// Job id starting with a digit fails the schema before graph validation.
	body := `{"jobs": [{"id": "1bad", "type": "noop"}]}`
	req := httptest.NewRequest("POST", "/api/v1/executions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
	}
}

func TestGetExecution_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/executions/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error != ErrCodeNotFound {
		t.Fatalf("error code = %q, want %q", resp.Error, ErrCodeNotFound)
	}
}

func TestAuditEndpoint(t *testing.T) {
	srv, st := newTestServer(t)

	body := `{"jobs": [{"id": "a", "type": "noop"}]}`
	req := httptest.NewRequest("POST", "/api/v1/executions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", rec.Code)
	}

	var resp SubmitResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	waitForStatus(t, st, resp.ExecutionID, types.ExecutionStatusCompleted)

	req = httptest.NewRequest("GET", "/api/v1/executions/"+resp.ExecutionID+"/audit", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("audit status = %d", rec.Code)
	}

	var auditResp struct {
		Audit []*types.AuditEntry `json:"audit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &auditResp); err != nil {
		t.Fatalf("decode audit response: %v", err)
	}
	if len(auditResp.Audit) == 0 {
		t.Fatal("expected audit entries")
	}
	if auditResp.Audit[0].Action != types.AuditExecutionStarted {
		t.Fatalf("first audit action = %s, want %s", auditResp.Audit[0].Action, types.AuditExecutionStarted)
	}
}

func TestListHandlers(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/handlers", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Handlers []map[string]string `json:"handlers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Handlers) != 1 || resp.Handlers[0]["type"] != "noop" {
		t.Fatalf("handlers = %+v, want noop", resp.Handlers)
	}
}

func TestValidateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"jobs": [{"id": "a", "type": "noop"}]}`
	req := httptest.NewRequest("POST", "/api/v1/pipelines/validate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var result validator.ValidationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid pipeline, got %+v", result.Errors)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/health", "/healthz", "/ready"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}
