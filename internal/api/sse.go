package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/forgeml/orchestrator/internal/metrics"
	"github.com/forgeml/orchestrator/internal/store"
	"github.com/forgeml/orchestrator/pkg/types"
)

// StreamEvents handles GET /api/v1/executions/{id}/events
// It implements Server-Sent Events (SSE) for streaming execution events.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	execID := mux.Vars(r)["id"]
	startTime := time.Now()

	requestID := GetRequestID(ctx, r)

	metrics.SSEActiveConnections.Inc()
	defer metrics.SSEActiveConnections.Dec()

	h.logger.Info("SSE connection opened",
		slog.String("execution_id", execID),
		slog.String("request_id", requestID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	if _, err := h.store.GetExecution(ctx, execID); err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			h.respondError(w, r, http.StatusNotFound, "execution not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get execution", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	lastEventID := r.Header.Get("Last-Event-ID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, r, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}
	flusher.Flush()

	h.writeSSE(w, flusher, &types.Event{
		ID:          "0",
		ExecutionID: execID,
		Type:        types.EventTypeHello,
		Timestamp:   time.Now().UTC(),
	})

	// Replay history when the client resumes from a previous position.
	if lastEventID != "" {
		events, err := h.store.GetEventsSince(ctx, execID, lastEventID)
		if err != nil {
			h.logger.Error("failed to get historical events", "error", err, "execution_id", execID)
		} else {
			for _, evt := range events {
				h.writeSSE(w, flusher, evt)
			}
		}
	}

	eventCh, cleanup, err := h.store.Subscribe(ctx, execID)
	if err != nil {
		h.logger.Error("failed to subscribe to events", "error", err, "execution_id", execID)
		return
	}
	defer cleanup()

	done := r.Context().Done()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			duration := time.Since(startTime)
			metrics.SSEConnectionDuration.Observe(duration.Seconds())
			h.logger.Info("SSE connection closed",
				slog.String("execution_id", execID),
				slog.String("request_id", requestID),
				slog.Duration("duration", duration),
				slog.String("reason", "client_disconnect"),
			)
			return

		case evt, ok := <-eventCh:
			if !ok {
				// Channel closed: the execution reached a terminal state.
				h.sendFinalEvent(ctx, w, flusher, execID)
				duration := time.Since(startTime)
				metrics.SSEConnectionDuration.Observe(duration.Seconds())
				h.logger.Info("SSE connection closed",
					slog.String("execution_id", execID),
					slog.String("request_id", requestID),
					slog.Duration("duration", duration),
					slog.String("reason", "execution_finished"),
				)
				return
			}
			h.writeSSE(w, flusher, evt)

		case <-heartbeat.C:
			h.writeComment(w, flusher, "heartbeat")
		}
	}
}

// writeSSE writes an event in SSE format and flushes.
func (h *Handlers) writeSSE(w http.ResponseWriter, flusher http.Flusher, evt *types.Event) {
	if evt == nil {
		return
	}
	if _, err := w.Write(evt.ToSSE()); err != nil {
		h.logger.Error("failed to write SSE event", "error", err)
		return
	}
	flusher.Flush()
}

// writeComment writes an SSE comment (for heartbeats).
func (h *Handlers) writeComment(w http.ResponseWriter, flusher http.Flusher, comment string) {
	if _, err := w.Write([]byte(": " + comment + "\n\n")); err != nil {
		h.logger.Error("failed to write SSE comment", "error", err)
		return
	}
	flusher.Flush()
}

// sendFinalEvent sends a closing event carrying the execution's final status.
func (h *Handlers) sendFinalEvent(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, execID string) {
	exec, err := h.store.GetExecution(ctx, execID)
	if err != nil {
		h.logger.Error("failed to get execution for final event", "error", err)
		return
	}

	data := map[string]interface{}{"status": exec.Status, "final": true}
	if exec.Error != "" {
		data["error"] = exec.Error
	}
	dataJSON, _ := json.Marshal(data)

	h.writeSSE(w, flusher, &types.Event{
		ID:          "final",
		ExecutionID: execID,
		Type:        types.EventTypeExecutionStatus,
		Timestamp:   time.Now().UTC(),
		Data:        dataJSON,
	})
}
