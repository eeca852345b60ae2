package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forgeml/orchestrator/pkg/types"
)

func TestStreamEvents_ReplayFromLastEventID(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	execID, err := st.CreateExecution(ctx, "replay", []types.JobSpec{{ID: "a", Type: "noop"}})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		evt, err := st.AppendEvent(ctx, execID, &types.EventInput{
			Type: types.EventTypeLog,
			Data: map[string]int{"seq": i},
		})
		if err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
		ids = append(ids, evt.ID)
	}

	// Terminal status closes the subscription, which ends the stream.
	go func() {
		time.Sleep(100 * time.Millisecond)
		st.UpdateExecutionStatus(ctx, execID, types.ExecutionStatusCompleted, "")
	}()

	req := httptest.NewRequest("GET", "/api/v1/executions/"+execID+"/events", nil)
	req.Header.Set("Last-Event-ID", ids[0])
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	body := rec.Body.String()

	if !strings.Contains(body, "event: hello\n") {
		t.Error("stream should open with a hello event")
	}
	if strings.Contains(body, "id: "+ids[0]+"\n") {
		t.Errorf("event %s at the cursor should not be replayed", ids[0])
	}
	for _, id := range ids[1:] {
		if !strings.Contains(body, "id: "+id+"\n") {
			t.Errorf("event %s after the cursor should be replayed", id)
		}
	}
	if !strings.Contains(body, `"final":true`) {
		t.Error("stream should close with a final status event")
	}
	if !strings.Contains(body, string(types.ExecutionStatusCompleted)) {
		t.Error("final event should carry the terminal status")
	}
}

func TestStreamEvents_UnknownExecution(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/executions/nope/events", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
