package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType categorizes the kind of event.
type EventType string

const (
	EventTypeHello           EventType = "hello"
	EventTypeLog             EventType = "log"
	EventTypeJobStatus       EventType = "job_status"
	EventTypeExecutionStatus EventType = "execution_status"
	EventTypeProgress        EventType = "progress"
	EventTypeError           EventType = "error"

	// Control flow events
	EventTypeConditionEvaluated EventType = "condition_evaluated"
	EventTypeFanOutExpanded     EventType = "fan_out_expanded"
	EventTypeFanInAggregated    EventType = "fan_in_aggregated"

	// Lifecycle events
	EventTypeCheckpoint EventType = "checkpoint"
	EventTypeViolation  EventType = "violation"
	EventTypeCacheHit   EventType = "cache_hit"
)

// Event represents a single event in an execution's event stream.
type Event struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	Type        EventType       `json:"type"`
	JobID       string          `json:"job_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// EventInput is used when appending new events.
type EventInput struct {
	Type  EventType   `json:"type"`
	JobID string      `json:"job_id,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// ProgressEvent is the data payload for progress events.
type ProgressEvent struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

// ToSSE formats the event for Server-Sent Events protocol.
// Format: id: <id>\nevent: <type>\ndata: <json>\n\n
func (e *Event) ToSSE() []byte {
	data, _ := json.Marshal(e)
	return []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data))
}
