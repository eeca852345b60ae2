// Package notify delivers execution completion notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgeml/orchestrator/pkg/types"
)

// Notification describes a terminal execution transition or a critical
// resource violation.
type Notification struct {
	ExecutionID string                   `json:"execution_id"`
	Name        string                   `json:"name,omitempty"`
	Status      types.ExecutionStatus    `json:"status,omitempty"`
	Error       string                   `json:"error,omitempty"`
	Violation   *types.ResourceViolation `json:"violation,omitempty"`
	Timestamp   time.Time                `json:"timestamp"`
}

// Notifier delivers a notification. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n *Notification) error {
	if n.Violation != nil {
		l.logger.Warn("critical resource violation",
			slog.String("execution_id", n.ExecutionID),
			slog.String("job_id", n.Violation.JobID),
			slog.String("kind", string(n.Violation.Kind)),
			slog.Float64("observed", n.Violation.Observed),
			slog.Float64("limit", n.Violation.Limit),
		)
		return nil
	}
	l.logger.Info("execution finished",
		slog.String("execution_id", n.ExecutionID),
		slog.String("name", n.Name),
		slog.String("status", string(n.Status)),
		slog.String("error", n.Error),
	)
	return nil
}

// WebhookNotifier POSTs notifications as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier. timeout bounds each delivery.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans a notification out to several notifiers. Delivery failures are
// collected; every notifier is attempted.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a composite notifier.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Notify(ctx context.Context, n *Notification) error {
	var firstErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
