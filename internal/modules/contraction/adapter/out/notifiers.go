package out

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"laborwatch/internal/modules/contraction/domain"
	contractionout "laborwatch/internal/modules/contraction/port/out"
	"laborwatch/internal/platform/id"
)

// LogNotifier records urgent events in the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return LogNotifier{logger: logger}
}

func (n LogNotifier) Notify(_ context.Context, event domain.Event, level domain.UrgencyLevel) error {
	n.logger.Warn("urgency alert", "level", level.String(), "event_id", event.ID, "duration_s", event.Seconds())
	return nil
}

// BellNotifier rings the terminal bell.
type BellNotifier struct {
	w io.Writer
}

func NewBellNotifier(w io.Writer) BellNotifier {
	return BellNotifier{w: w}
}

func (n BellNotifier) Notify(context.Context, domain.Event, domain.UrgencyLevel) error {
	_, err := io.WriteString(n.w, "\a")
	return err
}

// WebhookPayload is the JSON body posted for an urgent event.
type WebhookPayload struct {
	AlertID     string    `json:"alert_id"`
	Level       string    `json:"level"`
	EventID     int64     `json:"event_id"`
	DurationSec float64   `json:"duration"`
	RecordedAt  time.Time `json:"timestamp"`
	Message     string    `json:"message"`
}

type WebhookNotifier struct {
	url    string
	client *http.Client
	ids    id.Generator
}

func NewWebhookNotifier(url string, ids id.Generator) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}, ids: ids}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event domain.Event, level domain.UrgencyLevel) error {
	body, err := json.Marshal(WebhookPayload{
		AlertID:     n.ids.New(),
		Level:       level.String(),
		EventID:     event.ID,
		DurationSec: event.Seconds(),
		RecordedAt:  event.RecordedAt.UTC(),
		Message:     fmt.Sprintf("contractions averaging under threshold: last %.0fs", event.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("deliver webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// MultiNotifier fans an alert out to every notifier and joins their errors.
type MultiNotifier []contractionout.AlertNotifier

func (m MultiNotifier) Notify(ctx context.Context, event domain.Event, level domain.UrgencyLevel) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event, level); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
