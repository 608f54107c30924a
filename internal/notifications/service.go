package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"vmanga/internal/config"
)

const userAgent = "vmanga/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventStuckReset       Event = "stuck_reset"
	EventMutationFailed   Event = "mutation_failed"
	EventDaemonStarted    Event = "daemon_started"
	EventTestNotification Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes events to the configured transport.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		stuckReset: cfg.Notifications.StuckReset,
		errors:     cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	stuckReset bool
	errors     bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventStuckReset:
		if !n.stuckReset {
			return message{}, false
		}
		jobCount := payload.num("jobs")
		fileCount := payload.num("files")
		body := fmt.Sprintf("Reset %d stuck %s in %d %s", jobCount, plural(jobCount, "job", "jobs"), fileCount, plural(fileCount, "spreadsheet", "spreadsheets"))
		if detail := payload.str("detail"); detail != "" {
			body += "\n" + detail
		}
		return message{
			title: "vmanga - Stuck Jobs Reset",
			body:  body,
			tags:  []string{"vmanga", "watchdog", "reset"},
		}, true
	case EventMutationFailed:
		if !n.errors {
			return message{}, false
		}
		var b strings.Builder
		b.WriteString("Could not ")
		b.WriteString(fallback(payload.str("operation"), "update spreadsheet"))
		if sheet := payload.str("sheet"); sheet != "" {
			b.WriteString(" in ")
			b.WriteString(filepath.Base(sheet))
		}
		b.WriteString(": ")
		b.WriteString(fallback(payload.str("error"), "unknown error"))
		return message{
			title:    "vmanga - Action Failed",
			body:     b.String(),
			tags:     []string{"vmanga", "error", "alert"},
			priority: "high",
		}, true
	case EventDaemonStarted:
		files := payload.num("files")
		return message{
			title:    "vmanga - Daemon Started",
			body:     fmt.Sprintf("Watching %d %s", files, plural(files, "spreadsheet", "spreadsheets")),
			tags:     []string{"vmanga", "daemon"},
			priority: "low",
		}, true
	case EventTestNotification:
		return message{
			title:    "vmanga - Test",
			body:     "Notification system test",
			tags:     []string{"vmanga", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) num(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
