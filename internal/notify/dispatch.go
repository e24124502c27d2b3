package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Channel delivers one event to one destination.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Dispatcher fans an event out to all configured channels concurrently and
// collects per-channel failures into one error.
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger
}

// NewDispatcher builds a dispatcher over the given channels.
func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{channels: channels, logger: logger}
}

// Notify implements Notifier. Each channel gets its own goroutine; a failed
// channel is logged and reported but does not stop the others.
func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range d.channels {
		g.Go(func() error {
			if err := ch.Deliver(ctx, event); err != nil {
				d.logger.Warn("notification delivery failed",
					"channel", ch.Name(), "kind", string(event.Kind), "error", err)
				return fmt.Errorf("%s: %w", ch.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// LogChannel writes events to the structured log. Useful as the default
// channel and in tests.
type LogChannel struct {
	Logger *slog.Logger
}

// Name implements Channel.
func (LogChannel) Name() string { return "log" }

// Deliver implements Channel.
func (c LogChannel) Deliver(_ context.Context, event Event) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"kind", string(event.Kind)}
	if event.Issue != nil {
		attrs = append(attrs, "issue", event.Issue.ID, "subject", event.Issue.Subject)
	}
	if event.Relation != nil {
		attrs = append(attrs, "relation", string(event.Relation.Type),
			"from", event.Relation.IssueFromID, "to", event.Relation.IssueToID)
	}
	if len(event.Recipients) > 0 {
		attrs = append(attrs, "recipients", strings.Join(event.Recipients, ","))
	}
	logger.Info("issue event", attrs...)
	return nil
}

// MailChannel sends plain-text mail through the system mail command.
type MailChannel struct{}

// Name implements Channel.
func (MailChannel) Name() string { return "email" }

// Deliver implements Channel.
func (MailChannel) Deliver(ctx context.Context, event Event) error {
	if len(event.Recipients) == 0 || event.Issue == nil {
		return nil
	}
	subject := fmt.Sprintf("[#%d] %s", event.Issue.ID, event.Issue.Subject)
	body := mailBody(event)
	for _, to := range event.Recipients {
		cmd := exec.CommandContext(ctx, "mail", "-s", subject, to)
		cmd.Stdin = strings.NewReader(body)
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("mail to %s: %w", to, err)
		}
	}
	return nil
}

func mailBody(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue #%d was %s.\n\n", event.Issue.ID, pastTense(event.Kind))
	if event.Journal != nil {
		for _, d := range event.Journal.Details {
			old, now := "(none)", "(none)"
			if d.OldValue != nil {
				old = *d.OldValue
			}
			if d.NewValue != nil {
				now = *d.NewValue
			}
			fmt.Fprintf(&b, "  %s: %s -> %s\n", d.PropKey, old, now)
		}
		if event.Journal.Notes != "" {
			fmt.Fprintf(&b, "\n%s\n", event.Journal.Notes)
		}
	}
	return b.String()
}

func pastTense(k Kind) string {
	switch k {
	case IssueCreated:
		return "created"
	case IssueMoved:
		return "moved"
	case IssueCopied:
		return "copied"
	default:
		return "updated"
	}
}

// WebhookChannel POSTs the event as JSON. Transient HTTP failures are
// retried with exponential backoff before giving up.
type WebhookChannel struct {
	URL    string
	Client *http.Client
}

// Name implements Channel.
func (WebhookChannel) Name() string { return "webhook" }

// Deliver implements Channel.
func (c WebhookChannel) Deliver(ctx context.Context, event Event) error {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Issuekit-Event", string(event.Kind))

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, body))
		}
		return nil
	}, policy)
}
