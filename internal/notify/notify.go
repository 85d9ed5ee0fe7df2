// Package notify delivers pipeline events to the external notification
// collaborator. Delivery is best-effort; a failed publish never blocks or
// fails the pipeline operation that produced the event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/nordbooks/autopost/internal/service"
)

// NATSNotifier publishes events to a NATS subject per tenant.
type NATSNotifier struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSNotifier connects to a NATS server. subjectPrefix defaults to
// "autopost.events".
func NewNATSNotifier(url, subjectPrefix string) (*NATSNotifier, error) {
	if subjectPrefix == "" {
		subjectPrefix = "autopost.events"
	}
	conn, err := nats.Connect(url, nats.Name("autopost"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSNotifier{conn: conn, subjectPrefix: subjectPrefix}, nil
}

// Publish sends one event to <prefix>.<tenant>.
func (n *NATSNotifier) Publish(_ context.Context, event service.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", n.subjectPrefix, event.TenantID)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (n *NATSNotifier) Close() error {
	return n.conn.Drain()
}

// LogNotifier writes events to the structured log. Used when no NATS server
// is configured, and as the fallback in tests.
type LogNotifier struct{}

// Publish logs the event.
func (LogNotifier) Publish(_ context.Context, event service.Event) error {
	slog.Info("Pipeline event",
		"type", event.Type,
		"tenant", event.TenantID,
		"subject", event.SubjectID,
		"message", event.Message,
		"count", event.Count)
	return nil
}
