// Package events publishes build lifecycle events to NATS. Publishing is
// optional: a nil Publisher is a safe no-op, so the pipeline never branches
// on whether eventing is configured.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// EventType enumerates build lifecycle events.
type EventType string

const (
	EventBuildStarted   EventType = "build.started"
	EventStageChanged   EventType = "build.stage"
	EventBuildCompleted EventType = "build.completed"
	EventBuildFailed    EventType = "build.failed"
)

// Event is the wire payload for one lifecycle event.
type Event struct {
	Type      EventType `json:"type"`
	BuildID   string    `json:"build_id"`
	Stage     string    `json:"stage,omitempty"`
	Progress  int       `json:"progress,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes build events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// Connect establishes the NATS connection. Returns an error when the URL is
// unreachable; callers treat eventing as optional and may proceed without it.
func Connect(url, subject string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("NATS event publishing enabled", "url", url, "subject", subject)
	return &Publisher{conn: conn, subject: subject}, nil
}

// Publish emits one event. Failures are logged, not returned: eventing is
// advisory and must never fail a build.
func (p *Publisher) Publish(evt Event) {
	if p == nil || p.conn == nil {
		return
	}
	evt.Timestamp = time.Now().UTC()

	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("Failed to marshal build event", "type", string(evt.Type), "error", err)
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		slog.Warn("Failed to publish build event", "type", string(evt.Type), "error", err)
	}
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
