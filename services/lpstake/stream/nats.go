package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"lpstaking/core/events"
	"lpstaking/core/types"
	"lpstaking/observability"
)

// DefaultSubject prefixes every published event subject.
const DefaultSubject = "lpstake.events"

// Message is the JSON payload carried on every stream.
type Message struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func newMessage(evt *types.Event) Message {
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return Message{Type: evt.Type, Attributes: attrs}
}

type natsConn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards committed events to NATS under
// "<subject>.<event type>".
type Publisher struct {
	conn    natsConn
	subject string
	logger  *slog.Logger
	closer  func()
}

// Connect dials url and returns a publisher. Reconnects are retried
// indefinitely so a broker restart does not take the daemon down.
func Connect(url, subject string, log *slog.Logger) (*Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url required")
	}
	nc, err := nats.Connect(url,
		nats.Name("lpstaked"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := NewPublisher(nc, subject, log)
	p.closer = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn natsConn, subject string, log *slog.Logger) *Publisher {
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{conn: conn, subject: subject, logger: log}
}

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(eventType string) string {
	return p.subject + "." + eventType
}

// Emit implements events.Emitter.
func (p *Publisher) Emit(evt events.Event) {
	if p == nil || p.conn == nil || evt == nil {
		return
	}
	wire := events.ToWire(evt)
	data, err := json.Marshal(newMessage(wire))
	if err == nil {
		err = p.conn.Publish(p.Subject(wire.Type), data)
	}
	if err != nil {
		observability.Events().RecordDropped(wire.Type, "nats")
		p.logger.Warn("publish event failed",
			slog.String("type", wire.Type),
			slog.String("error", err.Error()))
		return
	}
	observability.Events().RecordPublished(wire.Type, "nats")
}

// Close drains the connection when the publisher owns it.
func (p *Publisher) Close() {
	if p != nil && p.closer != nil {
		p.closer()
	}
}
