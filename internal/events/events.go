// Package events publishes workspace lifecycle events to an AMQP broker.
//
// Publishing is fire-and-forget: a broker outage degrades to a log line and
// never fails the operation that emitted the event. A nil *Publisher is
// valid and publishes nothing, so callers never guard call sites.
package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/paneward/paneward/internal/model"
)

// Event types, also used as routing key suffixes.
const (
	TypePaneCreated      = "pane.created"
	TypePaneOpened       = "pane.opened"
	TypeTabCreated       = "tab.created"
	TypeSnapshotCreated  = "snapshot.created"
	TypeSnapshotRestored = "snapshot.restored"
)

const publishTimeout = 3 * time.Second

// Envelope is the wire format every event shares.
type Envelope struct {
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Publisher owns one AMQP channel on a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	source   string
	log      *zap.Logger
}

// Connect dials the broker and declares the topic exchange. The source tag
// lands in every envelope's metadata.
func Connect(url, exchange, source string, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange, source: source, log: log}, nil
}

// Close releases the channel and connection. Nil-safe.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.ch.Close()
	p.conn.Close()
}

// RoutingKey maps an event type to its routing key.
func RoutingKey(eventType string) string { return "paneward." + eventType }

func (p *Publisher) publish(ctx context.Context, eventType string, payload any, meta map[string]string) {
	if p == nil {
		return
	}
	env := Envelope{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  map[string]string{"source": p.source},
	}
	for k, v := range meta {
		env.Metadata[k] = v
	}
	body, err := json.Marshal(env)
	if err != nil {
		p.log.Warn("dropping unencodable event", zap.String("type", eventType), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(eventType), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   env.Timestamp,
		Body:        body,
	})
	if err != nil {
		p.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

func (p *Publisher) PaneCreated(ctx context.Context, rec model.PaneRecord) {
	p.publish(ctx, TypePaneCreated, rec, map[string]string{"session": rec.Session})
}

func (p *Publisher) PaneOpened(ctx context.Context, rec model.PaneRecord) {
	p.publish(ctx, TypePaneOpened, rec, map[string]string{"session": rec.Session})
}

func (p *Publisher) TabCreated(ctx context.Context, rec model.TabRecord) {
	p.publish(ctx, TypeTabCreated, rec, map[string]string{"session": rec.Session})
}

func (p *Publisher) SnapshotCreated(ctx context.Context, snap *model.SessionSnapshot) {
	p.publish(ctx, TypeSnapshotCreated, snap, map[string]string{"session": snap.Session})
}

func (p *Publisher) SnapshotRestored(ctx context.Context, report *model.RestoreReport) {
	p.publish(ctx, TypeSnapshotRestored, report, map[string]string{"session": report.Session})
}
