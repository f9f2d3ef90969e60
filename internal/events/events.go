package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"reelvault/internal/config"
	"reelvault/internal/logging"
)

// Library event types
const (
	MovieUploaded              = "movie.uploaded"
	MovieDeleted               = "movie.deleted"
	MovieRequestCreated        = "movie_request.created"
	MovieRequestStatusChanged  = "movie_request.status_changed"
	IPAccessRequestCreated     = "ip_access_request.created"
	ThumbnailBackfillCompleted = "thumbnail.backfill_completed"
)

// Event is one library event as published on the wire
type Event struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// NewEvent stamps an event with the current time
func NewEvent(eventType string, payload map[string]interface{}) Event {
	return Event{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers library events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// New returns an AMQP publisher, or a no-op publisher when no broker URL is configured
func New(cfg config.EventsConfig) Publisher {
	if cfg.AMQPURL == "" {
		return NopPublisher{}
	}
	return NewAMQPPublisher(cfg.AMQPURL, cfg.Queue)
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// AMQPPublisher publishes persistent JSON messages to a durable queue on the
// default exchange. The connection is opened on first use and reopened after
// the broker drops it.
type AMQPPublisher struct {
	url    string
	queue  string
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zerolog.Logger
}

// NewAMQPPublisher creates a publisher for the given broker and queue
func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	return &AMQPPublisher{
		url:    url,
		queue:  queue,
		logger: logging.WithModule("events"),
	}
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}

	p.conn = conn
	p.ch = ch
	return ch, nil
}

// Publish sends the event. Failures are returned for the caller to log; they
// never undo the action that produced the event.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event.Type,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}

	p.logger.Debug().Str("event", event.Type).Str("queue", p.queue).Msg("Event published")
	return nil
}

// Close closes the broker connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the types of everything published so far, in order
func (r *Recorder) Types() []string {
	var types []string
	for _, e := range r.Events() {
		types = append(types, e.Type)
	}
	return types
}
