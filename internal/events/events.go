// Package events publishes disbursement outcomes to a message queue so
// downstream consumers (indexers, alerting) can react without polling the
// transaction log. Publishing is fire-and-forget: a broker failure is logged
// and never propagates into the request path.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"faucet/internal/models"
)

// Publisher emits disbursement outcome events.
type Publisher interface {
	// Publish emits an event for a finished disbursement attempt. Failures are
	// logged, never returned.
	Publish(ctx context.Context, record *models.TransactionRecord)

	// Close releases the broker connection.
	Close() error
}

// NewPublisher returns an AMQP-backed publisher when events are enabled,
// otherwise a no-op publisher.
func NewPublisher(cfg models.EventsConfig) (Publisher, error) {
	if !cfg.Enabled {
		return NoopPublisher{}, nil
	}
	return NewAMQPPublisher(cfg)
}

// AMQPPublisher sends outcome events to a durable RabbitMQ queue.
type AMQPPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher connects to the broker and declares the outcome queue.
func NewAMQPPublisher(cfg models.EventsConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}

	return &AMQPPublisher{conn: conn, channel: channel, queue: cfg.Queue}, nil
}

// Publish sends the record as a persistent JSON message on the default
// exchange.
func (p *AMQPPublisher) Publish(ctx context.Context, record *models.TransactionRecord) {
	body, err := json.Marshal(record)
	if err != nil {
		slog.Warn("failed to marshal outcome event", "error", err, "recordId", record.ID)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		slog.Warn("failed to publish outcome event",
			"error", err,
			"queue", p.queue,
			"recordId", record.ID,
		)
	}
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NoopPublisher is used when events are disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *models.TransactionRecord) {}
func (NoopPublisher) Close() error                                       { return nil }
