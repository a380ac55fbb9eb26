package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/capflow/capflow-go/contracts"
	"github.com/capflow/capflow-go/internal/reliability"
	amqp "github.com/rabbitmq/amqp091-go"
)

// channel is the slice of *amqp.Channel the publisher uses, split out so
// tests can substitute a fake
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Close() error
}

// EventPublisher publishes workflow events to a topic exchange. It
// implements workflow.EventPublisher.
type EventPublisher struct {
	conn        *amqp.Connection
	channel     channel
	exchange    string
	routePrefix string
	retryPolicy reliability.RetryPolicy
	logger      *slog.Logger
	mu          sync.RWMutex
}

// PublisherOption configures the event publisher
type PublisherOption func(*EventPublisher)

// WithExchange sets the topic exchange name
func WithExchange(exchange string) PublisherOption {
	return func(p *EventPublisher) {
		p.exchange = exchange
	}
}

// WithRoutePrefix sets the routing key prefix prepended to event type names
func WithRoutePrefix(prefix string) PublisherOption {
	return func(p *EventPublisher) {
		p.routePrefix = prefix
	}
}

// WithRetryPolicy sets the retry policy for failed publishes
func WithRetryPolicy(policy reliability.RetryPolicy) PublisherOption {
	return func(p *EventPublisher) {
		p.retryPolicy = policy
	}
}

// WithPublisherLogger sets the publisher logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *EventPublisher) {
		p.logger = logger
	}
}

// NewEventPublisher dials the broker and declares the topic exchange
func NewEventPublisher(connectionString string, opts ...PublisherOption) (*EventPublisher, error) {
	p := &EventPublisher{
		exchange:    "capflow.events",
		routePrefix: "workflow.",
		retryPolicy: reliability.NewExponentialBackoff(100*time.Millisecond, 5*time.Second, 2.0, 3),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	conn, err := amqp.Dial(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.channel = ch
	return p, nil
}

// PublishEvent implements workflow.EventPublisher. The event is serialized
// as JSON and routed by its type name; transient failures are retried per
// the policy.
func (p *EventPublisher) PublishEvent(ctx context.Context, event contracts.Event) error {
	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()

	if ch == nil {
		return fmt.Errorf("event publisher is closed")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return reliability.PermanentError{Err: fmt.Errorf("failed to serialize event: %w", err)}
	}

	routingKey := p.routePrefix + event.GetType()
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.GetID(),
		Timestamp:    event.GetTimestamp(),
		Type:         event.GetType(),
		Body:         body,
	}

	err = reliability.Retry(ctx, p.retryPolicy, func() error {
		return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, publishing)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.GetType(), err)
	}

	p.logger.Debug("event published",
		"eventType", event.GetType(),
		"aggregateId", event.GetAggregateID(),
		"routingKey", routingKey)
	return nil
}

// Close releases the channel and connection
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
