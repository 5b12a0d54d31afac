package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// AMQPPublisher dials the broker per event and publishes to a durable queue
// named after the event type. Messages are persistent.
type AMQPPublisher struct {
	url    string
	logger *slog.Logger
	dial   func(url string) (*amqp.Connection, error)
}

func NewAMQPPublisher(url string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{url: url, logger: logger, dial: amqp.Dial}
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := event.encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	conn, err := p.dial(p.url)
	if err != nil {
		p.logger.ErrorContext(ctx, "rabbitmq dial failed", "event", event.Type, "error", err)
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(event.Type, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", event.Type, err)
	}
	err = ch.PublishWithContext(ctx, "", event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "rabbitmq publish failed", "event", event.Type, "error", err)
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	p.logger.DebugContext(ctx, "event published", "event", event.Type, "event_id", event.ID)
	return nil
}

// LogPublisher is used when the broker is disabled; events are only logged.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "event not published, broker disabled", "event", event.Type, "event_id", event.ID)
	return nil
}
