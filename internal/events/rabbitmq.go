package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher writes JSON messages to a durable topic exchange.
type RabbitPublisher struct {
	log      *slog.Logger
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	now      func() time.Time

	// amqp channels are not safe for concurrent publishing.
	mu sync.Mutex
}

func NewRabbitPublisher(log *slog.Logger, amqpURL, exchange string) (*RabbitPublisher, error) {
	const op = "events.NewRabbitPublisher"

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: open channel: %w", op, err)
	}

	err = channel.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: declare exchange: %w", op, err)
	}

	p := newRabbitPublisher(log, channel, exchange)
	p.conn = conn
	return p, nil
}

func newRabbitPublisher(log *slog.Logger, channel amqpChannel, exchange string) *RabbitPublisher {
	return &RabbitPublisher{
		log:      log,
		channel:  channel,
		exchange: exchange,
		now:      time.Now,
	}
}

func (p *RabbitPublisher) Publish(ctx context.Context, pattern string, data interface{}) error {
	const op = "events.RabbitPublisher.Publish"

	message := Message{
		Pattern:    pattern,
		Data:       data,
		ID:         uuid.NewString(),
		OccurredAt: p.now().UTC(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	err = p.channel.Publish(
		p.exchange,
		pattern,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    message.ID,
			Timestamp:    message.OccurredAt,
			Body:         body,
		},
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.log.DebugContext(ctx, "event published",
		slog.String("op", op),
		slog.String("pattern", pattern),
		slog.String("exchange", p.exchange),
		slog.String("message_id", message.ID),
	)
	return nil
}

func (p *RabbitPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
