package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const sourceHeader = "storefront"

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes workflow events as persistent JSON messages on a
// durable topic exchange and waits for the broker to confirm each one.
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       channel
	acks     <-chan amqp.Confirmation
	exchange string

	mu sync.Mutex
	// lastTag is the delivery tag the broker assigned to the most recent
	// publish on ch. Tags start at 1 once confirm mode is on.
	lastTag uint64
}

func DialRabbit(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 16))

	return &RabbitPublisher{conn: conn, ch: ch, acks: acks, exchange: exchange}, nil
}

// Publish is serialized so delivery tags follow the publish order. A caller
// that gives up on its confirm leaves it queued; the next Publish skips it by
// tag instead of taking it as its own.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"x-source": sourceHeader},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.lastTag++

	if p.acks == nil {
		return nil
	}
	return p.awaitConfirm(ctx, routingKey, p.lastTag)
}

func (p *RabbitPublisher) awaitConfirm(ctx context.Context, routingKey string, tag uint64) error {
	for {
		select {
		case conf, ok := <-p.acks:
			if !ok {
				return errors.New("rabbitmq channel closed before confirm")
			}
			if conf.DeliveryTag < tag {
				continue
			}
			if !conf.Ack {
				return fmt.Errorf("publish %s: nack from broker", routingKey)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *RabbitPublisher) Ping(ctx context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

func (p *RabbitPublisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
