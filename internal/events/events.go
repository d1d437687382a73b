// Package events publishes message delivery outcomes for downstream
// consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/popeskul/insdr-dispatcher/internal/models"
)

const (
	RoutingKeySent   = "message.sent"
	RoutingKeyFailed = "message.failed"
)

type DeliveryEvent struct {
	MessageID         string               `json:"message_id"`
	AccountID         string               `json:"account_id"`
	Channel           models.ChannelType   `json:"channel,omitempty"`
	Status            models.MessageStatus `json:"status"`
	Cost              int64                `json:"cost,omitempty"`
	ProviderMessageID string               `json:"provider_message_id,omitempty"`
	Reason            string               `json:"reason,omitempty"`
	OccurredAt        time.Time            `json:"occurred_at"`
}

// RoutingKey maps a terminal status onto its topic.
func (e DeliveryEvent) RoutingKey() string {
	if e.Status == models.MessageStatusSent {
		return RoutingKeySent
	}
	return RoutingKeyFailed
}

type Publisher interface {
	Publish(ctx context.Context, event DeliveryEvent) error
	Close() error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DeliveryEvent) error { return nil }
func (NopPublisher) Close() error                                 { return nil }

// AMQPPublisher writes events to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event DeliveryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, event.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.MessageID,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s for message %s: %w", event.RoutingKey(), event.MessageID, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	if p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}
