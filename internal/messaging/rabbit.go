// internal/messaging/rabbit.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"clonebot/internal/metrics"
	"clonebot/internal/model"
)

// Publisher delivers tenant lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.Event) error { return nil }

type RabbitClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	URL     string
	queue   string
	logger  *zap.Logger

	mu sync.Mutex
}

func NewRabbitClient(url, queue string, logger *zap.Logger) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	r := &RabbitClient{
		conn:    conn,
		channel: ch,
		URL:     url,
		queue:   queue,
		logger:  logger.Named("rabbit"),
	}
	if err := r.DeclareQueue(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *RabbitClient) Queue() string {
	return r.queue
}

// DeclareQueue creates the durable event queue and its dead-letter queue.
func (r *RabbitClient) DeclareQueue() error {
	dlqName := r.queue + "_dlq"

	_, err := r.channel.QueueDeclare(
		dlqName,
		true, false, false, false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqName,
	}
	_, err = r.channel.QueueDeclare(
		r.queue,
		true, false, false, false,
		args,
	)
	if err != nil {
		return fmt.Errorf("declare main queue: %w", err)
	}

	r.logger.Info("queues declared", zap.String("queue", r.queue))
	return nil
}

// Publish sends ev to the event queue as persistent JSON.
func (r *RabbitClient) Publish(ctx context.Context, ev model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.channel.Publish("", r.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", r.queue, err)
	}
	return nil
}

func encodeEvent(ev model.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID.String(),
		Type:         string(ev.Kind),
		Timestamp:    ev.CreatedAt,
		Body:         body,
	}, nil
}

// Close cleans up connection and channel
func (r *RabbitClient) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	if err := r.conn.Close(); err != nil {
		return err
	}
	return nil
}

func (r *RabbitClient) UpdateQueueDepth() {
	r.mu.Lock()
	q, err := r.channel.QueueInspect(r.queue)
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn("failed to inspect queue", zap.String("queue", r.queue), zap.Error(err))
		return
	}

	metrics.QueueDepth.WithLabelValues(r.queue).Set(float64(q.Messages))
}
