package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher implements app.Notifier over a durable AMQP queue. Publishing
// is fire-and-forget: a failed publish is logged and dropped, matching the
// logged-side-effect delivery contract.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	log     *zap.Logger
}

func NewPublisher(url, queue string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &Publisher{conn: conn, channel: channel, queue: queue, log: log}, nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

func (p *Publisher) BadgeGranted(ctx context.Context, userID, badgeID string) {
	p.publish(ctx, "badge.granted", map[string]any{
		"userId":  userID,
		"badgeId": badgeID,
	})
}

func (p *Publisher) CourseUpdated(ctx context.Context, courseID string, fields []string) {
	p.publish(ctx, "course.updated", map[string]any{
		"courseId": courseID,
		"fields":   fields,
	})
}

func (p *Publisher) publish(ctx context.Context, eventType string, payload map[string]any) {
	body, err := json.Marshal(event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		p.log.Error("marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}
	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
	if err != nil {
		p.log.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}
