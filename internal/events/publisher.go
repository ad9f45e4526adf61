package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
)

// Publisher announces job lifecycle transitions
type Publisher interface {
	Publish(ctx context.Context, job *domain.PrintJob) error
}

// Sender is the broker operation the AMQP publisher needs; *rabbitmq.Client satisfies it
type Sender interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// AMQPPublisher publishes lifecycle messages to a topic exchange
type AMQPPublisher struct {
	sender  Sender
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewAMQPPublisher creates a publisher; timeout bounds each publish including retries
func NewAMQPPublisher(sender Sender, timeout time.Duration, logger *slog.Logger) *AMQPPublisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &AMQPPublisher{
		sender:  sender,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// Publish sends the job's current status under routing key job.<status>
func (p *AMQPPublisher) Publish(ctx context.Context, job *domain.PrintJob) error {
	msg := NewMessage(job, p.now())
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode lifecycle message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.sender.PublishWithRetry(ctx, msg.RoutingKey(), body, ContentType); err != nil {
		return fmt.Errorf("failed to publish lifecycle event for job %d: %w", job.ID, err)
	}

	p.logger.Debug("Published lifecycle event",
		slog.String("event_id", msg.EventID),
		slog.Int64("job_id", job.ID),
		slog.String("routing_key", msg.RoutingKey()),
	)
	return nil
}

// NoopPublisher drops every event; used when events are disabled
type NoopPublisher struct{}

// Publish does nothing
func (NoopPublisher) Publish(context.Context, *domain.PrintJob) error {
	return nil
}
