package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/print-relay/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer starts consuming from the history queue. QoS is applied by the rabbitmq client.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.source.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// startMessageDispatcher decodes deliveries and hands them to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started", slog.String("worker_id", w.workerID))

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - stop requested")
			return

		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			msg, err := events.Decode(delivery.Body)
			if err != nil {
				w.logger.Error("Discarding malformed lifecycle message",
					slog.String("error", err.Error()),
					slog.String("routing_key", delivery.RoutingKey),
				)
				// malformed messages go to the dead-letter exchange, if any
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			t := &task{
				delivery: delivery,
				eventID:  msg.EventID,
				jobID:    msg.JobID,
				event:    msg.ToDomain(),
			}

			select {
			case w.eventsChan <- t:
				w.logger.Debug("Event dispatched to worker pool",
					slog.String("event_id", msg.EventID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-w.stopChan:
				w.requeueOnShutdown(delivery)
				return
			case <-ctx.Done():
				w.requeueOnShutdown(delivery)
				return
			}
		}
	}
}

func (w *Worker) requeueOnShutdown(delivery amqp.Delivery) {
	w.logger.Info("Message dispatcher stopped while dispatching event")
	if nackErr := delivery.Nack(false, true); nackErr != nil {
		w.logger.Error("Failed to NACK message on shutdown",
			slog.String("error", nackErr.Error()),
		)
	}
}
