package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/print-relay/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
		slog.String("worker_id", w.workerID),
	)
}

// workerLoop records events until the dispatcher closes eventsChan. It keeps
// draining after cancellation so every handed-off delivery is acked or nacked.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for t := range w.eventsChan {
		err := w.processEvent(ctx, t)
		if err == nil {
			if ackErr := t.delivery.Ack(false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("event_id", t.eventID),
					slog.String("error", ackErr.Error()),
				)
			}
			continue
		}

		requeue := w.shouldRequeue(err)
		w.logger.Error("Event processing failed",
			slog.String("worker_name", workerName),
			slog.String("event_id", t.eventID),
			slog.Int64("job_id", t.jobID),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)

		if nackErr := t.delivery.Nack(false, requeue); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.String("event_id", t.eventID),
				slog.String("error", nackErr.Error()),
			)
		}
	}

	w.logger.Debug("Worker goroutine stopped", slog.String("worker_name", workerName))
}

// shouldRequeue requeues only transient failures
func (w *Worker) shouldRequeue(err error) bool {
	return domain.IsRetryable(err)
}
