package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/print-relay/internal/domain"
)

// processEvent records one lifecycle event. Duplicate deliveries are acknowledged without a second row.
func (w *Worker) processEvent(ctx context.Context, t *task) error {
	// in-flight deliveries are still recorded after shutdown begins
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.jobTimeout)
	defer cancel()

	inserted, err := w.recorder.RecordJobEvent(recordCtx, t.event)
	if err != nil {
		if t.delivery.Redelivered {
			return fmt.Errorf("failed to record redelivered event %s: %w", t.eventID, err)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to record event %s: %w", t.eventID, err))
	}

	if !inserted {
		w.logger.Info("Duplicate lifecycle event ignored",
			slog.String("event_id", t.eventID),
			slog.Int64("job_id", t.jobID),
		)
		return nil
	}

	w.logger.Info("Lifecycle event recorded",
		slog.String("event_id", t.eventID),
		slog.Int64("job_id", t.jobID),
		slog.String("status", string(t.event.Status)),
	)
	return nil
}
