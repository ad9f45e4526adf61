package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
)

type jobEventRow struct {
	EventID      string    `db:"event_id"`
	JobID        int64     `db:"job_id"`
	OwnerID      int64     `db:"owner_id"`
	PrinterID    int64     `db:"printer_id"`
	Status       string    `db:"status"`
	ErrorMessage string    `db:"error_message"`
	OccurredAt   time.Time `db:"occurred_at"`
	RecordedAt   time.Time `db:"recorded_at"`
}

// RecordJobEvent stores a lifecycle event once; a redelivered event id is ignored.
// It reports whether a row was inserted.
func (s *Store) RecordJobEvent(ctx context.Context, event *domain.JobEvent) (bool, error) {
	affected, err := s.exec(ctx, s.db, `
		INSERT INTO job_events (
			event_id, job_id, owner_id, printer_id,
			status, error_message, occurred_at, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`,
		event.EventID, event.JobID, event.OwnerID, event.PrinterID,
		event.Status, event.ErrorMessage, event.OccurredAt.UTC(), s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record job event: %w", err)
	}
	return affected > 0, nil
}

// ListJobEvents returns a job's recorded lifecycle events in the order they occurred
func (s *Store) ListJobEvents(ctx context.Context, jobID int64) ([]*domain.JobEvent, error) {
	var rows []jobEventRow
	err := s.sel(ctx, s.db, &rows, `
		SELECT event_id, job_id, owner_id, printer_id, status, error_message, occurred_at, recorded_at
		FROM job_events
		WHERE job_id = ?
		ORDER BY occurred_at, id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job events: %w", err)
	}

	events := make([]*domain.JobEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, &domain.JobEvent{
			EventID:      row.EventID,
			JobID:        row.JobID,
			OwnerID:      row.OwnerID,
			PrinterID:    row.PrinterID,
			Status:       domain.JobStatus(row.Status),
			ErrorMessage: row.ErrorMessage,
			OccurredAt:   row.OccurredAt,
			RecordedAt:   row.RecordedAt,
		})
	}
	return events, nil
}
