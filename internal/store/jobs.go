package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
)

const jobSelect = `
	SELECT
		j.id, j.printer_id, j.owner_id, j.document_url, j.document_name,
		j.copies, j.duplex, j.orientation, j.margins, j.prepared_payload,
		j.status, j.error_message, j.created_at, j.updated_at, j.completed_at,
		p.name AS printer_name, p.external_id AS printer_external_id
	FROM print_jobs j
	JOIN printers p ON p.id = j.printer_id
`

// CreatePendingJob persists a pending job and marks its printer busy in one transaction.
// It fails with ErrPrinterOffline if the printer went offline since it was resolved.
func (s *Store) CreatePendingJob(ctx context.Context, sub *domain.Submission, printerID int64) (*domain.PrintJob, error) {
	margins, err := nullJSON(sub.Options.Margins)
	if err != nil {
		return nil, fmt.Errorf("failed to encode margins: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	affected, err := s.exec(ctx, tx,
		`UPDATE printers SET status = ?, updated_at = ? WHERE id = ? AND status <> ?`,
		domain.PrinterStatusBusy, now, printerID, domain.PrinterStatusOffline,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark printer busy: %w", err)
	}
	if affected == 0 {
		if _, err := s.getPrinter(ctx, tx, `SELECT `+printerColumns+` FROM printers WHERE id = ?`, printerID); err != nil {
			return nil, err
		}
		return nil, domain.ErrPrinterOffline
	}

	query := `
		INSERT INTO print_jobs (
			printer_id, owner_id, document_url, document_name,
			copies, duplex, orientation, margins,
			status, error_message, created_at, updated_at
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, '', ?, ?
		)
		RETURNING id
	`

	var id int64
	err = s.get(ctx, tx, &id, query,
		printerID, sub.OwnerID, sub.DocumentURL, sub.DocumentName,
		sub.Options.Copies, sub.Options.Duplex, sub.Options.Orientation, margins,
		domain.JobStatusPending, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	job, err := s.getJob(ctx, tx, jobSelect+` WHERE j.id = ?`, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job creation: %w", err)
	}

	s.logger.Info("Job created",
		slog.Int64("job_id", id),
		slog.Int64("printer_id", printerID),
		slog.Int64("owner_id", sub.OwnerID),
	)

	return job, nil
}

// MarkReady attaches the prepared payload and moves the job from pending to ready
func (s *Store) MarkReady(ctx context.Context, jobID int64, payload *domain.PreparedPayload) (*domain.PrintJob, error) {
	encoded, err := nullJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prepared payload: %w", err)
	}

	affected, err := s.exec(ctx, s.db,
		`UPDATE print_jobs SET prepared_payload = ?, status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		encoded, domain.JobStatusReady, s.now(), jobID, domain.JobStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark job ready: %w", err)
	}
	if affected == 0 {
		return nil, s.missOrStale(ctx, jobID)
	}

	return s.GetJob(ctx, jobID)
}

// TransitionStatus moves a job from one status to another using optimistic locking.
// completed_at is only set the first time the job completes.
func (s *Store) TransitionStatus(ctx context.Context, jobID int64, from, to domain.JobStatus, errorMsg string) (*domain.PrintJob, error) {
	now := s.now()

	var (
		affected int64
		err      error
	)
	if to == domain.JobStatusCompleted {
		affected, err = s.exec(ctx, s.db, `
			UPDATE print_jobs
			SET status = ?,
			    error_message = ?,
			    completed_at = COALESCE(completed_at, ?),
			    updated_at = ?
			WHERE id = ? AND status = ?
		`, to, errorMsg, now, now, jobID, from)
	} else {
		affected, err = s.exec(ctx, s.db, `
			UPDATE print_jobs
			SET status = ?,
			    error_message = ?,
			    updated_at = ?
			WHERE id = ? AND status = ?
		`, to, errorMsg, now, jobID, from)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}
	if affected == 0 {
		s.logger.Warn("Job status update lost optimistic lock",
			slog.Int64("job_id", jobID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return nil, s.missOrStale(ctx, jobID)
	}

	s.logger.Info("Job status updated",
		slog.Int64("job_id", jobID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	return s.GetJob(ctx, jobID)
}

// ReplaceFailureMessage overwrites the error of an already failed job
func (s *Store) ReplaceFailureMessage(ctx context.Context, jobID int64, errorMsg string) (*domain.PrintJob, error) {
	affected, err := s.exec(ctx, s.db,
		`UPDATE print_jobs SET error_message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		errorMsg, s.now(), jobID, domain.JobStatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update job error: %w", err)
	}
	if affected == 0 {
		return nil, s.missOrStale(ctx, jobID)
	}
	return s.GetJob(ctx, jobID)
}

// GetJob retrieves a job with its printer name and external id
func (s *Store) GetJob(ctx context.Context, jobID int64) (*domain.PrintJob, error) {
	return s.getJob(ctx, s.db, jobSelect+` WHERE j.id = ?`, jobID)
}

// GetJobForOwner retrieves a job only if it belongs to ownerID
func (s *Store) GetJobForOwner(ctx context.Context, jobID, ownerID int64) (*domain.PrintJob, error) {
	return s.getJob(ctx, s.db, jobSelect+` WHERE j.id = ? AND j.owner_id = ?`, jobID, ownerID)
}

func (s *Store) getJob(ctx context.Context, q querier, query string, args ...interface{}) (*domain.PrintJob, error) {
	var row jobRow
	if err := s.get(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain()
}

// ListReady returns the owner's ready jobs, oldest first
func (s *Store) ListReady(ctx context.Context, ownerID int64) ([]*domain.PrintJob, error) {
	return s.listJobs(ctx, jobSelect+` WHERE j.owner_id = ? AND j.status = ? ORDER BY j.created_at, j.id`,
		ownerID, domain.JobStatusReady)
}

// ListJobs returns up to PageSize+1 of the owner's jobs, newest first, so the caller can tell
// whether another page exists
func (s *Store) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.PrintJob, error) {
	query := jobSelect + ` WHERE j.owner_id = ?`
	args := []interface{}{filter.OwnerID}

	if filter.Status != "" {
		query += ` AND j.status = ?`
		args = append(args, filter.Status)
	}

	if filter.Cursor != nil {
		query += ` AND (j.created_at < ? OR (j.created_at = ? AND j.id < ?))`
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.JobID)
	}

	// created_at DESC, id DESC keeps pages stable when timestamps collide
	query += ` ORDER BY j.created_at DESC, j.id DESC LIMIT ?`
	args = append(args, filter.PageSize+1)

	return s.listJobs(ctx, query, args...)
}

// ListStaleBusyPrinters returns busy printers with no job still in flight
func (s *Store) ListStaleBusyPrinters(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.sel(ctx, s.db, &ids, `
		SELECT p.id FROM printers p
		WHERE p.status = ?
		  AND NOT EXISTS (
			SELECT 1 FROM print_jobs j
			WHERE j.printer_id = p.id AND j.status IN (?, ?, ?)
		  )
		ORDER BY p.id
	`, domain.PrinterStatusBusy, domain.JobStatusPending, domain.JobStatusReady, domain.JobStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale busy printers: %w", err)
	}
	return ids, nil
}

// CountJobs returns the total number of jobs
func (s *Store) CountJobs(ctx context.Context) (int, error) {
	var count int
	if err := s.get(ctx, s.db, &count, `SELECT COUNT(*) FROM print_jobs`); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

func (s *Store) listJobs(ctx context.Context, query string, args ...interface{}) ([]*domain.PrintJob, error) {
	var rows []jobRow
	if err := s.sel(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.PrintJob, 0, len(rows))
	for _, row := range rows {
		job, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// missOrStale distinguishes a missing job from a lost optimistic lock
func (s *Store) missOrStale(ctx context.Context, jobID int64) error {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	return domain.ErrStaleStatus
}

// SetClock overrides the time source; used by tests
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}
