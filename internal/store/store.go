package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/jmoiron/sqlx"
)

// querier is satisfied by both *sqlx.DB and *sqlx.Tx
type querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Rebind(query string) string
}

// Store is the Job Store: durable printers, print jobs and job history.
// Queries are written with ? placeholders and rebound for the active driver.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStorage creates a new Store instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) get(ctx context.Context, q querier, dest interface{}, query string, args ...interface{}) error {
	return q.GetContext(ctx, dest, q.Rebind(query), args...)
}

func (s *Store) sel(ctx context.Context, q querier, dest interface{}, query string, args ...interface{}) error {
	return q.SelectContext(ctx, dest, q.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...interface{}) (int64, error) {
	result, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

type printerRow struct {
	ID         int64     `db:"id"`
	ExternalID string    `db:"external_id"`
	Name       string    `db:"name"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r printerRow) toDomain() *domain.Printer {
	return &domain.Printer{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Name:       r.Name,
		Status:     domain.PrinterStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type jobRow struct {
	ID                int64          `db:"id"`
	PrinterID         int64          `db:"printer_id"`
	OwnerID           int64          `db:"owner_id"`
	DocumentURL       string         `db:"document_url"`
	DocumentName      string         `db:"document_name"`
	Copies            int            `db:"copies"`
	Duplex            bool           `db:"duplex"`
	Orientation       string         `db:"orientation"`
	Margins           sql.NullString `db:"margins"`
	PreparedPayload   sql.NullString `db:"prepared_payload"`
	Status            string         `db:"status"`
	ErrorMessage      string         `db:"error_message"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
	CompletedAt       sql.NullTime   `db:"completed_at"`
	PrinterName       string         `db:"printer_name"`
	PrinterExternalID string         `db:"printer_external_id"`
}

func (r jobRow) toDomain() (*domain.PrintJob, error) {
	job := &domain.PrintJob{
		ID:           r.ID,
		PrinterID:    r.PrinterID,
		OwnerID:      r.OwnerID,
		DocumentURL:  r.DocumentURL,
		DocumentName: r.DocumentName,
		Options: domain.RenderOptions{
			Copies:      r.Copies,
			Duplex:      r.Duplex,
			Orientation: domain.Orientation(r.Orientation),
		},
		Status:            domain.JobStatus(r.Status),
		ErrorMessage:      r.ErrorMessage,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		PrinterName:       r.PrinterName,
		PrinterExternalID: r.PrinterExternalID,
	}

	if hasJSON(r.Margins) {
		var margins domain.Margins
		if err := json.Unmarshal([]byte(r.Margins.String), &margins); err != nil {
			return nil, fmt.Errorf("failed to decode margins of job %d: %w", r.ID, err)
		}
		job.Options.Margins = &margins
	}

	if hasJSON(r.PreparedPayload) {
		var payload domain.PreparedPayload
		if err := json.Unmarshal([]byte(r.PreparedPayload.String), &payload); err != nil {
			return nil, fmt.Errorf("failed to decode prepared payload of job %d: %w", r.ID, err)
		}
		job.Payload = &payload
	}

	if r.CompletedAt.Valid {
		completedAt := r.CompletedAt.Time
		job.CompletedAt = &completedAt
	}

	return job, nil
}

// nullJSON encodes v, storing NULL for a nil pointer
func nullJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// hasJSON reports whether a JSON column holds a value; a stored "null" counts as absent
func hasJSON(s sql.NullString) bool {
	v := strings.TrimSpace(s.String)
	return s.Valid && v != "" && v != "null"
}
