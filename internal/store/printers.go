package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/print-relay/internal/domain"
)

const printerColumns = `id, external_id, name, status, created_at, updated_at`

// UpsertPrinter registers a printer by external id, updating its name if it already exists.
// The status of an existing printer is left alone.
func (s *Store) UpsertPrinter(ctx context.Context, externalID, name string, status domain.PrinterStatus) (*domain.Printer, error) {
	query := `
		INSERT INTO printers (external_id, name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE
		SET name = excluded.name,
		    updated_at = excluded.updated_at
		RETURNING id
	`

	now := s.now()
	var id int64
	if err := s.get(ctx, s.db, &id, query, externalID, name, status, now, now); err != nil {
		return nil, fmt.Errorf("failed to upsert printer: %w", err)
	}

	return s.GetPrinter(ctx, id)
}

// GetPrinter retrieves a printer by its internal id
func (s *Store) GetPrinter(ctx context.Context, id int64) (*domain.Printer, error) {
	return s.getPrinter(ctx, s.db, `SELECT `+printerColumns+` FROM printers WHERE id = ?`, id)
}

// GetPrinterByExternalID retrieves a printer by its caller-chosen identifier
func (s *Store) GetPrinterByExternalID(ctx context.Context, externalID string) (*domain.Printer, error) {
	return s.getPrinter(ctx, s.db, `SELECT `+printerColumns+` FROM printers WHERE external_id = ?`, externalID)
}

// ResolvePrinter looks a printer up by whichever form of reference is set
func (s *Store) ResolvePrinter(ctx context.Context, ref domain.PrinterRef) (*domain.Printer, error) {
	if ref.ID != 0 {
		return s.GetPrinter(ctx, ref.ID)
	}
	return s.GetPrinterByExternalID(ctx, ref.ExternalID)
}

func (s *Store) getPrinter(ctx context.Context, q querier, query string, arg interface{}) (*domain.Printer, error) {
	var row printerRow
	if err := s.get(ctx, q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPrinterNotFound
		}
		return nil, fmt.Errorf("failed to get printer: %w", err)
	}
	return row.toDomain(), nil
}

// ListPrinters returns every printer ordered by id
func (s *Store) ListPrinters(ctx context.Context) ([]*domain.Printer, error) {
	var rows []printerRow
	if err := s.sel(ctx, s.db, &rows, `SELECT `+printerColumns+` FROM printers ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}

	printers := make([]*domain.Printer, 0, len(rows))
	for _, row := range rows {
		printers = append(printers, row.toDomain())
	}
	return printers, nil
}

// SetPrinterStatus unconditionally sets a printer's status
func (s *Store) SetPrinterStatus(ctx context.Context, id int64, status domain.PrinterStatus) (*domain.Printer, error) {
	affected, err := s.exec(ctx, s.db,
		`UPDATE printers SET status = ?, updated_at = ? WHERE id = ?`,
		status, s.now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update printer status: %w", err)
	}
	if affected == 0 {
		return nil, domain.ErrPrinterNotFound
	}

	s.logger.Info("Printer status updated",
		slog.Int64("printer_id", id),
		slog.String("status", string(status)),
	)

	return s.GetPrinter(ctx, id)
}

// RevertPrinterIfBusy sets a busy printer back to online and reports whether it did
func (s *Store) RevertPrinterIfBusy(ctx context.Context, id int64) (bool, error) {
	affected, err := s.exec(ctx, s.db,
		`UPDATE printers SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.PrinterStatusOnline, s.now(), id, domain.PrinterStatusBusy,
	)
	if err != nil {
		return false, fmt.Errorf("failed to revert printer status: %w", err)
	}
	return affected > 0, nil
}
