package printjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/cuongbtq/print-relay/internal/events"
)

// maxStatusAttempts bounds re-reads when a concurrent report wins the optimistic lock
const maxStatusAttempts = 3

// JobStore is the persistence the service needs; *store.Store satisfies it
type JobStore interface {
	ResolvePrinter(ctx context.Context, ref domain.PrinterRef) (*domain.Printer, error)
	UpsertPrinter(ctx context.Context, externalID, name string, status domain.PrinterStatus) (*domain.Printer, error)
	ListPrinters(ctx context.Context) ([]*domain.Printer, error)
	SetPrinterStatus(ctx context.Context, id int64, status domain.PrinterStatus) (*domain.Printer, error)
	RevertPrinterIfBusy(ctx context.Context, id int64) (bool, error)
	ListStaleBusyPrinters(ctx context.Context) ([]int64, error)

	CreatePendingJob(ctx context.Context, sub *domain.Submission, printerID int64) (*domain.PrintJob, error)
	MarkReady(ctx context.Context, jobID int64, payload *domain.PreparedPayload) (*domain.PrintJob, error)
	TransitionStatus(ctx context.Context, jobID int64, from, to domain.JobStatus, errorMsg string) (*domain.PrintJob, error)
	ReplaceFailureMessage(ctx context.Context, jobID int64, errorMsg string) (*domain.PrintJob, error)
	GetJobForOwner(ctx context.Context, jobID, ownerID int64) (*domain.PrintJob, error)
	ListReady(ctx context.Context, ownerID int64) ([]*domain.PrintJob, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.PrintJob, error)
	ListJobEvents(ctx context.Context, jobID int64) ([]*domain.JobEvent, error)
}

// Dispatcher delivers ready jobs to their owner
type Dispatcher interface {
	Dispatch(job *domain.PrintJob, owner int64)
}

// Service implements job submission, the ready-job pull and client status reports
type Service struct {
	store      JobStore
	preparer   Preparer
	dispatcher Dispatcher
	publisher  events.Publisher
	logger     *slog.Logger
}

// NewService creates a new print job service
func NewService(store JobStore, preparer Preparer, dispatcher Dispatcher, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		store:      store,
		preparer:   preparer,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// SubmitResult is a submitted job and the printer it targets
type SubmitResult struct {
	Job     *domain.PrintJob
	Printer *domain.Printer
}

// Submit validates the request, persists a pending job, prepares it and dispatches it as ready
func (s *Service) Submit(ctx context.Context, sub domain.Submission) (*SubmitResult, error) {
	sub.Normalize()
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	printer, err := s.store.ResolvePrinter(ctx, sub.Printer)
	if err != nil {
		return nil, err
	}
	if printer.Status == domain.PrinterStatusOffline {
		return nil, domain.ErrPrinterOffline
	}

	job, err := s.store.CreatePendingJob(ctx, &sub, printer.ID)
	if err != nil {
		return nil, err
	}
	printer.Status = domain.PrinterStatusBusy
	s.publish(ctx, job)

	payload, err := s.preparer.Prepare(job, printer)
	if err != nil {
		s.failPreparation(ctx, job, err)
		return nil, fmt.Errorf("failed to prepare job %d: %w", job.ID, err)
	}

	ready, err := s.store.MarkReady(ctx, job.ID, payload)
	if err != nil {
		s.failPreparation(ctx, job, err)
		return nil, err
	}
	s.dispatcher.Dispatch(ready, ready.OwnerID)
	s.publish(ctx, ready)

	s.logger.Info("Job submitted",
		slog.Int64("job_id", ready.ID),
		slog.Int64("owner_id", ready.OwnerID),
		slog.Int64("printer_id", printer.ID),
		slog.String("status", string(ready.Status)),
	)

	return &SubmitResult{Job: ready, Printer: printer}, nil
}

// failPreparation moves a job that could not be prepared to failed and frees its printer
func (s *Service) failPreparation(ctx context.Context, job *domain.PrintJob, cause error) {
	s.logger.Error("Job preparation failed",
		slog.Int64("job_id", job.ID),
		slog.Any("error", cause),
	)

	failed, err := s.store.TransitionStatus(ctx, job.ID, domain.JobStatusPending, domain.JobStatusFailed, "preparation failed: "+cause.Error())
	if err != nil {
		s.logger.Error("Failed to mark job failed",
			slog.Int64("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}
	s.revertPrinter(ctx, failed)
	s.publish(ctx, failed)
}

// ListReady returns the owner's jobs that are ready to execute
func (s *Service) ListReady(ctx context.Context, owner int64) ([]*domain.PrintJob, error) {
	return s.store.ListReady(ctx, owner)
}

// ListJobs pages through the owner's jobs, newest first
func (s *Service) ListJobs(ctx context.Context, filter domain.JobFilter) (*domain.JobPage, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown job status %q", filter.Status))
	}
	if filter.PageSize <= 0 {
		filter.PageSize = domain.DefaultPageSize
	}
	if filter.PageSize > domain.MaxPageSize {
		filter.PageSize = domain.MaxPageSize
	}

	jobs, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, err
	}

	page := &domain.JobPage{Jobs: jobs}
	if len(jobs) > filter.PageSize {
		page.Jobs = jobs[:filter.PageSize]
		last := page.Jobs[len(page.Jobs)-1]
		page.Next = &domain.JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID}
	}
	return page, nil
}

// GetJob returns one of the owner's jobs
func (s *Service) GetJob(ctx context.Context, jobID, owner int64) (*domain.PrintJob, error) {
	return s.store.GetJobForOwner(ctx, jobID, owner)
}

// JobHistory returns the recorded lifecycle events of one of the owner's jobs
func (s *Service) JobHistory(ctx context.Context, jobID, owner int64) ([]*domain.JobEvent, error) {
	if _, err := s.store.GetJobForOwner(ctx, jobID, owner); err != nil {
		return nil, err
	}
	return s.store.ListJobEvents(ctx, jobID)
}

// UpdateStatus applies a client-reported status. Re-reporting the current status is a no-op,
// except that a repeated failure with a new error replaces the stored error.
func (s *Service) UpdateStatus(ctx context.Context, report domain.StatusReport) (*domain.PrintJob, error) {
	if !domain.IsReportable(report.Status) {
		return nil, domain.NewValidationError("status", fmt.Sprintf("must be one of processing, completed, failed; got %q", report.Status))
	}

	errorMsg := domain.TruncateUTF8(strings.TrimSpace(report.Error), domain.MaxErrorMessageLength)
	if report.Status == domain.JobStatusFailed && errorMsg == "" {
		errorMsg = "execution failed"
	}
	if report.Status != domain.JobStatusFailed {
		errorMsg = ""
	}

	for attempt := 1; ; attempt++ {
		job, err := s.store.GetJobForOwner(ctx, report.JobID, report.OwnerID)
		if err != nil {
			return nil, err
		}

		changed, err := domain.CheckReport(job.Status, report.Status)
		if err != nil {
			s.logger.Warn("Rejected status report",
				slog.Int64("job_id", job.ID),
				slog.String("current", string(job.Status)),
				slog.String("reported", string(report.Status)),
			)
			return nil, err
		}

		if !changed {
			return s.reapply(ctx, job, report, errorMsg)
		}

		updated, err := s.store.TransitionStatus(ctx, job.ID, job.Status, report.Status, errorMsg)
		if errors.Is(err, domain.ErrStaleStatus) && attempt < maxStatusAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}

		if updated.Status.IsTerminal() {
			s.revertPrinter(ctx, updated)
		}
		s.publish(ctx, updated)

		return updated, nil
	}
}

func (s *Service) reapply(ctx context.Context, job *domain.PrintJob, report domain.StatusReport, errorMsg string) (*domain.PrintJob, error) {
	if job.Status != domain.JobStatusFailed || strings.TrimSpace(report.Error) == "" || errorMsg == job.ErrorMessage {
		s.logger.Debug("Status report already applied",
			slog.Int64("job_id", job.ID),
			slog.String("status", string(job.Status)),
		)
		return job, nil
	}

	updated, err := s.store.ReplaceFailureMessage(ctx, job.ID, errorMsg)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Replaced failure message", slog.Int64("job_id", job.ID))
	return updated, nil
}

// revertPrinter frees the job's printer. A failure leaves the printer busy for ReconcilePrinters to repair.
func (s *Service) revertPrinter(ctx context.Context, job *domain.PrintJob) {
	reverted, err := s.store.RevertPrinterIfBusy(ctx, job.PrinterID)
	if err != nil {
		s.logger.Error("Failed to revert printer status",
			slog.Int64("job_id", job.ID),
			slog.Int64("printer_id", job.PrinterID),
			slog.Any("error", err),
		)
		return
	}
	if reverted {
		s.logger.Info("Printer back online",
			slog.Int64("printer_id", job.PrinterID),
			slog.Int64("job_id", job.ID),
		)
	}
}

func (s *Service) publish(ctx context.Context, job *domain.PrintJob) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Warn("Failed to publish lifecycle event",
			slog.Int64("job_id", job.ID),
			slog.String("status", string(job.Status)),
			slog.Any("error", err),
		)
	}
}

// RegisterPrinter creates a printer or renames an existing one with the same external id
func (s *Service) RegisterPrinter(ctx context.Context, externalID, name string) (*domain.Printer, error) {
	externalID = strings.TrimSpace(externalID)
	name = strings.TrimSpace(name)

	if externalID == "" {
		return nil, domain.NewValidationError("externalId", "is required")
	}
	if len(externalID) > domain.MaxDocumentNameLength {
		return nil, domain.NewValidationError("externalId", "is too long")
	}
	if name == "" {
		name = externalID
	}

	return s.store.UpsertPrinter(ctx, externalID, name, domain.PrinterStatusOnline)
}

// ListPrinters returns every printer
func (s *Service) ListPrinters(ctx context.Context) ([]*domain.Printer, error) {
	return s.store.ListPrinters(ctx)
}

// SetPrinterStatus records agent-reported availability. busy is managed by the server.
func (s *Service) SetPrinterStatus(ctx context.Context, id int64, status domain.PrinterStatus) (*domain.Printer, error) {
	switch status {
	case domain.PrinterStatusOnline, domain.PrinterStatusOffline, domain.PrinterStatusError:
	default:
		return nil, domain.NewValidationError("status", fmt.Sprintf("must be one of online, offline, error; got %q", status))
	}
	return s.store.SetPrinterStatus(ctx, id, status)
}

// ReconcilePrinters frees busy printers that have no job in flight and returns how many
func (s *Service) ReconcilePrinters(ctx context.Context) (int, error) {
	ids, err := s.store.ListStaleBusyPrinters(ctx)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, id := range ids {
		ok, err := s.store.RevertPrinterIfBusy(ctx, id)
		if err != nil {
			return reverted, err
		}
		if ok {
			reverted++
			s.logger.Info("Reconciled stale busy printer", slog.Int64("printer_id", id))
		}
	}
	return reverted, nil
}
