package dto

import (
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
)

type SubmitJobRequest struct {
	PrinterID         int64            `json:"printerId"`
	PrinterExternalID string           `json:"printerExternalId"`
	DocumentURL       string           `json:"documentUrl" binding:"required"`
	DocumentName      string           `json:"documentName"`
	Options           RenderOptionsDTO `json:"options"`
}

type RenderOptionsDTO struct {
	Copies      int             `json:"copies"`
	Duplex      bool            `json:"duplex"`
	Orientation string          `json:"orientation"`
	Margins     *domain.Margins `json:"margins,omitempty"`
}

// ToSubmission maps the request body onto a submission owned by owner
func (r SubmitJobRequest) ToSubmission(owner int64) domain.Submission {
	return domain.Submission{
		OwnerID: owner,
		Printer: domain.PrinterRef{
			ID:         r.PrinterID,
			ExternalID: r.PrinterExternalID,
		},
		DocumentURL:  r.DocumentURL,
		DocumentName: r.DocumentName,
		Options: domain.RenderOptions{
			Copies:      r.Options.Copies,
			Duplex:      r.Options.Duplex,
			Orientation: domain.Orientation(r.Options.Orientation),
			Margins:     r.Options.Margins,
		},
	}
}

type SubmitJobResponse struct {
	ID      int64            `json:"id"`
	Status  domain.JobStatus `json:"status"`
	Printer PrinterDTO       `json:"printer"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Error  string `json:"error"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// ReadyJobDTO is the pull endpoint's job summary; it carries the prepared payload
type ReadyJobDTO struct {
	ID              int64                   `json:"id"`
	DocumentName    string                  `json:"documentName"`
	DocumentURL     string                  `json:"documentUrl"`
	PrinterName     string                  `json:"printerName"`
	Status          domain.JobStatus        `json:"status"`
	Copies          int                     `json:"copies"`
	Duplex          bool                    `json:"duplex"`
	Orientation     domain.Orientation      `json:"orientation"`
	PreparedPayload *domain.PreparedPayload `json:"preparedPayload"`
	CreatedAt       time.Time               `json:"createdAt"`
}

type JobDTO struct {
	ID                int64                   `json:"id"`
	PrinterID         int64                   `json:"printerId"`
	PrinterName       string                  `json:"printerName"`
	PrinterExternalID string                  `json:"printerExternalId"`
	DocumentURL       string                  `json:"documentUrl"`
	DocumentName      string                  `json:"documentName"`
	Copies            int                     `json:"copies"`
	Duplex            bool                    `json:"duplex"`
	Orientation       domain.Orientation      `json:"orientation"`
	Margins           *domain.Margins         `json:"margins,omitempty"`
	Status            domain.JobStatus        `json:"status"`
	Error             string                  `json:"error,omitempty"`
	PreparedPayload   *domain.PreparedPayload `json:"preparedPayload,omitempty"`
	CreatedAt         time.Time               `json:"createdAt"`
	UpdatedAt         time.Time               `json:"updatedAt"`
	CompletedAt       *time.Time              `json:"completedAt,omitempty"`
}

type JobEventDTO struct {
	EventID    string           `json:"eventId"`
	Status     domain.JobStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
	RecordedAt time.Time        `json:"recordedAt"`
}

func NewReadyJobDTO(job *domain.PrintJob) ReadyJobDTO {
	return ReadyJobDTO{
		ID:              job.ID,
		DocumentName:    job.DocumentName,
		DocumentURL:     job.DocumentURL,
		PrinterName:     job.PrinterName,
		Status:          job.Status,
		Copies:          job.Options.Copies,
		Duplex:          job.Options.Duplex,
		Orientation:     job.Options.Orientation,
		PreparedPayload: job.Payload,
		CreatedAt:       job.CreatedAt,
	}
}

func NewJobDTO(job *domain.PrintJob) JobDTO {
	return JobDTO{
		ID:                job.ID,
		PrinterID:         job.PrinterID,
		PrinterName:       job.PrinterName,
		PrinterExternalID: job.PrinterExternalID,
		DocumentURL:       job.DocumentURL,
		DocumentName:      job.DocumentName,
		Copies:            job.Options.Copies,
		Duplex:            job.Options.Duplex,
		Orientation:       job.Options.Orientation,
		Margins:           job.Options.Margins,
		Status:            job.Status,
		Error:             job.ErrorMessage,
		PreparedPayload:   job.Payload,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
		CompletedAt:       job.CompletedAt,
	}
}

func NewJobEventDTO(event *domain.JobEvent) JobEventDTO {
	return JobEventDTO{
		EventID:    event.EventID,
		Status:     event.Status,
		Error:      event.ErrorMessage,
		OccurredAt: event.OccurredAt,
		RecordedAt: event.RecordedAt,
	}
}
