package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/google/uuid"
)

// ContentType of published lifecycle messages
const ContentType = "application/json"

// RoutingKeyPrefix prefixes the job status in every routing key, e.g. job.completed
const RoutingKeyPrefix = "job."

// Message is the wire form of one job lifecycle transition
type Message struct {
	EventID    string           `json:"eventId"`
	JobID      int64            `json:"jobId"`
	OwnerID    int64            `json:"ownerId"`
	PrinterID  int64            `json:"printerId"`
	Status     domain.JobStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// NewMessage captures the job's current status as a lifecycle event
func NewMessage(job *domain.PrintJob, at time.Time) Message {
	return Message{
		EventID:    uuid.NewString(),
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		PrinterID:  job.PrinterID,
		Status:     job.Status,
		Error:      job.ErrorMessage,
		OccurredAt: at.UTC(),
	}
}

// RoutingKey returns the topic routing key for the message
func (m Message) RoutingKey() string {
	return RoutingKeyPrefix + string(m.Status)
}

// Decode parses and validates a lifecycle message body
func Decode(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("failed to decode lifecycle message: %w", err)
	}

	if _, err := uuid.Parse(m.EventID); err != nil {
		return Message{}, fmt.Errorf("invalid event id %q: %w", m.EventID, err)
	}
	if m.JobID <= 0 {
		return Message{}, fmt.Errorf("invalid job id %d", m.JobID)
	}
	if !m.Status.IsValid() {
		return Message{}, fmt.Errorf("invalid job status %q", m.Status)
	}
	if m.OccurredAt.IsZero() {
		return Message{}, fmt.Errorf("missing occurredAt")
	}

	return m, nil
}

// ToDomain converts the message to a job event record
func (m Message) ToDomain() *domain.JobEvent {
	return &domain.JobEvent{
		EventID:      m.EventID,
		JobID:        m.JobID,
		OwnerID:      m.OwnerID,
		PrinterID:    m.PrinterID,
		Status:       m.Status,
		ErrorMessage: m.Error,
		OccurredAt:   m.OccurredAt,
	}
}
