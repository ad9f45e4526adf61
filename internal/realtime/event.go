package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
)

// Push channel event names
const (
	EventAuthenticate  = "authenticate"
	EventAuthenticated = "authenticated"
	EventJobReady      = "job-ready"
	EventJobReceived   = "job-received"
	EventPing          = "ping"
	EventPong          = "pong"
	EventPresence      = "presence"
	EventError         = "error"
)

// Subscriptions granted to an authenticated session
const (
	SubscriptionPresence = "presence"
)

// Envelope is one push channel frame
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes data under the event name
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the envelope data into v
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s event has no data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", e.Event, err)
	}
	return nil
}

// Authenticate is sent by the client to bind the connection to an identity
type Authenticate struct {
	Credential string `json:"credential"`
}

// Authenticated acknowledges an authenticate attempt
type Authenticated struct {
	Success       bool     `json:"success"`
	Identity      int64    `json:"identity,omitempty"`
	Subscriptions []string `json:"subscriptions,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// JobReady announces a job the owner can execute now
type JobReady struct {
	ID                int64                   `json:"id"`
	DocumentName      string                  `json:"documentName"`
	DocumentURL       string                  `json:"documentUrl"`
	PrinterName       string                  `json:"printerName"`
	PrinterExternalID string                  `json:"printerExternalId"`
	Status            domain.JobStatus        `json:"status"`
	Copies            int                     `json:"copies"`
	Duplex            bool                    `json:"duplex"`
	Orientation       domain.Orientation      `json:"orientation"`
	PreparedPayload   *domain.PreparedPayload `json:"preparedPayload"`
	Timestamp         time.Time               `json:"timestamp"`
}

// NewJobReady builds the job-ready event for a ready job
func NewJobReady(job *domain.PrintJob, at time.Time) JobReady {
	return JobReady{
		ID:                job.ID,
		DocumentName:      job.DocumentName,
		DocumentURL:       job.DocumentURL,
		PrinterName:       job.PrinterName,
		PrinterExternalID: job.PrinterExternalID,
		Status:            job.Status,
		Copies:            job.Options.Copies,
		Duplex:            job.Options.Duplex,
		Orientation:       job.Options.Orientation,
		PreparedPayload:   job.Payload,
		Timestamp:         at,
	}
}

// JobReceived is the client's acknowledgement of a job-ready event
type JobReceived struct {
	ID int64 `json:"id"`
}

// Heartbeat is the body of the application-level ping and pong events
type Heartbeat struct {
	Timestamp int64 `json:"ts"`
}

// PresenceSession describes one live session
type PresenceSession struct {
	IdentityID   int64     `json:"identityId"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Presence is the aggregate of live sessions
type Presence struct {
	Count    int               `json:"count"`
	Sessions []PresenceSession `json:"sessions"`
}

// ErrorEvent reports a malformed or unexpected client frame
type ErrorEvent struct {
	Message string `json:"message"`
}

// JobsSubscription names the per-identity job subscription
func JobsSubscription(identity int64) string {
	return "jobs:" + strconv.FormatInt(identity, 10)
}
