package domain

import (
	"time"
	"unicode/utf8"
)

// Printer is a physical or virtual print target
type Printer struct {
	ID         int64
	ExternalID string
	Name       string
	Status     PrinterStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Margins in millimeters
type Margins struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// RenderOptions controls how the document is printed
type RenderOptions struct {
	Copies      int
	Duplex      bool
	Orientation Orientation
	Margins     *Margins
}

// PrintJob is one document-to-printer request owned by a single identity
type PrintJob struct {
	ID           int64
	PrinterID    int64
	OwnerID      int64
	DocumentURL  string
	DocumentName string
	Options      RenderOptions
	Payload      *PreparedPayload // set once the job is ready
	Status       JobStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time

	// Joined from the printer row
	PrinterName       string
	PrinterExternalID string
}

// PreparedPayload is the executor-ready description of what to print and how
type PreparedPayload struct {
	PrinterName string        `json:"printerName"`
	Data        []PayloadItem `json:"data"`
	Config      PayloadConfig `json:"config"`
}

// PayloadItem is one document the executor must render
type PayloadItem struct {
	Type    string      `json:"type"`
	Format  string      `json:"format"`
	Flavor  string      `json:"flavor"`
	Data    string      `json:"data"`
	Options ItemOptions `json:"options"`
}

// ItemOptions are per-item render options
type ItemOptions struct {
	Orientation Orientation `json:"orientation"`
	Copies      int         `json:"copies"`
	Duplex      bool        `json:"duplex"`
}

// PayloadConfig is the job-level executor configuration
type PayloadConfig struct {
	JobName     string      `json:"jobName"`
	Units       string      `json:"units"`
	Margins     *Margins    `json:"margins,omitempty"`
	Orientation Orientation `json:"orientation,omitempty"`
	Copies      int         `json:"copies,omitempty"`
	Duplex      bool        `json:"duplex"`
}

// PrinterRef addresses a printer by internal id or by external id
type PrinterRef struct {
	ID         int64
	ExternalID string
}

// IsZero reports whether neither form of reference is set
func (r PrinterRef) IsZero() bool {
	return r.ID == 0 && r.ExternalID == ""
}

// StatusReport is a client-reported status change
type StatusReport struct {
	JobID   int64
	OwnerID int64
	Status  JobStatus
	Error   string
}

// JobEvent is one recorded lifecycle transition of a job
type JobEvent struct {
	EventID      string
	JobID        int64
	OwnerID      int64
	PrinterID    int64
	Status       JobStatus
	ErrorMessage string
	OccurredAt   time.Time
	RecordedAt   time.Time
}

// TruncateUTF8 cuts s to at most max bytes without splitting a multibyte character
func TruncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
