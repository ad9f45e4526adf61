package domain

// JobStatus is the lifecycle state of a print job
type JobStatus string

// Job status constants
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusReady      JobStatus = "ready"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// PrinterStatus is the availability of a print target
type PrinterStatus string

// Printer status constants
const (
	PrinterStatusOnline  PrinterStatus = "online"
	PrinterStatusOffline PrinterStatus = "offline"
	PrinterStatusBusy    PrinterStatus = "busy"
	PrinterStatusError   PrinterStatus = "error"
)

// Orientation of the rendered page
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// Payload descriptor constants understood by the executing client
const (
	PayloadTypePixel = "pixel"

	FormatPDF   = "pdf"
	FormatImage = "image"
	FormatHTML  = "html"

	// FlavorRemoteReference tells the executor that data is a URL it must fetch itself
	FlavorRemoteReference = "remote reference"

	UnitsMillimeters = "mm"
)

// Submission limits
const (
	MaxCopies             = 999
	MaxDocumentNameLength = 255
	MaxErrorMessageLength = 2000
)

// IsTerminal reports whether no further transitions are possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid reports whether s is a known job status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusReady, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsValid reports whether s is a known printer status
func (s PrinterStatus) IsValid() bool {
	switch s {
	case PrinterStatusOnline, PrinterStatusOffline, PrinterStatusBusy, PrinterStatusError:
		return true
	}
	return false
}

// IsValid reports whether o is a supported orientation
func (o Orientation) IsValid() bool {
	return o == OrientationPortrait || o == OrientationLandscape
}
