package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Submission is a print request as received from a caller
type Submission struct {
	OwnerID      int64
	Printer      PrinterRef
	DocumentURL  string
	DocumentName string
	Options      RenderOptions
}

// Normalize fills defaults for omitted options and the document name
func (s *Submission) Normalize() {
	s.DocumentURL = strings.TrimSpace(s.DocumentURL)
	s.DocumentName = strings.TrimSpace(s.DocumentName)
	s.Printer.ExternalID = strings.TrimSpace(s.Printer.ExternalID)

	if s.Options.Copies == 0 {
		s.Options.Copies = 1
	}
	if s.Options.Orientation == "" {
		s.Options.Orientation = OrientationPortrait
	}
	if s.DocumentName == "" {
		s.DocumentName = documentNameFromURL(s.DocumentURL)
	}
}

// Validate rejects malformed submissions before anything is persisted
func (s *Submission) Validate() error {
	if s.OwnerID <= 0 {
		return NewValidationError("owner", "must be an authenticated identity")
	}

	if s.Printer.IsZero() {
		return NewValidationError("printer", "printerId or printerExternalId is required")
	}
	if s.Printer.ID != 0 && s.Printer.ExternalID != "" {
		return NewValidationError("printer", "provide either printerId or printerExternalId, not both")
	}
	if s.Printer.ID < 0 {
		return NewValidationError("printerId", "must be positive")
	}

	if err := validateDocumentURL(s.DocumentURL); err != nil {
		return err
	}

	if len(s.DocumentName) > MaxDocumentNameLength {
		return NewValidationError("documentName", fmt.Sprintf("must be at most %d characters", MaxDocumentNameLength))
	}

	return s.Options.Validate()
}

// Validate checks copy count, orientation and margins
func (o RenderOptions) Validate() error {
	if o.Copies < 1 || o.Copies > MaxCopies {
		return NewValidationError("copies", fmt.Sprintf("must be between 1 and %d", MaxCopies))
	}

	if !o.Orientation.IsValid() {
		return NewValidationError("orientation", fmt.Sprintf("unsupported orientation %q", o.Orientation))
	}

	if m := o.Margins; m != nil {
		if m.Top < 0 || m.Right < 0 || m.Bottom < 0 || m.Left < 0 {
			return NewValidationError("margins", "must not be negative")
		}
	}

	return nil
}

func validateDocumentURL(raw string) error {
	if raw == "" {
		return NewValidationError("documentUrl", "is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return NewValidationError("documentUrl", "is not a valid URL")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return NewValidationError("documentUrl", "must use http or https")
	}
	if u.Host == "" {
		return NewValidationError("documentUrl", "must include a host")
	}

	return nil
}

func documentNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "document"
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "document"
	}

	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}
