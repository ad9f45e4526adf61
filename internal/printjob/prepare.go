package printjob

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/cuongbtq/print-relay/internal/domain"
)

// Preparer turns a pending job into an executor-ready payload
type Preparer interface {
	Prepare(job *domain.PrintJob, printer *domain.Printer) (*domain.PreparedPayload, error)
}

// RemotePreparer passes the document location through for the executor to fetch.
// It never downloads the document.
type RemotePreparer struct{}

var extensionFormats = map[string]string{
	".pdf":  domain.FormatPDF,
	".png":  domain.FormatImage,
	".jpg":  domain.FormatImage,
	".jpeg": domain.FormatImage,
	".gif":  domain.FormatImage,
	".bmp":  domain.FormatImage,
	".tif":  domain.FormatImage,
	".tiff": domain.FormatImage,
	".webp": domain.FormatImage,
	".html": domain.FormatHTML,
	".htm":  domain.FormatHTML,
}

// DetectFormat infers the document format from the URL path extension, defaulting to pdf
func DetectFormat(documentURL string) string {
	u, err := url.Parse(documentURL)
	if err != nil {
		return domain.FormatPDF
	}
	if format, ok := extensionFormats[strings.ToLower(path.Ext(u.Path))]; ok {
		return format
	}
	return domain.FormatPDF
}

// Prepare builds the payload for job on printer
func (RemotePreparer) Prepare(job *domain.PrintJob, printer *domain.Printer) (*domain.PreparedPayload, error) {
	if job.DocumentURL == "" {
		return nil, fmt.Errorf("job %d has no document url", job.ID)
	}

	printerName := printer.Name
	if printerName == "" {
		printerName = printer.ExternalID
	}

	opts := job.Options
	return &domain.PreparedPayload{
		PrinterName: printerName,
		Data: []domain.PayloadItem{{
			Type:   domain.PayloadTypePixel,
			Format: DetectFormat(job.DocumentURL),
			Flavor: domain.FlavorRemoteReference,
			Data:   job.DocumentURL,
			Options: domain.ItemOptions{
				Orientation: opts.Orientation,
				Copies:      opts.Copies,
				Duplex:      opts.Duplex,
			},
		}},
		Config: domain.PayloadConfig{
			JobName:     job.DocumentName,
			Units:       domain.UnitsMillimeters,
			Margins:     opts.Margins,
			Orientation: opts.Orientation,
			Copies:      opts.Copies,
			Duplex:      opts.Duplex,
		},
	}, nil
}
