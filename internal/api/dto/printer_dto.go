package dto

import (
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
)

type RegisterPrinterRequest struct {
	ExternalID string `json:"externalId" binding:"required"`
	Name       string `json:"name"`
}

type PrinterStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type PrinterDTO struct {
	ID         int64                `json:"id"`
	ExternalID string               `json:"externalId"`
	Name       string               `json:"name"`
	Status     domain.PrinterStatus `json:"status"`
	UpdatedAt  *time.Time           `json:"updatedAt,omitempty"`
}

func NewPrinterDTO(p *domain.Printer) PrinterDTO {
	out := PrinterDTO{
		ID:         p.ID,
		ExternalID: p.ExternalID,
		Name:       p.Name,
		Status:     p.Status,
	}
	if !p.UpdatedAt.IsZero() {
		updatedAt := p.UpdatedAt
		out.UpdatedAt = &updatedAt
	}
	return out
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Sessions int    `json:"sessions"`
}
