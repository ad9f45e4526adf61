package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/gin-gonic/gin"
)

// ListPrinters handles GET /api/v1/printers
func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	printers, err := h.service.ListPrinters(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	out := make([]dto.PrinterDTO, 0, len(printers))
	for _, p := range printers {
		out = append(out, dto.NewPrinterDTO(p))
	}

	c.JSON(http.StatusOK, out)
}

// RegisterPrinter handles POST /api/v1/printers
// Creates a printer or renames the one with the same external id
func (h *PrinterHandler) RegisterPrinter(c *gin.Context) {
	var req dto.RegisterPrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	printer, err := h.service.RegisterPrinter(c.Request.Context(), req.ExternalID, req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Printer registered",
		slog.Int64("printer_id", printer.ID),
		slog.String("external_id", printer.ExternalID),
	)

	c.JSON(http.StatusOK, dto.NewPrinterDTO(printer))
}

// SetPrinterStatus handles PUT /api/v1/printers/:id/status
func (h *PrinterHandler) SetPrinterStatus(c *gin.Context) {
	printerID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req dto.PrinterStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	printer, err := h.service.SetPrinterStatus(c.Request.Context(), printerID, domain.PrinterStatus(req.Status))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPrinterDTO(printer))
}
