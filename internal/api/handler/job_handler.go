package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/gin-gonic/gin"
)

// SubmitJob handles POST /api/v1/jobs
// Persists, prepares and dispatches a job; responds once it is ready
func (h *JobHandler) SubmitJob(c *gin.Context) {
	caller, ok := mustIdentity(c)
	if !ok {
		return
	}

	h.logger.Info("SubmitJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int64("identity", caller.ID),
	)

	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	result, err := h.service.Submit(c.Request.Context(), req.ToSubmission(caller.ID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.SubmitJobResponse{
		ID:      result.Job.ID,
		Status:  result.Job.Status,
		Printer: dto.NewPrinterDTO(result.Printer),
	})
}

// ListReady handles GET /api/v1/jobs/ready
// Returns the caller's ready jobs with their prepared payloads
func (h *JobHandler) ListReady(c *gin.Context) {
	caller, ok := mustIdentity(c)
	if !ok {
		return
	}

	jobs, err := h.service.ListReady(c.Request.Context(), caller.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	summaries := make([]dto.ReadyJobDTO, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, dto.NewReadyJobDTO(job))
	}

	c.JSON(http.StatusOK, summaries)
}

// ListJobs handles GET /api/v1/jobs
// Lists the caller's jobs newest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	caller, ok := mustIdentity(c)
	if !ok {
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid query parameters")
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	page, err := h.service.ListJobs(c.Request.Context(), domain.JobFilter{
		OwnerID:  caller.ID,
		Status:   domain.JobStatus(req.Status),
		Cursor:   cursor,
		PageSize: req.PageSize,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	jobs := make([]dto.JobDTO, 0, len(page.Jobs))
	for _, job := range page.Jobs {
		jobs = append(jobs, dto.NewJobDTO(job))
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobs,
		NextCursor: EncodeJobCursor(page.Next),
	})
}

// GetJob handles GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	caller, ok := mustIdentity(c)
	if !ok {
		return
	}
	jobID, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), jobID, caller.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// UpdateStatus handles PUT /api/v1/jobs/:id/status
// Applies an executor-reported processing, completed or failed status
func (h *JobHandler) UpdateStatus(c *gin.Context) {
	caller, ok := mustIdentity(c)
	if !ok {
		return
	}
	jobID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	h.logger.Info("UpdateStatus called",
		slog.Int64("job_id", jobID),
		slog.Int64("identity", caller.ID),
		slog.String("status", req.Status),
	)

	job, err := h.service.UpdateStatus(c.Request.Context(), domain.StatusReport{
		JobID:   jobID,
		OwnerID: caller.ID,
		Status:  domain.JobStatus(req.Status),
		Error:   req.Error,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// JobHistory handles GET /api/v1/jobs/:id/history
// Returns the lifecycle events recorded by the history service
func (h *JobHandler) JobHistory(c *gin.Context) {
	caller, ok := mustIdentity(c)
	if !ok {
		return
	}
	jobID, ok := parseID(c, "id")
	if !ok {
		return
	}

	events, err := h.service.JobHistory(c.Request.Context(), jobID, caller.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	history := make([]dto.JobEventDTO, 0, len(events))
	for _, event := range events {
		history = append(history, dto.NewJobEventDTO(event))
	}

	c.JSON(http.StatusOK, history)
}
