package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/print-relay/internal/api/dto"
	"github.com/cuongbtq/print-relay/internal/domain"
	"github.com/cuongbtq/print-relay/internal/identity"
	"github.com/cuongbtq/print-relay/internal/printjob"
	"github.com/cuongbtq/print-relay/internal/realtime"
	"github.com/cuongbtq/print-relay/shared/database"
	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key holding the authenticated identity
const IdentityKey = "identity"

// Error codes returned in the error body
const (
	CodeValidation      = "validation_error"
	CodeNotFound        = "not_found"
	CodeInvalidState    = "invalid_state"
	CodeUnauthenticated = "unauthenticated"
	CodeInternal        = "internal"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	DBClient *database.Client
	Service  *printjob.Service
	Hub      *realtime.Hub
	Lookup   identity.Lookup
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	service *printjob.Service
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}

// PrinterHandler handles printer registry requests
type PrinterHandler struct {
	logger  *slog.Logger
	service *printjob.Service
}

// NewPrinterHandler creates a new PrinterHandler instance
func NewPrinterHandler(deps *Dependencies) *PrinterHandler {
	return &PrinterHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}

// SystemHandler serves health and presence
type SystemHandler struct {
	logger   *slog.Logger
	dbClient *database.Client
	hub      *realtime.Hub
}

// NewSystemHandler creates a new SystemHandler instance
func NewSystemHandler(deps *Dependencies) *SystemHandler {
	return &SystemHandler{
		logger:   deps.Logger,
		dbClient: deps.DBClient,
		hub:      deps.Hub,
	}
}

// CallerIdentity returns the identity stored by the auth middleware
func CallerIdentity(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}

func mustIdentity(c *gin.Context) (identity.Identity, bool) {
	id, ok := CallerIdentity(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
	}
	return id, ok
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, CodeValidation, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: message, Code: code})
}

// respondError maps a domain error to its HTTP status and error code
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		abortWithError(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		abortWithError(c, http.StatusUnauthorized, CodeUnauthenticated, "invalid credential")
	case errors.Is(err, domain.ErrNotFound):
		abortWithError(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		abortWithError(c, http.StatusConflict, CodeInvalidState, err.Error())
	default:
		logger.Error("Request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
