package router

import (
	"github.com/cuongbtq/print-relay/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, allowedOrigins []string) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(allowedOrigins))

	systemHandler := handler.NewSystemHandler(deps)
	jobHandler := handler.NewJobHandler(deps)
	printerHandler := handler.NewPrinterHandler(deps)

	// Health check endpoint
	r.GET("/health", systemHandler.Health)

	// Push channel; authentication happens in-band
	r.GET("/ws", systemHandler.PushChannel)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(deps.Lookup, deps.Logger))
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a print job
			jobs.POST("", jobHandler.SubmitJob)

			// GET /api/v1/jobs - List the caller's jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/ready - Pull the caller's ready jobs
			jobs.GET("/ready", jobHandler.ListReady)

			// GET /api/v1/jobs/:id - Get job details
			jobs.GET("/:id", jobHandler.GetJob)

			// PUT /api/v1/jobs/:id/status - Report execution status
			jobs.PUT("/:id/status", jobHandler.UpdateStatus)

			// GET /api/v1/jobs/:id/history - Recorded lifecycle events
			jobs.GET("/:id/history", jobHandler.JobHistory)
		}

		printers := v1.Group("/printers")
		{
			printers.GET("", printerHandler.ListPrinters)
			printers.POST("", printerHandler.RegisterPrinter)
			printers.PUT("/:id/status", printerHandler.SetPrinterStatus)
		}

		// GET /api/v1/sessions - Presence snapshot
		v1.GET("/sessions", systemHandler.Sessions)
	}

	return r
}
