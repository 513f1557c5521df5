package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thanhvd/mediafetch-be/internal/api/handler"
	"github.com/thanhvd/mediafetch-be/internal/auth"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, verifier *auth.Verifier) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "mediafetch-api-service",
		})
	})

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(verifier))
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs/audio - Create an audio extraction job
			jobs.POST("/audio", jobHandler.CreateAudioJob)

			// POST /api/v1/jobs/video - Create a video download job
			jobs.POST("/video", jobHandler.CreateVideoJob)

			// GET /api/v1/jobs - List the caller's jobs with pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// GET /api/v1/jobs/:job_id/events - Get the job's event history
			jobs.GET("/:job_id/events", jobHandler.GetJobEvents)

			// GET /api/v1/jobs/:job_id/download-url - Signed output URL
			jobs.GET("/:job_id/download-url", jobHandler.GetDownloadURL)
		}
	}

	return r
}
