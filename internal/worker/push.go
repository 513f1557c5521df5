package worker

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// pushDelivery is the envelope posted by push-style queue bridges: the
// job id travels base64-encoded in message.data.
type pushDelivery struct {
	Message struct {
		Data string `json:"data" binding:"required"`
	} `json:"message" binding:"required"`
}

// PushRouter builds the HTTP surface for push deliveries. It shares
// processJob with the queue consumer, so a job delivered on both paths is
// still processed exactly once.
func (w *Worker) PushRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "mediafetch-worker-service",
		})
	})

	r.POST("/deliveries", w.handlePushDelivery)

	return r
}

func (w *Worker) handlePushDelivery(c *gin.Context) {
	var req pushDelivery
	if err := c.ShouldBindJSON(&req); err != nil {
		w.logger.Error("Invalid push delivery body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid delivery body",
		})
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Message.Data)
	if err != nil {
		w.logger.Error("Invalid push delivery payload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Payload is not valid base64",
		})
		return
	}

	jobID := strings.TrimSpace(string(decoded))
	if _, err := uuid.Parse(jobID); err != nil {
		w.logger.Error("Push delivery payload is not a job id",
			slog.String("payload", jobID),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Payload is not a job id",
		})
		return
	}

	if err := w.processJob(c.Request.Context(), jobID); err != nil {
		// Non-200 makes the push bridge redeliver; the conditional claim
		// keeps the retry harmless.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Job processing failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
