package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thanhvd/mediafetch-be/internal/api/dto"
	"github.com/thanhvd/mediafetch-be/internal/domain"
	"github.com/thanhvd/mediafetch-be/internal/ledger"
)

const (
	defaultAudioFormat = "mp3"
	defaultBitrate     = "192"
	defaultContainer   = "mp4"
	defaultMaxHeight   = 1080
)

// CreateAudioJob handles POST /api/v1/jobs/audio
// Records a new audio extraction job and enqueues it for worker pickup
func (h *JobHandler) CreateAudioJob(c *gin.Context) {
	var req dto.AudioJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	opts := domain.Options{
		URL:           req.URL,
		AudioFormat:   valueOrDefault(req.AudioFormat, defaultAudioFormat),
		Bitrate:       valueOrDefault(req.Bitrate, defaultBitrate),
		AllowPlaylist: req.AllowPlaylist == nil || *req.AllowPlaylist,
		PlaylistItems: req.PlaylistItems,
		CookieFile:    req.CookieFile,
	}

	h.createJob(c, domain.JobKindAudio, opts)
}

// CreateVideoJob handles POST /api/v1/jobs/video
// Records a new video download job and enqueues it for worker pickup
func (h *JobHandler) CreateVideoJob(c *gin.Context) {
	var req dto.VideoJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	maxHeight := defaultMaxHeight
	if req.MaxHeight != nil {
		maxHeight = *req.MaxHeight
	}

	opts := domain.Options{
		URL:           req.URL,
		Container:     valueOrDefault(req.Container, defaultContainer),
		MaxHeight:     &maxHeight,
		PreferCodec:   req.PreferCodec,
		AllowPlaylist: req.AllowPlaylist == nil || *req.AllowPlaylist,
		PlaylistItems: req.PlaylistItems,
		CookieFile:    req.CookieFile,
	}

	h.createJob(c, domain.JobKindVideo, opts)
}

func (h *JobHandler) createJob(c *gin.Context, kind string, opts domain.Options) {
	userID := c.GetString("user_id")

	job := &domain.Job{
		ID:      uuid.New().String(),
		UserID:  userID,
		Kind:    kind,
		Status:  domain.JobStatusQueued,
		Options: opts,
	}

	if err := h.ledger.Create(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	body, err := json.Marshal(gin.H{"job_id": job.ID})
	if err != nil {
		h.logger.Error("Failed to marshal job message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	// The job row stays queued when publishing fails. Re-posting delivers a
	// fresh job id, and requeueing the stored id later is safe because claim
	// is conditional.
	if err := h.queue.Publish(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": domain.ErrEnqueueFailed.Error(),
		})
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("kind", kind),
		slog.String("user_id", userID),
	)

	c.JSON(http.StatusOK, dto.CreateJobResponse{JobID: job.ID})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.lookupOwnedJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs
// Lists the caller's jobs with optional status filtering and pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := ledger.ListFilter{
		UserID:   c.GetString("user_id"),
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor, err = EncodeJobCursor(&ledger.Cursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobs,
		NextCursor: nextCursor,
	})
}

// GetJobEvents handles GET /api/v1/jobs/:job_id/events
// Returns the job's full event history in emission order
func (h *JobHandler) GetJobEvents(c *gin.Context) {
	job, ok := h.lookupOwnedJob(c)
	if !ok {
		return
	}

	events, err := h.ledger.ListEvents(c.Request.Context(), job.ID)
	if err != nil {
		h.logger.Error("Failed to list job events",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list job events",
		})
		return
	}

	c.JSON(http.StatusOK, dto.ListEventsResponse{Events: events})
}

// GetDownloadURL handles GET /api/v1/jobs/:job_id/download-url
// Returns a time-limited URL for the finished job's output file
func (h *JobHandler) GetDownloadURL(c *gin.Context) {
	job, ok := h.lookupOwnedJob(c)
	if !ok {
		return
	}

	if job.Status != domain.JobStatusFinished || job.Output == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": domain.ErrNoOutput.Error(),
		})
		return
	}

	url, err := h.signer.SignDownloadURL(c.Request.Context(), job.Output.Object, h.signedURLTTL)
	if err != nil {
		h.logger.Error("Failed to sign download URL",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to sign download URL",
		})
		return
	}

	c.JSON(http.StatusOK, dto.DownloadURLResponse{
		URL:       url,
		ExpiresIn: int(h.signedURLTTL.Seconds()),
	})
}

// lookupOwnedJob resolves the :job_id path param to a job owned by the
// caller, writing the error response itself when lookup fails.
func (h *JobHandler) lookupOwnedJob(c *gin.Context) (*domain.Job, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return nil, false
	}

	job, err := h.ledger.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return nil, false
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return nil, false
	}

	if job.UserID != c.GetString("user_id") {
		c.JSON(http.StatusForbidden, gin.H{
			"error": domain.ErrForbidden.Error(),
		})
		return nil, false
	}

	return job, true
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
