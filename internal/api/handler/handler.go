package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/thanhvd/mediafetch-be/internal/ledger"
)

// Publisher enqueues job messages for worker pickup.
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// URLSigner creates time-limited download URLs for stored outputs.
type URLSigner interface {
	SignDownloadURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Ledger       ledger.Ledger
	Queue        Publisher
	Signer       URLSigner
	SignedURLTTL time.Duration
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger       *slog.Logger
	ledger       ledger.Ledger
	queue        Publisher
	signer       URLSigner
	signedURLTTL time.Duration
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:       deps.Logger,
		ledger:       deps.Ledger,
		queue:        deps.Queue,
		signer:       deps.Signer,
		signedURLTTL: deps.SignedURLTTL,
	}
}
