package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/thanhvd/mediafetch-be/internal/downloader"
	"github.com/thanhvd/mediafetch-be/internal/ledger"
	"github.com/thanhvd/mediafetch-be/internal/throttle"
	"github.com/thanhvd/mediafetch-be/shared/rabbitmq"
)

// ObjectStore uploads finished artifacts to durable storage.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, objectKey string) (string, int64, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Ledger        ledger.Ledger
	RabbitClient  *rabbitmq.Client
	Downloader    downloader.Downloader
	Store         ObjectStore
	Throttler     *throttle.Throttler
	Bucket        string
	Concurrency   int
	PrefetchCount int
}

// jobMessage carries a dispatched job through the worker pool along with
// the delivery tag needed for the eventual ack/nack.
type jobMessage struct {
	JobID       string
	DeliveryTag uint64
}

// Worker consumes job messages and drives each job through its lifecycle
type Worker struct {
	logger        *slog.Logger
	ledger        ledger.Ledger
	rabbitClient  *rabbitmq.Client
	downloader    downloader.Downloader
	store         ObjectStore
	throttler     *throttle.Throttler
	bucket        string
	concurrency   int
	prefetchCount int
	workerID      string
	jobsChan      chan *jobMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		ledger:        cfg.Ledger,
		rabbitClient:  cfg.RabbitClient,
		downloader:    cfg.Downloader,
		store:         cfg.Store,
		throttler:     cfg.Throttler,
		bucket:        cfg.Bucket,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		workerID:      "worker-" + uuid.New().String()[:8],
		jobsChan:      make(chan *jobMessage),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming and processing jobs until ctx is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
