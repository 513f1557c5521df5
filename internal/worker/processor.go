package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/thanhvd/mediafetch-be/internal/domain"
)

// processJob drives a single job through its lifecycle: claim, download
// with progress reporting, upload, finalize. Returning nil acknowledges
// the message; a retryableError requeues it.
func (w *Worker) processJob(ctx context.Context, jobID string) error {
	w.logger.Info("Processing job",
		slog.String("job_id", jobID),
		slog.String("worker_id", w.workerID),
	)

	// A message for an id with no ledger record is garbage; ack and drop
	// so it cannot be redelivered forever.
	if _, err := w.ledger.Get(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			w.logger.Warn("Job not found, dropping message",
				slog.String("job_id", jobID),
			)
			return nil
		}
		return newRetryableError(fmt.Errorf("failed to look up job: %w", err))
	}

	// Claim is a conditional transition, so a redelivered message for a
	// job any worker already picked up or settled lands here and is
	// dropped without side effects.
	job, err := w.ledger.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			w.logger.Warn("Job not claimable, dropping duplicate delivery",
				slog.String("job_id", jobID),
			)
			return nil
		}
		return newRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	w.appendEvent(ctx, jobID, domain.Event{
		Type:   domain.EventTypeStatus,
		Status: domain.JobStatusRunning,
		At:     time.Now().UTC(),
	})

	outPath, err := w.downloader.Download(ctx, jobID, job.Kind, job.Options, func(p domain.Progress) {
		w.reportProgress(ctx, jobID, p)
	})
	if err != nil {
		return w.failJob(ctx, jobID, fmt.Errorf("download failed: %w", err))
	}
	defer w.cleanupArtifact(jobID, outPath)

	objectKey := fmt.Sprintf("outputs/%s/%s", jobID, filepath.Base(outPath))
	_, sizeBytes, err := w.store.Upload(ctx, outPath, objectKey)
	if err != nil {
		return w.failJob(ctx, jobID, fmt.Errorf("upload failed: %w", err))
	}

	output := domain.Output{
		Bucket:    w.bucket,
		Object:    objectKey,
		SizeBytes: sizeBytes,
	}

	if err := w.ledger.Finalize(ctx, jobID, &output); err != nil {
		// The artifact is uploaded; a finalize race means another path
		// already settled the job. Ack either way.
		w.logger.Error("Failed to finalize job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		w.throttler.Forget(jobID)
		return nil
	}

	w.appendEvent(ctx, jobID, domain.Event{
		Type:   domain.EventTypeStatus,
		Status: domain.JobStatusFinished,
		At:     time.Now().UTC(),
	})
	w.throttler.Forget(jobID)

	w.logger.Info("Job finished",
		slog.String("job_id", jobID),
		slog.String("object", objectKey),
		slog.Int64("size_bytes", sizeBytes),
	)

	return nil
}

// reportProgress appends every progress tick to the event log and refreshes
// the ledger's cached progress at most once per throttle interval.
func (w *Worker) reportProgress(ctx context.Context, jobID string, p domain.Progress) {
	w.appendEvent(ctx, jobID, domain.Event{
		Type:     domain.EventTypeProgress,
		Progress: &p,
		At:       time.Now().UTC(),
	})

	if !w.throttler.ShouldWrite(jobID, time.Now()) {
		return
	}

	if err := w.ledger.UpdateProgress(ctx, jobID, &p); err != nil {
		w.logger.Warn("Failed to update job progress",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// failJob settles the job in the error state. The delivery is still
// reported as failed so the transport may redeliver; the job is terminal
// by then, so a redelivery only re-confirms the outcome and acks.
func (w *Worker) failJob(ctx context.Context, jobID string, cause error) error {
	w.logger.Error("Job failed",
		slog.String("job_id", jobID),
		slog.String("error", cause.Error()),
	)

	if err := w.ledger.Fail(ctx, jobID, cause.Error()); err != nil {
		w.logger.Error("Failed to mark job as errored",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	} else {
		w.appendEvent(ctx, jobID, domain.Event{
			Type:    domain.EventTypeError,
			Status:  domain.JobStatusError,
			Message: cause.Error(),
			At:      time.Now().UTC(),
		})
	}

	w.throttler.Forget(jobID)

	return newRetryableError(cause)
}

// appendEvent records a job event, logging instead of failing the job when
// the write does not land. The event log is history, not control flow.
func (w *Worker) appendEvent(ctx context.Context, jobID string, event domain.Event) {
	if err := w.ledger.AppendEvent(ctx, jobID, &event); err != nil {
		w.logger.Warn("Failed to append job event",
			slog.String("job_id", jobID),
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()),
		)
	}
}

// cleanupArtifact removes the job's scratch directory after upload
func (w *Worker) cleanupArtifact(jobID, outPath string) {
	if outPath == "" {
		return
	}
	if err := os.RemoveAll(filepath.Dir(outPath)); err != nil {
		w.logger.Warn("Failed to clean up download dir",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
