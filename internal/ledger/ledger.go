// Package ledger is the durable job ledger: one canonical record per job
// plus an append-only per-job event log. All status transitions go through
// conditional writes so that concurrent duplicate deliveries cannot
// double-execute a job.
package ledger

import (
	"context"
	"time"

	"github.com/thanhvd/mediafetch-be/internal/domain"
)

// Ledger is the single source of truth for job state.
//
// Claim, Finalize, and Fail are conditional transitions: they succeed only
// from the expected prior status and report domain.ErrAlreadyClaimed or
// domain.ErrInvalidTransition otherwise. Claim is the at-least-once
// dispatch guard: exactly one of N concurrent claims for a queued job wins.
type Ledger interface {
	// Create writes the initial queued record. domain.ErrJobExists on id reuse.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns the current record. domain.ErrJobNotFound if absent.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// Claim atomically moves the job from queued to running and stamps
	// started_at. domain.ErrAlreadyClaimed if the job is not queued.
	Claim(ctx context.Context, jobID string) (*domain.Job, error)

	// UpdateProgress overwrites the cached progress snapshot. Best effort,
	// unconditional; lost updates are acceptable.
	UpdateProgress(ctx context.Context, jobID string, p *domain.Progress) error

	// Finalize moves the job from running to finished and records the
	// output. domain.ErrInvalidTransition if the job is not running.
	Finalize(ctx context.Context, jobID string, out *domain.Output) error

	// Fail moves the job from running to error and records the message.
	// domain.ErrInvalidTransition if the job is not running.
	Fail(ctx context.Context, jobID string, message string) error

	// AppendEvent appends to the job's event log. Never throttled.
	AppendEvent(ctx context.Context, jobID string, ev *domain.Event) error

	// ListEvents returns the job's events in append order.
	ListEvents(ctx context.Context, jobID string) ([]domain.Event, error)

	// List returns jobs matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]domain.Job, error)
}

// ListFilter selects jobs for List. PageSize is a hard limit; callers
// fetch PageSize+1 to detect further pages.
type ListFilter struct {
	UserID   string
	Status   string
	PageSize int
	Cursor   *Cursor
}

// Cursor is a keyset pagination position (created_at, job_id descending).
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}
