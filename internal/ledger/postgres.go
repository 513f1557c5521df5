package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/thanhvd/mediafetch-be/internal/domain"
)

const uniqueViolation = "23505"

// Postgres is the durable Ledger backed by the jobs and job_events tables.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres creates a Postgres-backed ledger
func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		logger: logger,
	}
}

// jobRow mirrors the jobs table; JSONB columns are unmarshalled separately
type jobRow struct {
	JobID        string         `db:"job_id"`
	UserID       string         `db:"user_id"`
	Kind         string         `db:"kind"`
	Status       string         `db:"status"`
	Options      []byte         `db:"options"`
	Progress     []byte         `db:"progress"`
	Output       []byte         `db:"output"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	StartedAt    sql.NullTime   `db:"started_at"`
	FinishedAt   sql.NullTime   `db:"finished_at"`
}

const jobColumns = `job_id, user_id, kind, status, options, progress, output, error_message, created_at, started_at, finished_at`

func (r *jobRow) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:        r.JobID,
		UserID:    r.UserID,
		Kind:      r.Kind,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}

	if r.ErrorMessage.Valid {
		job.Error = r.ErrorMessage.String
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		job.StartedAt = &t
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		job.FinishedAt = &t
	}

	if err := json.Unmarshal(r.Options, &job.Options); err != nil {
		return nil, fmt.Errorf("failed to decode job options: %w", err)
	}
	if len(r.Progress) > 0 {
		job.Progress = &domain.Progress{}
		if err := json.Unmarshal(r.Progress, job.Progress); err != nil {
			return nil, fmt.Errorf("failed to decode job progress: %w", err)
		}
	}
	if len(r.Output) > 0 {
		job.Output = &domain.Output{}
		if err := json.Unmarshal(r.Output, job.Output); err != nil {
			return nil, fmt.Errorf("failed to decode job output: %w", err)
		}
	}

	return job, nil
}

// Create writes the initial queued record. The creation timestamp is
// server-assigned, never client-supplied.
func (p *Postgres) Create(ctx context.Context, job *domain.Job) error {
	optionsJSON, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal job options: %w", err)
	}

	query := `
		INSERT INTO jobs (job_id, user_id, kind, status, options, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`

	err = p.db.QueryRowContext(ctx, query,
		job.ID,
		job.UserID,
		job.Kind,
		domain.JobStatusQueued,
		optionsJSON,
	).Scan(&job.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.ErrJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	job.Status = domain.JobStatusQueued
	return nil
}

// Get returns the current job record
func (p *Postgres) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	if err := p.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toDomain()
}

// Claim performs the atomic queued -> running transition using a
// conditional UPDATE. No rows updated means another delivery owns the job.
func (p *Postgres) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    started_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING ` + jobColumns

	var row jobRow
	err := p.db.QueryRowxContext(ctx, query, domain.JobStatusRunning, jobID, domain.JobStatusQueued).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			p.logger.Warn("Failed to claim job - already claimed or not queued",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	p.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("kind", row.Kind),
	)

	return row.toDomain()
}

// UpdateProgress overwrites the cached progress snapshot unconditionally
func (p *Postgres) UpdateProgress(ctx context.Context, jobID string, progress *domain.Progress) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	query := `UPDATE jobs SET progress = $1 WHERE job_id = $2`
	if _, err := p.db.ExecContext(ctx, query, progressJSON, jobID); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	return nil
}

// Finalize performs the conditional running -> finished transition
func (p *Postgres) Finalize(ctx context.Context, jobID string, out *domain.Output) error {
	outputJSON, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $1,
		    output = $2,
		    finished_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	result, err := p.db.ExecContext(ctx, query, domain.JobStatusFinished, outputJSON, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	return p.requireTransition(result, jobID, domain.JobStatusFinished)
}

// Fail performs the conditional running -> error transition
func (p *Postgres) Fail(ctx context.Context, jobID string, message string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    finished_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	result, err := p.db.ExecContext(ctx, query, domain.JobStatusError, message, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job as failed: %w", err)
	}

	return p.requireTransition(result, jobID, domain.JobStatusError)
}

func (p *Postgres) requireTransition(result sql.Result, jobID, target string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		p.logger.Warn("Rejected job transition - job not running",
			slog.String("job_id", jobID),
			slog.String("target_status", target),
		)
		return domain.ErrInvalidTransition
	}

	p.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", target),
	)

	return nil
}

// AppendEvent appends an event to the job's history
func (p *Postgres) AppendEvent(ctx context.Context, jobID string, ev *domain.Event) error {
	var progressJSON []byte
	if ev.Progress != nil {
		var err error
		progressJSON, err = json.Marshal(ev.Progress)
		if err != nil {
			return fmt.Errorf("failed to marshal event progress: %w", err)
		}
	}

	query := `
		INSERT INTO job_events (job_id, type, status, message, progress, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if _, err := p.db.ExecContext(ctx, query, jobID, ev.Type, ev.Status, ev.Message, progressJSON, at); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// ListEvents returns the job's events in append order
func (p *Postgres) ListEvents(ctx context.Context, jobID string) ([]domain.Event, error) {
	type eventRow struct {
		Type     string         `db:"type"`
		Status   sql.NullString `db:"status"`
		Message  sql.NullString `db:"message"`
		Progress []byte         `db:"progress"`
		At       time.Time      `db:"at"`
	}

	query := `
		SELECT type, status, message, progress, at
		FROM job_events
		WHERE job_id = $1
		ORDER BY id ASC
	`

	var rows []eventRow
	if err := p.db.SelectContext(ctx, &rows, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]domain.Event, 0, len(rows))
	for _, r := range rows {
		ev := domain.Event{
			Type: r.Type,
			At:   r.At,
		}
		if r.Status.Valid {
			ev.Status = r.Status.String
		}
		if r.Message.Valid {
			ev.Message = r.Message.String
		}
		if len(r.Progress) > 0 {
			ev.Progress = &domain.Progress{}
			if err := json.Unmarshal(r.Progress, ev.Progress); err != nil {
				return nil, fmt.Errorf("failed to decode event progress: %w", err)
			}
		}
		events = append(events, ev)
	}

	return events, nil
}

// List returns jobs matching the filter with keyset pagination, newest first
func (p *Postgres) List(ctx context.Context, filter ListFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra row so the caller can detect further pages
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	return jobs, nil
}
