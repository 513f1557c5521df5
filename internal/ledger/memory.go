package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/thanhvd/mediafetch-be/internal/domain"
)

// Memory is an in-memory Ledger with the same transition contract as the
// Postgres implementation. It backs tests and local single-process runs;
// the mutex-guarded status check plays the role of the conditional UPDATE.
type Memory struct {
	mu     sync.Mutex
	jobs   map[string]*domain.Job
	events map[string][]domain.Event
}

// NewMemory creates an empty in-memory ledger
func NewMemory() *Memory {
	return &Memory{
		jobs:   make(map[string]*domain.Job),
		events: make(map[string][]domain.Event),
	}
}

func (m *Memory) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return domain.ErrJobExists
	}

	stored := *job
	stored.Status = domain.JobStatusQueued
	stored.CreatedAt = time.Now().UTC()
	m.jobs[job.ID] = &stored

	job.Status = stored.Status
	job.CreatedAt = stored.CreatedAt
	return nil
}

func (m *Memory) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	return copyJob(job), nil
}

func (m *Memory) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobStatusQueued {
		return nil, domain.ErrAlreadyClaimed
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusRunning
	job.StartedAt = &now

	return copyJob(job), nil
}

func (m *Memory) UpdateProgress(ctx context.Context, jobID string, p *domain.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil // best effort, lost updates acceptable
	}

	snapshot := *p
	job.Progress = &snapshot
	return nil
}

func (m *Memory) Finalize(ctx context.Context, jobID string, out *domain.Output) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobStatusRunning {
		return domain.ErrInvalidTransition
	}

	now := time.Now().UTC()
	output := *out
	job.Status = domain.JobStatusFinished
	job.Output = &output
	job.FinishedAt = &now
	return nil
}

func (m *Memory) Fail(ctx context.Context, jobID string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobStatusRunning {
		return domain.ErrInvalidTransition
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusError
	job.Error = message
	job.FinishedAt = &now
	return nil
}

func (m *Memory) AppendEvent(ctx context.Context, jobID string, ev *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *ev
	if stored.At.IsZero() {
		stored.At = time.Now().UTC()
	}
	if stored.Progress != nil {
		p := *stored.Progress
		stored.Progress = &p
	}

	m.events[jobID] = append(m.events[jobID], stored)
	return nil
}

func (m *Memory) ListEvents(ctx context.Context, jobID string) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]domain.Event, len(m.events[jobID]))
	copy(events, m.events[jobID])
	return events, nil
}

func (m *Memory) List(ctx context.Context, filter ListFilter) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []domain.Job
	for _, job := range m.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobs = append(jobs, *copyJob(job))
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})

	if filter.Cursor != nil {
		pos := 0
		for pos < len(jobs) {
			j := jobs[pos]
			if j.CreatedAt.Before(filter.Cursor.CreatedAt) ||
				(j.CreatedAt.Equal(filter.Cursor.CreatedAt) && j.ID < filter.Cursor.JobID) {
				break
			}
			pos++
		}
		jobs = jobs[pos:]
	}

	if filter.PageSize > 0 && len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}

	return jobs, nil
}

func copyJob(job *domain.Job) *domain.Job {
	out := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		out.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		out.FinishedAt = &t
	}
	if job.Progress != nil {
		p := *job.Progress
		out.Progress = &p
	}
	if job.Output != nil {
		o := *job.Output
		out.Output = &o
	}
	if job.Options.MaxHeight != nil {
		h := *job.Options.MaxHeight
		out.Options.MaxHeight = &h
	}
	return &out
}
