package domain

import "errors"

var (
	// ErrJobExists is returned when creating a job with an id that is already taken
	ErrJobExists = errors.New("job already exists")

	// ErrJobNotFound is returned when a job cannot be found in the ledger
	ErrJobNotFound = errors.New("job not found")

	// ErrAlreadyClaimed is returned when attempting to claim a job that is not in queued status.
	// It is a no-op signal, not a failure: another delivery owns the job.
	ErrAlreadyClaimed = errors.New("job already claimed or not in queued status")

	// ErrInvalidTransition is returned when finalize/fail is attempted on a job that is not running
	ErrInvalidTransition = errors.New("job is not in running status")

	// ErrNoOutput is returned when a download URL is requested before the job has finished output
	ErrNoOutput = errors.New("job has no output yet")

	// ErrForbidden is returned when a job is looked up by a user that does not own it
	ErrForbidden = errors.New("job belongs to another user")

	// ErrEnqueueFailed marks the partial-failure mode where the ledger record
	// was created but the dispatch publish failed. The record is retained.
	ErrEnqueueFailed = errors.New("job created but could not be dispatched")

	// ErrNoArtifact is returned when the downloader reported success but no
	// file matched the expected output patterns
	ErrNoArtifact = errors.New("download finished but output file not found")
)
