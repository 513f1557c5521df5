package domain

import "time"

// Event types
const (
	EventTypeStatus   = "status"
	EventTypeProgress = "progress"
	EventTypeError    = "error"
)

// Event is one entry in a job's append-only history. Events are never
// updated or deleted; within a job they are ordered by append time.
type Event struct {
	Type     string    `json:"type"`
	Status   string    `json:"status,omitempty"`
	Message  string    `json:"message,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	At       time.Time `json:"at"`
}
