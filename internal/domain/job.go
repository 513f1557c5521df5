package domain

import "time"

// Job status values. Transitions only ever follow
// queued -> running -> finished | error; finished and error are terminal.
const (
	JobStatusQueued   = "queued"
	JobStatusRunning  = "running"
	JobStatusFinished = "finished"
	JobStatusError    = "error"
)

// Job kinds
const (
	JobKindAudio = "audio"
	JobKindVideo = "video"
)

// Job is the canonical per-job record held by the ledger.
type Job struct {
	ID         string     `json:"job_id"`
	UserID     string     `json:"user_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Progress   *Progress  `json:"progress,omitempty"`
	Output     *Output    `json:"output,omitempty"`
	Options    Options    `json:"options"`
}

// IsTerminal reports whether the job can no longer change state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusFinished || j.Status == JobStatusError
}

// Options is the immutable payload captured at creation. The worker reads
// it from the ledger and never trusts the queue message to carry it.
type Options struct {
	URL           string `json:"url"`
	AudioFormat   string `json:"audio_format,omitempty"`
	Bitrate       string `json:"bitrate,omitempty"`
	Container     string `json:"container,omitempty"`
	MaxHeight     *int   `json:"max_height,omitempty"`
	PreferCodec   string `json:"prefer_codec,omitempty"`
	AllowPlaylist bool   `json:"allow_playlist"`
	PlaylistItems string `json:"playlist_items,omitempty"`
	CookieFile    string `json:"cookie_file,omitempty"`
}

// Progress is the throttled snapshot cached on the job record. The event
// log, not this field, is the authoritative progress history.
type Progress struct {
	Status   string `json:"status"`
	Percent  string `json:"percent"`
	Speed    string `json:"speed,omitempty"`
	ETA      string `json:"eta,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Output describes the artifact produced by a finished job.
type Output struct {
	Bucket    string `json:"bucket"`
	Object    string `json:"object"`
	SizeBytes int64  `json:"size_bytes"`
}
