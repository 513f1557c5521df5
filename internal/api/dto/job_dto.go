package dto

import "github.com/thanhvd/mediafetch-be/internal/domain"

// AudioJobRequest is the body for creating an audio extraction job.
type AudioJobRequest struct {
	URL           string `json:"url" binding:"required,url"`
	AudioFormat   string `json:"audio_format"`
	Bitrate       string `json:"bitrate"`
	AllowPlaylist *bool  `json:"allow_playlist"`
	PlaylistItems string `json:"playlist_items"`
	CookieFile    string `json:"cookie_file"`
}

// VideoJobRequest is the body for creating a video download job.
type VideoJobRequest struct {
	URL           string `json:"url" binding:"required,url"`
	Container     string `json:"container"`
	MaxHeight     *int   `json:"max_height"`
	PreferCodec   string `json:"prefer_codec"`
	AllowPlaylist *bool  `json:"allow_playlist"`
	PlaylistItems string `json:"playlist_items"`
	CookieFile    string `json:"cookie_file"`
}

type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

type DownloadURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []domain.Job `json:"jobs"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type ListEventsResponse struct {
	Events []domain.Event `json:"events"`
}
