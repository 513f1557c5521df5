// Package downloader wraps the external yt-dlp binary. The orchestration
// core treats it as an opaque collaborator: it takes the immutable job
// options, streams progress through a callback, and hands back the path of
// the produced artifact.
package downloader

import (
	"context"

	"github.com/thanhvd/mediafetch-be/internal/domain"
)

// ProgressFunc receives every progress tick emitted during a download.
type ProgressFunc func(domain.Progress)

// Downloader fetches media for a job and returns the local artifact path.
// Each job works in its own directory keyed by jobID so concurrent
// downloads never mix artifacts.
type Downloader interface {
	Download(ctx context.Context, jobID, kind string, opts domain.Options, onProgress ProgressFunc) (string, error)
}
