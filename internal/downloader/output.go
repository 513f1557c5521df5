package downloader

import (
	"os"
	"path/filepath"
	"time"

	"github.com/thanhvd/mediafetch-be/internal/domain"
)

var (
	audioPatterns = []string{"*.mp3", "*.m4a", "*.opus", "*.flac", "*.wav"}
	videoPatterns = []string{"*.mp4", "*.mkv", "*.webm"}
)

func patternsFor(kind string) []string {
	if kind == domain.JobKindVideo {
		return videoPatterns
	}
	return audioPatterns
}

// findNewest returns the most recently modified file in dir matching any
// of the glob patterns, or domain.ErrNoArtifact when nothing matched.
func findNewest(dir string, patterns []string) (string, error) {
	var (
		newest    string
		newestMod time.Time
	)

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			if info.ModTime().After(newestMod) {
				newest = match
				newestMod = info.ModTime()
			}
		}
	}

	if newest == "" {
		return "", domain.ErrNoArtifact
	}

	return newest, nil
}
