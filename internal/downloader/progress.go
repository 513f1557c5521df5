package downloader

import (
	"regexp"
	"strings"

	"github.com/thanhvd/mediafetch-be/internal/domain"
)

// Progress statuses reported to the callback
const (
	statusDownloading = "downloading"
	statusFinished    = "finished"
)

var (
	// [download]  42.1% of 5.25MiB at 1.40MiB/s ETA 00:03
	// [download] 100% of 5.25MiB in 00:04
	progressLineRe = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?%)\s+of\s+~?\s*\S+(?:\s+at\s+(\S+))?(?:\s+ETA\s+(\S+))?`)

	// [download] Destination: /downloads/Title [abc123].webm
	destinationLineRe = regexp.MustCompile(`^\[download\]\s+Destination:\s+(.+)$`)
)

// progressParser turns yt-dlp --newline output into progress records. It
// remembers the most recent destination line so percent lines carry the
// filename they refer to.
type progressParser struct {
	filename string
}

func newProgressParser() *progressParser {
	return &progressParser{}
}

func (p *progressParser) parse(line string) (domain.Progress, bool) {
	if m := destinationLineRe.FindStringSubmatch(line); m != nil {
		p.filename = strings.TrimSpace(m[1])
		return domain.Progress{}, false
	}

	m := progressLineRe.FindStringSubmatch(line)
	if m == nil {
		return domain.Progress{}, false
	}

	status := statusDownloading
	if m[1] == "100%" || m[1] == "100.0%" {
		status = statusFinished
	}

	return domain.Progress{
		Status:   status,
		Percent:  m[1],
		Speed:    m[2],
		ETA:      m[3],
		Filename: p.filename,
	}, true
}
