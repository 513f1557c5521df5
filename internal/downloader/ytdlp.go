package downloader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/thanhvd/mediafetch-be/internal/domain"
)

// Config holds yt-dlp adapter configuration
type Config struct {
	BinaryPath  string // path to the yt-dlp binary; defaults to "yt-dlp" in PATH
	FFmpegPath  string // optional explicit ffmpeg location
	DownloadDir string // working directory for produced files
	Logger      *slog.Logger
}

// YtDlp runs the yt-dlp binary and parses its line-based progress output.
type YtDlp struct {
	binaryPath  string
	ffmpegPath  string
	downloadDir string
	logger      *slog.Logger
}

// NewYtDlp creates a yt-dlp backed Downloader
func NewYtDlp(cfg *Config) *YtDlp {
	binaryPath := cfg.BinaryPath
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}

	return &YtDlp{
		binaryPath:  binaryPath,
		ffmpegPath:  cfg.FFmpegPath,
		downloadDir: cfg.DownloadDir,
		logger:      cfg.Logger,
	}
}

// Download runs yt-dlp with options assembled from the job's immutable
// options payload, streaming each parsed progress line to onProgress. On
// success it returns the newest file in the job's download directory
// matching the kind's extension patterns; domain.ErrNoArtifact if none
// matched.
func (d *YtDlp) Download(ctx context.Context, jobID, kind string, opts domain.Options, onProgress ProgressFunc) (string, error) {
	jobDir := filepath.Join(d.downloadDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	args, err := d.buildArgs(jobDir, kind, opts)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, d.binaryPath, append(args, opts.URL)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open yt-dlp stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	d.logger.Info("yt-dlp started",
		slog.String("kind", kind),
		slog.String("url", opts.URL),
	)

	parser := newProgressParser()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if progress, ok := parser.parse(scanner.Text()); ok && onProgress != nil {
			onProgress(progress)
		}
	}

	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, stderr.String())
	}

	outPath, err := findNewest(jobDir, patternsFor(kind))
	if err != nil {
		return "", err
	}

	d.logger.Info("yt-dlp finished",
		slog.String("kind", kind),
		slog.String("output", outPath),
	)

	return outPath, nil
}

// buildArgs assembles the yt-dlp argument list for the job kind
func (d *YtDlp) buildArgs(jobDir, kind string, opts domain.Options) ([]string, error) {
	args := []string{
		"--newline",
		"--no-warnings",
		"--retries", "5",
		"--fragment-retries", "5",
		"--socket-timeout", "30",
		"--continue",
		"--embed-thumbnail",
		"--add-metadata",
	}

	if d.ffmpegPath != "" {
		args = append(args, "--ffmpeg-location", d.ffmpegPath)
	}

	switch kind {
	case domain.JobKindAudio:
		audioFormat := opts.AudioFormat
		if audioFormat == "" {
			audioFormat = "mp3"
		}
		bitrate := opts.Bitrate
		if bitrate == "" {
			bitrate = "192"
		}
		args = append(args,
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", audioFormat,
			"--audio-quality", bitrate,
			"-o", filepath.Join(jobDir, "%(title)s [%(id)s].%(ext)s"),
		)

	case domain.JobKindVideo:
		container := opts.Container
		if container == "" {
			container = "mp4"
		}
		args = append(args,
			"-f", videoFormatSelector(container, opts.MaxHeight, opts.PreferCodec),
			"--merge-output-format", container,
			"-o", filepath.Join(jobDir, "%(title)s [%(id)s] [%(height)sp %(vcodec)s].%(ext)s"),
		)

	default:
		return nil, fmt.Errorf("unknown job kind: %s", kind)
	}

	if !opts.AllowPlaylist {
		args = append(args, "--no-playlist")
	}
	if opts.PlaylistItems != "" {
		args = append(args, "--playlist-items", opts.PlaylistItems)
	}

	if opts.CookieFile != "" {
		if _, err := os.Stat(opts.CookieFile); err == nil {
			args = append(args, "--cookies", opts.CookieFile)
		}
	}

	return args, nil
}

// videoFormatSelector builds the yt-dlp format expression for a video job:
// best video stream within the height cap in the requested container,
// merged with best audio, falling back to best available.
func videoFormatSelector(container string, maxHeight *int, preferCodec string) string {
	heightPart := ""
	if maxHeight != nil {
		heightPart = fmt.Sprintf("[height<=%d]", *maxHeight)
	}

	var base string
	switch container {
	case "mp4":
		base = fmt.Sprintf("bv*%s[ext=mp4]+ba[ext=m4a]/b%s[ext=mp4]/best", heightPart, heightPart)
	case "webm":
		base = fmt.Sprintf("bv*%s[ext=webm]+ba[ext=webm]/b%s[ext=webm]/best", heightPart, heightPart)
	default:
		base = fmt.Sprintf("bv*%s+ba/best", heightPart)
	}

	if preferCodec != "" {
		base = fmt.Sprintf("%s[vcodec~=%s]", base, preferCodec)
	}

	return base
}
