package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thanhvd/mediafetch-be/internal/domain"
	"github.com/thanhvd/mediafetch-be/internal/downloader"
	"github.com/thanhvd/mediafetch-be/internal/ledger"
	"github.com/thanhvd/mediafetch-be/internal/throttle"
)

type fakeDownloader struct {
	baseDir  string
	ticks    []domain.Progress
	err      error
	calls    int
	lastKind string
	lastOpts domain.Options
}

func (f *fakeDownloader) Download(_ context.Context, jobID, kind string, opts domain.Options, onProgress downloader.ProgressFunc) (string, error) {
	f.calls++
	f.lastKind = kind
	f.lastOpts = opts

	for _, tick := range f.ticks {
		if onProgress != nil {
			onProgress(tick)
		}
	}

	if f.err != nil {
		return "", f.err
	}

	jobDir := filepath.Join(f.baseDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", err
	}
	outPath := filepath.Join(jobDir, "track.mp3")
	if err := os.WriteFile(outPath, []byte("audio-bytes"), 0o644); err != nil {
		return "", err
	}
	return outPath, nil
}

type fakeStore struct {
	err     error
	calls   int
	lastKey string
}

func (f *fakeStore) Upload(_ context.Context, localPath, objectKey string) (string, int64, error) {
	f.calls++
	f.lastKey = objectKey
	if f.err != nil {
		return "", 0, f.err
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return "", 0, err
	}
	return objectKey, info.Size(), nil
}

type workerFixture struct {
	worker     *Worker
	ledger     *ledger.Memory
	downloader *fakeDownloader
	store      *fakeStore
	throttler  *throttle.Throttler
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	f := &workerFixture{
		ledger:     ledger.NewMemory(),
		downloader: &fakeDownloader{baseDir: t.TempDir()},
		store:      &fakeStore{},
		throttler:  throttle.New(time.Second),
	}

	f.worker = NewWorker(&Config{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Ledger:        f.ledger,
		Downloader:    f.downloader,
		Store:         f.store,
		Throttler:     f.throttler,
		Bucket:        "media-outputs",
		Concurrency:   1,
		PrefetchCount: 1,
	})

	return f
}

func (f *workerFixture) createJob(t *testing.T, kind string) string {
	t.Helper()

	job := &domain.Job{
		ID:     uuid.New().String(),
		UserID: "user-1",
		Kind:   kind,
		Status: domain.JobStatusQueued,
		Options: domain.Options{
			URL:         "https://example.com/watch?v=abc",
			AudioFormat: "mp3",
			Bitrate:     "192",
		},
	}
	require.NoError(t, f.ledger.Create(context.Background(), job))
	return job.ID
}

func TestProcessJob_Success(t *testing.T) {
	f := newWorkerFixture(t)
	f.downloader.ticks = []domain.Progress{
		{Status: "downloading", Percent: "10.0%", Speed: "1.00MiB/s", ETA: "00:30"},
		{Status: "downloading", Percent: "55.0%", Speed: "1.20MiB/s", ETA: "00:12"},
		{Status: "finished", Percent: "100%", Filename: "track.mp3"},
	}

	jobID := f.createJob(t, domain.JobKindAudio)

	err := f.worker.processJob(context.Background(), jobID)
	require.NoError(t, err)

	job, err := f.ledger.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFinished, job.Status)
	require.NotNil(t, job.Output)
	assert.Equal(t, "media-outputs", job.Output.Bucket)
	assert.Equal(t, fmt.Sprintf("outputs/%s/track.mp3", jobID), job.Output.Object)
	assert.Equal(t, int64(len("audio-bytes")), job.Output.SizeBytes)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)

	assert.Equal(t, domain.JobKindAudio, f.downloader.lastKind)
	assert.Equal(t, "mp3", f.downloader.lastOpts.AudioFormat)
	assert.Equal(t, "192", f.downloader.lastOpts.Bitrate)

	// Every tick lands in the event log even though the cached ledger
	// progress is throttled.
	events, err := f.ledger.ListEvents(context.Background(), jobID)
	require.NoError(t, err)

	var progressEvents []domain.Event
	var statusEvents []domain.Event
	for _, e := range events {
		switch e.Type {
		case domain.EventTypeProgress:
			progressEvents = append(progressEvents, e)
		case domain.EventTypeStatus:
			statusEvents = append(statusEvents, e)
		}
	}
	require.Len(t, progressEvents, 3)
	assert.Equal(t, "10.0%", progressEvents[0].Progress.Percent)
	assert.Equal(t, "55.0%", progressEvents[1].Progress.Percent)
	assert.Equal(t, "100%", progressEvents[2].Progress.Percent)

	require.Len(t, statusEvents, 2)
	assert.Equal(t, domain.JobStatusRunning, statusEvents[0].Status)
	assert.Equal(t, domain.JobStatusFinished, statusEvents[1].Status)

	// The three ticks arrive within one throttle interval, so only the
	// first one refreshes the cached progress field.
	require.NotNil(t, job.Progress)
	assert.Equal(t, "10.0%", job.Progress.Percent)

	// Scratch dir is removed after upload.
	_, statErr := os.Stat(filepath.Join(f.downloader.baseDir, jobID))
	assert.True(t, os.IsNotExist(statErr))

	// Throttle state is released once the job settles.
	assert.True(t, f.throttler.ShouldWrite(jobID, time.Now()))
}

func TestProcessJob_DownloadFailure(t *testing.T) {
	f := newWorkerFixture(t)
	f.downloader.err = errors.New("yt-dlp failed: video unavailable")

	jobID := f.createJob(t, domain.JobKindAudio)

	err := f.worker.processJob(context.Background(), jobID)
	require.Error(t, err)

	// A failed delivery is reported back to the transport; the redelivery
	// no-ops against the now-terminal job (see the redelivery test).
	assert.True(t, f.worker.shouldRequeueJob(err))

	job, getErr := f.ledger.Get(context.Background(), jobID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobStatusError, job.Status)
	assert.Contains(t, job.Error, "video unavailable")
	assert.Nil(t, job.Output)

	events, err := f.ledger.ListEvents(context.Background(), jobID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventTypeError, last.Type)
	assert.Contains(t, last.Message, "video unavailable")

	assert.Equal(t, 0, f.store.calls)
}

func TestProcessJob_UploadFailure(t *testing.T) {
	f := newWorkerFixture(t)
	f.store.err = errors.New("bucket unreachable")

	jobID := f.createJob(t, domain.JobKindAudio)

	err := f.worker.processJob(context.Background(), jobID)
	require.Error(t, err)

	job, getErr := f.ledger.Get(context.Background(), jobID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobStatusError, job.Status)
	assert.Contains(t, job.Error, "upload failed")
}

func TestProcessJob_Redelivery(t *testing.T) {
	f := newWorkerFixture(t)

	jobID := f.createJob(t, domain.JobKindAudio)

	require.NoError(t, f.worker.processJob(context.Background(), jobID))
	require.Equal(t, 1, f.downloader.calls)

	// A redelivered message for a settled job is dropped without touching
	// the downloader or the stored outcome.
	require.NoError(t, f.worker.processJob(context.Background(), jobID))
	assert.Equal(t, 1, f.downloader.calls)
	assert.Equal(t, 1, f.store.calls)

	job, err := f.ledger.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFinished, job.Status)
}

func TestProcessJob_RedeliveryAfterFailure(t *testing.T) {
	f := newWorkerFixture(t)
	f.downloader.err = errors.New("network reset")

	jobID := f.createJob(t, domain.JobKindAudio)

	require.Error(t, f.worker.processJob(context.Background(), jobID))
	require.Equal(t, 1, f.downloader.calls)

	require.NoError(t, f.worker.processJob(context.Background(), jobID))
	assert.Equal(t, 1, f.downloader.calls)

	job, err := f.ledger.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, job.Status)
}

func TestProcessJob_UnknownJob(t *testing.T) {
	f := newWorkerFixture(t)

	err := f.worker.processJob(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.Equal(t, 0, f.downloader.calls)
}

func TestShouldRequeueJob(t *testing.T) {
	f := newWorkerFixture(t)

	assert.True(t, f.worker.shouldRequeueJob(newRetryableError(errors.New("db down"))))
	assert.True(t, f.worker.shouldRequeueJob(fmt.Errorf("wrapped: %w", newRetryableError(errors.New("db down")))))
	assert.False(t, f.worker.shouldRequeueJob(errors.New("download failed")))
}

func TestHandlePushDelivery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	post := func(t *testing.T, f *workerFixture, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/deliveries", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		f.worker.PushRouter().ServeHTTP(w, req)
		return w
	}

	t.Run("processes pushed job", func(t *testing.T) {
		f := newWorkerFixture(t)
		jobID := f.createJob(t, domain.JobKindAudio)
		payload := base64.StdEncoding.EncodeToString([]byte(jobID))

		w := post(t, f, fmt.Sprintf(`{"message":{"data":"%s"}}`, payload))

		require.Equal(t, http.StatusOK, w.Code)

		job, err := f.ledger.Get(context.Background(), jobID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFinished, job.Status)
	})

	t.Run("rejects invalid base64", func(t *testing.T) {
		f := newWorkerFixture(t)

		w := post(t, f, `{"message":{"data":"%%%not-base64%%%"}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects payload that is not a job id", func(t *testing.T) {
		f := newWorkerFixture(t)
		payload := base64.StdEncoding.EncodeToString([]byte("not-a-uuid"))

		w := post(t, f, fmt.Sprintf(`{"message":{"data":"%s"}}`, payload))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects missing envelope", func(t *testing.T) {
		f := newWorkerFixture(t)

		w := post(t, f, `{"data":"whatever"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("reports processing failure", func(t *testing.T) {
		f := newWorkerFixture(t)
		f.downloader.err = errors.New("video unavailable")
		jobID := f.createJob(t, domain.JobKindAudio)
		payload := base64.StdEncoding.EncodeToString([]byte(jobID))

		w := post(t, f, fmt.Sprintf(`{"message":{"data":"%s"}}`, payload))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
