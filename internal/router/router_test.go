package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shlokdhakrey/media-bot-sub002/internal/downloadclients"
	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

type fakeClient struct {
	name         string
	pollInterval time.Duration
	healthErr    error
	handle       *fakeHandle
	startErr     error
}

func (c *fakeClient) Name() string                   { return c.name }
func (c *fakeClient) PollInterval() time.Duration     { return c.pollInterval }
func (c *fakeClient) HealthCheck(ctx context.Context) error { return c.healthErr }
func (c *fakeClient) Start(ctx context.Context, req downloadclients.Request) (downloadclients.Handle, error) {
	if c.startErr != nil {
		return nil, c.startErr
	}
	return c.handle, nil
}

type fakeHandle struct {
	pollsUntilDone int
	polled         int
	failAfter      int
	files          []string
	totalBytes     int64
	cancelled      bool
}

func (h *fakeHandle) Status(ctx context.Context) (downloadclients.Status, error) {
	h.polled++
	if h.failAfter > 0 && h.polled >= h.failAfter {
		return downloadclients.Status{Failed: true, Error: "client reported a transient failure"}, nil
	}
	if h.polled >= h.pollsUntilDone {
		return downloadclients.Status{Done: true, Progress: 100}, nil
	}
	return downloadclients.Status{Progress: h.polled * 10}, nil
}

func (h *fakeHandle) Files(ctx context.Context) ([]string, int64, error) {
	return h.files, h.totalBytes, nil
}

func (h *fakeHandle) Cancel(ctx context.Context) error {
	h.cancelled = true
	return nil
}

func TestDownloadSucceedsAfterPolling(t *testing.T) {
	handle := &fakeHandle{pollsUntilDone: 2, files: []string{"/out/video.mkv"}, totalBytes: 12345}
	torrent := &fakeClient{name: "torrent-client", pollInterval: time.Millisecond, handle: handle}

	r := New(torrent, nil, nil, nil)
	result, err := r.Download(context.Background(), Request{
		Link:      models.ClassifiedLink{Kind: models.LinkMagnet, Original: "magnet:?xt=urn:btih:abc"},
		JobID:     "job-1",
		OutputDir: "/tmp/job-1",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"/out/video.mkv"}, result.Files)
	assert.Equal(t, int64(12345), result.TotalBytes)
}

func TestDownloadUnsupportedLinkKindHasNoClient(t *testing.T) {
	r := New(nil, nil, nil, nil)
	_, err := r.Download(context.Background(), Request{
		Link: models.ClassifiedLink{Kind: models.LinkFTP, Original: "ftp://example.com/file"},
	})
	require.Error(t, err)
	kind, ok := enginerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, enginerr.KindUnsupportedLink, kind)
}

func TestDownloadClientReportedFailurePropagates(t *testing.T) {
	handle := &fakeHandle{pollsUntilDone: 5, failAfter: 1}
	direct := &fakeClient{name: "direct-download", pollInterval: time.Millisecond, handle: handle}

	r := New(nil, direct, nil, nil)
	_, err := r.Download(context.Background(), Request{
		Link: models.ClassifiedLink{Kind: models.LinkHTTPS, Original: "https://example.com/file.mkv"},
	})
	require.Error(t, err)
	kind, ok := enginerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, enginerr.KindDownloadClient, kind)
}

func TestDownloadCancellationDropsTransferAndFails(t *testing.T) {
	handle := &fakeHandle{pollsUntilDone: 1000}
	torrent := &fakeClient{name: "torrent-client", pollInterval: 50 * time.Millisecond, handle: handle}

	r := New(torrent, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.Download(ctx, Request{
		Link: models.ClassifiedLink{Kind: models.LinkMagnet, Original: "magnet:?xt=urn:btih:abc"},
	})
	require.Error(t, err)
	kind, ok := enginerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, enginerr.KindCancelled, kind)
	assert.True(t, handle.cancelled)
}

func TestHealthCheckAggregatesAllRegisteredClients(t *testing.T) {
	torrent := &fakeClient{name: "torrent-client"}
	direct := &fakeClient{name: "direct-download", healthErr: assertError{}}

	r := New(torrent, direct, nil, nil)
	results := r.HealthCheck(context.Background())

	assert.Len(t, results, 2)
	assert.True(t, results["torrent-client"])
	assert.False(t, results["direct-download"])
}

type assertError struct{}

func (assertError) Error() string { return "unreachable" }

// retryClient returns a fresh handle per Start call, reporting a transient
// failure until attempt reaches succeedOnAttempt.
type retryClient struct {
	name             string
	attempts         int
	succeedOnAttempt int
}

func (c *retryClient) Name() string                   { return c.name }
func (c *retryClient) PollInterval() time.Duration    { return time.Millisecond }
func (c *retryClient) HealthCheck(ctx context.Context) error { return nil }
func (c *retryClient) Start(ctx context.Context, req downloadclients.Request) (downloadclients.Handle, error) {
	c.attempts++
	return &retryHandle{attempt: c.attempts, succeedOnAttempt: c.succeedOnAttempt}, nil
}

type retryHandle struct {
	attempt          int
	succeedOnAttempt int
}

func (h *retryHandle) Status(ctx context.Context) (downloadclients.Status, error) {
	if h.attempt < h.succeedOnAttempt {
		return downloadclients.Status{Failed: true, Transient: true, Error: "transient network blip"}, nil
	}
	return downloadclients.Status{Done: true, Progress: 100}, nil
}

func (h *retryHandle) Files(ctx context.Context) ([]string, int64, error) {
	return []string{"/out/f.mkv"}, 10, nil
}

func (h *retryHandle) Cancel(ctx context.Context) error { return nil }

func TestDownloadRetriesTransientFailureThenSucceeds(t *testing.T) {
	client := &retryClient{name: "direct-download", succeedOnAttempt: 2}
	r := New(nil, client, nil, nil)

	result, err := r.Download(context.Background(), Request{
		Link: models.ClassifiedLink{Kind: models.LinkHTTPS, Original: "https://example.com/file.mkv"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"/out/f.mkv"}, result.Files)
	assert.Equal(t, 2, client.attempts)
}

func TestDownloadGivesUpAfterMaxTransientRetries(t *testing.T) {
	client := &retryClient{name: "direct-download", succeedOnAttempt: 99}
	r := New(nil, client, nil, nil)

	_, err := r.Download(context.Background(), Request{
		Link: models.ClassifiedLink{Kind: models.LinkHTTPS, Original: "https://example.com/file.mkv"},
	})

	require.Error(t, err)
	kind, ok := enginerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, enginerr.KindDownloadClient, kind)
	assert.Equal(t, maxDownloadAttempts, client.attempts)
}
