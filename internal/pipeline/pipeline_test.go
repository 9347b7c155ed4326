package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shlokdhakrey/media-bot-sub002/internal/config"
	"github.com/shlokdhakrey/media-bot-sub002/internal/downloadclients"
	"github.com/shlokdhakrey/media-bot-sub002/internal/progress"
	"github.com/shlokdhakrey/media-bot-sub002/internal/repository"
	"github.com/shlokdhakrey/media-bot-sub002/internal/router"
	"github.com/shlokdhakrey/media-bot-sub002/internal/statemachine"
	"github.com/shlokdhakrey/media-bot-sub002/internal/syncdecision"
	"github.com/shlokdhakrey/media-bot-sub002/internal/uploadrouter"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

func newTestRepository(t *testing.T) *repository.Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "pipeline.db")
	logger := logrus.New()
	logger.SetOutput(new(discardWriter))
	repo, err := repository.New(context.Background(), dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestProgressStore(t *testing.T) *progress.Store {
	t.Helper()
	store, err := progress.NewStore("localhost:6379", 15)
	if err != nil {
		t.Skipf("redis not reachable, skipping: %v", err)
	}
	return store
}

// blockingHandle never reports Done; it exists to keep a job parked in
// DOWNLOADING so tests can exercise cancellation mid-flight.
type blockingHandle struct{ cancelled chan struct{} }

func (h *blockingHandle) Status(ctx context.Context) (downloadclients.Status, error) {
	return downloadclients.Status{Progress: 1}, nil
}
func (h *blockingHandle) Files(ctx context.Context) ([]string, int64, error) { return nil, 0, nil }
func (h *blockingHandle) Cancel(ctx context.Context) error {
	close(h.cancelled)
	return nil
}

type blockingClient struct{ handle *blockingHandle }

func (c *blockingClient) Name() string                                  { return "torrent-client" }
func (c *blockingClient) PollInterval() time.Duration                   { return time.Millisecond }
func (c *blockingClient) HealthCheck(ctx context.Context) error         { return nil }
func (c *blockingClient) Start(ctx context.Context, req downloadclients.Request) (downloadclients.Handle, error) {
	return c.handle, nil
}

type fakePackager struct{}

func (fakePackager) Package(jobID string, files models.CategorizedFiles, outputRoot string, metadata map[string]interface{}) (*models.Manifest, error) {
	return &models.Manifest{JobID: jobID}, nil
}

type fakeUploadTarget struct{ name string }

func (t fakeUploadTarget) Name() string { return t.name }
func (t fakeUploadTarget) Upload(ctx context.Context, packageDir, jobID string) (uploadrouter.Result, error) {
	return uploadrouter.Result{RemoteLocation: "nowhere"}, nil
}
func (t fakeUploadTarget) HealthCheck(ctx context.Context) error { return nil }

func newTestDriver(t *testing.T, torrent downloadclients.Client) (*Driver, *repository.Repository) {
	t.Helper()
	repo := newTestRepository(t)
	store := newTestProgressStore(t)
	t.Cleanup(func() { store.Close() })

	r := router.New(torrent, nil, nil, nil)
	syncEngine := syncdecision.New(config.DefaultConfig().Sync)
	uploadR := uploadrouter.New(fakeUploadTarget{name: "primary"}, nil)

	logger := logrus.New()
	logger.SetOutput(new(discardWriter))

	cfg := config.DefaultConfig()
	cfg.Storage.Working = t.TempDir()
	cfg.Storage.Processed = t.TempDir()

	driver := New(cfg, repo, store, r, syncEngine, fakePackager{}, uploadR, logger)
	return driver, repo
}

func waitForState(t *testing.T, repo *repository.Repository, jobID string, want models.JobState, timeout time.Duration) models.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := repo.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.State == want {
			return *job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached state %s", want)
	return models.Job{}
}

func TestSubmitCancelTransitionsJobToCancelled(t *testing.T) {
	handle := &blockingHandle{cancelled: make(chan struct{})}
	driver, repo := newTestDriver(t, &blockingClient{handle: handle})

	job := &models.Job{Owner: "alice", Link: "magnet:?xt=urn:btih:abcdef0123456789abcdef0123456789abcdef01", Kind: models.KindFullPipeline, Priority: models.PriorityNormal}
	require.NoError(t, driver.Submit(context.Background(), job))

	waitForState(t, repo, job.ID, models.StateDownloading, time.Second)
	require.NoError(t, driver.Cancel(job.ID))

	final := waitForState(t, repo, job.ID, models.StateCancelled, time.Second)
	assert.Equal(t, models.StateCancelled, final.State)

	select {
	case <-handle.cancelled:
	case <-time.After(time.Second):
		t.Fatal("expected the download handle to be cancelled")
	}
}

func TestCancelUnknownJobReturnsNotFound(t *testing.T) {
	driver, _ := newTestDriver(t, &blockingClient{handle: &blockingHandle{cancelled: make(chan struct{})}})
	err := driver.Cancel("does-not-exist")
	require.Error(t, err)
}

func TestBuildMuxArgsAppliesOffsetStretchAndTrim(t *testing.T) {
	asset := models.MediaAsset{VideoPath: "/work/v.mkv", AudioPaths: []string{"/work/a.aac"}}
	decision := models.SyncDecision{Params: models.SyncDecisionParams{
		OffsetMs:     250,
		StretchRatio: 1.01,
		TrimRegions:  []models.TrimRegion{{StartMs: 0, EndMs: 5000}},
	}}

	args := buildMuxArgs(asset, decision, "/out/muxed.mkv")

	assert.Contains(t, args, "-itsoffset")
	assert.Contains(t, args, "0.250")
	assert.Contains(t, args, "-filter:a")
	assert.Contains(t, args, "atempo=1.0100")
	assert.Contains(t, args, "-ss")
	assert.Equal(t, "/out/muxed.mkv", args[len(args)-1])
}

func TestBuildMuxArgsNoCorrectionCopiesStreams(t *testing.T) {
	asset := models.MediaAsset{VideoPath: "/work/v.mkv", AudioPaths: []string{"/work/a.aac"}}
	decision := models.SyncDecision{}

	args := buildMuxArgs(asset, decision, "/out/muxed.mkv")

	assert.NotContains(t, args, "-itsoffset")
	assert.Contains(t, args, "-c:a")
	assert.Contains(t, args, "copy")
}

func TestClassifyMediaExt(t *testing.T) {
	assert.Equal(t, mediaVideo, classifyMediaExt("movie.mkv"))
	assert.Equal(t, mediaAudio, classifyMediaExt("track.flac"))
	assert.Equal(t, mediaSubtitle, classifyMediaExt("subs.srt"))
	assert.Equal(t, mediaOther, classifyMediaExt("readme.nfo"))
}

func TestClientForKind(t *testing.T) {
	assert.Equal(t, models.ClientTorrent, clientForKind(models.LinkMagnet))
	assert.Equal(t, models.ClientTorrent, clientForKind(models.LinkTorrent))
	assert.Equal(t, models.ClientCloud, clientForKind(models.LinkGDrive))
	assert.Equal(t, models.ClientUsenet, clientForKind(models.LinkNZB))
	assert.Equal(t, models.ClientDirect, clientForKind(models.LinkHTTPS))
}

func TestRunStepSkipsAlreadyCompletedStepUnlessForced(t *testing.T) {
	repo := newTestRepository(t)
	store := newTestProgressStore(t)
	t.Cleanup(func() { store.Close() })
	driver, _ := newTestDriver(t, &blockingClient{handle: &blockingHandle{cancelled: make(chan struct{})}})
	driver.repo = repo

	ctx := context.Background()
	job := &models.Job{ID: "job-step", Owner: "alice", Link: "magnet:?xt=urn:btih:abc", Kind: models.KindFullPipeline}
	require.NoError(t, repo.CreateJob(ctx, job))

	require.NoError(t, driver.runStep(ctx, job.ID, 1, models.StepMux, "sh", []string{"-c", "true"}, false))
	steps, err := repo.ListProcessingSteps(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepCompleted, steps[0].Status)

	// Re-running without force must not touch the completed step again.
	require.NoError(t, driver.runStep(ctx, job.ID, 1, models.StepMux, "sh", []string{"-c", "exit 1"}, false))
	steps, err = repo.ListProcessingSteps(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepCompleted, steps[0].Status)

	// Forcing a re-run picks up the new (failing) command.
	err = driver.runStep(ctx, job.ID, 1, models.StepMux, "sh", []string{"-c", "exit 1"}, true)
	assert.Error(t, err)
}

func TestReenterFailsPermanentlyAfterMaxRetries(t *testing.T) {
	driver, repo := newTestDriver(t, &blockingClient{handle: &blockingHandle{cancelled: make(chan struct{})}})
	ctx := context.Background()

	job := &models.Job{ID: "job-retry", Owner: "alice", Link: "magnet:?xt=urn:btih:abc", Kind: models.KindFullPipeline, State: models.StateFailed, RetryCount: maxRetries}
	require.NoError(t, repo.CreateJob(ctx, job))

	jc := &jobCtx{job: job, machine: statemachine.Deserialize(job.ID, job.State, nil)}
	ok := driver.reenter(ctx, jc)
	assert.False(t, ok)

	final, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, final.State)
	assert.Equal(t, "retry-exhausted", final.Error)
}

func TestReenterBumpsRetryCountAndReturnsToPending(t *testing.T) {
	driver, repo := newTestDriver(t, &blockingClient{handle: &blockingHandle{cancelled: make(chan struct{})}})
	ctx := context.Background()

	job := &models.Job{ID: "job-retry-2", Owner: "alice", Link: "magnet:?xt=urn:btih:abc", Kind: models.KindFullPipeline, State: models.StateFailed}
	require.NoError(t, repo.CreateJob(ctx, job))

	jc := &jobCtx{job: job, machine: statemachine.Deserialize(job.ID, job.State, nil)}
	ok := driver.reenter(ctx, jc)
	assert.True(t, ok)
	assert.Equal(t, 1, job.RetryCount)

	final, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, final.State)
}
