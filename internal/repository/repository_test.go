package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "engine.db")
	logger := logrus.New()
	logger.SetOutput(new(discardWriter))

	repo, err := New(context.Background(), dbPath, logger)
	if err != nil {
		t.Fatalf("failed to open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestJob(id string) *models.Job {
	now := time.Now()
	return &models.Job{
		ID:        id,
		Owner:     "alice",
		Link:      "magnet:?xt=urn:btih:abcdef",
		Kind:      models.KindFullPipeline,
		Priority:  models.PriorityNormal,
		State:     models.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetJobRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	job := newTestJob("job-1")
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	got, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Owner != "alice" || got.State != models.StatePending {
		t.Errorf("got unexpected job: %+v", got)
	}
}

func TestGetJobNotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.GetJob(context.Background(), "does-not-exist")
	if err == nil {
		t.Fatal("expected an error for missing job")
	}
	kind, ok := enginerr.KindOf(err)
	if !ok || kind != enginerr.KindNotFound {
		t.Errorf("expected KindNotFound, got %v (ok=%v)", kind, ok)
	}
}

func TestUpdateJobPersistsStateChange(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	job := newTestJob("job-2")
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	job.State = models.StateDownloading
	job.Progress = 50
	if err := repo.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err := repo.GetJob(ctx, "job-2")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.State != models.StateDownloading || got.Progress != 50 {
		t.Errorf("update did not persist: %+v", got)
	}
}

func TestListJobsByStateAndOwner(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	j1 := newTestJob("job-3")
	j2 := newTestJob("job-4")
	j2.Owner = "bob"
	j2.State = models.StateDownloading
	if err := repo.CreateJob(ctx, j1); err != nil {
		t.Fatalf("CreateJob j1 failed: %v", err)
	}
	if err := repo.CreateJob(ctx, j2); err != nil {
		t.Fatalf("CreateJob j2 failed: %v", err)
	}

	pending, err := repo.ListJobsByState(ctx, models.StatePending)
	if err != nil {
		t.Fatalf("ListJobsByState failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "job-3" {
		t.Errorf("expected only job-3 pending, got %+v", pending)
	}

	bobJobs, err := repo.ListJobsByOwner(ctx, "bob")
	if err != nil {
		t.Fatalf("ListJobsByOwner failed: %v", err)
	}
	if len(bobJobs) != 1 || bobJobs[0].ID != "job-4" {
		t.Errorf("expected only job-4 for bob, got %+v", bobJobs)
	}
}

func TestStateTransitionHistoryIsOrdered(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	job := newTestJob("job-5")
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	transitions := []models.StateTransition{
		{From: models.StatePending, To: models.StateDownloading, At: time.Now(), Reason: "dispatched"},
		{From: models.StateDownloading, To: models.StateAnalyzing, At: time.Now(), Reason: "fetch complete"},
	}
	for _, tr := range transitions {
		if err := repo.AppendStateTransition(ctx, job.ID, tr); err != nil {
			t.Fatalf("AppendStateTransition failed: %v", err)
		}
	}

	history, err := repo.ListStateHistory(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListStateHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(history))
	}
	if history[0].To != models.StateDownloading || history[1].To != models.StateAnalyzing {
		t.Errorf("transitions not in chronological order: %+v", history)
	}
}

func TestDownloadCreateUpdateList(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	job := newTestJob("job-6")
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	d := &models.Download{
		ID:         "dl-1",
		JobID:      job.ID,
		SourceLink: job.Link,
		Kind:       models.LinkMagnet,
		Client:     models.ClientTorrent,
		Status:     models.DownloadPending,
	}
	if err := repo.CreateDownload(ctx, d); err != nil {
		t.Fatalf("CreateDownload failed: %v", err)
	}

	d.Status = models.DownloadInProgress
	d.Progress = 30
	d.TotalBytes = 1000
	if err := repo.UpdateDownload(ctx, d); err != nil {
		t.Fatalf("UpdateDownload failed: %v", err)
	}

	downloads, err := repo.ListDownloads(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListDownloads failed: %v", err)
	}
	if len(downloads) != 1 || downloads[0].Progress != 30 || downloads[0].TotalBytes != 1000 {
		t.Errorf("unexpected downloads: %+v", downloads)
	}
}

func TestMediaAssetUpsertOverwrites(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	job := newTestJob("job-7")
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	asset := models.MediaAsset{
		JobID:        job.ID,
		VideoPath:    "/work/job-7/video.mkv",
		AudioPaths:   []string{"/work/job-7/audio.aac"},
		SubtitlePath: []string{"/work/job-7/sub.srt"},
		HasVideo:     true,
		HasAudio:     true,
		DurationSec:  3600,
	}
	if err := repo.UpsertMediaAsset(ctx, job.ID, asset); err != nil {
		t.Fatalf("UpsertMediaAsset failed: %v", err)
	}

	asset.DurationSec = 3601
	if err := repo.UpsertMediaAsset(ctx, job.ID, asset); err != nil {
		t.Fatalf("second UpsertMediaAsset failed: %v", err)
	}

	got, err := repo.GetMediaAsset(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetMediaAsset failed: %v", err)
	}
	if got.DurationSec != 3601 || len(got.AudioPaths) != 1 {
		t.Errorf("unexpected media asset: %+v", got)
	}
}

func TestProcessingStepsOrderedByOrdinal(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	job := newTestJob("job-8")
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	steps := []*models.ProcessingStep{
		{ID: "step-1", JobID: job.ID, Ordinal: 1, Type: models.StepProbe, Status: models.StepPending, Command: "ffprobe", Args: []string{"-v", "error"}},
		{ID: "step-2", JobID: job.ID, Ordinal: 2, Type: models.StepMux, Status: models.StepPending, Command: "ffmpeg", Args: []string{"-i", "a.mkv"}},
	}
	for _, s := range steps {
		if err := repo.CreateProcessingStep(ctx, s); err != nil {
			t.Fatalf("CreateProcessingStep failed: %v", err)
		}
	}

	steps[0].Status = models.StepCompleted
	steps[0].ExitCode = 0
	if err := repo.UpdateProcessingStep(ctx, steps[0]); err != nil {
		t.Fatalf("UpdateProcessingStep failed: %v", err)
	}

	got, err := repo.ListProcessingSteps(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListProcessingSteps failed: %v", err)
	}
	if len(got) != 2 || got[0].Ordinal != 1 || got[1].Ordinal != 2 {
		t.Fatalf("steps not in ordinal order: %+v", got)
	}
	if got[0].Status != models.StepCompleted {
		t.Errorf("expected step 1 completed, got %v", got[0].Status)
	}
	if len(got[1].Args) != 2 || got[1].Args[0] != "-i" {
		t.Errorf("args not round-tripped: %+v", got[1].Args)
	}
}

func TestSyncDecisionPutAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	job := newTestJob("job-9")
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	decision := &models.SyncDecision{
		ID:         "sync-1",
		JobID:      job.ID,
		Decision:   models.DecisionDelay,
		Params:     models.SyncDecisionParams{OffsetMs: 805},
		Confidence: 0.9,
		Rationale:  "consistent positive offset across anchors",
	}
	if err := repo.PutSyncDecision(ctx, decision); err != nil {
		t.Fatalf("PutSyncDecision failed: %v", err)
	}

	got, err := repo.GetSyncDecision(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetSyncDecision failed: %v", err)
	}
	if got.Decision != models.DecisionDelay || got.Params.OffsetMs != 805 {
		t.Errorf("unexpected sync decision: %+v", got)
	}
}

func TestAuditLogAppendAndListSinceFilter(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	job := newTestJob("job-10")
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)

	entries := []models.AuditEntry{
		{JobID: job.ID, At: time.Now(), Stage: "download", Kind: "started", Message: "dispatched to torrent-client"},
		{JobID: job.ID, At: time.Now(), Stage: "download", Kind: "completed", Message: "fetch finished"},
	}
	for _, e := range entries {
		if err := repo.AppendAuditEntry(ctx, e); err != nil {
			t.Fatalf("AppendAuditEntry failed: %v", err)
		}
	}

	got, err := repo.ListAuditLog(ctx, job.ID, cutoff, 0)
	if err != nil {
		t.Fatalf("ListAuditLog failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 audit entries after cutoff, got %d", len(got))
	}

	limited, err := repo.ListAuditLog(ctx, job.ID, cutoff, 1)
	if err != nil {
		t.Fatalf("ListAuditLog with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit=1 to return 1 entry, got %d", len(limited))
	}
}

func TestPing(t *testing.T) {
	repo := newTestRepository(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed on freshly opened repository: %v", err)
	}
}
