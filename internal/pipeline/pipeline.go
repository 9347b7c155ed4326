// Package pipeline implements the Pipeline Driver (C6, §4.4): one
// long-lived cooperative task per job, sequencing it through the state
// machine's stages, bounded by per-stage-type weighted semaphores (§5).
// The per-job goroutine-plus-cancellation-registry shape is grounded on
// the teacher's Downloader.DownloadFromURL/processDownload
// (internal/downloader/downloader.go): one goroutine per job, a
// concurrency-limiting channel, and a jobsMux-guarded map for lookups —
// generalized here from a flat status map to state-machine-driven staging,
// and from a buffered-channel semaphore to golang.org/x/sync/semaphore so
// capacity can be keyed per stage type instead of one global limit.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/shlokdhakrey/media-bot-sub002/internal/config"
	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/internal/progress"
	"github.com/shlokdhakrey/media-bot-sub002/internal/repository"
	"github.com/shlokdhakrey/media-bot-sub002/internal/router"
	"github.com/shlokdhakrey/media-bot-sub002/internal/statemachine"
	"github.com/shlokdhakrey/media-bot-sub002/internal/syncdecision"
	"github.com/shlokdhakrey/media-bot-sub002/internal/uploadrouter"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// Packager is the subset of packager.Packager the driver depends on,
// declared locally so tests can substitute a fake without importing the
// concrete implementation.
type Packager interface {
	Package(jobID string, files models.CategorizedFiles, outputRoot string, metadata map[string]interface{}) (*models.Manifest, error)
}

// maxRetries is the default implementation-defined retry cap from §4.4.
const maxRetries = 3

// Driver drives every submitted job from PENDING to a terminal state.
type Driver struct {
	repo          *repository.Repository
	progressStore *progress.Store
	router        *router.Router
	syncEngine    *syncdecision.Engine
	packager      Packager
	uploadRouter  *uploadrouter.Router

	binaries config.BinariesConfig
	storage  config.StorageConfig
	logger   *logrus.Logger

	downloadSem *semaphore.Weighted
	processSem  *semaphore.Weighted
	uploadSem   *semaphore.Weighted

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs a Driver wired to its collaborators (§4.4's responsibility
// list names each of these: repository for persistence, router for C2,
// syncEngine for C7, packager for C8, uploadRouter for C9).
func New(cfg *config.Config, repo *repository.Repository, progressStore *progress.Store, r *router.Router,
	syncEngine *syncdecision.Engine, pkgr Packager, uploadR *uploadrouter.Router, logger *logrus.Logger) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Driver{
		repo:          repo,
		progressStore: progressStore,
		router:        r,
		syncEngine:    syncEngine,
		packager:      pkgr,
		uploadRouter:  uploadR,
		binaries:      cfg.Binaries,
		storage:       cfg.Storage,
		logger:        logger,
		downloadSem:   semaphore.NewWeighted(cfg.Semaphores.Download),
		processSem:    semaphore.NewWeighted(cfg.Semaphores.Process),
		uploadSem:     semaphore.NewWeighted(cfg.Semaphores.Upload),
		cancels:       make(map[string]context.CancelFunc),
	}
}

// Submit creates a job row and starts driving it in a new goroutine. It
// returns immediately; the job's terminal outcome is observed via the
// repository or the progress store.
func (d *Driver) Submit(parent context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.State = models.StatePending
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now

	if err := d.repo.CreateJob(parent, job); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.cancels[job.ID] = cancel
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.cancels, job.ID)
			d.mu.Unlock()
			cancel()
		}()
		d.run(ctx, job.ID)
	}()

	return nil
}

// Resume restarts driving a job already present in the repository, without
// re-creating its row — used both by `serve`'s startup reconciliation (any
// job left non-terminal by a prior process) and by the `retry`/`cancel` CLI
// commands, which construct a fresh in-process Driver per invocation and so
// have no goroutine of their own to act on until one is started here.
func (d *Driver) Resume(jobID string) {
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.cancels[jobID] = cancel
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.cancels, jobID)
			d.mu.Unlock()
			cancel()
		}()
		d.run(ctx, jobID)
	}()
}

// Cancel signals the running driver goroutine for jobID to stop at its next
// safe point. A job with no running goroutine in this process (already
// terminal, or never submitted here) is reported via enginerr.KindNotFound.
func (d *Driver) Cancel(jobID string) error {
	d.mu.Lock()
	cancel, ok := d.cancels[jobID]
	d.mu.Unlock()
	if !ok {
		return enginerr.New(enginerr.KindNotFound, "job_not_running", fmt.Sprintf("job %s has no active driver in this process", jobID))
	}
	cancel()
	return nil
}

// jobCtx bundles the per-job state the stage handlers in stages.go operate
// on, so run's loop and every stage share one mutation path back to the
// repository.
type jobCtx struct {
	job     *models.Job
	machine *statemachine.Machine
}

// run is the per-job cooperative task. It re-materializes the job and its
// state machine, handles retry re-entry, then walks the stage sequence
// until a terminal state is reached or the job is cancelled.
func (d *Driver) run(ctx context.Context, jobID string) {
	job, err := d.repo.GetJob(ctx, jobID)
	if err != nil {
		d.logger.WithError(err).WithField("job_id", jobID).Error("pipeline: failed to load job")
		return
	}
	history, err := d.repo.ListStateHistory(ctx, jobID)
	if err != nil {
		d.logger.WithError(err).WithField("job_id", jobID).Error("pipeline: failed to load job history")
		return
	}
	jc := &jobCtx{job: job, machine: statemachine.Deserialize(jobID, job.State, history)}

	if job.State == models.StateFailed || job.State == models.StateCancelled {
		if !d.reenter(ctx, jc) {
			return
		}
	}

	for {
		if ctx.Err() != nil {
			d.cancelJob(ctx, jc)
			return
		}

		if models.IsTerminalState(jc.machine.Current()) {
			d.progressStore.Delete(context.Background(), jobID)
			return
		}

		if err := d.step(ctx, jc); err != nil {
			kind, _ := enginerr.KindOf(err)
			if kind == enginerr.KindCancelled || ctx.Err() != nil {
				d.cancelJob(ctx, jc)
				return
			}
			d.failJob(ctx, jc, err)
			return
		}
	}
}

// step performs exactly one stage's guard/persist/audit/invoke/transition
// cycle per §4.4 step 2, dispatching on the machine's current state. Each
// stage function in stages.go is responsible for transitioning jc.machine
// itself (via enterState), since only it knows which legal arc applies —
// e.g. ANALYZING may move on to SYNCING or skip straight to PROCESSING.
func (d *Driver) step(ctx context.Context, jc *jobCtx) error {
	switch jc.machine.Current() {
	case models.StatePending:
		return d.runDownloading(ctx, jc)
	case models.StateDownloading:
		// runAnalyzing enters ANALYZING, probes, and itself enters whichever
		// of SYNCING/PROCESSING follows (§4.3's ANALYZING->PROCESSING skip
		// arc), so StateAnalyzing is never observed as jc.machine.Current()
		// at the top of this loop.
		return d.runAnalyzing(ctx, jc)
	case models.StateSyncing:
		return d.runSyncDecision(ctx, jc)
	case models.StateProcessing:
		return d.runProcessing(ctx, jc)
	case models.StateValidating:
		return d.runValidating(ctx, jc)
	case models.StatePackaged:
		return d.runPackaging(ctx, jc)
	case models.StateUploaded:
		return d.runUploading(ctx, jc)
	default:
		return enginerr.New(enginerr.KindInvalidState, "no_stage_for_state",
			fmt.Sprintf("no stage registered for state %s", jc.machine.Current()))
	}
}

// enterState guards and commits a single transition, appends its audit
// entry, and writes a progress record. Stage handlers in stages.go call it
// for every state change: runDownloading enters DOWNLOADING before its
// work, runAnalyzing enters ANALYZING and then SYNCING or PROCESSING, and
// the later handlers enter the state that follows theirs once their work
// is done (runValidating may instead re-enter PROCESSING once).
func (d *Driver) enterState(ctx context.Context, jc *jobCtx, target models.JobState, reason string,
	metadata map[string]interface{}, progressFields *models.ProgressRecord) error {
	if !jc.machine.CanTransitionTo(target) {
		return enginerr.New(enginerr.KindInvalidState, "invalid_state_transition",
			fmt.Sprintf("cannot move from %s to %s", jc.machine.Current(), target))
	}
	if err := jc.machine.TransitionTo(target, reason, metadata); err != nil {
		return err
	}
	jc.job.State = target
	jc.job.UpdatedAt = time.Now()
	if models.IsTerminalState(target) {
		terminal := time.Now()
		jc.job.TerminalAt = &terminal
		if target == models.StateDone {
			jc.job.Progress = 100
		}
	}
	if err := d.repo.UpdateJob(ctx, jc.job); err != nil {
		return err
	}
	if err := d.repo.AppendStateTransition(ctx, jc.job.ID, lastTransition(jc.machine)); err != nil {
		return err
	}
	d.appendAudit(ctx, jc.job.ID, string(target), "enter_stage", fmt.Sprintf("entered %s", target), metadata)

	record := models.ProgressRecord{JobID: jc.job.ID, Status: string(target), Progress: jc.job.Progress}
	if progressFields != nil {
		record.Speed, record.ETA, record.Downloader = progressFields.Speed, progressFields.ETA, progressFields.Downloader
	}
	d.writeProgress(record)
	return nil
}

// reenter implements §4.4's retry rule: FAILED/CANCELLED re-entry starts by
// transitioning to PENDING, bumping RetryCount, and capping at maxRetries.
// Processing steps already completed in a prior attempt are left untouched
// in the repository; runProcessing in stages.go skips re-running them.
func (d *Driver) reenter(ctx context.Context, jc *jobCtx) bool {
	if jc.job.RetryCount >= maxRetries {
		jc.job.State = models.StateFailed
		jc.job.Error = "retry-exhausted"
		terminal := time.Now()
		jc.job.TerminalAt = &terminal
		_ = d.repo.UpdateJob(ctx, jc.job)
		d.appendAudit(ctx, jc.job.ID, "retry", "retry_exhausted", "retry cap reached", nil)
		d.progressStore.Delete(context.Background(), jc.job.ID)
		return false
	}
	jc.job.RetryCount++

	if err := d.enterState(ctx, jc, models.StatePending, "retry", map[string]interface{}{"retryCount": jc.job.RetryCount}, nil); err != nil {
		d.logger.WithError(err).WithField("job_id", jc.job.ID).Error("pipeline: illegal retry transition")
		return false
	}
	jc.job.Error = ""
	_ = d.repo.UpdateJob(ctx, jc.job)
	return true
}

func (d *Driver) failJob(ctx context.Context, jc *jobCtx, cause error) {
	if !jc.machine.CanTransitionTo(models.StateFailed) {
		return
	}
	_ = jc.machine.TransitionTo(models.StateFailed, cause.Error(), nil)
	jc.job.State = models.StateFailed
	jc.job.Error = cause.Error()
	terminal := time.Now()
	jc.job.TerminalAt = &terminal
	_ = d.repo.UpdateJob(ctx, jc.job)
	_ = d.repo.AppendStateTransition(ctx, jc.job.ID, lastTransition(jc.machine))
	d.appendAudit(ctx, jc.job.ID, string(models.StateFailed), "failure", cause.Error(), nil)
	d.progressStore.Delete(context.Background(), jc.job.ID)
	d.logger.WithError(cause).WithField("job_id", jc.job.ID).Warn("pipeline: job failed")
}

func (d *Driver) cancelJob(ctx context.Context, jc *jobCtx) {
	bg := context.Background()
	if !jc.machine.CanTransitionTo(models.StateCancelled) {
		return
	}
	_ = jc.machine.TransitionTo(models.StateCancelled, "cancelled", nil)
	jc.job.State = models.StateCancelled
	_ = d.repo.UpdateJob(bg, jc.job)
	_ = d.repo.AppendStateTransition(bg, jc.job.ID, lastTransition(jc.machine))
	d.appendAudit(bg, jc.job.ID, string(models.StateCancelled), "cancel", "job cancelled", nil)
	d.progressStore.Delete(bg, jc.job.ID)
}

func (d *Driver) appendAudit(ctx context.Context, jobID, stage, kind, message string, metadata map[string]interface{}) {
	err := d.repo.AppendAuditEntry(ctx, models.AuditEntry{
		JobID: jobID, At: time.Now(), Stage: stage, Kind: kind, Message: message, Metadata: metadata,
	})
	if err != nil {
		d.logger.WithError(err).WithField("job_id", jobID).Warn("pipeline: failed to append audit entry")
	}
}

func (d *Driver) writeProgress(record models.ProgressRecord) {
	record.UpdatedAt = time.Now()
	if err := d.progressStore.Set(context.Background(), record); err != nil {
		d.logger.WithError(err).WithField("job_id", record.JobID).Warn("pipeline: failed to write progress record")
	}
}

func lastTransition(machine *statemachine.Machine) models.StateTransition {
	history := machine.History()
	if len(history) == 0 {
		return models.StateTransition{}
	}
	return history[len(history)-1]
}
