package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"context"

	"github.com/google/uuid"

	"github.com/shlokdhakrey/media-bot-sub002/internal/classifier"
	"github.com/shlokdhakrey/media-bot-sub002/internal/commandrunner"
	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/internal/router"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// runDownloading performs the DOWNLOADING stage: classify the job's link,
// dispatch it through the router under the download semaphore, and record
// the resulting Download row. Grounded on downloader.DownloadFromURL's
// create-record-then-drive-to-completion shape.
func (d *Driver) runDownloading(ctx context.Context, jc *jobCtx) error {
	if err := d.enterState(ctx, jc, models.StateDownloading, "advance", nil, nil); err != nil {
		return err
	}

	classified, err := classifier.Classify(jc.job.Link)
	if err != nil {
		return err
	}

	if err := d.downloadSem.Acquire(ctx, 1); err != nil {
		return enginerr.Wrap(enginerr.KindCancelled, "download_sem_acquire_failed", "cancelled while waiting for a download slot", err)
	}
	defer d.downloadSem.Release(1)

	outputDir := filepath.Join(d.storage.Working, jc.job.ID)
	download := &models.Download{
		ID:         uuid.New().String(),
		JobID:      jc.job.ID,
		SourceLink: jc.job.Link,
		Kind:       classified.Kind,
		Client:     clientForKind(classified.Kind),
		Status:     models.DownloadInProgress,
	}
	started := time.Now()
	download.StartedAt = &started
	if err := d.repo.CreateDownload(ctx, download); err != nil {
		return err
	}

	result, downloadErr := d.router.Download(ctx, router.Request{
		Link:      *classified,
		JobID:     jc.job.ID,
		OutputDir: outputDir,
		Priority:  jc.job.Priority,
	})
	completed := time.Now()
	download.CompletedAt = &completed
	if downloadErr != nil {
		download.Status = models.DownloadFailed
		download.Error = downloadErr.Error()
		_ = d.repo.UpdateDownload(ctx, download)
		return downloadErr
	}

	download.Status = models.DownloadCompleted
	download.Progress = 100
	download.TotalBytes = result.TotalBytes
	download.OutputPath = outputDir
	if err := d.repo.UpdateDownload(ctx, download); err != nil {
		return err
	}
	d.writeProgress(models.ProgressRecord{
		JobID: jc.job.ID, Status: string(models.StateDownloading), Progress: 100, Downloader: string(download.Client),
	})
	return nil
}

func clientForKind(k models.LinkKind) models.ClientName {
	switch k {
	case models.LinkMagnet, models.LinkTorrent:
		return models.ClientTorrent
	case models.LinkGDrive:
		return models.ClientCloud
	case models.LinkNZB:
		return models.ClientUsenet
	default:
		return models.ClientDirect
	}
}

type mediaExtKind int

const (
	mediaOther mediaExtKind = iota
	mediaVideo
	mediaAudio
	mediaSubtitle
)

var videoExts = map[string]bool{".mkv": true, ".mp4": true, ".avi": true, ".mov": true, ".webm": true}
var audioExts = map[string]bool{".mp3": true, ".aac": true, ".ac3": true, ".flac": true, ".wav": true, ".m4a": true, ".dts": true}
var subtitleExts = map[string]bool{".srt": true, ".ass": true, ".ssa": true, ".vtt": true, ".sub": true}

func classifyMediaExt(name string) mediaExtKind {
	ext := filepath.Ext(name)
	switch {
	case videoExts[ext]:
		return mediaVideo
	case audioExts[ext]:
		return mediaAudio
	case subtitleExts[ext]:
		return mediaSubtitle
	default:
		return mediaOther
	}
}

func primaryMediaPath(asset models.MediaAsset) string {
	if asset.VideoPath != "" {
		return asset.VideoPath
	}
	if len(asset.AudioPaths) > 0 {
		return asset.AudioPaths[0]
	}
	return ""
}

// runAnalyzing performs the ANALYZING stage: enumerate the downloaded
// output directory, probe the primary media file for composition and
// duration, persist the resulting MediaAsset, then itself enters either
// SYNCING (separate audio+video tracks present) or PROCESSING (nothing to
// synchronize), per the ANALYZING->PROCESSING skip arc of §4.3.
func (d *Driver) runAnalyzing(ctx context.Context, jc *jobCtx) error {
	if err := d.enterState(ctx, jc, models.StateAnalyzing, "advance", nil, nil); err != nil {
		return err
	}

	if err := d.processSem.Acquire(ctx, 1); err != nil {
		return enginerr.Wrap(enginerr.KindCancelled, "process_sem_acquire_failed", "cancelled while waiting for a process slot", err)
	}
	defer d.processSem.Release(1)

	downloads, err := d.repo.ListDownloads(ctx, jc.job.ID)
	if err != nil {
		return err
	}
	if len(downloads) == 0 {
		return enginerr.New(enginerr.KindNotFound, "no_download_record", "no download record to analyze")
	}
	latest := downloads[len(downloads)-1]

	entries, err := os.ReadDir(latest.OutputPath)
	if err != nil {
		return enginerr.Wrap(enginerr.KindCommandExec, "output_dir_unreadable", "failed to list downloaded files", err)
	}

	asset := models.MediaAsset{JobID: jc.job.ID}
	var probeTarget string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(latest.OutputPath, entry.Name())
		switch classifyMediaExt(entry.Name()) {
		case mediaVideo:
			asset.VideoPath = path
			probeTarget = path
		case mediaAudio:
			asset.AudioPaths = append(asset.AudioPaths, path)
			if probeTarget == "" {
				probeTarget = path
			}
		case mediaSubtitle:
			asset.SubtitlePath = append(asset.SubtitlePath, path)
		}
	}

	if probeTarget != "" {
		var pr probeResult
		recordErr := d.recordStep(ctx, jc.job.ID, 1, models.StepProbe, d.binaries.Probe, func() error {
			var probeErr error
			pr, probeErr = probeMedia(ctx, d.binaries.Probe, probeTarget)
			return probeErr
		})
		if recordErr != nil {
			return recordErr
		}
		asset.DurationSec = pr.DurationSec
		asset.HasVideo = pr.HasVideo || asset.VideoPath != ""
		asset.HasAudio = pr.HasAudio || len(asset.AudioPaths) > 0
	}

	if err := d.repo.UpsertMediaAsset(ctx, jc.job.ID, asset); err != nil {
		return err
	}

	needsSync := asset.VideoPath != "" && len(asset.AudioPaths) > 0
	if needsSync {
		return d.enterState(ctx, jc, models.StateSyncing, "advance", nil, nil)
	}
	return d.enterState(ctx, jc, models.StateProcessing, "skip-sync",
		map[string]interface{}{"reason": "single media track, nothing to synchronize"}, nil)
}

// runSyncDecision performs the SYNCING stage: measure the video/audio
// relationship and run it through the Sync Decision Engine, persisting the
// outcome. A reject decision fails the job outright (§4.5); anything else
// advances to PROCESSING carrying the chosen correction plan.
func (d *Driver) runSyncDecision(ctx context.Context, jc *jobCtx) error {
	asset, err := d.repo.GetMediaAsset(ctx, jc.job.ID)
	if err != nil {
		return err
	}

	if err := d.processSem.Acquire(ctx, 1); err != nil {
		return enginerr.Wrap(enginerr.KindCancelled, "process_sem_acquire_failed", "cancelled while waiting for a process slot", err)
	}
	var measurement models.SyncMeasurement
	recordErr := d.recordStep(ctx, jc.job.ID, 2, models.StepSyncAnalyze, d.binaries.Probe, func() error {
		var measureErr error
		measurement, measureErr = measureSync(ctx, d.binaries, *asset)
		return measureErr
	})
	d.processSem.Release(1)
	if recordErr != nil {
		return recordErr
	}

	decision := d.syncEngine.Decide(jc.job.ID, measurement)
	decision.ID = uuid.New().String()
	if err := d.repo.PutSyncDecision(ctx, &decision); err != nil {
		return err
	}
	d.appendAudit(ctx, jc.job.ID, string(models.StateSyncing), "sync_decision", string(decision.Decision),
		map[string]interface{}{"rationale": decision.Rationale, "confidence": decision.Confidence})

	if decision.Decision == models.DecisionReject {
		return enginerr.New(enginerr.KindSyncRejected, "sync_rejected", decision.Rationale)
	}
	return d.enterState(ctx, jc, models.StateProcessing, "advance",
		map[string]interface{}{"decision": string(decision.Decision)}, nil)
}

// buildMuxArgs turns a chosen SyncDecisionParams into an ffmpeg invocation
// that remuxes video and audio into a single container, applying whichever
// correction the decision called for.
func buildMuxArgs(asset models.MediaAsset, decision models.SyncDecision, outputPath string) []string {
	args := []string{"-y", "-i", asset.VideoPath}

	offsetSec := decision.Params.OffsetMs / 1000.0
	if offsetSec != 0 {
		args = append(args, "-itsoffset", fmt.Sprintf("%.3f", offsetSec))
	}
	args = append(args, "-i", asset.AudioPaths[0], "-map", "0:v?", "-map", "1:a?", "-c:v", "copy")

	if decision.Params.StretchRatio != 0 && decision.Params.StretchRatio != 1 {
		args = append(args, "-filter:a", fmt.Sprintf("atempo=%.4f", decision.Params.StretchRatio))
	} else {
		args = append(args, "-c:a", "copy")
	}

	// Only the first trim region is honored here; a correction plan with
	// multiple disjoint regions is beyond a single mux invocation's reach.
	if len(decision.Params.TrimRegions) > 0 {
		r := decision.Params.TrimRegions[0]
		args = append(args, "-ss", fmt.Sprintf("%.3f", r.StartMs/1000), "-to", fmt.Sprintf("%.3f", r.EndMs/1000))
	}

	return append(args, outputPath)
}

// runStep runs (or skips, if a prior attempt already completed it and this
// isn't a forced re-run) the processing step at the given ordinal. Ordinals
// are fixed per step kind so a revalidate pass can redo mux/sample-gen in
// place without breaking the dense 1-based numbering invariant (§8).
func (d *Driver) runStep(ctx context.Context, jobID string, ordinal int, stepType models.StepType, command string, args []string, forceRerun bool) error {
	existing, err := d.repo.ListProcessingSteps(ctx, jobID)
	if err != nil {
		return err
	}
	var step *models.ProcessingStep
	for i := range existing {
		if existing[i].Ordinal == ordinal {
			step = &existing[i]
			break
		}
	}
	if step != nil && step.Status == models.StepCompleted && !forceRerun {
		return nil
	}

	if err := d.processSem.Acquire(ctx, 1); err != nil {
		return enginerr.Wrap(enginerr.KindCancelled, "process_sem_acquire_failed", "cancelled while waiting for a process slot", err)
	}
	defer d.processSem.Release(1)

	isNew := step == nil
	if isNew {
		step = &models.ProcessingStep{ID: uuid.New().String(), JobID: jobID, Ordinal: ordinal, Type: stepType}
	}
	step.Command, step.Args, step.Status = command, args, models.StepRunning
	started := time.Now()
	step.StartedAt = &started

	if isNew {
		if err := d.repo.CreateProcessingStep(ctx, step); err != nil {
			return err
		}
	} else if err := d.repo.UpdateProcessingStep(ctx, step); err != nil {
		return err
	}

	result, runErr := commandrunner.Run(ctx, command, args, nil)
	ended := time.Now()
	step.EndedAt = &ended
	step.Stdout, step.Stderr, step.ExitCode, step.DurationMS = result.Stdout, result.Stderr, result.ExitCode, result.DurationMS
	if runErr != nil {
		step.Status = models.StepFailed
		step.Error = runErr.Error()
		_ = d.repo.UpdateProcessingStep(ctx, step)
		return enginerr.Wrap(enginerr.KindCommandExec, "step_failed", fmt.Sprintf("%s step failed", stepType), runErr)
	}
	step.Status = models.StepCompleted
	return d.repo.UpdateProcessingStep(ctx, step)
}

// recordStep brackets fn's execution with a persisted ProcessingStep, for
// stages like probe and sync measurement that issue several subprocess
// invocations internally rather than the single command runStep shells out
// to. Unlike runStep it always calls fn, even if this ordinal already has a
// completed step from a prior attempt — its caller needs fn's result every
// time, not just the first time, so there is nothing worth skipping.
func (d *Driver) recordStep(ctx context.Context, jobID string, ordinal int, stepType models.StepType, command string, fn func() error) error {
	existing, err := d.repo.ListProcessingSteps(ctx, jobID)
	if err != nil {
		return err
	}
	var step *models.ProcessingStep
	for i := range existing {
		if existing[i].Ordinal == ordinal {
			step = &existing[i]
			break
		}
	}

	isNew := step == nil
	if isNew {
		step = &models.ProcessingStep{ID: uuid.New().String(), JobID: jobID, Ordinal: ordinal, Type: stepType}
	}
	step.Command, step.Status = command, models.StepRunning
	started := time.Now()
	step.StartedAt = &started
	if isNew {
		if err := d.repo.CreateProcessingStep(ctx, step); err != nil {
			return err
		}
	} else if err := d.repo.UpdateProcessingStep(ctx, step); err != nil {
		return err
	}

	runErr := fn()
	ended := time.Now()
	step.EndedAt = &ended
	step.DurationMS = ended.Sub(started).Milliseconds()
	if runErr != nil {
		step.Status = models.StepFailed
		step.Error = runErr.Error()
		_ = d.repo.UpdateProcessingStep(ctx, step)
		return runErr
	}
	step.Status = models.StepCompleted
	return d.repo.UpdateProcessingStep(ctx, step)
}

// analysisStepOrdinals returns the ordinal mux/sample-gen/validate should
// use for a job, accounting for the probe and (optional) sync-analyze steps
// ANALYZING/SYNCING already claimed ahead of them, so the full step sequence
// stays densely 1-based with no gaps (§8 invariant 2).
func analysisStepOrdinals(asset models.MediaAsset) (mux, sampleGen, validate int) {
	next := 1
	probeRan := asset.VideoPath != "" || len(asset.AudioPaths) > 0
	hasSync := asset.VideoPath != "" && len(asset.AudioPaths) > 0
	if probeRan {
		next++
	}
	if hasSync {
		next++
	}
	return next, next + 1, next + 2
}

// runProcessing performs the PROCESSING stage: remux (applying any sync
// correction) and generate a short preview sample, each as its own
// ProcessingStep, then advances to VALIDATING.
func (d *Driver) runProcessing(ctx context.Context, jc *jobCtx) error {
	asset, err := d.repo.GetMediaAsset(ctx, jc.job.ID)
	if err != nil {
		return err
	}

	outputDir := filepath.Join(d.storage.Processed, jc.job.ID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return enginerr.Wrap(enginerr.KindPackageFailure, "mkdir_failed", "failed to create processed output directory", err)
	}
	muxedPath := filepath.Join(outputDir, "muxed.mkv")
	samplePath := filepath.Join(outputDir, "sample.mkv")
	forceRerun := jc.job.Revalidated
	muxOrdinal, sampleOrdinal, _ := analysisStepOrdinals(*asset)

	var muxArgs []string
	if asset.VideoPath != "" && len(asset.AudioPaths) > 0 {
		decision, err := d.repo.GetSyncDecision(ctx, jc.job.ID)
		if err != nil {
			return err
		}
		muxArgs = buildMuxArgs(*asset, *decision, muxedPath)
	} else {
		muxArgs = []string{"-y", "-i", primaryMediaPath(*asset), "-c", "copy", muxedPath}
	}
	if err := d.runStep(ctx, jc.job.ID, muxOrdinal, models.StepMux, d.binaries.Mux, muxArgs, forceRerun); err != nil {
		return err
	}

	sampleArgs := []string{"-y", "-ss", "60", "-i", muxedPath, "-t", "20", "-c", "copy", samplePath}
	if err := d.runStep(ctx, jc.job.ID, sampleOrdinal, models.StepSampleGen, d.binaries.Mux, sampleArgs, forceRerun); err != nil {
		return err
	}

	return d.enterState(ctx, jc, models.StateValidating, "advance", nil, nil)
}

// runValidating performs the VALIDATING stage: re-probe the muxed output.
// A failure here sends the job back to PROCESSING exactly once (tracked by
// Job.Revalidated); a second failure is permanent.
func (d *Driver) runValidating(ctx context.Context, jc *jobCtx) error {
	outputDir := filepath.Join(d.storage.Processed, jc.job.ID)
	muxedPath := filepath.Join(outputDir, "muxed.mkv")

	asset, err := d.repo.GetMediaAsset(ctx, jc.job.ID)
	if err != nil {
		return err
	}
	_, _, validateOrdinal := analysisStepOrdinals(*asset)

	validateErr := d.runStep(ctx, jc.job.ID, validateOrdinal, models.StepValidate, d.binaries.Probe,
		[]string{"-v", "error", "-show_entries", "format=duration", muxedPath}, jc.job.Revalidated)
	if validateErr != nil {
		if jc.job.Revalidated {
			return enginerr.Wrap(enginerr.KindPackageFailure, "validation_failed_twice",
				"validation failed again after the one permitted re-processing attempt", validateErr)
		}
		if err := d.enterState(ctx, jc, models.StateProcessing, "revalidate",
			map[string]interface{}{"reason": "validation failed"}, nil); err != nil {
			return err
		}
		jc.job.Revalidated = true
		return d.repo.UpdateJob(ctx, jc.job)
	}
	return d.enterState(ctx, jc, models.StatePackaged, "advance", nil, nil)
}

// runPackaging performs the PACKAGED stage: hand the muxed output, sample,
// and any subtitles to the Packager.
func (d *Driver) runPackaging(ctx context.Context, jc *jobCtx) error {
	asset, err := d.repo.GetMediaAsset(ctx, jc.job.ID)
	if err != nil {
		return err
	}
	outputDir := filepath.Join(d.storage.Processed, jc.job.ID)
	files := models.CategorizedFiles{
		Video:     filepath.Join(outputDir, "muxed.mkv"),
		Samples:   []string{filepath.Join(outputDir, "sample.mkv")},
		Subtitles: asset.SubtitlePath,
	}

	manifest, err := d.packager.Package(jc.job.ID, files, d.storage.Processed, map[string]interface{}{
		"durationSec": asset.DurationSec,
	})
	if err != nil {
		return err
	}

	d.appendAudit(ctx, jc.job.ID, string(models.StatePackaged), "manifest",
		fmt.Sprintf("packaged %d files, %d bytes total", len(manifest.Files), manifest.TotalSize), nil)
	return d.enterState(ctx, jc, models.StateUploaded, "advance", nil, nil)
}

// runUploading performs the UPLOADED stage: read back the manifest the
// Packager wrote and hand it to the Upload Router, then completes the job.
func (d *Driver) runUploading(ctx context.Context, jc *jobCtx) error {
	if err := d.uploadSem.Acquire(ctx, 1); err != nil {
		return enginerr.Wrap(enginerr.KindCancelled, "upload_sem_acquire_failed", "cancelled while waiting for an upload slot", err)
	}
	defer d.uploadSem.Release(1)

	packageDir := filepath.Join(d.storage.Processed, jc.job.ID)
	manifest, err := loadManifest(packageDir)
	if err != nil {
		return err
	}

	uploadManifest, err := d.uploadRouter.Upload(ctx, *manifest, packageDir, jc.job.ID)
	if err != nil {
		return err
	}

	d.appendAudit(ctx, jc.job.ID, string(models.StateUploaded), "upload",
		fmt.Sprintf("uploaded via %s to %s", uploadManifest.Target, uploadManifest.Location), nil)
	return d.enterState(ctx, jc, models.StateDone, "complete",
		map[string]interface{}{"target": uploadManifest.Target}, nil)
}
