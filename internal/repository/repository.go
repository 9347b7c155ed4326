// Package repository implements the Job Repository (C5, §4.7): the
// durable store of jobs, their download/processing/sync history, and the
// audit log. Backed by SQLite via mattn/go-sqlite3, schema managed with
// pressly/goose/v3 migrations embedded at build time. Connection pragmas
// and prepared-statement shape are grounded on the teacher's
// internal/database/database.go; the migration runner is grounded on
// tonimelisma-onedrive-go's internal/sync/migrations.go.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository wraps a *sql.DB providing persistence for the engine's domain
// objects. Safe for concurrent use; the underlying *sql.DB pools connections.
type Repository struct {
	conn   *sql.DB
	logger *logrus.Logger

	insertJobStmt *sql.Stmt
	updateJobStmt *sql.Stmt
	getJobStmt    *sql.Stmt
	touchJobStmt  *sql.Stmt
}

// New opens (or creates) a SQLite database at dbPath, applies pragmas,
// runs pending migrations, and prepares hot-path statements.
func New(ctx context.Context, dbPath string, logger *logrus.Logger) (*Repository, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("repository: failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("failed to set pragma")
		}
	}

	if err := runMigrations(ctx, conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("repository: migrations failed: %w", err)
	}

	repo := &Repository{conn: conn, logger: logger}
	if err := repo.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("repository: failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("repository initialized")
	return repo, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		logger.WithField("source", r.Source.Path).WithField("duration_ms", r.Duration.Milliseconds()).Info("applied migration")
	}
	return nil
}

func (r *Repository) prepareStatements() error {
	var err error
	r.insertJobStmt, err = r.conn.Prepare(`
		INSERT INTO jobs (id, owner, link, kind, priority, state, progress, retry_count, revalidated, error, created_at, updated_at, terminal_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert job: %w", err)
	}

	r.updateJobStmt, err = r.conn.Prepare(`
		UPDATE jobs SET owner=?, link=?, kind=?, priority=?, state=?, progress=?, retry_count=?, revalidated=?, error=?, updated_at=?, terminal_at=?
		WHERE id=?`)
	if err != nil {
		return fmt.Errorf("prepare update job: %w", err)
	}

	r.getJobStmt, err = r.conn.Prepare(`
		SELECT id, owner, link, kind, priority, state, progress, retry_count, revalidated, error, created_at, updated_at, terminal_at
		FROM jobs WHERE id=?`)
	if err != nil {
		return fmt.Errorf("prepare get job: %w", err)
	}

	r.touchJobStmt, err = r.conn.Prepare(`UPDATE jobs SET updated_at=? WHERE id=?`)
	if err != nil {
		return fmt.Errorf("prepare touch job: %w", err)
	}

	return nil
}

// Close releases prepared statements and the underlying connection pool.
func (r *Repository) Close() error {
	for _, stmt := range []*sql.Stmt{r.insertJobStmt, r.updateJobStmt, r.getJobStmt, r.touchJobStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return r.conn.Close()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// CreateJob inserts a new job row in its initial state.
func (r *Repository) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := r.insertJobStmt.ExecContext(ctx,
		job.ID, job.Owner, job.Link, job.Kind, job.Priority, job.State, job.Progress,
		job.RetryCount, job.Revalidated, job.Error, job.CreatedAt, job.UpdatedAt, nullableTime(job.TerminalAt))
	if err != nil {
		return enginerr.Wrap(enginerr.KindValidation, "job_insert_failed", "failed to insert job", err)
	}
	return nil
}

// UpdateJob persists the full current state of a job row.
func (r *Repository) UpdateJob(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now()
	_, err := r.updateJobStmt.ExecContext(ctx,
		job.Owner, job.Link, job.Kind, job.Priority, job.State, job.Progress,
		job.RetryCount, job.Revalidated, job.Error, job.UpdatedAt, nullableTime(job.TerminalAt), job.ID)
	if err != nil {
		return enginerr.Wrap(enginerr.KindValidation, "job_update_failed", "failed to update job", err)
	}
	return nil
}

// GetJob fetches a single job by ID.
func (r *Repository) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	var terminalAt sql.NullTime
	err := r.getJobStmt.QueryRowContext(ctx, jobID).Scan(
		&job.ID, &job.Owner, &job.Link, &job.Kind, &job.Priority, &job.State, &job.Progress,
		&job.RetryCount, &job.Revalidated, &job.Error, &job.CreatedAt, &job.UpdatedAt, &terminalAt)
	if err == sql.ErrNoRows {
		return nil, enginerr.New(enginerr.KindNotFound, "job_not_found", fmt.Sprintf("job %s not found", jobID))
	}
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindValidation, "job_query_failed", "failed to query job", err)
	}
	if terminalAt.Valid {
		job.TerminalAt = &terminalAt.Time
	}
	return &job, nil
}

// ListJobsByState returns all jobs currently in the given state, newest first.
func (r *Repository) ListJobsByState(ctx context.Context, state models.JobState) ([]models.Job, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, owner, link, kind, priority, state, progress, retry_count, revalidated, error, created_at, updated_at, terminal_at
		FROM jobs WHERE state=? ORDER BY created_at DESC`, state)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindValidation, "job_list_failed", "failed to list jobs by state", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		var terminalAt sql.NullTime
		if err := rows.Scan(&job.ID, &job.Owner, &job.Link, &job.Kind, &job.Priority, &job.State, &job.Progress,
			&job.RetryCount, &job.Revalidated, &job.Error, &job.CreatedAt, &job.UpdatedAt, &terminalAt); err != nil {
			return nil, err
		}
		if terminalAt.Valid {
			job.TerminalAt = &terminalAt.Time
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ListJobsByOwner returns all jobs submitted by owner, newest first.
func (r *Repository) ListJobsByOwner(ctx context.Context, owner string) ([]models.Job, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, owner, link, kind, priority, state, progress, retry_count, revalidated, error, created_at, updated_at, terminal_at
		FROM jobs WHERE owner=? ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindValidation, "job_list_failed", "failed to list jobs by owner", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		var terminalAt sql.NullTime
		if err := rows.Scan(&job.ID, &job.Owner, &job.Link, &job.Kind, &job.Priority, &job.State, &job.Progress,
			&job.RetryCount, &job.Revalidated, &job.Error, &job.CreatedAt, &job.UpdatedAt, &terminalAt); err != nil {
			return nil, err
		}
		if terminalAt.Valid {
			job.TerminalAt = &terminalAt.Time
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// AppendStateTransition records a state-machine transition for audit/history.
func (r *Repository) AppendStateTransition(ctx context.Context, jobID string, t models.StateTransition) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal transition metadata: %w", err)
	}
	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO state_transitions (job_id, from_state, to_state, at, reason, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`, jobID, t.From, t.To, t.At, t.Reason, string(meta))
	if err != nil {
		return enginerr.Wrap(enginerr.KindValidation, "transition_insert_failed", "failed to append state transition", err)
	}
	return nil
}

// ListStateHistory returns a job's state transitions in chronological order.
func (r *Repository) ListStateHistory(ctx context.Context, jobID string) ([]models.StateTransition, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT from_state, to_state, at, reason, metadata FROM state_transitions
		WHERE job_id=? ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.StateTransition
	for rows.Next() {
		var t models.StateTransition
		var metaRaw sql.NullString
		if err := rows.Scan(&t.From, &t.To, &t.At, &t.Reason, &metaRaw); err != nil {
			return nil, err
		}
		if metaRaw.Valid && metaRaw.String != "" {
			_ = json.Unmarshal([]byte(metaRaw.String), &t.Metadata)
		}
		history = append(history, t)
	}
	return history, nil
}

// CreateDownload inserts a new download record for a job.
func (r *Repository) CreateDownload(ctx context.Context, d *models.Download) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO downloads (id, job_id, source_link, kind, client, external_handle, status, progress, speed, eta_seconds, output_path, total_bytes, retry_count, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.JobID, d.SourceLink, d.Kind, d.Client, d.ExternalHandle, d.Status, d.Progress,
		d.Speed, d.ETASeconds, d.OutputPath, d.TotalBytes, d.RetryCount, d.Error,
		nullableTime(d.StartedAt), nullableTime(d.CompletedAt))
	if err != nil {
		return enginerr.Wrap(enginerr.KindDownloadClient, "download_insert_failed", "failed to insert download", err)
	}
	return nil
}

// UpdateDownload persists the full current state of a download row.
func (r *Repository) UpdateDownload(ctx context.Context, d *models.Download) error {
	_, err := r.conn.ExecContext(ctx, `
		UPDATE downloads SET status=?, progress=?, speed=?, eta_seconds=?, output_path=?, total_bytes=?, retry_count=?, error=?, started_at=?, completed_at=?
		WHERE id=?`,
		d.Status, d.Progress, d.Speed, d.ETASeconds, d.OutputPath, d.TotalBytes, d.RetryCount, d.Error,
		nullableTime(d.StartedAt), nullableTime(d.CompletedAt), d.ID)
	if err != nil {
		return enginerr.Wrap(enginerr.KindDownloadClient, "download_update_failed", "failed to update download", err)
	}
	return nil
}

// ListDownloads returns all download attempts for a job, in insertion order.
func (r *Repository) ListDownloads(ctx context.Context, jobID string) ([]models.Download, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, job_id, source_link, kind, client, external_handle, status, progress, speed, eta_seconds, output_path, total_bytes, retry_count, error, started_at, completed_at
		FROM downloads WHERE job_id=? ORDER BY rowid ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []models.Download
	for rows.Next() {
		var d models.Download
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.JobID, &d.SourceLink, &d.Kind, &d.Client, &d.ExternalHandle, &d.Status,
			&d.Progress, &d.Speed, &d.ETASeconds, &d.OutputPath, &d.TotalBytes, &d.RetryCount, &d.Error,
			&startedAt, &completedAt); err != nil {
			return nil, err
		}
		if startedAt.Valid {
			d.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			d.CompletedAt = &completedAt.Time
		}
		downloads = append(downloads, d)
	}
	return downloads, nil
}

// UpsertMediaAsset records probe-derived facts about a job's downloaded media.
func (r *Repository) UpsertMediaAsset(ctx context.Context, jobID string, asset models.MediaAsset) error {
	audioPaths, err := json.Marshal(asset.AudioPaths)
	if err != nil {
		return fmt.Errorf("marshal audio paths: %w", err)
	}
	subtitlePaths, err := json.Marshal(asset.SubtitlePath)
	if err != nil {
		return fmt.Errorf("marshal subtitle paths: %w", err)
	}
	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO media_assets (job_id, video_path, audio_paths, subtitle_paths, has_video, has_audio, duration_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			video_path=excluded.video_path, audio_paths=excluded.audio_paths, subtitle_paths=excluded.subtitle_paths,
			has_video=excluded.has_video, has_audio=excluded.has_audio, duration_sec=excluded.duration_sec`,
		jobID, asset.VideoPath, string(audioPaths), string(subtitlePaths), asset.HasVideo, asset.HasAudio, asset.DurationSec)
	if err != nil {
		return enginerr.Wrap(enginerr.KindValidation, "media_asset_upsert_failed", "failed to upsert media asset", err)
	}
	return nil
}

// GetMediaAsset fetches probe-derived facts about a job's downloaded media.
func (r *Repository) GetMediaAsset(ctx context.Context, jobID string) (*models.MediaAsset, error) {
	var asset models.MediaAsset
	var audioPaths, subtitlePaths sql.NullString
	err := r.conn.QueryRowContext(ctx, `
		SELECT job_id, video_path, audio_paths, subtitle_paths, has_video, has_audio, duration_sec
		FROM media_assets WHERE job_id=?`, jobID).Scan(
		&asset.JobID, &asset.VideoPath, &audioPaths, &subtitlePaths, &asset.HasVideo, &asset.HasAudio, &asset.DurationSec)
	if err == sql.ErrNoRows {
		return nil, enginerr.New(enginerr.KindNotFound, "media_asset_not_found", fmt.Sprintf("no media asset for job %s", jobID))
	}
	if err != nil {
		return nil, err
	}
	if audioPaths.Valid {
		_ = json.Unmarshal([]byte(audioPaths.String), &asset.AudioPaths)
	}
	if subtitlePaths.Valid {
		_ = json.Unmarshal([]byte(subtitlePaths.String), &asset.SubtitlePath)
	}
	return &asset, nil
}

// CreateProcessingStep inserts a new processing step row.
func (r *Repository) CreateProcessingStep(ctx context.Context, step *models.ProcessingStep) error {
	args, err := json.Marshal(step.Args)
	if err != nil {
		return fmt.Errorf("marshal step args: %w", err)
	}
	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO processing_steps (id, job_id, ordinal, type, status, command, args, stdout, stderr, exit_code, duration_ms, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.JobID, step.Ordinal, step.Type, step.Status, step.Command, string(args),
		step.Stdout, step.Stderr, step.ExitCode, step.DurationMS, step.Error,
		nullableTime(step.StartedAt), nullableTime(step.EndedAt))
	if err != nil {
		return enginerr.Wrap(enginerr.KindCommandExec, "step_insert_failed", "failed to insert processing step", err)
	}
	return nil
}

// UpdateProcessingStep persists the full current state of a processing step.
func (r *Repository) UpdateProcessingStep(ctx context.Context, step *models.ProcessingStep) error {
	_, err := r.conn.ExecContext(ctx, `
		UPDATE processing_steps SET status=?, stdout=?, stderr=?, exit_code=?, duration_ms=?, error=?, started_at=?, ended_at=?
		WHERE id=?`,
		step.Status, step.Stdout, step.Stderr, step.ExitCode, step.DurationMS, step.Error,
		nullableTime(step.StartedAt), nullableTime(step.EndedAt), step.ID)
	if err != nil {
		return enginerr.Wrap(enginerr.KindCommandExec, "step_update_failed", "failed to update processing step", err)
	}
	return nil
}

// ListProcessingSteps returns a job's processing steps in ordinal order.
func (r *Repository) ListProcessingSteps(ctx context.Context, jobID string) ([]models.ProcessingStep, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, job_id, ordinal, type, status, command, args, stdout, stderr, exit_code, duration_ms, error, started_at, ended_at
		FROM processing_steps WHERE job_id=? ORDER BY ordinal ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []models.ProcessingStep
	for rows.Next() {
		var s models.ProcessingStep
		var args sql.NullString
		var startedAt, endedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.JobID, &s.Ordinal, &s.Type, &s.Status, &s.Command, &args,
			&s.Stdout, &s.Stderr, &s.ExitCode, &s.DurationMS, &s.Error, &startedAt, &endedAt); err != nil {
			return nil, err
		}
		if args.Valid {
			_ = json.Unmarshal([]byte(args.String), &s.Args)
		}
		if startedAt.Valid {
			s.StartedAt = &startedAt.Time
		}
		if endedAt.Valid {
			s.EndedAt = &endedAt.Time
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// PutSyncDecision inserts or replaces the sync decision for a job (one per job).
func (r *Repository) PutSyncDecision(ctx context.Context, decision *models.SyncDecision) error {
	params, err := json.Marshal(decision.Params)
	if err != nil {
		return fmt.Errorf("marshal sync params: %w", err)
	}
	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO sync_decisions (id, job_id, decision, params, confidence, rationale)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			decision=excluded.decision, params=excluded.params, confidence=excluded.confidence, rationale=excluded.rationale`,
		decision.ID, decision.JobID, decision.Decision, string(params), decision.Confidence, decision.Rationale)
	if err != nil {
		return enginerr.Wrap(enginerr.KindSyncRejected, "sync_decision_upsert_failed", "failed to persist sync decision", err)
	}
	return nil
}

// GetSyncDecision fetches the sync decision for a job, if one exists.
func (r *Repository) GetSyncDecision(ctx context.Context, jobID string) (*models.SyncDecision, error) {
	var decision models.SyncDecision
	var params sql.NullString
	err := r.conn.QueryRowContext(ctx, `
		SELECT id, job_id, decision, params, confidence, rationale FROM sync_decisions WHERE job_id=?`, jobID).Scan(
		&decision.ID, &decision.JobID, &decision.Decision, &params, &decision.Confidence, &decision.Rationale)
	if err == sql.ErrNoRows {
		return nil, enginerr.New(enginerr.KindNotFound, "sync_decision_not_found", fmt.Sprintf("no sync decision for job %s", jobID))
	}
	if err != nil {
		return nil, err
	}
	if params.Valid {
		_ = json.Unmarshal([]byte(params.String), &decision.Params)
	}
	return &decision, nil
}

// AppendAuditEntry records a single audit-log event for a job.
func (r *Repository) AppendAuditEntry(ctx context.Context, entry models.AuditEntry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO audit_log (job_id, at, stage, kind, message, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.JobID, entry.At, entry.Stage, entry.Kind, entry.Message, string(meta))
	if err != nil {
		return enginerr.Wrap(enginerr.KindValidation, "audit_insert_failed", "failed to append audit entry", err)
	}
	return nil
}

// ListAuditLog returns a job's audit entries after a given time, newest
// entries last, capped at limit rows (0 means unbounded).
func (r *Repository) ListAuditLog(ctx context.Context, jobID string, after time.Time, limit int) ([]models.AuditEntry, error) {
	query := `SELECT job_id, at, stage, kind, message, metadata FROM audit_log WHERE job_id=? AND at > ? ORDER BY id ASC`
	args := []interface{}{jobID, after}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var metaRaw sql.NullString
		if err := rows.Scan(&e.JobID, &e.At, &e.Stage, &e.Kind, &e.Message, &metaRaw); err != nil {
			return nil, err
		}
		if metaRaw.Valid && metaRaw.String != "" {
			_ = json.Unmarshal([]byte(metaRaw.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Ping reports whether the backing database is reachable, used by the
// health server's /ready check.
func (r *Repository) Ping(ctx context.Context) error {
	return r.conn.PingContext(ctx)
}
