// Package usenetclient implements the usenet Client by handing an NZB off
// to an external download daemon's watch folder and polling its category
// output directory for completion. The actual NNTP/yEnc article-fetching
// protocol is out of scope (§1's raw-wrapper exclusion) — that work is
// delegated entirely to the external daemon, the same way the teacher
// delegates actual media fetching to an external yt-dlp binary rather than
// implementing HTTP range requests itself. The retry-on-transient-error
// shape of the worker/result loop is grounded on GoNZB's
// runWorkerPool/worker functions, generalized from a segment-level retry
// loop to a directory-poll loop since there is no NNTP client library in
// the dependency set this engine carries.
package usenetclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shlokdhakrey/media-bot-sub002/internal/downloadclients"
	"github.com/shlokdhakrey/media-bot-sub002/internal/stagedir"
)

// Client watches watchDir (where NZBs are dropped for the external daemon
// to pick up) and categoryDir (where it deposits completed downloads,
// one subdirectory per job).
type Client struct {
	watchDir    string
	categoryDir string
	pollTimeout time.Duration
	watcher     *stagedir.Watcher
}

// New constructs a Client against the given watch and category directories.
// categoryDir is created if it doesn't already exist, since the stage
// watcher must be able to add it before the external daemon ever touches it.
func New(watchDir, categoryDir string, pollTimeout time.Duration) (*Client, error) {
	if pollTimeout <= 0 {
		pollTimeout = 2 * time.Hour
	}
	if err := os.MkdirAll(categoryDir, 0o755); err != nil {
		return nil, fmt.Errorf("usenetclient: create category directory: %w", err)
	}
	watcher, err := stagedir.New(categoryDir)
	if err != nil {
		return nil, fmt.Errorf("usenetclient: watch category directory: %w", err)
	}
	return &Client{watchDir: watchDir, categoryDir: categoryDir, pollTimeout: pollTimeout, watcher: watcher}, nil
}

func (c *Client) Name() string { return "usenet-client" }

// Close stops the underlying stage directory watcher.
func (c *Client) Close() error { return c.watcher.Close() }

func (c *Client) PollInterval() time.Duration { return 2 * time.Second }

func (c *Client) HealthCheck(ctx context.Context) error {
	if info, err := os.Stat(c.watchDir); err != nil || !info.IsDir() {
		return fmt.Errorf("usenetclient: watch directory unavailable: %w", err)
	}
	if info, err := os.Stat(c.categoryDir); err != nil || !info.IsDir() {
		return fmt.Errorf("usenetclient: category directory unavailable: %w", err)
	}
	return nil
}

// Start copies the NZB file at req.Link into the watch directory, tagged
// with the job id so the category subdirectory the daemon produces can be
// located unambiguously.
func (c *Client) Start(ctx context.Context, req downloadclients.Request) (downloadclients.Handle, error) {
	nzbName := req.Metadata["nzbFilename"]
	if nzbName == "" {
		nzbName = filepath.Base(req.Link)
	}
	taggedName := fmt.Sprintf("%s__%s", req.JobID, nzbName)

	if err := copyFile(req.Link, filepath.Join(c.watchDir, taggedName)); err != nil {
		return nil, fmt.Errorf("usenetclient: failed to drop nzb into watch folder: %w", err)
	}

	return &handle{
		jobDir:  filepath.Join(c.categoryDir, req.JobID),
		started: time.Now(),
		timeout: c.pollTimeout,
		watcher: c.watcher,
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

type handle struct {
	jobDir  string
	started time.Time
	timeout time.Duration
	watcher *stagedir.Watcher
}

// Status reports done once the stage watcher observes the job's category
// subdirectory appear; the daemon is responsible for atomically renaming
// the directory into place once the download finishes.
func (h *handle) Status(ctx context.Context) (downloadclients.Status, error) {
	if time.Since(h.started) > h.timeout {
		// The external daemon may simply be backlogged rather than stuck, so
		// a timeout is treated as transient and left to the router's retry.
		return downloadclients.Status{Failed: true, Transient: true, Error: "usenet download timed out"}, nil
	}
	if h.watcher.Ready(h.jobDir) {
		return downloadclients.Status{Done: true, Progress: 100}, nil
	}
	return downloadclients.Status{}, nil
}

func (h *handle) Files(ctx context.Context) ([]string, int64, error) {
	entries, err := os.ReadDir(h.jobDir)
	if err != nil {
		return nil, 0, fmt.Errorf("usenetclient: list category directory: %w", err)
	}
	var files []string
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(h.jobDir, e.Name())
		info, err := e.Info()
		if err != nil {
			return nil, 0, err
		}
		files = append(files, path)
		total += info.Size()
	}
	return files, total, nil
}

func (h *handle) Cancel(ctx context.Context) error {
	return os.RemoveAll(h.jobDir)
}
