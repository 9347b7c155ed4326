// Package router implements the Downloader Router (C2, §4.2): it maps a
// classified link to one of four external download clients, drives that
// client to completion with component-specific backoff, and aggregates
// parallel health checks. Dispatch-by-kind plus cancellation-by-context is
// grounded on magnet-player's manager.spawnTask/handleTask.
package router

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shlokdhakrey/media-bot-sub002/internal/downloadclients"
	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// Request is the router's public operation input (§4.2).
type Request struct {
	Link      models.ClassifiedLink
	JobID     string
	OutputDir string
	Priority  models.JobPriority
}

// Result is the router's public operation output (§4.2).
type Result struct {
	Files      []string
	TotalBytes int64
	DurationMS int64
}

// Router dispatches by classified kind to the matching Client.
type Router struct {
	clients map[models.LinkKind]downloadclients.Client
}

// New constructs a Router. clients must provide, at minimum, entries for
// magnet/torrent, https/http, gdrive, and nzb; ftp and unrecognized kinds
// always fail with UnsupportedLink regardless of what's registered here.
func New(torrent, direct, cloud, usenet downloadclients.Client) *Router {
	clients := make(map[models.LinkKind]downloadclients.Client)
	if torrent != nil {
		clients[models.LinkMagnet] = torrent
		clients[models.LinkTorrent] = torrent
	}
	if direct != nil {
		clients[models.LinkHTTP] = direct
		clients[models.LinkHTTPS] = direct
	}
	if cloud != nil {
		clients[models.LinkGDrive] = cloud
	}
	if usenet != nil {
		clients[models.LinkNZB] = usenet
	}
	return &Router{clients: clients}
}

func classifiedMetadata(link models.ClassifiedLink) map[string]string {
	meta := map[string]string{}
	if link.InfoHash != "" {
		meta["infoHash"] = link.InfoHash
	}
	if link.FileID != "" {
		meta["fileId"] = link.FileID
	}
	if link.FolderID != "" {
		meta["folderId"] = link.FolderID
	}
	if link.NZBFilename != "" {
		meta["nzbFilename"] = link.NZBFilename
	}
	return meta
}

// maxDownloadAttempts bounds the router's own retry of a transient
// DownloadClient failure, independent of the driver-level job retry cap
// (§4.4) — this retries one stage attempt, not the whole job.
const maxDownloadAttempts = 3

// downloadRetryBackoff is the delay before the first retry; it doubles on
// each subsequent attempt.
const downloadRetryBackoff = 500 * time.Millisecond

// Download performs the router's public operation: dispatch, poll to
// completion (or cancellation), enumerate output files (§4.2). A transient
// failure (Status.Transient) is retried with doubling backoff up to
// maxDownloadAttempts before being surfaced to the driver.
func (r *Router) Download(ctx context.Context, req Request) (Result, error) {
	client, ok := r.clients[req.Link.Kind]
	if !ok {
		return Result{}, enginerr.New(enginerr.KindUnsupportedLink, "no_client_for_kind",
			fmt.Sprintf("no download client registered for link kind %q", req.Link.Kind))
	}

	backoff := downloadRetryBackoff
	var lastErr error
	for attempt := 1; attempt <= maxDownloadAttempts; attempt++ {
		result, transient, err := r.downloadOnce(ctx, client, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !transient || attempt == maxDownloadAttempts {
			return Result{}, err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, enginerr.New(enginerr.KindCancelled, "download_cancelled",
				fmt.Sprintf("download cancelled for job %s", req.JobID))
		case <-timer.C:
		}
		backoff *= 2
	}
	return Result{}, lastErr
}

// downloadOnce runs a single dispatch-poll-enumerate attempt, reporting
// whether a failure is worth retrying.
func (r *Router) downloadOnce(ctx context.Context, client downloadclients.Client, req Request) (Result, bool, error) {
	start := time.Now()
	handle, err := client.Start(ctx, downloadclients.Request{
		JobID:     req.JobID,
		Link:      req.Link.Original,
		OutputDir: req.OutputDir,
		Metadata:  classifiedMetadata(req.Link),
	})
	if err != nil {
		return Result{}, false, enginerr.Wrap(enginerr.KindDownloadClient, "client_start_failed",
			fmt.Sprintf("%s failed to start transfer", client.Name()), err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = handle.Cancel(context.Background())
			return Result{}, false, enginerr.New(enginerr.KindCancelled, "download_cancelled",
				fmt.Sprintf("download cancelled for job %s", req.JobID))
		default:
		}

		status, err := handle.Status(ctx)
		if err != nil {
			return Result{}, false, enginerr.Wrap(enginerr.KindDownloadClient, "status_poll_failed",
				fmt.Sprintf("%s status poll failed", client.Name()), err)
		}
		if status.Failed {
			return Result{}, status.Transient, enginerr.New(enginerr.KindDownloadClient, "client_reported_failure", status.Error)
		}
		if status.Done {
			break
		}

		if interval := client.PollInterval(); interval > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				_ = handle.Cancel(context.Background())
				return Result{}, false, enginerr.New(enginerr.KindCancelled, "download_cancelled",
					fmt.Sprintf("download cancelled for job %s", req.JobID))
			case <-timer.C:
			}
		}
	}

	files, totalBytes, err := handle.Files(ctx)
	if err != nil {
		return Result{}, false, enginerr.Wrap(enginerr.KindDownloadClient, "enumerate_files_failed",
			fmt.Sprintf("%s failed to enumerate output files", client.Name()), err)
	}

	return Result{Files: files, TotalBytes: totalBytes, DurationMS: time.Since(start).Milliseconds()}, false, nil
}

// HealthCheck probes every registered client in parallel and returns a
// mapping from client name to availability (§4.2).
func (r *Router) HealthCheck(ctx context.Context) map[string]bool {
	seen := make(map[string]downloadclients.Client)
	for _, c := range r.clients {
		seen[c.Name()] = c
	}

	results := make(map[string]bool, len(seen))

	g, gctx := errgroup.WithContext(ctx)
	type outcome struct {
		name string
		ok   bool
	}
	out := make(chan outcome, len(seen))
	for _, c := range seen {
		c := c
		g.Go(func() error {
			err := c.HealthCheck(gctx)
			out <- outcome{name: c.Name(), ok: err == nil}
			return nil
		})
	}
	_ = g.Wait()
	close(out)
	for o := range out {
		results[o.name] = o.ok
	}
	return results
}
