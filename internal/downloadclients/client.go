// Package downloadclients defines the external-download-client contract
// the router (C2, §4.2) dispatches to, and its four implementations:
// torrentclient, directclient, cloudcopy, usenetclient.
package downloadclients

import (
	"context"
	"time"
)

// Request carries everything a client needs to start one fetch.
type Request struct {
	JobID     string
	Link      string
	OutputDir string
	// Kind-specific metadata extracted by the classifier (C1), e.g. InfoHash
	// for magnet links or FileID for gdrive links.
	Metadata map[string]string
}

// Status is a point-in-time snapshot of an in-flight or finished transfer.
type Status struct {
	Done       bool
	Failed     bool
	// Transient marks a Failed status as worth retrying — a network blip or
	// a daemon that hasn't picked up the job yet, rather than a permanent
	// rejection (bad link, unsupported format). Only consulted when Failed.
	Transient  bool
	Progress   int // 0-100
	Speed      string
	ETASeconds int
	Error      string
}

// Result is the output of a completed transfer (§4.2's public operation).
type Result struct {
	Files      []string
	TotalBytes int64
	DurationMS int64
}

// Client is implemented by each of the four external download backends.
// Start returns a Handle used to poll status, enumerate output files, and
// cancel. Implementations must treat ctx cancellation as a request to
// abandon in-flight work; the router handles best-effort cleanup via
// Handle.Cancel separately, since some backends (cloud-copy) block
// synchronously and have no separate poll loop.
type Client interface {
	Name() string
	// Start begins the transfer and returns a Handle for polling.
	Start(ctx context.Context, req Request) (Handle, error)
	// PollInterval is the component-specific backoff the router sleeps
	// between Status calls (§4.2).
	PollInterval() time.Duration
	// HealthCheck reports whether the backend is reachable/usable right now.
	HealthCheck(ctx context.Context) error
}

// Handle represents one in-flight or completed transfer.
type Handle interface {
	Status(ctx context.Context) (Status, error)
	// Files enumerates output files once Status().Done is true.
	Files(ctx context.Context) ([]string, int64, error)
	// Cancel instructs the backend to abandon and remove the transfer,
	// best-effort (§4.2).
	Cancel(ctx context.Context) error
}
