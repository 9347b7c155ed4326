// Package uploadrouter implements the Upload Router (C9, §4.7): a
// primary/optional-secondary pair of upload Targets, producing an
// UploadManifest identical in schema to the Packager's manifest plus the
// chosen target name and final location. Target selection and fallback are
// grounded on the teacher's downloader semaphore/fallback posture
// (internal/downloader/downloader.go), generalized from "pick one binary"
// to "pick one target, fall back to the secondary on primary failure".
package uploadrouter

import (
	"context"
	"fmt"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// Target is one upload destination (§4.7).
type Target interface {
	Name() string
	Upload(ctx context.Context, packageDir, jobID string) (Result, error)
	HealthCheck(ctx context.Context) error
}

// Result is what a Target reports after a successful upload.
type Result struct {
	RemoteLocation string
	PerFile        []models.UploadedFile
}

// Router holds a required primary target and an optional secondary, tried
// in order.
type Router struct {
	primary   Target
	secondary Target
}

// New constructs a Router. secondary may be nil.
func New(primary, secondary Target) *Router {
	return &Router{primary: primary, secondary: secondary}
}

// Upload tries the primary target, falling back to the secondary (if
// configured) on primary failure, and builds the resulting UploadManifest
// from the Packager's manifest plus the winning target's outcome (§4.7).
func (r *Router) Upload(ctx context.Context, manifest models.Manifest, packageDir, jobID string) (*models.UploadManifest, error) {
	if r.primary == nil {
		return nil, enginerr.New(enginerr.KindUploadFailure, "no_primary_target", "upload router has no primary target configured")
	}

	result, err := r.primary.Upload(ctx, packageDir, jobID)
	targetName := r.primary.Name()
	if err != nil {
		if r.secondary == nil {
			return nil, enginerr.Wrap(enginerr.KindUploadFailure, "primary_upload_failed",
				fmt.Sprintf("%s upload failed and no secondary target is configured", targetName), err)
		}
		result, err = r.secondary.Upload(ctx, packageDir, jobID)
		targetName = r.secondary.Name()
		if err != nil {
			return nil, enginerr.Wrap(enginerr.KindUploadFailure, "secondary_upload_failed",
				fmt.Sprintf("%s upload failed after primary also failed", targetName), err)
		}
	}

	return &models.UploadManifest{
		Manifest: manifest,
		Target:   targetName,
		Location: result.RemoteLocation,
		PerFile:  result.PerFile,
	}, nil
}

// HealthCheck reports availability of the configured targets, keyed by name.
func (r *Router) HealthCheck(ctx context.Context) map[string]bool {
	results := make(map[string]bool)
	if r.primary != nil {
		results[r.primary.Name()] = r.primary.HealthCheck(ctx) == nil
	}
	if r.secondary != nil {
		results[r.secondary.Name()] = r.secondary.HealthCheck(ctx) == nil
	}
	return results
}
