package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/shlokdhakrey/media-bot-sub002/internal/config"
	"github.com/shlokdhakrey/media-bot-sub002/internal/downloadclients"
	"github.com/shlokdhakrey/media-bot-sub002/internal/downloadclients/cloudcopy"
	"github.com/shlokdhakrey/media-bot-sub002/internal/downloadclients/directclient"
	"github.com/shlokdhakrey/media-bot-sub002/internal/downloadclients/torrentclient"
	"github.com/shlokdhakrey/media-bot-sub002/internal/downloadclients/usenetclient"
	"github.com/shlokdhakrey/media-bot-sub002/internal/healthserver"
	"github.com/shlokdhakrey/media-bot-sub002/internal/logging"
	"github.com/shlokdhakrey/media-bot-sub002/internal/packager"
	"github.com/shlokdhakrey/media-bot-sub002/internal/pipeline"
	"github.com/shlokdhakrey/media-bot-sub002/internal/progress"
	"github.com/shlokdhakrey/media-bot-sub002/internal/repository"
	"github.com/shlokdhakrey/media-bot-sub002/internal/router"
	"github.com/shlokdhakrey/media-bot-sub002/internal/syncdecision"
	"github.com/shlokdhakrey/media-bot-sub002/internal/uploadrouter"
)

// engine bundles one in-process instance of every collaborator the Pipeline
// Driver needs, built fresh per CLI invocation. Mirrors the teacher's
// main.go "load config, construct collaborators, run" shape, generalized
// into a reusable constructor shared by every subcommand instead of being
// inlined once in func main.
type engine struct {
	cfg      *config.Config
	logger   *logrus.Logger
	repo     *repository.Repository
	progress *progress.Store
	usenet   *usenetclient.Client
	driver   *pipeline.Driver
	health   *healthserver.Server
}

func newEngine(ctx context.Context, cfgPath string) (*engine, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	repo, err := repository.New(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}

	progressStore, err := progress.NewStore(cfg.Redis.URL, cfg.Redis.DB)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("connecting to progress store: %w", err)
	}

	torrentClient, err := torrentclient.New(cfg.Clients.TorrentDataDir)
	if err != nil {
		return nil, fmt.Errorf("constructing torrent client: %w", err)
	}
	directC := directclient.New(0)
	usenetC, err := usenetclient.New(cfg.Clients.UsenetServer, filepath.Join(cfg.Storage.Working, "usenet-complete"), 0)
	if err != nil {
		repo.Close()
		progressStore.Close()
		return nil, fmt.Errorf("constructing usenet client: %w", err)
	}

	if cfg.Clients.GDriveCreds != "" {
		if setErr := os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cfg.Clients.GDriveCreds); setErr != nil {
			logger.WithError(setErr).Warn("engine: failed to set gdrive credentials env var")
		}
	}

	// router.New checks each argument for a nil interface, which a nil
	// *cloudcopy.Client boxed directly would not satisfy — so cloudC is
	// only ever passed through as a non-nil downloadclients.Client.
	var cloudC downloadclients.Client
	if cc, ccErr := cloudcopy.New(ctx); ccErr != nil {
		logger.WithError(ccErr).Warn("engine: cloud-copy client unavailable, gdrive links will fail to route")
	} else {
		cloudC = cc
	}

	r := router.New(torrentClient, directC, cloudC, usenetC)

	syncEngine := syncdecision.New(cfg.Sync)
	pkgr := packager.New()

	uploadR, uploadErr := buildUploadRouter(ctx, cfg, logger)
	if uploadErr != nil {
		return nil, uploadErr
	}

	driver := pipeline.New(cfg, repo, progressStore, r, syncEngine, pkgr, uploadR, logger)
	health := healthserver.New(cfg.GetAddress(), repo, progressStore, logger)

	return &engine{cfg: cfg, logger: logger, repo: repo, progress: progressStore, usenet: usenetC, driver: driver, health: health}, nil
}

// buildUploadRouter wires the primary/secondary Upload Router targets (C9)
// from configuration: a gdrive target backed by its own Drive service
// (built from application default credentials with the drive.file scope)
// when credentials are available, a local filesystem mirror otherwise or
// as fallback.
func buildUploadRouter(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*uploadrouter.Router, error) {
	var primary, secondary uploadrouter.Target

	if cfg.Clients.UploadTarget == "gdrive" || cfg.Clients.GDriveCreds != "" {
		creds, err := google.FindDefaultCredentials(ctx, drive.DriveFileScope)
		if err != nil {
			logger.WithError(err).Warn("engine: gdrive upload target unavailable, falling back to local filesystem")
		} else {
			service, svcErr := drive.NewService(ctx, option.WithCredentials(creds))
			if svcErr != nil {
				logger.WithError(svcErr).Warn("engine: failed to build drive service for upload target")
			} else {
				primary = uploadrouter.NewGDriveTarget(service, "")
			}
		}
	}

	if primary == nil {
		primary = uploadrouter.NewLocalFSTarget(cfg.Storage.Processed + "/uploaded")
	}
	if cfg.Clients.UploadFallback != "" {
		secondary = uploadrouter.NewLocalFSTarget(cfg.Clients.UploadFallback)
	}

	return uploadrouter.New(primary, secondary), nil
}

func (e *engine) Close() {
	_ = e.usenet.Close()
	e.progress.Close()
	e.repo.Close()
}
