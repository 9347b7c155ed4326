package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the health server and resume any non-terminal jobs left from a prior run",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

// resumableStates are every non-terminal JobState a prior process could have
// left a job in. CANCELLED is deliberately excluded: it only re-enters
// PENDING through an explicit `retry` invocation, not automatically on
// every engine restart.
var resumableStates = []models.JobState{
	models.StatePending, models.StateDownloading, models.StateAnalyzing,
	models.StateSyncing, models.StateProcessing, models.StateValidating,
	models.StatePackaged, models.StateUploaded,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	eng, err := newEngine(ctx, flagConfigPath)
	if err != nil {
		return err
	}
	defer eng.Close()

	resumed := 0
	for _, state := range resumableStates {
		jobs, err := eng.repo.ListJobsByState(ctx, state)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			eng.driver.Resume(job.ID)
			resumed++
		}
	}
	eng.logger.WithField("count", resumed).Info("serve: resumed jobs from a prior run")

	errCh := make(chan error, 1)
	go func() { errCh <- eng.health.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		eng.logger.Info("serve: received shutdown signal")
		return eng.health.Shutdown(context.Background())
	}
}
