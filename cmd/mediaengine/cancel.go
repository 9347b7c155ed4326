package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job that is not yet in a terminal state",
		Args:  cobra.ExactArgs(1),
		RunE:  runCancel,
	}
}

// runCancel resumes driving the job in this process just long enough to
// deliver a cancellation at its next safe point — a CLI invocation has no
// goroutine of its own to signal until Resume starts one, since the job's
// original driver (if any) lived in a now-exited `serve` process.
func runCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	jobID := args[0]

	eng, err := newEngine(ctx, flagConfigPath)
	if err != nil {
		return err
	}
	defer eng.Close()

	job, err := eng.repo.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("looking up job: %w", err)
	}
	if models.IsTerminalState(job.State) {
		return fmt.Errorf("job %s is already in terminal state %s", job.ID, job.State)
	}

	eng.driver.Resume(jobID)
	if err := eng.driver.Cancel(jobID); err != nil {
		return fmt.Errorf("requesting cancellation: %w", err)
	}

	return waitForTerminal(ctx, eng, jobID)
}
