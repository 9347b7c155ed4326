package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

func newRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Resume a FAILED or CANCELLED job from PENDING",
		Args:  cobra.ExactArgs(1),
		RunE:  runRetry,
	}
	cmd.Flags().BoolVar(&flagWait, "wait", true, "block until the job reaches a terminal state")
	return cmd
}

func runRetry(cmd *cobra.Command, args []string) error {
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
	if job.State != models.StateFailed && job.State != models.StateCancelled {
		return fmt.Errorf("job %s is in state %s, only FAILED or CANCELLED jobs can be retried", job.ID, job.State)
	}

	eng.driver.Resume(jobID)
	fmt.Printf("retrying job %s\n", jobID)

	if !flagWait {
		return nil
	}
	return waitForTerminal(ctx, eng, jobID)
}
