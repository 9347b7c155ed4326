package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

var (
	flagOwner    string
	flagKind     string
	flagPriority string
	flagWait     bool
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <link>",
		Short: "Submit a new job for the given source link",
		Args:  cobra.ExactArgs(1),
		RunE:  runSubmit,
	}
	cmd.Flags().StringVar(&flagOwner, "owner", "cli", "job owner identifier")
	cmd.Flags().StringVar(&flagKind, "kind", string(models.KindFullPipeline), "job kind: download, analyze-only, full-pipeline")
	cmd.Flags().StringVar(&flagPriority, "priority", string(models.PriorityNormal), "job priority: low, normal, high")
	cmd.Flags().BoolVar(&flagWait, "wait", true, "block until the job reaches a terminal state")
	return cmd
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng, err := newEngine(ctx, flagConfigPath)
	if err != nil {
		return err
	}
	defer eng.Close()

	job := &models.Job{
		Owner:    flagOwner,
		Link:     args[0],
		Kind:     models.JobKind(flagKind),
		Priority: models.JobPriority(flagPriority),
	}
	if err := eng.driver.Submit(ctx, job); err != nil {
		return fmt.Errorf("submitting job: %w", err)
	}
	fmt.Printf("submitted job %s\n", job.ID)

	if !flagWait {
		return nil
	}
	return waitForTerminal(ctx, eng, job.ID)
}

// waitForTerminal polls the repository until jobID reaches DONE, FAILED, or
// CANCELLED, printing its final state.
func waitForTerminal(ctx context.Context, eng *engine, jobID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			job, err := eng.repo.GetJob(ctx, jobID)
			if err != nil {
				return err
			}
			if models.IsTerminalState(job.State) || job.State == models.StateCancelled {
				fmt.Printf("job %s finished: %s\n", job.ID, job.State)
				if job.Error != "" {
					fmt.Printf("error: %s\n", job.Error)
				}
				return nil
			}
		}
	}
}
