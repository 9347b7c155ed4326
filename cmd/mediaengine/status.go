package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's current state, progress, and recent audit history",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("job:       %s\n", job.ID)
	fmt.Printf("owner:     %s\n", job.Owner)
	fmt.Printf("link:      %s\n", job.Link)
	fmt.Printf("state:     %s\n", job.State)
	fmt.Printf("progress:  %d%%\n", job.Progress)
	fmt.Printf("retries:   %d\n", job.RetryCount)
	fmt.Printf("created:   %s (%s ago)\n", job.CreatedAt.Format(time.RFC3339), humanize.Time(job.CreatedAt))
	if job.Error != "" {
		fmt.Printf("error:     %s\n", job.Error)
	}

	history, err := eng.repo.ListStateHistory(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading state history: %w", err)
	}
	fmt.Println("\nstate history:")
	for _, t := range history {
		fmt.Printf("  %s  %s -> %s  (%s)\n", t.At.Format(time.RFC3339), t.From, t.To, t.Reason)
	}

	entries, err := eng.repo.ListAuditLog(ctx, jobID, time.Time{}, 20)
	if err != nil {
		return fmt.Errorf("loading audit log: %w", err)
	}
	fmt.Println("\nrecent audit entries:")
	for _, e := range entries {
		fmt.Printf("  %s  [%s] %s: %s\n", e.At.Format(time.RFC3339), e.Stage, e.Kind, e.Message)
	}

	decision, err := eng.repo.GetSyncDecision(ctx, jobID)
	if err == nil && decision != nil {
		fmt.Printf("\nsync decision: %s (confidence %.2f) — %s\n", decision.Decision, decision.Confidence, decision.Rationale)
	}

	return nil
}
