package commandrunner

import (
	"context"
	"testing"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
)

func TestRunCapturesStdoutLines(t *testing.T) {
	var lines []string
	result, err := Run(context.Background(), "sh", []string{"-c", "echo one; echo two"}, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stdout != "one\ntwo\n" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "one\ntwo\n")
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("onLine callback saw unexpected lines: %v", lines)
	}
}

func TestRunNonZeroExitWrapsCommandFailure(t *testing.T) {
	_, err := Run(context.Background(), "sh", []string{"-c", "echo boom 1>&2; exit 3"}, nil)
	if err == nil {
		t.Fatal("expected an error for non-zero exit")
	}
	kind, ok := enginerr.KindOf(err)
	if !ok || kind != enginerr.KindCommandExec {
		t.Fatalf("expected KindCommandExec, got %v (ok=%v)", kind, ok)
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, "sh", []string{"-c", "sleep 5"}, nil)
	if err == nil {
		t.Fatal("expected an error when context is already cancelled")
	}
}
