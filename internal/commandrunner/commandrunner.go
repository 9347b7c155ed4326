// Package commandrunner generalizes the teacher's yt-dlp subprocess
// supervision (internal/downloader.processDownload: StdoutPipe/StderrPipe
// scanning, progress-line regex matching, exec.ExitError inspection) into
// a reusable runner for the probe/mux/sample-gen/validate steps of the
// PROCESSING stage (C6, §4.4).
package commandrunner

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
)

// Result carries everything a ProcessingStep needs to record.
type Result struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMS int64
}

// LineHandler is invoked for every line written to stdout or stderr, in
// the order it arrives from whichever stream produced it. Used to parse
// tool-specific progress output (e.g. ffmpeg's "frame=" lines).
type LineHandler func(line string)

// Run executes command with args, streaming stdout/stderr to onLine as
// they arrive and capturing both in full for persistence. The full
// captured stderr is truncated to enginerr's 1000-byte cap when wrapped
// into a CommandFailure.
func Run(ctx context.Context, command string, args []string, onLine LineHandler) (Result, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, enginerr.Wrap(enginerr.KindCommandExec, "stdout_pipe_failed", "failed to open stdout pipe", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, enginerr.Wrap(enginerr.KindCommandExec, "stderr_pipe_failed", "failed to open stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, enginerr.Wrap(enginerr.KindCommandExec, "start_failed", "failed to start command", err)
	}

	var stdoutBuf, stderrBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	readStream := func(reader io.Reader, buf *strings.Builder) {
		defer wg.Done()
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			buf.WriteString(line)
			buf.WriteByte('\n')
			mu.Unlock()
			if onLine != nil {
				onLine(line)
			}
		}
	}

	wg.Add(2)
	go readStream(stdoutPipe, &stdoutBuf)
	go readStream(stderrPipe, &stderrBuf)
	wg.Wait()

	waitErr := cmd.Wait()
	duration := time.Since(start).Milliseconds()

	result := Result{
		Stdout:     stdoutBuf.String(),
		Stderr:     stderrBuf.String(),
		DurationMS: duration,
	}

	if waitErr != nil {
		exitCode := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		result.ExitCode = exitCode
		return result, enginerr.CommandFailure(command, exitCode, result.Stderr, waitErr)
	}

	return result, nil
}
