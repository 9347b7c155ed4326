package pipeline

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/shlokdhakrey/media-bot-sub002/internal/commandrunner"
	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
)

// probeResult is the subset of ffprobe's -show_streams/-show_format JSON
// output the ANALYZING stage needs.
type probeResult struct {
	HasVideo    bool
	HasAudio    bool
	DurationSec float64
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

// probeMedia runs the configured probe binary against path and extracts
// stream composition and duration. Grounded on commandrunner.Run, the same
// supervision the PROCESSING stage's mux/sample-gen steps use.
func probeMedia(ctx context.Context, probeBinary, path string) (probeResult, error) {
	args := []string{"-v", "quiet", "-print_format", "json", "-show_streams", "-show_format", path}
	result, err := commandrunner.Run(ctx, probeBinary, args, nil)
	if err != nil {
		return probeResult{}, enginerr.Wrap(enginerr.KindCommandExec, "probe_failed", "media probe failed", err)
	}

	var out ffprobeOutput
	if err := json.Unmarshal([]byte(result.Stdout), &out); err != nil {
		return probeResult{}, enginerr.Wrap(enginerr.KindCommandExec, "probe_parse_failed", "failed to parse probe output", err)
	}

	var pr probeResult
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			pr.HasVideo = true
		case "audio":
			pr.HasAudio = true
		}
	}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		pr.DurationSec = d
	}
	return pr, nil
}
