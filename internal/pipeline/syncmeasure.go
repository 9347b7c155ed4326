package pipeline

import (
	"context"
	"math"
	"regexp"
	"strconv"

	"github.com/shlokdhakrey/media-bot-sub002/internal/commandrunner"
	"github.com/shlokdhakrey/media-bot-sub002/internal/config"
	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

var silenceEndRe = regexp.MustCompile(`silence_end:\s*([0-9.]+)`)

// leadingSilenceSec runs ffmpeg's silencedetect audio filter over path and
// returns the end time, in seconds, of its first detected silent region
// (0 when none is reported) — a cheap proxy for how much dead air precedes
// the real content.
func leadingSilenceSec(ctx context.Context, muxBinary, path string) (float64, error) {
	args := []string{"-i", path, "-af", "silencedetect=noise=-30dB:d=0.3", "-f", "null", "-"}
	result, err := commandrunner.Run(ctx, muxBinary, args, nil)
	if err != nil {
		return 0, enginerr.Wrap(enginerr.KindCommandExec, "silencedetect_failed", "leading-silence probe failed", err)
	}
	match := silenceEndRe.FindStringSubmatch(result.Stderr)
	if match == nil {
		return 0, nil
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// measureSync derives a SyncMeasurement for asset's video and first audio
// track from two independent estimators: leading-silence alignment and
// stream-duration comparison. The Sync Decision Engine's first rule (§4.5)
// requires at least two such methods to agree within 50ms before it will
// act on the result, so both are computed here rather than just one.
func measureSync(ctx context.Context, bins config.BinariesConfig, asset models.MediaAsset) (models.SyncMeasurement, error) {
	videoProbe, err := probeMedia(ctx, bins.Probe, asset.VideoPath)
	if err != nil {
		return models.SyncMeasurement{}, err
	}
	audioPath := asset.AudioPaths[0]
	audioProbe, err := probeMedia(ctx, bins.Probe, audioPath)
	if err != nil {
		return models.SyncMeasurement{}, err
	}

	videoSilence, err := leadingSilenceSec(ctx, bins.Mux, asset.VideoPath)
	if err != nil {
		return models.SyncMeasurement{}, err
	}
	audioSilence, err := leadingSilenceSec(ctx, bins.Mux, audioPath)
	if err != nil {
		return models.SyncMeasurement{}, err
	}

	silenceOffsetMs := (audioSilence - videoSilence) * 1000
	durationOffsetMs := (videoProbe.DurationSec - audioProbe.DurationSec) * 1000
	agreement := math.Abs(silenceOffsetMs - durationOffsetMs)

	confidence := 1 - agreement/500
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return models.SyncMeasurement{
		VideoDurationSec:   videoProbe.DurationSec,
		AudioDurationSec:   audioProbe.DurationSec,
		StartSilenceMs:     videoSilence * 1000,
		StartOffsetMs:      silenceOffsetMs,
		MiddleOffsetMs:     silenceOffsetMs,
		EndOffsetMs:        silenceOffsetMs,
		Confidence:         confidence,
		MethodAgreementMs:  agreement,
		IndependentMethods: 2,
	}, nil
}
