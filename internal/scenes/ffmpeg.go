package scenes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/autocrop/vertical-api/internal/media"
)

// DefaultThreshold is the scene filter score above which a frame is
// considered the start of a new shot.
const DefaultThreshold = 0.4

// ErrSceneDetection is returned when the scene filter pass fails.
var ErrSceneDetection = errors.New("scene detection failed")

// FFmpegSegmenter detects shot boundaries with ffmpeg's scene filter.
type FFmpegSegmenter struct {
	engine     media.Engine
	ffmpegPath string
	threshold  float64
	logger     *slog.Logger
}

// Compile-time interface check.
var _ Segmenter = (*FFmpegSegmenter)(nil)

// NewFFmpegSegmenter creates a segmenter backed by the ffmpeg scene filter.
// The engine supplies stream parameters via Probe. An empty ffmpegPath
// defaults to "ffmpeg"; a non-positive threshold uses DefaultThreshold.
func NewFFmpegSegmenter(engine media.Engine, ffmpegPath string, threshold float64, logger *slog.Logger) *FFmpegSegmenter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegSegmenter{
		engine:     engine,
		ffmpegPath: ffmpegPath,
		threshold:  threshold,
		logger:     logger,
	}
}

// DetectScenes probes the source and splits it at scene cuts.
func (s *FFmpegSegmenter) DetectScenes(ctx context.Context, path string) (Plan, error) {
	info, err := s.engine.Probe(ctx, path)
	if err != nil {
		return Plan{}, fmt.Errorf("probe source: %w", err)
	}

	plan := Plan{
		FrameRate:   info.FrameRate,
		TotalFrames: info.TotalFrames,
		Width:       info.Width,
		Height:      info.Height,
		HasAudio:    info.HasAudio,
	}
	if info.TotalFrames <= 0 {
		// Nothing to segment; the pipeline rejects the empty plan.
		return plan, nil
	}

	cuts, err := s.detectCuts(ctx, path)
	if err != nil {
		return Plan{}, err
	}

	plan.Scenes = BuildScenes(cuts, info.FrameRate, info.TotalFrames)

	s.logger.Debug("scene detection complete",
		slog.String("path", path),
		slog.Int("cuts", len(cuts)),
		slog.Int("scenes", len(plan.Scenes)),
		slog.Int("total_frames", plan.TotalFrames),
	)
	return plan, nil
}

// detectCuts runs the scene filter pass and returns cut timestamps in
// seconds. The filter selects frames whose scene score exceeds the
// threshold; showinfo prints their presentation times on stderr.
func (s *FFmpegSegmenter) detectCuts(ctx context.Context, path string) ([]float64, error) {
	args := []string{
		"-i", path,
		"-vf", fmt.Sprintf("select='gt(scene,%f)',showinfo", s.threshold),
		"-f", "null",
		"-",
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("scene detection cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrSceneDetection, err, tail(stderr.String(), 2048))
	}

	return parseSceneTimes(stderr.String()), nil
}

// parseSceneTimes extracts pts_time values from showinfo stderr output.
func parseSceneTimes(output string) []float64 {
	var times []float64
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "pts_time:") {
			continue
		}
		parts := strings.Split(line, "pts_time:")
		if len(parts) != 2 {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(parts[1]))
		if len(fields) == 0 {
			continue
		}
		if seconds, err := strconv.ParseFloat(fields[0], 64); err == nil {
			times = append(times, seconds)
		}
	}
	return times
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
