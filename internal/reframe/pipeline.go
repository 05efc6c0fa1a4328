package reframe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/autocrop/vertical-api/internal/detect"
	"github.com/autocrop/vertical-api/internal/media"
	"github.com/autocrop/vertical-api/internal/scenes"
)

// Static errors.
var (
	// ErrNoScenes means segmentation produced nothing to process.
	ErrNoScenes = errors.New("no scenes detected in source")
	// ErrEncoding wraps encoder failures; the ffmpeg stderr rides along
	// in the wrapped *media.FFmpegError.
	ErrEncoding = errors.New("video encoding failed")
	// ErrMux wraps audio extraction and final remux failures.
	ErrMux = errors.New("audio mux failed")
)

// progressEvery controls how often the frame loop reports progress.
const progressEvery = 100

// Result summarizes a completed run.
type Result struct {
	DestinationPath string        `json:"destination_path"`
	SceneCount      int           `json:"scene_count"`
	FrameCount      int           `json:"frame_count"`
	OutputWidth     int           `json:"output_width"`
	OutputHeight    int           `json:"output_height"`
	Elapsed         time.Duration `json:"elapsed"`
	// Plan holds the per-scene decisions behind the run, for callers
	// that want to export or inspect them.
	Plan *Plan `json:"-"`
}

// Pipeline reframes horizontal videos into vertical ones. A Pipeline is
// reusable across runs; each run owns its own decode and encode handles
// and shares nothing with concurrent runs.
type Pipeline struct {
	engine    media.Engine
	segmenter scenes.Segmenter
	analyzer  *Analyzer
	logger    *slog.Logger
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(engine media.Engine, segmenter scenes.Segmenter, detector detect.Detector, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		engine:    engine,
		segmenter: segmenter,
		analyzer:  NewAnalyzer(engine, detector, logger),
		logger:    logger,
	}
}

type emitFunc func(stage int, percent float64, message string)

// progressFunc adapts an optional sink into an always-callable emitter.
func progressFunc(sink ProgressSink) emitFunc {
	return func(stage int, percent float64, message string) {
		if sink != nil {
			sink(ProgressEvent{Stage: stage, Percent: percent, Message: message})
		}
	}
}

// sceneCursor resolves which scene owns a frame. Frames arrive in
// strictly increasing order, so the cursor only ever moves forward.
type sceneCursor struct {
	scenes []SceneAnalysis
	idx    int
}

// active returns the analysis of the scene owning the given frame index.
// Frames past the end of the last scene stay with the last scene; probe
// frame totals are estimates and the stream may run a little long.
func (c *sceneCursor) active(frame int) *SceneAnalysis {
	for c.idx+1 < len(c.scenes) && frame >= c.scenes[c.idx+1].Scene.StartFrame {
		c.idx++
	}
	return &c.scenes[c.idx]
}

// Analyze runs scene segmentation and per-scene analysis without
// touching the frame stream. The returned plan is exactly what Process
// would execute.
func (p *Pipeline) Analyze(ctx context.Context, sourcePath string) (*Plan, error) {
	return p.analyze(ctx, sourcePath, nil)
}

func (p *Pipeline) analyze(ctx context.Context, sourcePath string, sink ProgressSink) (*Plan, error) {
	emit := progressFunc(sink)

	emit(StageSegment, 0, "detecting scenes")
	segPlan, err := p.segmenter.DetectScenes(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("detect scenes: %w", err)
	}
	if segPlan.TotalFrames <= 0 || len(segPlan.Scenes) == 0 {
		return nil, ErrNoScenes
	}
	emit(StageSegment, 100, fmt.Sprintf("found %d scenes", len(segPlan.Scenes)))

	plan := &Plan{
		Source:      sourcePath,
		Width:       segPlan.Width,
		Height:      segPlan.Height,
		FrameRate:   segPlan.FrameRate,
		TotalFrames: segPlan.TotalFrames,
		HasAudio:    segPlan.HasAudio,
		Output:      ConfigFor(segPlan.Height),
		Scenes:      make([]SceneAnalysis, 0, len(segPlan.Scenes)),
	}

	for i, scene := range segPlan.Scenes {
		emit(StageAnalyze, float64(i)/float64(len(segPlan.Scenes))*100,
			fmt.Sprintf("analyzing scene %d/%d", i+1, len(segPlan.Scenes)))
		analysis, err := p.analyzer.AnalyzeScene(ctx, sourcePath, segPlan, scene)
		if err != nil {
			return nil, fmt.Errorf("analyze scene %d: %w", i, err)
		}
		plan.Scenes = append(plan.Scenes, analysis)
	}
	emit(StageAnalyze, 100, "scene analysis complete")
	return plan, nil
}

// Process reframes sourcePath into a vertical video at destPath,
// reporting progress through sink. On failure the destination is never
// left in place and intermediates are removed; cleanup problems never
// mask the failure itself.
func (p *Pipeline) Process(ctx context.Context, sourcePath, destPath string, sink ProgressSink) (result *Result, err error) {
	start := time.Now()
	emit := progressFunc(sink)

	plan, err := p.analyze(ctx, sourcePath, sink)
	if err != nil {
		return nil, err
	}

	tempVideo := tempArtifact(destPath, "_temp_video.mp4")
	tempAudio := tempArtifact(destPath, "_temp_audio.aac")
	defer func() {
		p.remove(tempVideo)
		p.remove(tempAudio)
		if err != nil {
			p.remove(destPath)
		}
	}()

	frames, err := p.encodeFrames(ctx, sourcePath, tempVideo, plan, emit)
	if err != nil {
		return nil, err
	}

	if err = p.finalize(ctx, sourcePath, destPath, tempVideo, tempAudio, plan.HasAudio, emit); err != nil {
		return nil, err
	}

	res := &Result{
		DestinationPath: destPath,
		SceneCount:      len(plan.Scenes),
		FrameCount:      frames,
		OutputWidth:     plan.Output.OutputWidth,
		OutputHeight:    plan.Output.OutputHeight,
		Elapsed:         time.Since(start),
		Plan:            plan,
	}
	emit(StageMux, 100, "processing complete")
	p.logger.Info("reframe complete",
		slog.String("source", sourcePath),
		slog.String("destination", destPath),
		slog.Int("scenes", res.SceneCount),
		slog.Int("frames", res.FrameCount),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// encodeFrames decodes the source, composites every frame according to
// the scene that owns it, and streams the result into the encoder. The
// blocking pipe write keeps at most one composited frame in flight.
func (p *Pipeline) encodeFrames(ctx context.Context, sourcePath, tempVideo string, plan *Plan, emit emitFunc) (int, error) {
	info := media.VideoInfo{
		Width:       plan.Width,
		Height:      plan.Height,
		FrameRate:   plan.FrameRate,
		TotalFrames: plan.TotalFrames,
		HasAudio:    plan.HasAudio,
	}

	reader, err := p.engine.OpenReader(ctx, sourcePath, info)
	if err != nil {
		return 0, fmt.Errorf("open decoder: %w", err)
	}
	defer reader.Close()

	writer, err := p.engine.OpenWriter(ctx, tempVideo, plan.Output.OutputWidth, plan.Output.OutputHeight, plan.FrameRate)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	defer writer.Close()

	compositor := NewCompositor(plan.Output)
	cursor := &sceneCursor{scenes: plan.Scenes}

	emit(StageFrames, 0, "processing frames")

	frames := 0
	for {
		frame, readErr := reader.Next()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return frames, fmt.Errorf("decode frame %d: %w", frames, readErr)
		}

		out := compositor.Compose(frame, *cursor.active(frames))
		if writeErr := writer.Write(out); writeErr != nil {
			return frames, fmt.Errorf("%w: %w", ErrEncoding, writeErr)
		}

		frames++
		if frames%progressEvery == 0 {
			emit(StageFrames, framePercent(frames, plan.TotalFrames),
				fmt.Sprintf("frame %d of ~%d", frames, plan.TotalFrames))
		}
	}

	if closeErr := writer.Close(); closeErr != nil {
		return frames, fmt.Errorf("%w: %w", ErrEncoding, closeErr)
	}
	if closeErr := reader.Close(); closeErr != nil {
		return frames, fmt.Errorf("finish decode: %w", closeErr)
	}

	emit(StageFrames, 100, fmt.Sprintf("%d frames encoded", frames))
	return frames, nil
}

// finalize runs the audio extract and remux stages. A source without an
// audio track skips both and the silent video moves into place directly.
func (p *Pipeline) finalize(ctx context.Context, sourcePath, destPath, tempVideo, tempAudio string, hasAudio bool, emit emitFunc) error {
	if !hasAudio {
		emit(StageAudio, 100, "source has no audio track")
		emit(StageMux, 0, "writing output")
		if err := os.Rename(tempVideo, destPath); err != nil {
			return fmt.Errorf("move output into place: %w", err)
		}
		return nil
	}

	emit(StageAudio, 0, "extracting audio")
	if err := p.engine.ExtractAudio(ctx, sourcePath, tempAudio); err != nil {
		return fmt.Errorf("%w: %w", ErrMux, err)
	}
	emit(StageAudio, 100, "audio extracted")

	emit(StageMux, 0, "muxing audio and video")
	if err := p.engine.Mux(ctx, tempVideo, tempAudio, destPath); err != nil {
		return fmt.Errorf("%w: %w", ErrMux, err)
	}
	return nil
}

// framePercent reports frame-loop progress against the probed frame
// total, which is an estimate; the value is capped below 100 until the
// loop actually finishes.
func framePercent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Min(float64(done)/float64(total)*100, 99)
}

// tempArtifact names an intermediate file next to the destination.
func tempArtifact(destPath, suffix string) string {
	return strings.TrimSuffix(destPath, filepath.Ext(destPath)) + suffix
}

// remove deletes an intermediate, logging when the delete itself fails.
func (p *Pipeline) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("cleanup failed",
			slog.String("path", path),
			slog.Any("error", err),
		)
	}
}
