package reframe

import (
	"context"
	"log/slog"

	"github.com/autocrop/vertical-api/internal/detect"
	"github.com/autocrop/vertical-api/internal/geometry"
	"github.com/autocrop/vertical-api/internal/media"
	"github.com/autocrop/vertical-api/internal/scenes"
)

// SceneAnalysis carries the reframing decision for one scene. It is
// computed once, before the frame loop, and read-only afterwards.
type SceneAnalysis struct {
	Scene    scenes.Scene     `json:"scene" yaml:"scene"`
	Subjects []detect.Subject `json:"subjects,omitempty" yaml:"subjects,omitempty"`
	Strategy Strategy         `json:"strategy" yaml:"strategy"`
	// TargetBox is the box the crop centers on; nil iff letterboxing.
	TargetBox *geometry.Box `json:"target_box,omitempty" yaml:"target_box,omitempty"`
	// CropBox is the source window a tracked scene crops to; nil iff
	// letterboxing. Constant width across the whole video.
	CropBox *geometry.Box `json:"crop_box,omitempty" yaml:"crop_box,omitempty"`
}

// Analyzer samples one representative frame per scene and decides the
// scene's strategy.
type Analyzer struct {
	engine   media.Engine
	detector detect.Detector
	logger   *slog.Logger
}

// NewAnalyzer returns an analyzer using the given decode engine and
// subject detector.
func NewAnalyzer(engine media.Engine, detector detect.Detector, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{engine: engine, detector: detector, logger: logger}
}

// AnalyzeScene decodes the scene's midpoint frame, detects its subjects,
// and fixes the strategy and crop geometry. A sample frame that cannot
// be decoded, or a detector failure, downgrades the scene to letterbox
// instead of failing the run; only context cancellation is an error.
// With no detector configured every scene letterboxes.
func (a *Analyzer) AnalyzeScene(ctx context.Context, path string, plan scenes.Plan, scene scenes.Scene) (SceneAnalysis, error) {
	analysis := SceneAnalysis{Scene: scene, Strategy: StrategyLetterbox}

	if a.detector == nil {
		return analysis, nil
	}

	info := media.VideoInfo{
		Width:       plan.Width,
		Height:      plan.Height,
		FrameRate:   plan.FrameRate,
		TotalFrames: plan.TotalFrames,
	}

	frame, err := a.engine.GrabFrame(ctx, path, info, scene.MidpointFrame())
	if err != nil {
		if ctx.Err() != nil {
			return analysis, ctx.Err()
		}
		a.logger.Warn("scene sample frame not decodable, letterboxing",
			slog.Int("start_frame", scene.StartFrame),
			slog.Int("end_frame", scene.EndFrame),
			slog.Any("error", err),
		)
		return analysis, nil
	}

	subjects, err := a.detector.DetectSubjects(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return analysis, ctx.Err()
		}
		a.logger.Warn("subject detection failed, letterboxing",
			slog.Int("start_frame", scene.StartFrame),
			slog.Any("error", err),
		)
		return analysis, nil
	}

	analysis.Subjects = subjects
	analysis.Strategy, analysis.TargetBox = ChooseStrategy(subjects, plan.Height)
	if analysis.Strategy == StrategyTrack && analysis.TargetBox != nil {
		crop := geometry.CropBox(*analysis.TargetBox, plan.Width, plan.Height, AspectRatio)
		analysis.CropBox = &crop
	}
	return analysis, nil
}
