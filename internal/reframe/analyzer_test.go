package reframe

import (
	"context"
	"errors"
	"testing"

	"github.com/autocrop/vertical-api/internal/detect"
	"github.com/autocrop/vertical-api/internal/geometry"
	"github.com/autocrop/vertical-api/internal/scenes"
)

func TestAnalyzeSceneSamplesMidpoint(t *testing.T) {
	engine := newFakeEngine(96, 64, 20, false)
	analyzer := NewAnalyzer(engine, &fakeDetector{}, testLogger())

	scene := scenes.Scene{StartFrame: 5, EndFrame: 10}
	if _, err := analyzer.AnalyzeScene(context.Background(), "source.mp4", engine.plan(), scene); err != nil {
		t.Fatalf("AnalyzeScene failed: %v", err)
	}

	if len(engine.grabbed) != 1 || engine.grabbed[0] != 7 {
		t.Errorf("grabbed frames = %v, want [7]", engine.grabbed)
	}
}

func TestAnalyzeSceneTrackGeometry(t *testing.T) {
	engine := newFakeEngine(96, 64, 20, false)
	person := geometry.Box{X1: 10, Y1: 5, X2: 40, Y2: 60}
	detector := &fakeDetector{perScene: [][]detect.Subject{{{PersonBox: person}}}}
	analyzer := NewAnalyzer(engine, detector, testLogger())

	analysis, err := analyzer.AnalyzeScene(context.Background(), "source.mp4", engine.plan(), scenes.Scene{StartFrame: 0, EndFrame: 20})
	if err != nil {
		t.Fatalf("AnalyzeScene failed: %v", err)
	}

	if analysis.Strategy != StrategyTrack {
		t.Fatalf("strategy = %q, want %q", analysis.Strategy, StrategyTrack)
	}
	if analysis.TargetBox == nil || *analysis.TargetBox != person {
		t.Errorf("target = %+v, want person %+v", analysis.TargetBox, person)
	}
	if analysis.CropBox == nil {
		t.Fatal("crop box not computed for tracked scene")
	}
	crop := *analysis.CropBox
	if crop.Width() != 36 {
		t.Errorf("crop width = %d, want 36", crop.Width())
	}
	if crop.Y1 != 0 || crop.Y2 != 64 {
		t.Errorf("crop = %+v, want full height", crop)
	}
	// Person center is x=25; a centered crop would start at 7.
	if crop.X1 != 7 {
		t.Errorf("crop X1 = %d, want 7", crop.X1)
	}
}

func TestAnalyzeSceneUndecodableSample(t *testing.T) {
	engine := newFakeEngine(96, 64, 20, false)
	engine.grabErr = errors.New("corrupt GOP")
	detector := &fakeDetector{perScene: [][]detect.Subject{{{PersonBox: geometry.Box{X1: 1, Y1: 1, X2: 5, Y2: 5}}}}}
	analyzer := NewAnalyzer(engine, detector, testLogger())

	analysis, err := analyzer.AnalyzeScene(context.Background(), "source.mp4", engine.plan(), scenes.Scene{StartFrame: 0, EndFrame: 20})
	if err != nil {
		t.Fatalf("AnalyzeScene failed: %v", err)
	}

	if analysis.Strategy != StrategyLetterbox {
		t.Errorf("strategy = %q, want letterbox fallback", analysis.Strategy)
	}
	if len(analysis.Subjects) != 0 {
		t.Errorf("subjects = %+v, want none", analysis.Subjects)
	}
	if analysis.CropBox != nil || analysis.TargetBox != nil {
		t.Error("boxes set on an unanalyzable scene")
	}
	if detector.calls != 0 {
		t.Error("detector ran without a decoded frame")
	}
}

func TestAnalyzeSceneDetectorFailure(t *testing.T) {
	engine := newFakeEngine(96, 64, 20, false)
	detector := &fakeDetector{err: errors.New("inference backend down")}
	analyzer := NewAnalyzer(engine, detector, testLogger())

	analysis, err := analyzer.AnalyzeScene(context.Background(), "source.mp4", engine.plan(), scenes.Scene{StartFrame: 0, EndFrame: 20})
	if err != nil {
		t.Fatalf("AnalyzeScene failed: %v", err)
	}
	if analysis.Strategy != StrategyLetterbox {
		t.Errorf("strategy = %q, want letterbox fallback", analysis.Strategy)
	}
}

func TestAnalyzeSceneNoDetector(t *testing.T) {
	engine := newFakeEngine(96, 64, 20, false)
	analyzer := NewAnalyzer(engine, nil, testLogger())

	analysis, err := analyzer.AnalyzeScene(context.Background(), "source.mp4", engine.plan(), scenes.Scene{StartFrame: 0, EndFrame: 20})
	if err != nil {
		t.Fatalf("AnalyzeScene failed: %v", err)
	}

	if analysis.Strategy != StrategyLetterbox {
		t.Errorf("strategy = %q, want letterbox without a detector", analysis.Strategy)
	}
	if len(engine.grabbed) != 0 {
		t.Error("sample frame decoded with no detector to feed it to")
	}
}

func TestAnalyzeSceneCancelled(t *testing.T) {
	engine := newFakeEngine(96, 64, 20, false)
	analyzer := NewAnalyzer(engine, &fakeDetector{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := analyzer.AnalyzeScene(ctx, "source.mp4", engine.plan(), scenes.Scene{StartFrame: 0, EndFrame: 20})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
