package reframe

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/autocrop/vertical-api/internal/detect"
	"github.com/autocrop/vertical-api/internal/geometry"
	"github.com/autocrop/vertical-api/internal/scenes"
)

func TestPlanRoundTrip(t *testing.T) {
	face := geometry.Box{X1: 120, Y1: 60, X2: 180, Y2: 140}
	target := face
	crop := geometry.Box{X1: 0, Y1: 0, X2: 608, Y2: 1080}
	plan := &Plan{
		Source:      "clips/input.mp4",
		Width:       1920,
		Height:      1080,
		FrameRate:   23.976,
		TotalFrames: 240,
		HasAudio:    true,
		Output:      Config{OutputWidth: 608, OutputHeight: 1080},
		Scenes: []SceneAnalysis{
			{
				Scene: scenes.Scene{StartFrame: 0, EndFrame: 120},
				Subjects: []detect.Subject{
					{PersonBox: geometry.Box{X1: 100, Y1: 50, X2: 300, Y2: 900}, FaceBox: &face},
				},
				Strategy:  StrategyTrack,
				TargetBox: &target,
				CropBox:   &crop,
			},
			{
				Scene:    scenes.Scene{StartFrame: 120, EndFrame: 240},
				Strategy: StrategyLetterbox,
			},
		},
	}

	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := WritePlan(path, plan); err != nil {
		t.Fatalf("WritePlan failed: %v", err)
	}

	got, err := ReadPlan(path)
	if err != nil {
		t.Fatalf("ReadPlan failed: %v", err)
	}
	if !reflect.DeepEqual(got, plan) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, plan)
	}
}

func TestReadPlanMissingFile(t *testing.T) {
	if _, err := ReadPlan(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing plan file")
	}
}

func TestReadPlanMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("scenes: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPlan(path); err == nil {
		t.Error("expected error for malformed plan file")
	}
}
