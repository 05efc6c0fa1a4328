// Package scenes models shot boundaries and produces the contiguous
// per-scene frame intervals the reframing pipeline works from.
package scenes

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Scene is a half-open frame interval [StartFrame, EndFrame).
type Scene struct {
	StartFrame int `json:"start_frame" yaml:"start_frame"`
	EndFrame   int `json:"end_frame" yaml:"end_frame"`
}

// Contains reports whether the frame index falls inside the scene.
func (s Scene) Contains(frame int) bool {
	return frame >= s.StartFrame && frame < s.EndFrame
}

// FrameCount returns the number of frames in the scene.
func (s Scene) FrameCount() int {
	return s.EndFrame - s.StartFrame
}

// MidpointFrame returns the temporal midpoint of the scene, used as the
// representative frame for content analysis.
func (s Scene) MidpointFrame() int {
	return (s.StartFrame + s.EndFrame) / 2
}

// Plan is the output of scene segmentation: the scene list plus the
// stream parameters everything downstream is sized from.
type Plan struct {
	Scenes      []Scene
	FrameRate   float64
	TotalFrames int
	Width       int
	Height      int
	HasAudio    bool
}

// Segmenter detects shot boundaries in a video file.
type Segmenter interface {
	DetectScenes(ctx context.Context, path string) (Plan, error)
}

// BuildScenes converts cut timestamps (seconds) into a contiguous,
// ordered scene list covering [0, totalFrames). A video with no cuts
// yields a single scene. Cuts that round to frame 0, beyond the end, or
// onto an existing boundary are dropped.
func BuildScenes(cuts []float64, frameRate float64, totalFrames int) []Scene {
	if totalFrames <= 0 {
		return nil
	}

	boundaries := make([]int, 0, len(cuts)+1)
	boundaries = append(boundaries, 0)
	for _, t := range cuts {
		f := int(math.Round(t * frameRate))
		if f > 0 && f < totalFrames {
			boundaries = append(boundaries, f)
		}
	}
	sort.Ints(boundaries)

	scenes := make([]Scene, 0, len(boundaries))
	for i, start := range boundaries {
		end := totalFrames
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		if end > start {
			scenes = append(scenes, Scene{StartFrame: start, EndFrame: end})
		}
	}
	return scenes
}

// ValidateCover checks that scenes form an ordered, gapless, non-overlapping
// cover of [0, totalFrames).
func ValidateCover(scenes []Scene, totalFrames int) error {
	if len(scenes) == 0 {
		return fmt.Errorf("empty scene list")
	}
	if scenes[0].StartFrame != 0 {
		return fmt.Errorf("first scene starts at %d, want 0", scenes[0].StartFrame)
	}
	for i, s := range scenes {
		if s.StartFrame >= s.EndFrame {
			return fmt.Errorf("scene %d is empty: [%d, %d)", i, s.StartFrame, s.EndFrame)
		}
		if i > 0 && s.StartFrame != scenes[i-1].EndFrame {
			return fmt.Errorf("scene %d starts at %d, previous ends at %d", i, s.StartFrame, scenes[i-1].EndFrame)
		}
	}
	if last := scenes[len(scenes)-1].EndFrame; last != totalFrames {
		return fmt.Errorf("last scene ends at %d, want %d", last, totalFrames)
	}
	return nil
}
