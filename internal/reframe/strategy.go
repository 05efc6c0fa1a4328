// Package reframe turns a horizontally-shot video into a vertical 9:16
// one. Each scene is analyzed once, assigned a strategy, and every frame
// is composited according to the strategy of the scene that owns it.
package reframe

import (
	"github.com/autocrop/vertical-api/internal/detect"
	"github.com/autocrop/vertical-api/internal/geometry"
)

// AspectRatio is the output width-to-height ratio. Fixed; the pipeline
// produces 9:16 vertical video only.
const AspectRatio = 9.0 / 16.0

// Strategy selects how the frames of a scene are reframed.
type Strategy string

const (
	// StrategyTrack crops the frame around the scene's target box.
	StrategyTrack Strategy = "track"
	// StrategyLetterbox scales the frame onto a blurred background.
	StrategyLetterbox Strategy = "letterbox"
)

// ChooseStrategy decides between tracking and letterboxing from the
// subjects found in a scene's sample frame.
//
// No subjects means there is nothing to track. A single subject is
// tracked on its face box when one was found, since the tighter box
// tracks steadier, and on its person box otherwise. A group of subjects
// is tracked on the enclosing box of their person boxes only when that
// box fits inside the vertical crop; a group exactly as wide as the crop
// still tracks.
func ChooseStrategy(subjects []detect.Subject, frameHeight int) (Strategy, *geometry.Box) {
	switch len(subjects) {
	case 0:
		return StrategyLetterbox, nil
	case 1:
		target := subjects[0].PersonBox
		if subjects[0].FaceBox != nil {
			target = *subjects[0].FaceBox
		}
		return StrategyTrack, &target
	}

	boxes := make([]geometry.Box, len(subjects))
	for i, s := range subjects {
		boxes[i] = s.PersonBox
	}
	enclosing, ok := geometry.EnclosingBox(boxes)
	if !ok {
		return StrategyLetterbox, nil
	}

	maxWidth := float64(frameHeight) * AspectRatio
	if float64(enclosing.Width()) > maxWidth {
		return StrategyLetterbox, nil
	}
	return StrategyTrack, &enclosing
}
