// Package geometry provides the box arithmetic behind crop decisions.
// Everything here is pure integer math in source-frame pixel coordinates.
package geometry

import "math"

// Box is an axis-aligned rectangle with X1 < X2 and Y1 < Y2.
type Box struct {
	X1 int `json:"x1" yaml:"x1"`
	Y1 int `json:"y1" yaml:"y1"`
	X2 int `json:"x2" yaml:"x2"`
	Y2 int `json:"y2" yaml:"y2"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() int {
	return b.X2 - b.X1
}

// Height returns the vertical extent of the box.
func (b Box) Height() int {
	return b.Y2 - b.Y1
}

// CenterX returns the horizontal center of the box.
func (b Box) CenterX() int {
	return (b.X1 + b.X2) / 2
}

// Offset returns the box translated by (dx, dy).
func (b Box) Offset(dx, dy int) Box {
	return Box{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Valid reports whether the box has positive extent on both axes.
func (b Box) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// EnclosingBox returns the minimal box containing all given boxes.
// The second return value is false for an empty input; callers must guard.
func EnclosingBox(boxes []Box) (Box, bool) {
	if len(boxes) == 0 {
		return Box{}, false
	}

	enc := boxes[0]
	for _, b := range boxes[1:] {
		if b.X1 < enc.X1 {
			enc.X1 = b.X1
		}
		if b.Y1 < enc.Y1 {
			enc.Y1 = b.Y1
		}
		if b.X2 > enc.X2 {
			enc.X2 = b.X2
		}
		if b.Y2 > enc.Y2 {
			enc.Y2 = b.Y2
		}
	}
	return enc, true
}

// CropBox computes the full-height crop window for a tracked target.
// The window has constant width round(frameHeight*aspect), is centered on
// the target's horizontal center, and is clamped to the frame by shifting,
// never by shrinking: a target near the edge ends up off-center in the
// crop rather than clipped.
func CropBox(target Box, frameWidth, frameHeight int, aspect float64) Box {
	cropWidth := int(math.Round(float64(frameHeight) * aspect))
	if cropWidth > frameWidth {
		// Source narrower than the crop window; degenerate, take it all.
		cropWidth = frameWidth
	}

	x1 := target.CenterX() - cropWidth/2
	if x1 < 0 {
		x1 = 0
	}
	if x1+cropWidth > frameWidth {
		x1 = frameWidth - cropWidth
	}

	return Box{X1: x1, Y1: 0, X2: x1 + cropWidth, Y2: frameHeight}
}
