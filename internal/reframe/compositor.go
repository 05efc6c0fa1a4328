package reframe

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/autocrop/vertical-api/internal/geometry"
)

// Config fixes the output geometry for one run.
type Config struct {
	OutputWidth  int `json:"output_width" yaml:"output_width"`
	OutputHeight int `json:"output_height" yaml:"output_height"`
}

// ConfigFor derives the vertical output geometry from a source height.
// The height carries over unchanged; the width is the 9:16 companion,
// bumped to the next even value because the encoder rejects odd widths.
func ConfigFor(sourceHeight int) Config {
	width := int(math.Round(float64(sourceHeight) * AspectRatio))
	if width%2 != 0 {
		width++
	}
	return Config{OutputWidth: width, OutputHeight: sourceHeight}
}

// blurSigma is applied to the quarter-resolution letterbox background.
const blurSigma = 12.0

// downscaleFactor for the background before blurring.
const downscaleFactor = 4

// Compositor renders source frames into vertical output frames. It is
// stateless apart from the output geometry; composing the same frame
// with the same analysis twice yields byte-identical output.
type Compositor struct {
	cfg Config
}

// NewCompositor returns a compositor producing frames of the configured size.
func NewCompositor(cfg Config) *Compositor {
	return &Compositor{cfg: cfg}
}

// Compose renders one output frame according to the scene's strategy.
// The result is always exactly OutputWidth by OutputHeight.
func (c *Compositor) Compose(frame *image.NRGBA, analysis SceneAnalysis) *image.NRGBA {
	if analysis.Strategy == StrategyTrack && analysis.CropBox != nil {
		return c.track(frame, *analysis.CropBox)
	}
	return c.letterbox(frame)
}

// track crops the frame to the scene's crop window and resizes it to the
// output resolution.
func (c *Compositor) track(frame *image.NRGBA, crop geometry.Box) *image.NRGBA {
	cropped := imaging.Crop(frame, image.Rect(crop.X1, crop.Y1, crop.X2, crop.Y2))
	return imaging.Resize(cropped, c.cfg.OutputWidth, c.cfg.OutputHeight, imaging.Lanczos)
}

// letterbox builds a blurred full-frame background from the source, then
// pastes a sharp copy scaled to the output width, centered vertically.
func (c *Compositor) letterbox(frame *image.NRGBA) *image.NRGBA {
	w, h := c.cfg.OutputWidth, c.cfg.OutputHeight

	// Scale to fill the output, cropping the overflow at the center.
	background := imaging.Fill(frame, w, h, imaging.Center, imaging.Lanczos)

	// Blur at quarter resolution; the result is upscaled anyway and the
	// small image keeps the blur pass cheap.
	smallW := max(1, w/downscaleFactor)
	smallH := max(1, h/downscaleFactor)
	small := imaging.Resize(background, smallW, smallH, imaging.Box)
	small = imaging.Blur(small, blurSigma)
	background = imaging.Resize(small, w, h, imaging.Linear)

	foreground := imaging.Resize(frame, w, 0, imaging.Lanczos)
	offsetY := (h - foreground.Bounds().Dy()) / 2
	return imaging.Paste(background, foreground, image.Pt(0, offsetY))
}
