// Package detect finds people and faces in video frames. The model
// inference itself runs outside the process; adapters talk to it over
// HTTP or through an Ollama vision model.
package detect

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/autocrop/vertical-api/internal/geometry"
)

// Kind selects the object class a detection pass looks for.
type Kind string

const (
	// KindPerson asks for full person bounding boxes.
	KindPerson Kind = "person"
	// KindFace asks for face bounding boxes.
	KindFace Kind = "face"
)

// Subject is one detected person, optionally with a face box.
// Both boxes are in full-frame pixel coordinates.
type Subject struct {
	PersonBox geometry.Box  `json:"person_box" yaml:"person_box"`
	FaceBox   *geometry.Box `json:"face_box,omitempty" yaml:"face_box,omitempty"`
}

// Detector finds the subjects of a frame.
type Detector interface {
	DetectSubjects(ctx context.Context, frame *image.NRGBA) ([]Subject, error)
}

// BoxDetector runs one detection pass for a single object class.
// Implemented by the HTTP and Ollama adapters.
type BoxDetector interface {
	DetectBoxes(ctx context.Context, img *image.NRGBA, kind Kind) ([]geometry.Box, error)
}

// Composite implements Detector by combining a person pass over the whole
// frame with a face pass over each person's sub-region. Face boxes are
// reported back in full-frame coordinates by offsetting with the person
// box origin.
type Composite struct {
	boxes  BoxDetector
	logger *slog.Logger
}

// Compile-time interface check.
var _ Detector = (*Composite)(nil)

// NewComposite creates a Detector on top of a BoxDetector.
func NewComposite(boxes BoxDetector, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{boxes: boxes, logger: logger}
}

// DetectSubjects runs the person pass and a per-person face pass.
// A failed person pass is an error; a failed face pass degrades that
// subject to person-box tracking.
func (c *Composite) DetectSubjects(ctx context.Context, frame *image.NRGBA) ([]Subject, error) {
	persons, err := c.boxes.DetectBoxes(ctx, frame, KindPerson)
	if err != nil {
		return nil, fmt.Errorf("person detection: %w", err)
	}

	bounds := frame.Bounds()
	subjects := make([]Subject, 0, len(persons))
	for _, person := range persons {
		person = clampToFrame(person, bounds.Dx(), bounds.Dy())
		if !person.Valid() {
			continue
		}

		subject := Subject{PersonBox: person}

		crop := imaging.Crop(frame, image.Rect(person.X1, person.Y1, person.X2, person.Y2))
		faces, err := c.boxes.DetectBoxes(ctx, crop, KindFace)
		if err != nil {
			c.logger.Warn("face detection failed, tracking person box",
				slog.Any("person_box", person),
				slog.String("error", err.Error()),
			)
		} else if len(faces) > 0 {
			face := faces[0].Offset(person.X1, person.Y1)
			face = clampToFrame(face, bounds.Dx(), bounds.Dy())
			if face.Valid() {
				subject.FaceBox = &face
			}
		}

		subjects = append(subjects, subject)
	}
	return subjects, nil
}

// clampToFrame limits a box to the frame rectangle.
func clampToFrame(b geometry.Box, width, height int) geometry.Box {
	if b.X1 < 0 {
		b.X1 = 0
	}
	if b.Y1 < 0 {
		b.Y1 = 0
	}
	if b.X2 > width {
		b.X2 = width
	}
	if b.Y2 > height {
		b.Y2 = height
	}
	return b
}

// encodeJPEG serializes a frame for transport to an inference backend.
func encodeJPEG(img *image.NRGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
