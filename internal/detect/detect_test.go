package detect

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/autocrop/vertical-api/internal/geometry"
)

// fakeBoxDetector scripts per-kind responses and records the images it saw.
type fakeBoxDetector struct {
	persons    []geometry.Box
	personErr  error
	faces      map[geometry.Box][]geometry.Box // keyed by person box
	faceErr    error
	faceImages []image.Rectangle
}

func (f *fakeBoxDetector) DetectBoxes(_ context.Context, img *image.NRGBA, kind Kind) ([]geometry.Box, error) {
	switch kind {
	case KindPerson:
		return f.persons, f.personErr
	case KindFace:
		f.faceImages = append(f.faceImages, img.Bounds())
		if f.faceErr != nil {
			return nil, f.faceErr
		}
		// The fake cannot see which person the crop belongs to, so tests
		// with face responses use a single person.
		for _, faces := range f.faces {
			return faces, nil
		}
		return nil, nil
	}
	return nil, nil
}

func testFrame(w, h int) *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, w, h))
}

func TestCompositeNoPersons(t *testing.T) {
	c := NewComposite(&fakeBoxDetector{}, nil)

	subjects, err := c.DetectSubjects(context.Background(), testFrame(640, 360))
	if err != nil {
		t.Fatalf("DetectSubjects failed: %v", err)
	}
	if len(subjects) != 0 {
		t.Errorf("expected no subjects, got %d", len(subjects))
	}
}

func TestCompositePersonPassError(t *testing.T) {
	wantErr := errors.New("model offline")
	c := NewComposite(&fakeBoxDetector{personErr: wantErr}, nil)

	_, err := c.DetectSubjects(context.Background(), testFrame(640, 360))
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped person pass error, got %v", err)
	}
}

func TestCompositeOffsetsFaceToFrameCoordinates(t *testing.T) {
	person := geometry.Box{X1: 100, Y1: 50, X2: 300, Y2: 350}
	// Face at (20,10)-(80,90) inside the person crop.
	fake := &fakeBoxDetector{
		persons: []geometry.Box{person},
		faces: map[geometry.Box][]geometry.Box{
			person: {{X1: 20, Y1: 10, X2: 80, Y2: 90}},
		},
	}
	c := NewComposite(fake, nil)

	subjects, err := c.DetectSubjects(context.Background(), testFrame(640, 360))
	if err != nil {
		t.Fatalf("DetectSubjects failed: %v", err)
	}
	if len(subjects) != 1 {
		t.Fatalf("expected 1 subject, got %d", len(subjects))
	}

	if subjects[0].PersonBox != person {
		t.Errorf("person box = %+v, want %+v", subjects[0].PersonBox, person)
	}
	if subjects[0].FaceBox == nil {
		t.Fatal("expected a face box")
	}
	want := geometry.Box{X1: 120, Y1: 60, X2: 180, Y2: 140}
	if *subjects[0].FaceBox != want {
		t.Errorf("face box = %+v, want %+v (full-frame coordinates)", *subjects[0].FaceBox, want)
	}

	// The face pass must have run on the person-sized crop.
	if len(fake.faceImages) != 1 {
		t.Fatalf("expected 1 face pass, got %d", len(fake.faceImages))
	}
	if got := fake.faceImages[0]; got.Dx() != person.Width() || got.Dy() != person.Height() {
		t.Errorf("face pass crop size %dx%d, want %dx%d", got.Dx(), got.Dy(), person.Width(), person.Height())
	}
}

func TestCompositeFacePassFailureDegrades(t *testing.T) {
	person := geometry.Box{X1: 10, Y1: 10, X2: 200, Y2: 300}
	fake := &fakeBoxDetector{
		persons: []geometry.Box{person},
		faceErr: errors.New("face model crashed"),
	}
	c := NewComposite(fake, nil)

	subjects, err := c.DetectSubjects(context.Background(), testFrame(640, 360))
	if err != nil {
		t.Fatalf("face failure must not fail the detection: %v", err)
	}
	if len(subjects) != 1 {
		t.Fatalf("expected 1 subject, got %d", len(subjects))
	}
	if subjects[0].FaceBox != nil {
		t.Error("expected no face box after face pass failure")
	}
}

func TestCompositeClampsOutOfFramePersons(t *testing.T) {
	fake := &fakeBoxDetector{
		persons: []geometry.Box{
			{X1: -40, Y1: -20, X2: 100, Y2: 200}, // spills top-left
			{X1: 630, Y1: 0, X2: 700, Y2: 100},   // spills right
			{X1: 700, Y1: 0, X2: 800, Y2: 100},   // fully outside
		},
	}
	c := NewComposite(fake, nil)

	subjects, err := c.DetectSubjects(context.Background(), testFrame(640, 360))
	if err != nil {
		t.Fatalf("DetectSubjects failed: %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("expected 2 subjects (fully outside box dropped), got %d", len(subjects))
	}
	if subjects[0].PersonBox != (geometry.Box{X1: 0, Y1: 0, X2: 100, Y2: 200}) {
		t.Errorf("first person not clamped: %+v", subjects[0].PersonBox)
	}
	if subjects[1].PersonBox != (geometry.Box{X1: 630, Y1: 0, X2: 640, Y2: 100}) {
		t.Errorf("second person not clamped: %+v", subjects[1].PersonBox)
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := encodeJPEG(testFrame(32, 32))
	if err != nil {
		t.Fatalf("encodeJPEG failed: %v", err)
	}
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("output is not a JPEG (missing SOI marker)")
	}
}
