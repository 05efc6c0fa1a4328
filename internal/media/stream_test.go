package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"testing"
)

func TestReaderStreamsAllFrames(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	f := NewFFmpeg("", "")
	ctx := context.Background()

	path := filepath.Join(tmpDir, "stream.mp4")
	createTestVideo(t, path, 64, 48, 1.0, "red")

	info, err := f.Probe(ctx, path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	reader, err := f.OpenReader(ctx, path, info)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}

	frames := 0
	for {
		img, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed at frame %d: %v", frames, err)
		}
		if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
			t.Fatalf("frame %d has wrong size %dx%d", frames, b.Dx(), b.Dy())
		}
		frames++
	}

	if err := reader.Close(); err != nil {
		t.Errorf("Close after EOF failed: %v", err)
	}

	// 1 second at 25 fps; allow codec edge slack.
	if frames < 20 || frames > 30 {
		t.Errorf("expected ~25 frames, got %d", frames)
	}

	// Next after EOF keeps returning io.EOF.
	if _, err := reader.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after end of stream, got %v", err)
	}
}

func TestReaderAbortWithoutReading(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	f := NewFFmpeg("", "")
	ctx := context.Background()

	path := filepath.Join(tmpDir, "abort.mp4")
	createTestVideo(t, path, 64, 48, 1.0, "blue")

	info, err := f.Probe(ctx, path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	reader, err := f.OpenReader(ctx, path, info)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}

	// Closing before EOF is a deliberate abort: the decoder is reaped and
	// its exit status is not treated as an error.
	if err := reader.Close(); err != nil {
		t.Errorf("abort Close returned error: %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}

func TestWriterEncodesFrames(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	f := NewFFmpeg("", "")
	ctx := context.Background()

	out := filepath.Join(tmpDir, "encoded.mp4")
	const width, height, frames = 90, 160, 25

	writer, err := f.OpenWriter(ctx, out, width, height, 25)
	if err != nil {
		t.Fatalf("OpenWriter failed: %v", err)
	}

	for i := 0; i < frames; i++ {
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		// Brightness ramp so the stream is not a single static frame.
		shade := uint8(i * 10)
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p] = shade
			img.Pix[p+1] = 64
			img.Pix[p+2] = 128
			img.Pix[p+3] = 255
		}
		if err := writer.Write(img); err != nil {
			t.Fatalf("Write frame %d failed: %v", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := f.Probe(ctx, out)
	if err != nil {
		t.Fatalf("Probe of encoded output failed: %v", err)
	}
	if info.Width != width || info.Height != height {
		t.Errorf("expected %dx%d output, got %dx%d", width, height, info.Width, info.Height)
	}
	if info.TotalFrames < frames-2 || info.TotalFrames > frames+2 {
		t.Errorf("expected ~%d frames, got %d", frames, info.TotalFrames)
	}
	if info.HasAudio {
		t.Error("encoded output should have no audio stream")
	}
}

func TestWriterRejectsWrongFrameSize(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	f := NewFFmpeg("", "")
	ctx := context.Background()

	writer, err := f.OpenWriter(ctx, filepath.Join(tmpDir, "out.mp4"), 64, 64, 25)
	if err != nil {
		t.Fatalf("OpenWriter failed: %v", err)
	}
	defer func() { _ = writer.Close() }()

	err = writer.Write(image.NewNRGBA(image.Rect(0, 0, 10, 10)))
	if !errors.Is(err, ErrFrameSize) {
		t.Errorf("expected ErrFrameSize, got %v", err)
	}
}

func TestWriterSurfacesEncoderFailure(t *testing.T) {
	skipIfNoFFmpeg(t)

	f := NewFFmpeg("", "")
	ctx := context.Background()

	// Destination directory does not exist, so the encoder exits shortly
	// after startup. Depending on timing either a Write or the final Close
	// observes the death; both must surface an FFmpegError with stderr.
	writer, err := f.OpenWriter(ctx, "/nonexistent-dir/out.mp4", 64, 64, 25)
	if err != nil {
		t.Fatalf("OpenWriter failed: %v", err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	var failure error
	for i := 0; i < 200; i++ {
		if err := writer.Write(img); err != nil {
			failure = err
			break
		}
	}
	if failure == nil {
		failure = writer.Close()
	}

	var ffErr *FFmpegError
	if !errors.As(failure, &ffErr) {
		t.Fatalf("expected FFmpegError, got %v", failure)
	}
	if ffErr.Stderr == "" {
		t.Error("expected encoder stderr to be captured")
	}

	// Close after a surfaced failure is a no-op.
	if err := writer.Close(); err != nil {
		t.Errorf("Close after failure returned error: %v", err)
	}
}

func TestWriteRawRGBASubImage(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			base.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}

	sub, ok := base.SubImage(image.Rect(2, 2, 6, 6)).(*image.NRGBA)
	if !ok {
		t.Fatal("SubImage did not return *image.NRGBA")
	}

	var buf writerRecorder
	if err := writeRawRGBA(&buf, sub); err != nil {
		t.Fatalf("writeRawRGBA failed: %v", err)
	}

	if len(buf.data) != 4*4*4 {
		t.Fatalf("expected %d bytes, got %d", 4*4*4, len(buf.data))
	}
	// First pixel of the sub-image is (2,2).
	if buf.data[0] != 2 || buf.data[1] != 2 {
		t.Errorf("unexpected first pixel bytes: %v", buf.data[:4])
	}
}

type writerRecorder struct {
	data []byte
}

func (w *writerRecorder) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}
