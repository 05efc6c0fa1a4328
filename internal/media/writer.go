package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
)

// frameWriter feeds raw RGBA frames to an ffmpeg encoder over stdin.
type frameWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	args   []string

	width  int
	height int
	closed bool
}

// OpenWriter starts an h264 encoder accepting raw RGBA frames of the given
// size on stdin. Writes block while the encoder is busy; there is no
// buffering beyond the OS pipe, so the producer runs at most one frame
// ahead of the encoder.
func (f *FFmpeg) OpenWriter(ctx context.Context, path string, width, height int, frameRate float64) (FrameWriter, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, width, height)
	}
	if frameRate <= 0 {
		return nil, fmt.Errorf("%w: got %f", ErrInvalidFrameRate, frameRate)
	}

	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.FormatFloat(frameRate, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-an",
		path,
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open encoder stdin: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start encoder: %w", err)
	}

	return &frameWriter{
		cmd:    cmd,
		stdin:  stdin,
		stderr: &stderr,
		args:   args,
		width:  width,
		height: height,
	}, nil
}

// Write serializes one frame to the encoder in submission order.
func (w *frameWriter) Write(frame *image.NRGBA) error {
	b := frame.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize, b.Dx(), b.Dy(), w.width, w.height)
	}

	if err := writeRawRGBA(w.stdin, frame); err != nil {
		// A broken pipe means the encoder died; reap it and surface stderr.
		_ = w.stdin.Close()
		w.closed = true
		if werr := w.cmd.Wait(); werr != nil {
			return &FFmpegError{Args: w.args, Stderr: w.stderr.String(), Err: werr}
		}
		return &FFmpegError{Args: w.args, Stderr: w.stderr.String(), Err: err}
	}
	return nil
}

// Close signals end-of-stream and waits for the encoder to exit.
func (w *frameWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_ = w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return &FFmpegError{Args: w.args, Stderr: w.stderr.String(), Err: err}
	}
	return nil
}

// writeRawRGBA writes the pixel data of img as packed RGBA rows.
// The fast path writes the backing slice in one call when the image is
// tightly packed; sub-images fall back to row-wise writes.
func writeRawRGBA(dst io.Writer, img *image.NRGBA) error {
	b := img.Bounds()
	rowLen := b.Dx() * 4
	if b.Min.X == 0 && b.Min.Y == 0 && img.Stride == rowLen {
		_, err := dst.Write(img.Pix[:rowLen*b.Dy()])
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := dst.Write(img.Pix[off : off+rowLen]); err != nil {
			return err
		}
	}
	return nil
}
