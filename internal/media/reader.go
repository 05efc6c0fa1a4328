package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
)

// frameReader streams decoded RGBA frames from an ffmpeg process.
type frameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	args   []string

	width  int
	height int
	eof    bool
	closed bool
}

// OpenReader starts a sequential decode of the whole video as raw RGBA.
// Frames must be consumed in order via Next until io.EOF, then Close
// reaps the decoder process.
func (f *FFmpeg) OpenReader(ctx context.Context, path string, info VideoInfo) (FrameReader, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, info.Width, info.Height)
	}

	args := []string{
		"-v", "error",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-an",
		"pipe:1",
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open decoder stdout: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start decoder: %w", err)
	}

	return &frameReader{
		cmd:    cmd,
		stdout: stdout,
		stderr: &stderr,
		args:   args,
		width:  info.Width,
		height: info.Height,
	}, nil
}

// Next returns the next decoded frame, or io.EOF at end of stream.
func (r *frameReader) Next() (*image.NRGBA, error) {
	if r.eof {
		return nil, io.EOF
	}

	img := image.NewNRGBA(image.Rect(0, 0, r.width, r.height))
	n, err := io.ReadFull(r.stdout, img.Pix)
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			r.eof = true
			return nil, io.EOF
		}
		// A partial frame means the decoder died mid-stream.
		return nil, &FFmpegError{Args: r.args, Stderr: r.stderr.String(), Err: err}
	}
	return img, nil
}

// Close reaps the decoder process. After a clean EOF this returns the
// decoder's exit status; when aborting mid-stream the caller is expected
// to discard the error.
func (r *frameReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	_ = r.stdout.Close()
	if err := r.cmd.Wait(); err != nil && r.eof {
		return &FFmpegError{Args: r.args, Stderr: r.stderr.String(), Err: err}
	}
	return nil
}
