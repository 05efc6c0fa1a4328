package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when the provided dimensions are not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrInvalidFrameRate is returned when the frame rate is not positive.
	ErrInvalidFrameRate = errors.New("invalid frame rate: must be positive")
	// ErrNoVideoStream is returned when a probed file has no video stream.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrFrameSize is returned when a frame does not match the encoder's configured size.
	ErrFrameSize = errors.New("frame dimensions do not match encoder configuration")
)

// FFmpeg implements Engine using the ffmpeg and ffprobe CLIs.
type FFmpeg struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// Compile-time interface check.
var _ Engine = (*FFmpeg)(nil)

// NewFFmpeg creates a new FFmpeg engine.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (f *FFmpeg) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// probeResult mirrors the JSON layout of `ffprobe -print_format json`.
type probeResult struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects a video file with ffprobe and returns its stream parameters.
func (f *FFmpeg) Probe(ctx context.Context, path string) (VideoInfo, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return VideoInfo{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return VideoInfo{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var probed probeResult
	if err := json.Unmarshal(stdout.Bytes(), &probed); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := VideoInfo{}
	if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	found := false
	for _, s := range probed.Streams {
		switch s.CodecType {
		case "video":
			if found {
				continue
			}
			found = true
			info.Width = s.Width
			info.Height = s.Height
			info.FrameRate = parseFrameRate(s.RFrameRate)
			if info.FrameRate == 0 {
				info.FrameRate = parseFrameRate(s.AvgFrameRate)
			}
			if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
				info.TotalFrames = n
			}
		case "audio":
			info.HasAudio = true
		}
	}

	if !found || info.Width <= 0 || info.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("%w: %s", ErrNoVideoStream, path)
	}
	if info.TotalFrames == 0 && info.Duration > 0 && info.FrameRate > 0 {
		// Container carries no frame count; estimate from duration.
		info.TotalFrames = int(math.Round(info.Duration * info.FrameRate))
	}

	return info, nil
}

// parseFrameRate converts ffprobe's "num/den" rational notation to a float.
// Returns 0 for malformed or zero-denominator input.
func parseFrameRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	if !ok {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return 0
		}
		return v
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// GrabFrame decodes the single frame at frameIndex as raw RGBA.
// The seek is timestamp-based: frameIndex is mapped to its presentation
// time through the stream frame rate.
func (f *FFmpeg) GrabFrame(ctx context.Context, path string, info VideoInfo, frameIndex int) (*image.NRGBA, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, info.Width, info.Height)
	}
	if info.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: got %f", ErrInvalidFrameRate, info.FrameRate)
	}

	// Seek to the middle of the frame's display interval so rounding in
	// either direction still lands on the wanted frame.
	ts := (float64(frameIndex) + 0.5) / info.FrameRate
	args := []string{
		"-ss", strconv.FormatFloat(ts, 'f', 6, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, &FFmpegError{Args: args, Stderr: stderr.String(), Err: err}
	}

	want := info.Width * info.Height * 4
	if stdout.Len() < want {
		return nil, fmt.Errorf("short frame read: got %d bytes, want %d: %w", stdout.Len(), want, io.ErrUnexpectedEOF)
	}

	img := image.NewNRGBA(image.Rect(0, 0, info.Width, info.Height))
	copy(img.Pix, stdout.Bytes()[:want])
	return img, nil
}

// ExtractAudio copies the audio track of src into dst verbatim (no re-encoding).
func (f *FFmpeg) ExtractAudio(ctx context.Context, src, dst string) error {
	args := []string{
		"-y",
		"-i", src,
		"-vn",
		"-acodec", "copy",
		dst,
	}
	return f.runFFmpeg(ctx, args)
}

// Mux combines a silent video file and an audio file into dst.
// Both streams are copied without re-encoding.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, dst string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "copy",
		"-movflags", "+faststart",
		dst,
	}
	return f.runFFmpeg(ctx, args)
}
