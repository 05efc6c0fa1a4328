// Package media drives ffmpeg and ffprobe for video decode, encode,
// probing and remuxing. All heavy lifting happens in external processes;
// frames cross the boundary as raw RGBA bytes.
package media

import (
	"context"
	"image"
)

// VideoInfo describes a video source as reported by ffprobe.
type VideoInfo struct {
	Width  int
	Height int
	// FrameRate is the real base frame rate of the video stream.
	FrameRate float64
	// TotalFrames is the frame count reported by the container, or an
	// estimate (duration * rate) when the container does not carry one.
	TotalFrames int
	// Duration in seconds, from the container format section.
	Duration float64
	// HasAudio reports whether the source carries at least one audio stream.
	HasAudio bool
}

// FrameReader yields decoded frames in presentation order.
type FrameReader interface {
	// Next returns the next frame, or io.EOF when the stream ends.
	Next() (*image.NRGBA, error)
	Close() error
}

// FrameWriter consumes frames in order and encodes them into a video file.
// Write blocks while the encoder is busy, which throttles the producer to
// at most one in-flight frame.
type FrameWriter interface {
	Write(frame *image.NRGBA) error
	// Close signals end-of-stream and waits for the encoder to exit.
	// A non-zero exit surfaces as *FFmpegError with stderr attached.
	Close() error
}

// Engine is the set of media operations the reframing pipeline needs.
// Implementations should use ffmpeg or similar tools.
type Engine interface {
	// Probe inspects a video file and returns its stream parameters.
	Probe(ctx context.Context, path string) (VideoInfo, error)

	// GrabFrame decodes the single frame at frameIndex.
	GrabFrame(ctx context.Context, path string, info VideoInfo, frameIndex int) (*image.NRGBA, error)

	// OpenReader starts a sequential decode of the whole video.
	OpenReader(ctx context.Context, path string, info VideoInfo) (FrameReader, error)

	// OpenWriter starts an encoder accepting raw frames of the given size.
	OpenWriter(ctx context.Context, path string, width, height int, frameRate float64) (FrameWriter, error)

	// ExtractAudio copies the audio track of src into dst without re-encoding.
	ExtractAudio(ctx context.Context, src, dst string) error

	// Mux combines a silent video file and an audio file into dst,
	// copying both streams.
	Mux(ctx context.Context, videoPath, audioPath, dst string) error
}
