package scenes

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/autocrop/vertical-api/internal/media"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// createTwoShotVideo renders one second of red followed by one second of
// blue, a guaranteed hard cut for the scene filter.
func createTwoShotVideo(t *testing.T, path string) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "color=c=red:s=128x72:d=1:r=25",
		"-f", "lavfi",
		"-i", "color=c=blue:s=128x72:d=1:r=25",
		"-filter_complex", "[0:v][1:v]concat=n=2:v=1:a=0",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create two-shot video: %v\noutput: %s", err, output)
	}
}

func TestFFmpegSegmenterSingleShot(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "single.mp4")

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "color=c=green:s=128x72:d=2:r=25",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create video: %v\noutput: %s", err, output)
	}

	engine := media.NewFFmpeg("", "")
	seg := NewFFmpegSegmenter(engine, "", 0, nil)

	plan, err := seg.DetectScenes(context.Background(), path)
	if err != nil {
		t.Fatalf("DetectScenes failed: %v", err)
	}

	if len(plan.Scenes) != 1 {
		t.Fatalf("expected 1 scene for a static video, got %d: %+v", len(plan.Scenes), plan.Scenes)
	}
	if plan.Width != 128 || plan.Height != 72 {
		t.Errorf("plan resolution = %dx%d, want 128x72", plan.Width, plan.Height)
	}
	if err := ValidateCover(plan.Scenes, plan.TotalFrames); err != nil {
		t.Errorf("scene cover invalid: %v", err)
	}
}

func TestFFmpegSegmenterDetectsCut(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "twoshot.mp4")
	createTwoShotVideo(t, path)

	engine := media.NewFFmpeg("", "")
	seg := NewFFmpegSegmenter(engine, "", 0, nil)

	plan, err := seg.DetectScenes(context.Background(), path)
	if err != nil {
		t.Fatalf("DetectScenes failed: %v", err)
	}

	if len(plan.Scenes) != 2 {
		t.Fatalf("expected 2 scenes across a hard cut, got %d: %+v", len(plan.Scenes), plan.Scenes)
	}

	// The cut sits at the 1 second mark, frame 25 at 25 fps.
	boundary := plan.Scenes[1].StartFrame
	if boundary < 23 || boundary > 27 {
		t.Errorf("cut boundary at frame %d, want ~25", boundary)
	}
	if err := ValidateCover(plan.Scenes, plan.TotalFrames); err != nil {
		t.Errorf("scene cover invalid: %v", err)
	}
}

func TestFFmpegSegmenterMissingFile(t *testing.T) {
	skipIfNoFFmpeg(t)

	engine := media.NewFFmpeg("", "")
	seg := NewFFmpegSegmenter(engine, "", 0, nil)

	if _, err := seg.DetectScenes(context.Background(), "/nonexistent/video.mp4"); err == nil {
		t.Error("expected error for missing file")
	}
}
