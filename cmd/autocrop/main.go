// Package main provides the autocrop command, a one-shot CLI that
// reframes a horizontal video to 9:16 without going through the API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/autocrop/vertical-api/internal/detect"
	"github.com/autocrop/vertical-api/internal/media"
	"github.com/autocrop/vertical-api/internal/reframe"
	"github.com/autocrop/vertical-api/internal/scenes"
)

var (
	outPath       = flag.String("out", "", "output path (default: <input>_vertical.mp4)")
	planPath      = flag.String("plan", "", "write the per-scene analysis plan to this YAML file")
	planOnly      = flag.Bool("plan-only", false, "analyze scenes and print the plan without rendering")
	threshold     = flag.Float64("threshold", 0.4, "scene cut threshold (0..1)")
	detectorKind  = flag.String("detector", "none", "subject detector: none, http or ollama")
	detectorURL   = flag.String("detector-url", "", "detector endpoint (http backend) or daemon URL (ollama backend)")
	ollamaModel   = flag.String("ollama-model", "qwen2.5vl:7b", "vision model for the ollama backend")
	minConfidence = flag.Float64("min-confidence", 0.25, "drop detections below this confidence")
	ffmpegPath    = flag.String("ffmpeg", "ffmpeg", "ffmpeg binary")
	ffprobePath   = flag.String("ffprobe", "ffprobe", "ffprobe binary")
	quiet         = flag.Bool("quiet", false, "suppress progress output")
	verbose       = flag.Bool("v", false, "debug logging")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] input.mp4\n\nFlags:\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(input string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	engine := media.NewFFmpeg(*ffmpegPath, *ffprobePath)
	segmenter := scenes.NewFFmpegSegmenter(engine, *ffmpegPath, *threshold, logger)

	detector, err := buildDetector(logger)
	if err != nil {
		return err
	}

	pipeline := reframe.NewPipeline(engine, segmenter, detector, logger)

	if *planOnly {
		plan, err := pipeline.Analyze(ctx, input)
		if err != nil {
			return err
		}
		printPlan(os.Stdout, plan)
		if *planPath != "" {
			if err := reframe.WritePlan(*planPath, plan); err != nil {
				return err
			}
			fmt.Printf("plan written to %s\n", *planPath)
		}
		return nil
	}

	dest := *outPath
	if dest == "" {
		dest = strings.TrimSuffix(input, filepath.Ext(input)) + "_vertical.mp4"
	}

	printer := &progressPrinter{out: os.Stderr}
	var sink reframe.ProgressSink
	if !*quiet {
		sink = printer.sink
	}

	result, err := pipeline.Process(ctx, input, dest, sink)
	printer.done()
	if err != nil {
		return err
	}

	if *planPath != "" {
		if err := reframe.WritePlan(*planPath, result.Plan); err != nil {
			return err
		}
	}

	fmt.Printf("%s: %d scenes, %d frames, %dx%d, %s\n",
		result.DestinationPath, result.SceneCount, result.FrameCount,
		result.OutputWidth, result.OutputHeight, result.Elapsed.Round(time.Millisecond))
	return nil
}

func buildDetector(logger *slog.Logger) (detect.Detector, error) {
	switch *detectorKind {
	case "none":
		return nil, nil
	case "http":
		if *detectorURL == "" {
			return nil, errors.New("-detector-url is required with -detector=http")
		}
		opts := []detect.HTTPOption{detect.WithMinConfidence(*minConfidence)}
		// Secrets stay off argv.
		if key := os.Getenv("DETECTOR_API_KEY"); key != "" {
			opts = append(opts, detect.WithAPIKey(key))
		}
		boxes, err := detect.NewHTTPDetector(*detectorURL, opts...)
		if err != nil {
			return nil, err
		}
		return detect.NewComposite(boxes, logger), nil
	case "ollama":
		url := *detectorURL
		if url == "" {
			url = "http://127.0.0.1:11434"
		}
		boxes, err := detect.NewOllamaDetector(url, *ollamaModel, detect.WithOllamaMinConfidence(*minConfidence))
		if err != nil {
			return nil, err
		}
		return detect.NewComposite(boxes, logger), nil
	default:
		return nil, fmt.Errorf("unknown detector %q", *detectorKind)
	}
}

func printPlan(out io.Writer, plan *reframe.Plan) {
	fmt.Fprintf(out, "%s: %dx%d @ %.4g fps, ~%d frames, audio=%t\n",
		plan.Source, plan.Width, plan.Height, plan.FrameRate, plan.TotalFrames, plan.HasAudio)
	fmt.Fprintf(out, "output: %dx%d\n", plan.Output.OutputWidth, plan.Output.OutputHeight)
	for i, sc := range plan.Scenes {
		fmt.Fprintf(out, "scene %2d  frames %5d..%-5d  %-9s", i+1, sc.Scene.StartFrame, sc.Scene.EndFrame, sc.Strategy)
		if sc.CropBox != nil {
			fmt.Fprintf(out, "  crop %dx%d at x=%d", sc.CropBox.Width(), sc.CropBox.Height(), sc.CropBox.X1)
		}
		fmt.Fprintln(out)
	}
}

// progressPrinter renders pipeline events as a single rewriting line per
// stage. Percent jumps backwards between stages, so each stage gets its
// own line.
type progressPrinter struct {
	out     io.Writer
	stage   int
	started bool
}

func (p *progressPrinter) sink(ev reframe.ProgressEvent) {
	if ev.Stage != p.stage {
		if p.started {
			fmt.Fprintln(p.out)
		}
		p.stage = ev.Stage
	}
	p.started = true
	fmt.Fprintf(p.out, "\r[%d/5] %-8s %5.1f%%  %-40s", ev.Stage, stageName(ev.Stage), ev.Percent, ev.Message)
}

func (p *progressPrinter) done() {
	if p.started {
		fmt.Fprintln(p.out)
	}
}

func stageName(stage int) string {
	switch stage {
	case reframe.StageSegment:
		return "segment"
	case reframe.StageAnalyze:
		return "analyze"
	case reframe.StageFrames:
		return "render"
	case reframe.StageAudio:
		return "audio"
	case reframe.StageMux:
		return "mux"
	default:
		return "stage"
	}
}
