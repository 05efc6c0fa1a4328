package reframe

// Pipeline stages, in execution order.
const (
	StageSegment = 1
	StageAnalyze = 2
	StageFrames  = 3
	StageAudio   = 4
	StageMux     = 5
)

// ProgressEvent is a fire-and-forget notification from the pipeline.
// Events may be dropped by the consumer without affecting the run.
type ProgressEvent struct {
	Stage   int     `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// ProgressSink receives pipeline progress. The pipeline never waits on
// the sink, so implementations must return promptly.
type ProgressSink func(ProgressEvent)
