// Package job manages the lifecycle of video reframing jobs: the Job
// aggregate with its state machine, persistence adapters, and the worker
// service that drives the reframing pipeline.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for an available worker.
	StatusInQueue Status = "in_queue"
	// StatusRunning indicates the job is being processed by a worker.
	StatusRunning Status = "running"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the job was cancelled before a worker
	// picked it up.
	StatusCancelled Status = "cancelled"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Progress is a snapshot of pipeline progress: which of the five stages
// is running and how far along it is.
type Progress struct {
	Stage   int     `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

// Job represents one video reframing request from submission to its
// terminal state.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string `json:"id"`
	// Status is the current job state.
	Status Status `json:"status"`
	// Progress is the most recent pipeline progress snapshot.
	Progress Progress `json:"progress"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`

	// SourcePath is the uploaded horizontal source video.
	SourcePath string `json:"source_path"`
	// OutputPath is the local path of the finished vertical video.
	OutputPath string `json:"output_path,omitempty"`
	// OutputURL is the download URL once the artifact is published.
	OutputURL string `json:"output_url,omitempty"`
	// WebhookURL, when set, receives a notification on completion.
	WebhookURL string `json:"webhook_url,omitempty"`

	// SceneCount is the number of scenes the segmenter found.
	SceneCount int `json:"scene_count,omitempty"`
	// FrameCount is the number of frames actually encoded.
	FrameCount int `json:"frame_count,omitempty"`
	// OutputWidth and OutputHeight are the final video resolution.
	OutputWidth  int `json:"output_width,omitempty"`
	OutputHeight int `json:"output_height,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// New creates a new Job with a generated ID and initial in_queue status.
func New() *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewWithID creates a new Job with the specified ID and initial in_queue
// status. Useful for testing or when the ID is generated externally.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from in_queue to running.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to the completed state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to the failed state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel transitions the job to the cancelled state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress records a pipeline progress snapshot, clamping the
// percentage into [0, 100].
func (j *Job) UpdateProgress(p Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if p.Percent < 0 {
		p.Percent = 0
	}
	if p.Percent > 100 {
		p.Percent = 100
	}
	j.Progress = p
	j.UpdatedAt = time.Now()
}

// SetResult records what the pipeline produced.
func (j *Job) SetResult(sceneCount, frameCount, outputWidth, outputHeight int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.SceneCount = sceneCount
	j.FrameCount = frameCount
	j.OutputWidth = outputWidth
	j.OutputHeight = outputHeight
	j.UpdatedAt = time.Now()
}

// SetOutput sets the output video path and, when published, its URL.
func (j *Job) SetOutput(videoPath, videoURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = videoPath
	j.OutputURL = videoURL
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:           j.ID,
		Status:       j.Status,
		Progress:     j.Progress,
		Error:        j.Error,
		SourcePath:   j.SourcePath,
		OutputPath:   j.OutputPath,
		OutputURL:    j.OutputURL,
		WebhookURL:   j.WebhookURL,
		SceneCount:   j.SceneCount,
		FrameCount:   j.FrameCount,
		OutputWidth:  j.OutputWidth,
		OutputHeight: j.OutputHeight,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}
