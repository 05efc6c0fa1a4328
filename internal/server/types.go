// Package server provides the HTTP surface of the reframing API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/autocrop/vertical-api/internal/job"
)

// CreateJobRequest carries the validated form fields of an upload request.
// The video itself arrives as a multipart file and is checked separately.
type CreateJobRequest struct {
	// WebhookURL is an optional callback fired when the job finishes.
	WebhookURL string `json:"webhook_url" validate:"omitempty,url"`
}

// CreateJobResponse is the HTTP response after accepting an upload.
type CreateJobResponse struct {
	// JobID is the unique identifier for the created job.
	JobID string `json:"job_id"`
	// Status is the initial job status.
	Status string `json:"status"`
	// Message is a human-readable note about what happens next.
	Message string `json:"message"`
}

// ProgressInfo mirrors the pipeline progress recorded on a job.
type ProgressInfo struct {
	// Stage is the pipeline stage currently running (1-5).
	Stage int `json:"stage"`
	// Percent is the completion of the current stage (0-100).
	Percent float64 `json:"percent"`
	// Message describes what the stage is doing.
	Message string `json:"message,omitempty"`
}

// JobResult carries the output metadata of a completed job.
type JobResult struct {
	// OutputURL is the presigned download URL when S3 publishing is active.
	OutputURL string `json:"output_url,omitempty"`
	// SceneCount is the number of scenes in the source.
	SceneCount int `json:"scene_count"`
	// FrameCount is the number of frames written to the output.
	FrameCount int `json:"frame_count"`
	// OutputWidth is the width of the vertical output in pixels.
	OutputWidth int `json:"output_width"`
	// OutputHeight is the height of the vertical output in pixels.
	OutputHeight int `json:"output_height"`
}

// JobResponse is the HTTP response for job status queries.
type JobResponse struct {
	// JobID is the unique identifier for the job.
	JobID string `json:"job_id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Progress is present once processing has started.
	Progress *ProgressInfo `json:"progress,omitempty"`
	// Result is present once the job completed.
	Result *JobResult `json:"result,omitempty"`
	// Error contains the failure message if the job failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the job was submitted.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the job last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// JobListResponse wraps the collection returned by the list endpoint.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

// toJobResponse maps the domain aggregate onto the status DTO.
func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		JobID:     j.ID,
		Status:    string(j.Status),
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.Progress.Stage > 0 {
		resp.Progress = &ProgressInfo{
			Stage:   j.Progress.Stage,
			Percent: j.Progress.Percent,
			Message: j.Progress.Message,
		}
	}
	if j.Status == job.StatusCompleted {
		resp.Result = &JobResult{
			OutputURL:    j.OutputURL,
			SceneCount:   j.SceneCount,
			FrameCount:   j.FrameCount,
			OutputWidth:  j.OutputWidth,
			OutputHeight: j.OutputHeight,
		}
	}
	return resp
}
