package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/autocrop/vertical-api/internal/job"
	"github.com/autocrop/vertical-api/internal/storage"
)

// JobService is the slice of the job service the HTTP layer uses.
// It is implemented by job.Service.
type JobService interface {
	Submit(ctx context.Context, input job.SubmitInput) (*job.Job, error)
	Get(ctx context.Context, id string) (*job.Job, error)
	List(ctx context.Context) ([]*job.Job, error)
	Cancel(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Container formats ffmpeg demuxes reliably. Anything else is rejected
// before the upload is stored.
var allowedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   JobService
	store     storage.Storage
	validator *validator.Validate
	logger    *slog.Logger
	maxUpload int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes caps the request body size accepted by CreateJob.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service JobService, store storage.Storage, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		store:     store,
		validator: validator.New(),
		logger:    logger,
		maxUpload: 512 << 20, // 512 MiB default
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /api/v1/jobs requests. The body is multipart
// form data with the source video in the "video" field and an optional
// "webhook_url" field.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", tooLarge.Limit), "UPLOAD_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, `multipart field "video" is required`, "MISSING_VIDEO")
		return
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		writeError(w, http.StatusBadRequest,
			"unsupported file type, expected mp4, mov, avi, mkv or webm", "INVALID_FILE_TYPE")
		return
	}

	req := CreateJobRequest{WebhookURL: r.FormValue("webhook_url")}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "webhook_url must be a valid URL", "VALIDATION_ERROR")
		return
	}

	sourcePath, err := h.store.SaveUpload(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Error("failed to store upload",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store upload", "UPLOAD_FAILED")
		return
	}

	created, err := h.service.Submit(r.Context(), job.SubmitInput{
		SourcePath: sourcePath,
		WebhookURL: req.WebhookURL,
	})
	if err != nil {
		if removeErr := h.store.Remove(r.Context(), sourcePath); removeErr != nil {
			h.logger.Warn("failed to remove rejected upload",
				slog.String("path", sourcePath),
				slog.String("error", removeErr.Error()),
			)
		}
		if errors.Is(err, job.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "job queue is full, retry later", "QUEUE_FULL")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	h.logger.Info("job accepted",
		slog.String("job_id", created.ID),
		slog.String("filename", header.Filename),
		slog.Int64("bytes", header.Size),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		JobID:   created.ID,
		Status:  string(created.Status),
		Message: "video queued for processing",
	})
}

// GetJob handles GET /api/v1/jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(found))
}

// ListJobs handles GET /api/v1/jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// DownloadJob handles GET /api/v1/jobs/{id}/download requests. It
// streams the finished video, or redirects to the presigned URL when
// the output was published to S3.
func (h *Handlers) DownloadJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	if found.Status != job.StatusCompleted {
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("job not complete, current status: %s", found.Status), "JOB_NOT_READY")
		return
	}

	if found.OutputURL != "" {
		http.Redirect(w, r, found.OutputURL, http.StatusTemporaryRedirect)
		return
	}
	if found.OutputPath == "" {
		writeError(w, http.StatusNotFound, "output file not found", "OUTPUT_NOT_FOUND")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "vertical_"+jobID+".mp4"))
	http.ServeFile(w, r, found.OutputPath)
}

// CancelJob handles POST /api/v1/jobs/{id}/cancel requests. Only
// queued jobs can be cancelled; a job a worker already picked up runs
// to completion.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.Cancel(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		case errors.Is(err, job.ErrJobRunning):
			writeError(w, http.StatusConflict, "job is already running", "JOB_RUNNING")
		case errors.Is(err, job.ErrJobTerminal):
			writeError(w, http.StatusConflict, "job already finished", "JOB_FINISHED")
		default:
			h.logger.Error("failed to cancel job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel job", "JOB_CANCEL_FAILED")
		}
		return
	}

	found, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		h.logger.Error("failed to get cancelled job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(found))
}

// DeleteJob handles DELETE /api/v1/jobs/{id} requests. The record and
// any stored artifacts are removed. Running jobs cannot be deleted.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.Delete(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		case errors.Is(err, job.ErrJobRunning):
			writeError(w, http.StatusConflict, "job is still running", "JOB_RUNNING")
		default:
			h.logger.Error("failed to delete job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to delete job", "JOB_DELETE_FAILED")
		}
		return
	}

	h.logger.Info("job deleted", slog.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
