package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stephane1109/mediaextract/internal/domain/model"
	"github.com/stephane1109/mediaextract/internal/domain/repository"
	"github.com/stephane1109/mediaextract/internal/usecase"
)

// Request/Response types

type TimelapseRequest struct {
	TargetFPS     int  `json:"target_fps"`
	MotionOverlay bool `json:"motion_overlay"`
}

type CreateJobRequest struct {
	SourceURL      string            `json:"source_url,omitempty"`
	UploadFileName string            `json:"upload_file_name,omitempty"`
	Quality        string            `json:"quality"`
	Interval       *model.Interval   `json:"interval,omitempty"`
	Kinds          []string          `json:"kinds,omitempty"`
	Timelapse      *TimelapseRequest `json:"timelapse,omitempty"`
}

type CreateJobResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	UploadURL string `json:"upload_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

type JobResponse struct {
	ID         string            `json:"id"`
	SourceType string            `json:"source_type"`
	SourceURL  string            `json:"source_url,omitempty"`
	Quality    string            `json:"quality"`
	Interval   *model.Interval   `json:"interval,omitempty"`
	Kinds      []string          `json:"kinds,omitempty"`
	Timelapse  *TimelapseRequest `json:"timelapse,omitempty"`
	BaseID     string            `json:"base_id,omitempty"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
}

type BundleURLResponse struct {
	DownloadURL string `json:"download_url"`
}

// JobHandler handles media job HTTP requests.
type JobHandler struct {
	svc usecase.JobService
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(svc usecase.JobService) *JobHandler {
	return &JobHandler{svc: svc}
}

// Create handles POST /v1/jobs
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if req.SourceURL == "" && req.UploadFileName == "" {
		Error(w, http.StatusBadRequest, "missing_source", "Either source_url or upload_file_name is required")
		return
	}
	if req.SourceURL != "" && req.UploadFileName != "" {
		Error(w, http.StatusBadRequest, "ambiguous_source", "source_url and upload_file_name are mutually exclusive")
		return
	}

	kinds, err := model.ParseKindSet(req.Kinds)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_kinds", "Unknown artifact kind requested")
		return
	}

	var interval *model.Interval
	if req.Interval != nil {
		interval, err = model.NewInterval(req.Interval.Start, req.Interval.End)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid_interval", "Interval end must be greater than start")
			return
		}
	}

	var tl *model.TimelapseSpec
	if req.Timelapse != nil {
		if req.Timelapse.TargetFPS <= 0 {
			Error(w, http.StatusBadRequest, "invalid_timelapse", "Timelapse target FPS must be positive")
			return
		}
		tl = &model.TimelapseSpec{
			TargetFPS:     req.Timelapse.TargetFPS,
			MotionOverlay: req.Timelapse.MotionOverlay,
		}
	}

	output, err := h.svc.CreateJob(r.Context(), usecase.CreateJobInput{
		SourceURL:      req.SourceURL,
		UploadFileName: req.UploadFileName,
		Quality:        model.Quality(req.Quality),
		Interval:       interval,
		Kinds:          kinds,
		Timelapse:      tl,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusCreated, CreateJobResponse{
		ID:        output.Job.ID.String(),
		Status:    output.Job.Status.String(),
		UploadURL: output.UploadURL,
		CreatedAt: output.Job.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// TriggerProcess handles POST /v1/jobs/{id}/process
func (h *JobHandler) TriggerProcess(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_job_id", "Job ID must be a valid UUID")
		return
	}

	if err := h.svc.TriggerProcess(r.Context(), jobID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Get handles GET /v1/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_job_id", "Job ID must be a valid UUID")
		return
	}

	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, toJobResponse(job))
}

// GetBundleURL handles GET /v1/jobs/{id}/bundle
func (h *JobHandler) GetBundleURL(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_job_id", "Job ID must be a valid UUID")
		return
	}

	url, err := h.svc.GetBundleDownloadURL(r.Context(), jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, BundleURLResponse{DownloadURL: url})
}

func (h *JobHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		Error(w, http.StatusNotFound, "job_not_found", "Job not found")
	case errors.Is(err, model.ErrMissingSource):
		Error(w, http.StatusBadRequest, "missing_source", "Source URL or upload filename is required")
	case errors.Is(err, model.ErrInvalidQuality):
		Error(w, http.StatusBadRequest, "invalid_quality", "Quality must be compressed or hd")
	case errors.Is(err, model.ErrInvalidInterval):
		Error(w, http.StatusBadRequest, "invalid_interval", "Interval end must be greater than start")
	case errors.Is(err, model.ErrNoWorkRequested):
		Error(w, http.StatusBadRequest, "no_work_requested", "At least one output kind or a timelapse is required")
	case errors.Is(err, usecase.ErrJobAlreadyCompleted):
		Error(w, http.StatusConflict, "job_already_completed", "Job processing has already completed")
	case errors.Is(err, usecase.ErrBundleNotReady):
		Error(w, http.StatusConflict, "bundle_not_ready", "Job bundle is not ready for download")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toJobResponse(j *model.MediaJob) JobResponse {
	resp := JobResponse{
		ID:         j.ID.String(),
		SourceType: string(j.SourceType),
		SourceURL:  j.SourceURL,
		Quality:    string(j.Quality),
		Interval:   j.Interval,
		Kinds:      j.Kinds.Names(),
		BaseID:     j.BaseID,
		Status:     j.Status.String(),
		Error:      j.Error,
		CreatedAt:  j.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:  j.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if j.Timelapse != nil {
		resp.Timelapse = &TimelapseRequest{
			TargetFPS:     j.Timelapse.TargetFPS,
			MotionOverlay: j.Timelapse.MotionOverlay,
		}
	}
	return resp
}
