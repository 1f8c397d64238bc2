package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fuzzjobs/internal/api/response"
	"github.com/kiranshivaraju/fuzzjobs/internal/jobs"
	"github.com/kiranshivaraju/fuzzjobs/internal/store"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

type createJobRequest struct {
	Kind string `json:"kind" validate:"required,oneof=mincut topevent simulation eps pdf"`
}

type jobResponse struct {
	ID        uuid.UUID      `json:"id"`
	GraphID   *int64         `json:"graph_id"`
	Kind      models.JobKind `json:"kind"`
	Status    string         `json:"status"`
	CreatedAt string         `json:"created_at"`
}

func newJobResponse(job *models.Job) jobResponse {
	return jobResponse{
		ID:        job.ID,
		GraphID:   job.GraphID,
		Kind:      job.Kind,
		Status:    string(job.Status()),
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/graphs/{graphID}/jobs.
// A finished job computed on the current graph revision is returned with 200
// instead of starting a new one.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		graphID, ok := graphIDParam(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "graphID must be a positive integer", nil)
			return
		}

		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if err := validate.Struct(req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"kind must be one of mincut, topevent, simulation, eps, pdf", nil)
			return
		}

		job, reused, err := svc.CreateOrReuse(r.Context(), graphID, models.JobKind(req.Kind))
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "GRAPH_NOT_FOUND", "Graph not found", nil)
			case errors.Is(err, jobs.ErrInvalidKind):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			default:
				slog.ErrorContext(r.Context(), "create job failed", "graph_id", graphID, "kind", req.Kind, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		if reused {
			response.JSON(w, newJobResponse(job))
			return
		}
		response.Created(w, "/api/v1/jobs/"+job.ID.String(), newJobResponse(job))
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// Failed jobs answer 500 with a generic message; details stay in the logs.
func NewJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		status, err := svc.Status(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			slog.ErrorContext(r.Context(), "job status failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		body := map[string]string{"job_id": jobID.String(), "status": string(status)}
		switch status {
		case models.JobStatusPending:
			response.Accepted(w, body)
		case models.JobStatusSuccess:
			response.JSON(w, body)
		default:
			response.Error(w, http.StatusInternalServerError, "JOB_FAILED",
				"The job could not be completed", nil)
		}
	}
}
