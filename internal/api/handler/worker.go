package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/fuzzjobs/internal/api/response"
	"github.com/kiranshivaraju/fuzzjobs/internal/jobs"
	"github.com/kiranshivaraju/fuzzjobs/internal/store"
)

// maxUploadBytes bounds worker uploads. Rendered PDFs are the largest payloads.
const maxUploadBytes = 64 << 20

type workerUpload struct {
	ExitCode *int   `json:"exit_code" validate:"required"`
	FileName string `json:"file_name"`
	FileData string `json:"file_data" validate:"omitempty,base64"`
}

// NewWorkerInputHandler returns an http.HandlerFunc for GET /api/v1/back/jobs/{secret}.
// The secret is the only credential a worker has.
func NewWorkerInputHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, contentType, err := svc.InputData(r.Context(), chi.URLParam(r, "secret"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			slog.ErrorContext(r.Context(), "worker input failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.Blob(w, contentType, data)
	}
}

// NewWorkerResultHandler returns an http.HandlerFunc for PATCH /api/v1/back/jobs/{secret}.
// Repeated uploads for a finished job are acknowledged without effect.
func NewWorkerResultHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workerUpload
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if err := validate.Struct(req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"exit_code is required and file_data must be base64", nil)
			return
		}

		up := jobs.Upload{ExitCode: *req.ExitCode, FileName: req.FileName}
		if req.FileName != "" {
			data, err := base64.StdEncoding.DecodeString(req.FileData)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file_data must be base64", nil)
				return
			}
			up.FileData = data
		}

		job, err := svc.AcceptResult(r.Context(), chi.URLParam(r, "secret"), up)
		switch {
		case err == nil, errors.Is(err, jobs.ErrAlreadyDone):
			response.NoContentAccepted(w)
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
		default:
			attrs := []any{"error", err}
			if job != nil {
				attrs = append(attrs, "job_id", job.ID)
			}
			slog.ErrorContext(r.Context(), "accept result failed", attrs...)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
		}
	}
}
