package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/fuzzjobs/internal/api/response"
	"github.com/kiranshivaraju/fuzzjobs/internal/store"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

// NewDownloadHandler returns an http.HandlerFunc for GET /api/v1/graphs/{graphID}/download.
func NewDownloadHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		graphID, ok := graphIDParam(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "graphID must be a positive integer", nil)
			return
		}

		kind := models.JobKind(r.URL.Query().Get("format"))
		if !kind.IsRendering() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "format must be pdf or eps", nil)
			return
		}

		data, contentType, err := svc.Artifact(r.Context(), graphID, kind)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "ARTIFACT_NOT_FOUND",
					"No rendering of this graph is available", nil)
				return
			}
			slog.ErrorContext(r.Context(), "download failed", "graph_id", graphID, "kind", kind, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=graph_%d.%s", graphID, kind))
		response.Blob(w, contentType, data)
	}
}
