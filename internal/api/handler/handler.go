// Package handler holds the HTTP handlers for the jobs API. Handlers depend
// on narrow interfaces so they can be tested without a database.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/fuzzjobs/internal/jobs"
	"github.com/kiranshivaraju/fuzzjobs/internal/store"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

var validate = validator.New()

// JobService is the part of jobs.Service the handlers use.
type JobService interface {
	CreateOrReuse(ctx context.Context, graphID int64, kind models.JobKind) (*models.Job, bool, error)
	Status(ctx context.Context, jobID uuid.UUID) (models.JobStatus, error)
	InputData(ctx context.Context, secret string) ([]byte, string, error)
	AcceptResult(ctx context.Context, secret string, up jobs.Upload) (*models.Job, error)
	Artifact(ctx context.Context, graphID int64, kind models.JobKind) ([]byte, string, error)
}

// ResultLister pages through a job's results.
type ResultLister interface {
	ListResults(ctx context.Context, filter store.ResultFilter) ([]*models.Result, int, error)
}

func graphIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "graphID"), 10, 64)
	return id, err == nil && id > 0
}

func jobIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	return id, err == nil
}
