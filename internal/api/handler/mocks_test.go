package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/fuzzjobs/internal/jobs"
	"github.com/kiranshivaraju/fuzzjobs/internal/store"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
	"github.com/stretchr/testify/require"
)

// --- mock JobService ---

type mockService struct {
	createFn   func(ctx context.Context, graphID int64, kind models.JobKind) (*models.Job, bool, error)
	statusFn   func(ctx context.Context, jobID uuid.UUID) (models.JobStatus, error)
	inputFn    func(ctx context.Context, secret string) ([]byte, string, error)
	acceptFn   func(ctx context.Context, secret string, up jobs.Upload) (*models.Job, error)
	artifactFn func(ctx context.Context, graphID int64, kind models.JobKind) ([]byte, string, error)
}

func (m *mockService) CreateOrReuse(ctx context.Context, graphID int64, kind models.JobKind) (*models.Job, bool, error) {
	return m.createFn(ctx, graphID, kind)
}

func (m *mockService) Status(ctx context.Context, jobID uuid.UUID) (models.JobStatus, error) {
	return m.statusFn(ctx, jobID)
}

func (m *mockService) InputData(ctx context.Context, secret string) ([]byte, string, error) {
	return m.inputFn(ctx, secret)
}

func (m *mockService) AcceptResult(ctx context.Context, secret string, up jobs.Upload) (*models.Job, error) {
	return m.acceptFn(ctx, secret, up)
}

func (m *mockService) Artifact(ctx context.Context, graphID int64, kind models.JobKind) ([]byte, string, error) {
	return m.artifactFn(ctx, graphID, kind)
}

// --- mock ResultLister ---

type mockLister struct {
	filter  store.ResultFilter
	results []*models.Result
	total   int
	err     error
}

func (m *mockLister) ListResults(_ context.Context, filter store.ResultFilter) ([]*models.Result, int, error) {
	m.filter = filter
	return m.results, m.total, m.err
}

// --- helpers ---

// serve routes a single request through chi so URL params resolve.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, body any) *http.Request {
	var rd io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }
