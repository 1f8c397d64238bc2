package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/fuzzjobs/internal/api/middleware"
	"github.com/kiranshivaraju/fuzzjobs/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler  http.Handler
	MetricsHandler http.Handler

	CreateJobHandler    http.HandlerFunc
	JobStatusHandler    http.HandlerFunc
	ResultsHandler      http.HandlerFunc
	DownloadHandler     http.HandlerFunc
	WorkerInputHandler  http.HandlerFunc
	WorkerResultHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Method(http.MethodGet, "/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", orNotImplemented(deps.MetricsHandler))

	// Frontend routes
	r.With(rateLimited(deps.RateLimit)).
		Post("/api/v1/graphs/{graphID}/jobs", orNotImplementedFunc(deps.CreateJobHandler))
	r.Get("/api/v1/graphs/{graphID}/download", orNotImplementedFunc(deps.DownloadHandler))
	r.Get("/api/v1/jobs/{jobID}", orNotImplementedFunc(deps.JobStatusHandler))
	r.Get("/api/v1/jobs/{jobID}/results", orNotImplementedFunc(deps.ResultsHandler))

	// Worker routes, addressed by job secret
	r.Get("/api/v1/back/jobs/{secret}", orNotImplementedFunc(deps.WorkerInputHandler))
	r.Patch("/api/v1/back/jobs/{secret}", orNotImplementedFunc(deps.WorkerResultHandler))

	return r
}

func rateLimited(rl *mw.RateLimit) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Limit
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.Handler) http.Handler {
	if h != nil {
		return h
	}
	return http.HandlerFunc(notImplemented)
}

func orNotImplementedFunc(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return notImplemented
}

func notImplemented(w http.ResponseWriter, _ *http.Request) {
	response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
}
