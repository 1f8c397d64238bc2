package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesCounters(t *testing.T) {
	h := Handler()
	// A second call must not panic on duplicate registration.
	h = Handler()

	JobsCreated.WithLabelValues("mincut").Inc()
	Alerts.WithLabelValues("nonzero_exit").Inc()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `fuzzjobs_jobs_created_total{kind="mincut"}`)
	assert.Contains(t, body, `fuzzjobs_alerts_total{reason="nonzero_exit"}`)
	assert.Contains(t, body, "fuzzjobs_duplicate_uploads_total")
}
