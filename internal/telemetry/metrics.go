package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsCreated          = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "fuzzjobs_jobs_created_total", Help: "Jobs created, by kind"}, []string{"kind"})
	JobsReused           = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "fuzzjobs_jobs_reused_total", Help: "Job requests answered by an existing result, by kind"}, []string{"kind"})
	JobsCompleted        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "fuzzjobs_jobs_completed_total", Help: "Jobs marked done, by kind and outcome"}, []string{"kind", "outcome"})
	DuplicateUploads     = prometheus.NewCounter(prometheus.CounterOpts{Name: "fuzzjobs_duplicate_uploads_total", Help: "Worker uploads discarded because the job was already done"})
	ResultParseFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "fuzzjobs_result_parse_failures_total", Help: "Worker payloads that could not be ingested"})
	NotificationsSent    = prometheus.NewCounter(prometheus.CounterOpts{Name: "fuzzjobs_notifications_sent_total", Help: "Worker start notifications delivered"})
	NotificationFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "fuzzjobs_notification_failures_total", Help: "Worker start notifications that failed and will be retried"})
	RateLimitRejects     = prometheus.NewCounter(prometheus.CounterOpts{Name: "fuzzjobs_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
	Alerts               = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "fuzzjobs_alerts_total", Help: "Maintainer alerts raised, by reason"}, []string{"reason"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsCreated,
			JobsReused,
			JobsCompleted,
			DuplicateUploads,
			ResultParseFailures,
			NotificationsSent,
			NotificationFailures,
			RateLimitRejects,
			Alerts,
		)
	})
	return promhttp.Handler()
}
