package jobs

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fuzzjobs/internal/telemetry"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

// Alert reasons.
const (
	AlertWorkerFailed = "worker_failed"
	AlertParseFailure = "parse_failure"
)

// Alert describes a job outcome maintainers should look at.
type Alert struct {
	Reason   string
	JobID    uuid.UUID
	Kind     models.JobKind
	ExitCode int
	Detail   string
}

// Alerter reports job failures to maintainers.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// LogAlerter writes alerts to the structured log and counts them.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (l *LogAlerter) Alert(ctx context.Context, a Alert) {
	telemetry.Alerts.WithLabelValues(a.Reason).Inc()
	l.logger.ErrorContext(ctx, "job alert",
		"reason", a.Reason,
		"job_id", a.JobID,
		"kind", a.Kind,
		"exit_code", a.ExitCode,
		"detail", a.Detail,
	)
}
