package notify

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fuzzjobs/internal/telemetry"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

// Outbox is the part of the store the relay reads and updates.
type Outbox interface {
	ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error)
	MarkNotificationSent(ctx context.Context, id uuid.UUID) error
	MarkNotificationFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt time.Time) error
}

// RelayConfig controls outbox polling and retry pacing.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	// MaxAttempts is the attempt count after which failures are logged as
	// errors. Delivery is still retried at BackoffMax.
	MaxAttempts int
}

// Relay delivers pending start notifications until each one succeeds.
type Relay struct {
	outbox   Outbox
	notifier Notifier
	cfg      RelayConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewRelay(outbox Outbox, notifier Notifier, cfg RelayConfig, logger *slog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Minute
	}
	return &Relay{
		outbox:   outbox,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Deliver sends one notification and records the outcome in the outbox.
// The returned error is the notifier's; a failed delivery is already
// scheduled for retry when Deliver returns.
func (r *Relay) Deliver(ctx context.Context, n *models.Notification) error {
	sendErr := r.notifier.StartJob(ctx, string(n.Kind), n.CallbackURL)
	if sendErr == nil {
		telemetry.NotificationsSent.Inc()
		if err := r.outbox.MarkNotificationSent(ctx, n.ID); err != nil {
			r.logger.Error("failed to mark notification sent", "notification_id", n.ID, "error", err)
		}
		return nil
	}

	telemetry.NotificationFailures.Inc()
	attempt := n.Attempts + 1
	next := r.now().Add(backoffWithJitter(r.cfg.BackoffBase, r.cfg.BackoffMax, attempt))

	level := slog.LevelWarn
	if r.cfg.MaxAttempts > 0 && attempt >= r.cfg.MaxAttempts {
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, "worker notification failed",
		"notification_id", n.ID,
		"job_id", n.JobID,
		"kind", n.Kind,
		"attempt", attempt,
		"next_attempt_at", next,
		"error", sendErr,
	)

	if err := r.outbox.MarkNotificationFailed(ctx, n.ID, sendErr.Error(), next); err != nil {
		r.logger.Error("failed to reschedule notification", "notification_id", n.ID, "error", err)
	}
	return sendErr
}

// RunOnce delivers every notification that is due now and returns how many
// were sent successfully.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	due, err := r.outbox.ListDueNotifications(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, n := range due {
		if ctx.Err() != nil {
			break
		}
		if r.Deliver(ctx, n) == nil {
			sent++
		}
	}
	return sent, nil
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("notification relay started", "poll_interval", r.cfg.PollInterval)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("notification relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox poll failed", "error", err)
			}
		}
	}
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	wait := max
	if exp := float64(base) * math.Pow(2, float64(attempt-1)); exp < float64(max) {
		wait = time.Duration(exp)
	}
	jitter := time.Duration(rand.Int63n(int64(wait/2) + 1))
	return wait/2 + jitter
}
