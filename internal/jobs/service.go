// Package jobs runs the lifecycle of backend computations: creating jobs,
// handing them to workers and accepting their results exactly once.
package jobs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fuzzjobs/internal/artifact"
	"github.com/kiranshivaraju/fuzzjobs/internal/cache"
	"github.com/kiranshivaraju/fuzzjobs/internal/store"
	"github.com/kiranshivaraju/fuzzjobs/internal/telemetry"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
	"github.com/kiranshivaraju/fuzzjobs/pkg/resultxml"
)

var (
	ErrInvalidKind  = errors.New("invalid job kind")
	ErrNotifyFailed = errors.New("worker notification failed")
	ErrAlreadyDone  = errors.New("job already done")
	ErrResultParse  = errors.New("result payload could not be ingested")
)

// WorkerPathPrefix is where workers fetch input and post results.
const WorkerPathPrefix = "/api/v1/back/jobs/"

// Dispatcher delivers a job's start notification. A failed delivery stays in
// the outbox and is retried later.
type Dispatcher interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

// Config holds the settings the service needs at runtime.
type Config struct {
	// CallbackBaseURL is the externally reachable base URL workers call back to.
	CallbackBaseURL string
	// Debug keeps jobs pending when their results cannot be ingested.
	Debug     bool
	StatusTTL time.Duration
	// DispatchGrace delays the first outbox retry so the relay does not race
	// the immediate dispatch done by Create.
	DispatchGrace time.Duration
}

// Upload is what a worker posts when it finishes.
type Upload struct {
	ExitCode int
	FileName string
	FileData []byte
}

type Service struct {
	store      store.Store
	cache      cache.Cache
	dispatcher Dispatcher
	artifacts  artifact.Store
	alerter    Alerter
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates the job service. artifacts may be nil, in which case
// rendered documents are kept in the database.
func NewService(st store.Store, c cache.Cache, d Dispatcher, artifacts artifact.Store, alerter Alerter, cfg Config, logger *slog.Logger) *Service {
	if cfg.DispatchGrace <= 0 {
		cfg.DispatchGrace = 30 * time.Second
	}
	return &Service{
		store:      st,
		cache:      c,
		dispatcher: d,
		artifacts:  artifacts,
		alerter:    alerter,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// NewSecret returns an unguessable token addressing a job.
func NewSecret() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// CallbackURL is the worker-facing URL for the job with the given secret.
func (s *Service) CallbackURL(secret string) string {
	return strings.TrimRight(s.cfg.CallbackBaseURL, "/") + WorkerPathPrefix + secret
}

// Create starts a new job for the graph's current revision. The job and its
// start notification are stored together; if the immediate dispatch fails the
// job is returned along with ErrNotifyFailed and the notification is retried.
func (s *Service) Create(ctx context.Context, graphID int64, kind models.JobKind) (*models.Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	graph, err := s.store.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	job := &models.Job{
		ID:            uuid.New(),
		GraphID:       &graph.ID,
		GraphModified: graph.Modified,
		Kind:          kind,
		Secret:        NewSecret(),
		CreatedAt:     now,
	}
	n := &models.Notification{
		ID:            uuid.New(),
		JobID:         job.ID,
		Kind:          kind,
		CallbackURL:   s.CallbackURL(job.Secret),
		NextAttemptAt: now.Add(s.cfg.DispatchGrace),
		CreatedAt:     now,
	}

	if err := s.store.CreateJob(ctx, job, n); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	telemetry.JobsCreated.WithLabelValues(string(kind)).Inc()
	s.logger.Info("job created", "job_id", job.ID, "graph_id", graphID, "kind", kind)

	if err := s.dispatcher.Deliver(ctx, n); err != nil {
		return job, fmt.Errorf("%w: %w", ErrNotifyFailed, err)
	}
	return job, nil
}

// FindExisting returns a successful job of this kind computed on the graph's
// current revision, or store.ErrNotFound.
func (s *Service) FindExisting(ctx context.Context, graphID int64, kind models.JobKind) (*models.Job, error) {
	graph, err := s.store.GetGraph(ctx, graphID)
	if err != nil {
		return nil, err
	}
	return s.store.FindDoneJob(ctx, graphID, kind, graph.Modified)
}

// CreateOrReuse returns an up-to-date finished job when one exists and
// creates a new one otherwise. reused reports which happened.
func (s *Service) CreateOrReuse(ctx context.Context, graphID int64, kind models.JobKind) (job *models.Job, reused bool, err error) {
	if !kind.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	job, err = s.FindExisting(ctx, graphID, kind)
	if err == nil {
		telemetry.JobsReused.WithLabelValues(string(kind)).Inc()
		s.logger.Info("reusing job", "job_id", job.ID, "graph_id", graphID, "kind", kind)
		return job, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	job, err = s.Create(ctx, graphID, kind)
	return job, false, err
}

// AcceptResult completes the job addressed by secret with a worker's upload.
// A job completes at most once; later uploads return ErrAlreadyDone and
// change nothing.
func (s *Service) AcceptResult(ctx context.Context, secret string, up Upload) (*models.Job, error) {
	job, err := s.store.CompleteJob(ctx, secret, up.ExitCode, s.ingestFunc(up))
	switch {
	case err == nil:
	case errors.Is(err, store.ErrJobDone):
		return s.duplicate(job)
	case errors.Is(err, ErrResultParse):
		return s.parseFailed(ctx, secret, job, err)
	default:
		return nil, err
	}

	s.finish(ctx, job)
	if up.ExitCode != 0 {
		s.alerter.Alert(ctx, Alert{
			Reason:   AlertWorkerFailed,
			JobID:    job.ID,
			Kind:     job.Kind,
			ExitCode: up.ExitCode,
			Detail:   "worker reported a non-zero exit code",
		})
	}
	return job, nil
}

func (s *Service) duplicate(job *models.Job) (*models.Job, error) {
	telemetry.DuplicateUploads.Inc()
	if job != nil {
		s.logger.Info("discarding upload for finished job", "job_id", job.ID, "kind", job.Kind)
	}
	return job, ErrAlreadyDone
}

func (s *Service) parseFailed(ctx context.Context, secret string, job *models.Job, cause error) (*models.Job, error) {
	telemetry.ResultParseFailures.Inc()
	if s.cfg.Debug {
		s.logger.Error("result ingestion failed, job left pending", "job_id", job.ID, "error", cause)
		return job, cause
	}

	s.alerter.Alert(ctx, Alert{
		Reason:   AlertParseFailure,
		JobID:    job.ID,
		Kind:     job.Kind,
		ExitCode: models.ParseFailureExitCode,
		Detail:   cause.Error(),
	})

	forced, err := s.store.ForceExitCode(ctx, secret, models.ParseFailureExitCode)
	if errors.Is(err, store.ErrJobDone) {
		return s.duplicate(job)
	}
	if err != nil {
		return nil, fmt.Errorf("force exit code: %w", err)
	}
	s.finish(ctx, forced)
	return forced, nil
}

func (s *Service) finish(ctx context.Context, job *models.Job) {
	status := job.Status()
	telemetry.JobsCompleted.WithLabelValues(string(job.Kind), string(status)).Inc()
	s.logger.Info("job completed", "job_id", job.ID, "kind", job.Kind, "exit_code", *job.ExitCode)

	if err := s.cache.SetJobStatus(ctx, job.ID, status, s.cfg.StatusTTL); err != nil {
		s.logger.Warn("failed to cache job status", "job_id", job.ID, "error", err)
	}
}

func (s *Service) ingestFunc(up Upload) store.IngestFunc {
	return func(ctx context.Context, w store.ResultWriter, job *models.Job) error {
		if job.GraphID == nil || len(up.FileData) == 0 {
			return nil
		}
		if job.Kind.IsRendering() {
			return s.ingestArtifact(ctx, w, job, up.FileData)
		}

		doc, err := resultxml.Parse(resultxml.SchemaBackendResults, up.FileData)
		if err != nil {
			return parseError(err)
		}
		return ingestDocument(ctx, w, job, doc, s.now().UTC())
	}
}

func (s *Service) ingestArtifact(ctx context.Context, w store.ResultWriter, job *models.Job, data []byte) error {
	res := &models.Result{
		ID:        uuid.New(),
		GraphID:   *job.GraphID,
		JobID:     job.ID,
		Kind:      models.ResultKind(job.Kind),
		CreatedAt: s.now().UTC(),
	}

	if s.artifacts != nil {
		key := artifact.Key(*job.GraphID, job.ID, string(job.Kind))
		if err := s.artifacts.Put(ctx, key, data, job.Kind.ArtifactContentType()); err != nil {
			return fmt.Errorf("upload artifact: %w", err)
		}
		res.ArtifactKey = &key
	} else {
		res.BinaryValue = data
	}
	return w.CreateResult(ctx, res)
}

// Status returns the frontend status of a job. Terminal statuses are cached.
func (s *Service) Status(ctx context.Context, jobID uuid.UUID) (models.JobStatus, error) {
	status, ok, err := s.cache.GetJobStatus(ctx, jobID)
	if err != nil {
		s.logger.Warn("job status cache read failed", "job_id", jobID, "error", err)
	}
	if ok {
		return status, nil
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	status = job.Status()
	if status != models.JobStatusPending {
		if err := s.cache.SetJobStatus(ctx, jobID, status, s.cfg.StatusTTL); err != nil {
			s.logger.Warn("failed to cache job status", "job_id", jobID, "error", err)
		}
	}
	return status, nil
}

// InputData returns what the worker for the job needs to compute: the graph
// XML for analyses and the TikZ source for renderings.
func (s *Service) InputData(ctx context.Context, secret string) (data []byte, contentType string, err error) {
	job, err := s.store.GetJobBySecret(ctx, secret)
	if err != nil {
		return nil, "", err
	}
	if job.GraphID == nil {
		return nil, "", store.ErrNotFound
	}

	format := store.DocumentXML
	if job.Kind.IsRendering() {
		format = store.DocumentTikZ
	}
	data, err = s.store.GetGraphDocument(ctx, *job.GraphID, format)
	if err != nil {
		return nil, "", err
	}
	return data, job.Kind.InputContentType(), nil
}

// Artifact returns the newest successful rendering of the graph.
func (s *Service) Artifact(ctx context.Context, graphID int64, kind models.JobKind) (data []byte, contentType string, err error) {
	if !kind.IsRendering() {
		return nil, "", fmt.Errorf("%w: %q is not a rendering", ErrInvalidKind, kind)
	}

	job, err := s.store.LatestSuccessfulJob(ctx, graphID, kind)
	if err != nil {
		return nil, "", err
	}
	res, err := s.store.GetArtifactResult(ctx, job.ID)
	if err != nil {
		return nil, "", err
	}

	switch {
	case res.ArtifactKey != nil && s.artifacts != nil:
		data, err = s.artifacts.Get(ctx, *res.ArtifactKey)
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, "", store.ErrNotFound
		}
		if err != nil {
			return nil, "", err
		}
	case len(res.BinaryValue) > 0:
		data = res.BinaryValue
	default:
		return nil, "", store.ErrNotFound
	}
	return data, kind.ArtifactContentType(), nil
}
