package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrJobDone is returned when a completion targets a job that already has an exit code.
var ErrJobDone = errors.New("job already done")

// ErrInvalidSort is returned for an ordering on a field not in SortableResultFields.
var ErrInvalidSort = errors.New("invalid sort field")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetGraph(ctx context.Context, id int64) (*models.Graph, error)
	GetGraphDocument(ctx context.Context, graphID int64, format DocumentFormat) ([]byte, error)

	CreateJob(ctx context.Context, job *models.Job, notification *models.Notification) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetJobBySecret(ctx context.Context, secret string) (*models.Job, error)
	FindDoneJob(ctx context.Context, graphID int64, kind models.JobKind, graphModified time.Time) (*models.Job, error)
	LatestSuccessfulJob(ctx context.Context, graphID int64, kind models.JobKind) (*models.Job, error)
	CompleteJob(ctx context.Context, secret string, exitCode int, ingest IngestFunc) (*models.Job, error)
	ForceExitCode(ctx context.Context, secret string, exitCode int) (*models.Job, error)

	ListResults(ctx context.Context, filter ResultFilter) ([]*models.Result, int, error)
	GetArtifactResult(ctx context.Context, jobID uuid.UUID) (*models.Result, error)

	ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error)
	MarkNotificationSent(ctx context.Context, id uuid.UUID) error
	MarkNotificationFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt time.Time) error
}

// ResultWriter is the set of writes available while a job's completion is in
// flight. Everything written through it becomes visible together with the
// job's exit code.
type ResultWriter interface {
	DeleteConfigurations(ctx context.Context, graphID int64) error
	CreateConfiguration(ctx context.Context, cfg *models.Configuration) error
	ResolveNode(ctx context.Context, graphID int64, nodeID int64) (*models.Node, error)
	CreateNodeConfiguration(ctx context.Context, nc *models.NodeConfiguration) error
	CreateResult(ctx context.Context, r *models.Result) error
}

// IngestFunc materializes a job's payload. Returning an error aborts the
// completion and nothing it wrote is kept.
type IngestFunc func(ctx context.Context, w ResultWriter, job *models.Job) error

// DocumentFormat selects which serialized form of a graph to read.
type DocumentFormat string

const (
	DocumentXML  DocumentFormat = "xml"
	DocumentTikZ DocumentFormat = "tikz"
)

// SortableResultFields maps the orderings accepted by ListResults to columns.
var SortableResultFields = map[string]string{
	"minimum":     "r.minimum",
	"maximum":     "r.maximum",
	"peak":        "r.peak",
	"reliability": "r.reliability",
	"mttf":        "r.mttf",
	"rounds":      "r.rounds",
	"failures":    "r.failures",
	"ratio":       "r.ratio",
	"costs":       "c.costs",
}

// ResultFilter selects one page of a job's results. OrderBy is a field from
// SortableResultFields, optionally prefixed with "-" for descending order.
type ResultFilter struct {
	JobID   uuid.UUID
	Offset  int
	Limit   int
	OrderBy string
}
