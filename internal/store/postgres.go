package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Graphs ---

func (s *PostgresStore) GetGraph(ctx context.Context, id int64) (*models.Graph, error) {
	var g models.Graph
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, name, modified FROM graphs WHERE id = $1`, id,
	).Scan(&g.ID, &g.Kind, &g.Name, &g.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get graph: %w", err)
	}
	return &g, nil
}

func (s *PostgresStore) GetGraphDocument(ctx context.Context, graphID int64, format DocumentFormat) ([]byte, error) {
	var column string
	switch format {
	case DocumentXML:
		column = "xml_document"
	case DocumentTikZ:
		column = "tikz_document"
	default:
		return nil, fmt.Errorf("unknown document format %q", format)
	}

	var doc *string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM graphs WHERE id = $1`, column), graphID,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && doc == nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get graph document: %w", err)
	}
	return []byte(*doc), nil
}

// --- Jobs ---

const jobColumns = `id, graph_id, graph_modified, kind, secret, exit_code, created_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.GraphID, &j.GraphModified, &j.Kind, &j.Secret, &j.ExitCode, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJob inserts the job and its start notification in one transaction.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job, n *models.Notification) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op after commit

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, graph_id, graph_modified, kind, secret, exit_code, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.GraphID, job.GraphModified, job.Kind, job.Secret, job.ExitCode, job.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}

	if n != nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO notifications (id, job_id, kind, callback_url, attempts, next_attempt_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			n.ID, n.JobID, n.Kind, n.CallbackURL, n.Attempts, n.NextAttemptAt, n.CreatedAt)
		if err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetJobBySecret(ctx context.Context, secret string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE secret = $1`, secret))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by secret: %w", err)
	}
	return j, nil
}

// FindDoneJob returns the newest successful job computed on exactly this
// revision of the graph whose results are still stored. Jobs whose
// configurations were replaced by a later job are skipped.
func (s *PostgresStore) FindDoneJob(ctx context.Context, graphID int64, kind models.JobKind, graphModified time.Time) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE graph_id = $1 AND kind = $2 AND graph_modified = $3 AND exit_code = 0
		   AND superseded_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`, graphID, kind, graphModified))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find done job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) LatestSuccessfulJob(ctx context.Context, graphID int64, kind models.JobKind) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE graph_id = $1 AND kind = $2 AND exit_code = 0
		 ORDER BY created_at DESC LIMIT 1`, graphID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest successful job: %w", err)
	}
	return j, nil
}

// CompleteJob locks the job row, runs ingest and sets the exit code, all in
// one transaction. The exit code update is conditional on the job still being
// pending, so of two racing completions only one commits.
func (s *PostgresStore) CompleteJob(ctx context.Context, secret string, exitCode int, ingest IngestFunc) (*models.Job, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op after commit

	job, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE secret = $1 FOR UPDATE`, secret))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}
	if job.Done() {
		return job, ErrJobDone
	}

	if ingest != nil {
		if err := ingest(ctx, &txWriter{tx: tx}, job); err != nil {
			return job, fmt.Errorf("ingest results: %w", err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET exit_code = $2 WHERE id = $1 AND exit_code IS NULL`, job.ID, exitCode)
	if err != nil {
		return job, fmt.Errorf("set exit code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job, ErrJobDone
	}

	if err := tx.Commit(ctx); err != nil {
		return job, fmt.Errorf("commit completion: %w", err)
	}
	job.ExitCode = &exitCode
	return job, nil
}

// ForceExitCode marks a pending job done without writing results.
func (s *PostgresStore) ForceExitCode(ctx context.Context, secret string, exitCode int) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET exit_code = $2 WHERE secret = $1 AND exit_code IS NULL
		 RETURNING `+jobColumns, secret, exitCode))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetJobBySecret(ctx, secret); getErr != nil {
			return nil, getErr
		}
		return nil, ErrJobDone
	}
	if err != nil {
		return nil, fmt.Errorf("force exit code: %w", err)
	}
	return j, nil
}

// --- Results ---

const resultColumns = `r.id, r.graph_id, r.job_id, r.configuration_id, r.kind, r.minimum, r.maximum, r.peak,
	r.reliability, r.mttf, r.rounds, r.failures, r.ratio, r.points, r.issues, r.created_at`

// orderClause validates a ResultFilter ordering against SortableResultFields.
func orderClause(orderBy string) (string, error) {
	if orderBy == "" {
		return "r.seq", nil
	}
	field, dir := orderBy, "ASC"
	if strings.HasPrefix(orderBy, "-") {
		field, dir = orderBy[1:], "DESC"
	}
	column, ok := SortableResultFields[field]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSort, field)
	}
	return fmt.Sprintf("%s %s NULLS LAST, r.seq", column, dir), nil
}

// ListResults returns one page of a job's results, graph issue rows excluded,
// together with the total row count.
func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]*models.Result, int, error) {
	order, err := orderClause(filter.OrderBy)
	if err != nil {
		return nil, 0, err
	}

	where := `r.job_id = $1 AND r.kind <> $2`
	args := []any{filter.JobID, models.ResultKindGraphIssues}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM results r WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	dataQuery := fmt.Sprintf(
		`SELECT %s, c.costs
		 FROM results r LEFT JOIN configurations c ON c.id = r.configuration_id
		 WHERE %s ORDER BY %s LIMIT $3 OFFSET $4`,
		resultColumns, where, order)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []*models.Result
	byConfig := make(map[uuid.UUID]*models.Configuration)
	for rows.Next() {
		var (
			r      models.Result
			points []byte
			issues []byte
			costs  *int
		)
		if err := rows.Scan(&r.ID, &r.GraphID, &r.JobID, &r.ConfigurationID, &r.Kind,
			&r.Minimum, &r.Maximum, &r.Peak, &r.Reliability, &r.MTTF, &r.Rounds, &r.Failures,
			&r.Ratio, &points, &issues, &r.CreatedAt, &costs); err != nil {
			return nil, 0, fmt.Errorf("scan result: %w", err)
		}
		if err := decodeResultJSON(&r, points, issues); err != nil {
			return nil, 0, err
		}
		if r.ConfigurationID != nil && costs != nil {
			cfg, ok := byConfig[*r.ConfigurationID]
			if !ok {
				cfg = &models.Configuration{
					ID:      *r.ConfigurationID,
					GraphID: r.GraphID,
					Costs:   *costs,
					Choices: map[int64]models.ChoiceSetting{},
				}
				byConfig[cfg.ID] = cfg
			}
			r.Configuration = cfg
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}

	if err := s.loadChoices(ctx, byConfig); err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// loadChoices fills the choice dictionaries, keyed by node client id.
func (s *PostgresStore) loadChoices(ctx context.Context, configs map[uuid.UUID]*models.Configuration) error {
	if len(configs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT nc.configuration_id, n.client_id, nc.setting
		 FROM node_configurations nc JOIN nodes n ON n.id = nc.node_id
		 WHERE nc.configuration_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("list node configurations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cfgID    uuid.UUID
			clientID int64
			raw      []byte
		)
		if err := rows.Scan(&cfgID, &clientID, &raw); err != nil {
			return fmt.Errorf("scan node configuration: %w", err)
		}
		var setting models.ChoiceSetting
		if err := json.Unmarshal(raw, &setting); err != nil {
			return fmt.Errorf("decode choice setting: %w", err)
		}
		configs[cfgID].Choices[clientID] = setting
	}
	return rows.Err()
}

// GetArtifactResult returns the rendering output stored for a job.
func (s *PostgresStore) GetArtifactResult(ctx context.Context, jobID uuid.UUID) (*models.Result, error) {
	var r models.Result
	err := s.pool.QueryRow(ctx,
		`SELECT id, graph_id, job_id, kind, binary_value, artifact_key, created_at
		 FROM results WHERE job_id = $1 AND kind IN ($2, $3)
		 ORDER BY seq DESC LIMIT 1`, jobID, models.ResultKindPDF, models.ResultKindEPS,
	).Scan(&r.ID, &r.GraphID, &r.JobID, &r.Kind, &r.BinaryValue, &r.ArtifactKey, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact result: %w", err)
	}
	return &r, nil
}

func decodeResultJSON(r *models.Result, points, issues []byte) error {
	if len(points) > 0 {
		if err := json.Unmarshal(points, &r.Points); err != nil {
			return fmt.Errorf("decode points: %w", err)
		}
	}
	if len(issues) > 0 {
		var is models.Issues
		if err := json.Unmarshal(issues, &is); err != nil {
			return fmt.Errorf("decode issues: %w", err)
		}
		r.Issues = &is
	}
	return nil
}

// --- Notifications ---

func (s *PostgresStore) ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, kind, callback_url, attempts, last_error, next_attempt_at, sent_at, created_at
		 FROM notifications WHERE sent_at IS NULL AND next_attempt_at <= $1
		 ORDER BY next_attempt_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.JobID, &n.Kind, &n.CallbackURL, &n.Attempts, &n.LastError,
			&n.NextAttemptAt, &n.SentAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkNotificationSent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET sent_at = NOW(), attempts = attempts + 1 WHERE id = $1 AND sent_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkNotificationFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		 WHERE id = $1 AND sent_at IS NULL`, id, errMsg, nextAttempt)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Completion transaction ---

// txWriter is the ResultWriter handed to IngestFunc during CompleteJob.
type txWriter struct {
	tx pgx.Tx
}

// DeleteConfigurations removes the graph's configurations, and with them the
// results linked to them. The jobs that wrote them are marked superseded so
// they are no longer offered for reuse.
func (w *txWriter) DeleteConfigurations(ctx context.Context, graphID int64) error {
	_, err := w.tx.Exec(ctx,
		`UPDATE jobs SET superseded_at = NOW()
		 WHERE superseded_at IS NULL
		   AND id IN (SELECT job_id FROM configurations WHERE graph_id = $1)`, graphID)
	if err != nil {
		return fmt.Errorf("supersede jobs: %w", err)
	}
	_, err = w.tx.Exec(ctx, `DELETE FROM configurations WHERE graph_id = $1`, graphID)
	if err != nil {
		return fmt.Errorf("delete configurations: %w", err)
	}
	return nil
}

func (w *txWriter) CreateConfiguration(ctx context.Context, cfg *models.Configuration) error {
	_, err := w.tx.Exec(ctx,
		`INSERT INTO configurations (id, graph_id, job_id, costs) VALUES ($1, $2, $3, $4)`,
		cfg.ID, cfg.GraphID, cfg.JobID, cfg.Costs)
	if err != nil {
		return fmt.Errorf("create configuration: %w", err)
	}
	return nil
}

func (w *txWriter) ResolveNode(ctx context.Context, graphID int64, nodeID int64) (*models.Node, error) {
	var n models.Node
	err := w.tx.QueryRow(ctx,
		`SELECT id, graph_id, client_id FROM nodes WHERE id = $1 AND graph_id = $2`, nodeID, graphID,
	).Scan(&n.ID, &n.GraphID, &n.ClientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve node: %w", err)
	}
	return &n, nil
}

func (w *txWriter) CreateNodeConfiguration(ctx context.Context, nc *models.NodeConfiguration) error {
	setting, err := json.Marshal(nc.Setting)
	if err != nil {
		return fmt.Errorf("encode choice setting: %w", err)
	}
	_, err = w.tx.Exec(ctx,
		`INSERT INTO node_configurations (id, configuration_id, node_id, setting) VALUES ($1, $2, $3, $4)`,
		nc.ID, nc.ConfigurationID, nc.NodeID, setting)
	if err != nil {
		return fmt.Errorf("create node configuration: %w", err)
	}
	return nil
}

func (w *txWriter) CreateResult(ctx context.Context, r *models.Result) error {
	var points, issues []byte
	var err error
	if len(r.Points) > 0 {
		if points, err = json.Marshal(r.Points); err != nil {
			return fmt.Errorf("encode points: %w", err)
		}
	}
	if r.Issues != nil {
		if issues, err = json.Marshal(r.Issues); err != nil {
			return fmt.Errorf("encode issues: %w", err)
		}
	}

	_, err = w.tx.Exec(ctx,
		`INSERT INTO results (id, graph_id, job_id, configuration_id, kind, minimum, maximum, peak,
		   reliability, mttf, rounds, failures, ratio, points, issues, binary_value, artifact_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		r.ID, r.GraphID, r.JobID, r.ConfigurationID, r.Kind, r.Minimum, r.Maximum, r.Peak,
		r.Reliability, r.MTTF, r.Rounds, r.Failures, r.Ratio, points, issues, r.BinaryValue,
		r.ArtifactKey, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create result: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
