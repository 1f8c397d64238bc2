package jobs

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fuzzjobs/internal/artifact"
	"github.com/kiranshivaraju/fuzzjobs/internal/store"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

// memStore is an in-memory store.Store. CompleteJob stages ingest writes and
// applies them only if the whole completion succeeds.
type memStore struct {
	mu             sync.Mutex
	graphs         map[int64]*models.Graph
	documents      map[int64]map[store.DocumentFormat][]byte
	nodes          map[int64]*models.Node
	jobs           map[uuid.UUID]*models.Job
	notifications  map[uuid.UUID]*models.Notification
	configurations map[uuid.UUID]*models.Configuration
	nodeConfigs    []*models.NodeConfiguration
	results        []*models.Result
	superseded     map[uuid.UUID]bool
	createJobErr   error
}

func newMemStore() *memStore {
	return &memStore{
		graphs:         map[int64]*models.Graph{},
		documents:      map[int64]map[store.DocumentFormat][]byte{},
		nodes:          map[int64]*models.Node{},
		jobs:           map[uuid.UUID]*models.Job{},
		notifications:  map[uuid.UUID]*models.Notification{},
		configurations: map[uuid.UUID]*models.Configuration{},
		superseded:     map[uuid.UUID]bool{},
	}
}

func (m *memStore) addGraph(id int64, modified time.Time) *models.Graph {
	g := &models.Graph{ID: id, Kind: "fuzztree", Name: "g", Modified: modified}
	m.graphs[id] = g
	m.documents[id] = map[store.DocumentFormat][]byte{
		store.DocumentXML:  []byte("<fuzzTree/>"),
		store.DocumentTikZ: []byte(`\begin{tikzpicture}\end{tikzpicture}`),
	}
	return g
}

func (m *memStore) addNode(id, graphID, clientID int64) {
	m.nodes[id] = &models.Node{ID: id, GraphID: graphID, ClientID: clientID}
}

func copyJob(j *models.Job) *models.Job {
	cp := *j
	if j.ExitCode != nil {
		code := *j.ExitCode
		cp.ExitCode = &code
	}
	return &cp
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) GetGraph(_ context.Context, id int64) (*models.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.graphs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memStore) GetGraphDocument(_ context.Context, graphID int64, format store.DocumentFormat) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[graphID][format]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

func (m *memStore) CreateJob(_ context.Context, job *models.Job, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createJobErr != nil {
		return m.createJobErr
	}
	for _, j := range m.jobs {
		if j.Secret == job.Secret {
			return store.ErrDuplicateKey
		}
	}
	m.jobs[job.ID] = copyJob(job)
	if n != nil {
		cp := *n
		m.notifications[n.ID] = &cp
	}
	return nil
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyJob(j), nil
}

func (m *memStore) jobBySecret(secret string) *models.Job {
	for _, j := range m.jobs {
		if j.Secret == secret {
			return j
		}
	}
	return nil
}

func (m *memStore) GetJobBySecret(_ context.Context, secret string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobBySecret(secret)
	if j == nil {
		return nil, store.ErrNotFound
	}
	return copyJob(j), nil
}

func (m *memStore) newestJob(match func(*models.Job) bool) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Job
	for _, j := range m.jobs {
		if match(j) && (best == nil || j.CreatedAt.After(best.CreatedAt)) {
			best = j
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return copyJob(best), nil
}

func succeeded(j *models.Job, graphID int64, kind models.JobKind) bool {
	return j.GraphID != nil && *j.GraphID == graphID && j.Kind == kind &&
		j.ExitCode != nil && *j.ExitCode == 0
}

func (m *memStore) FindDoneJob(_ context.Context, graphID int64, kind models.JobKind, modified time.Time) (*models.Job, error) {
	return m.newestJob(func(j *models.Job) bool {
		return succeeded(j, graphID, kind) && j.GraphModified.Equal(modified) && !m.superseded[j.ID]
	})
}

func (m *memStore) LatestSuccessfulJob(_ context.Context, graphID int64, kind models.JobKind) (*models.Job, error) {
	return m.newestJob(func(j *models.Job) bool { return succeeded(j, graphID, kind) })
}

func (m *memStore) CompleteJob(ctx context.Context, secret string, exitCode int, ingest store.IngestFunc) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.jobBySecret(secret)
	if j == nil {
		return nil, store.ErrNotFound
	}
	if j.Done() {
		return copyJob(j), store.ErrJobDone
	}

	w := &stagedWriter{m: m}
	if ingest != nil {
		if err := ingest(ctx, w, copyJob(j)); err != nil {
			return copyJob(j), err
		}
	}
	w.apply()
	j.ExitCode = &exitCode
	return copyJob(j), nil
}

func (m *memStore) ForceExitCode(_ context.Context, secret string, exitCode int) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobBySecret(secret)
	if j == nil {
		return nil, store.ErrNotFound
	}
	if j.Done() {
		return nil, store.ErrJobDone
	}
	j.ExitCode = &exitCode
	return copyJob(j), nil
}

func (m *memStore) ListResults(_ context.Context, filter store.ResultFilter) ([]*models.Result, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Result
	for _, r := range m.results {
		if r.JobID == filter.JobID && r.Kind != models.ResultKindGraphIssues {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *memStore) GetArtifactResult(_ context.Context, jobID uuid.UUID) (*models.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.results) - 1; i >= 0; i-- {
		r := m.results[i]
		if r.JobID == jobID && (r.Kind == models.ResultKindPDF || r.Kind == models.ResultKindEPS) {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListDueNotifications(_ context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.SentAt == nil && !n.NextAttemptAt.After(now) && len(out) < limit {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) MarkNotificationSent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.notifications[id].SentAt = &now
	return nil
}

func (m *memStore) MarkNotificationFailed(_ context.Context, id uuid.UUID, msg string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.notifications[id]
	n.Attempts++
	n.LastError = &msg
	n.NextAttemptAt = next
	return nil
}

// --- query helpers for assertions ---

func (m *memStore) configurationsFor(graphID int64) []*models.Configuration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Configuration
	for _, c := range m.configurations {
		if c.GraphID == graphID {
			out = append(out, c)
		}
	}
	return out
}

func (m *memStore) nodeConfigsFor(cfgID uuid.UUID) []*models.NodeConfiguration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.NodeConfiguration
	for _, nc := range m.nodeConfigs {
		if nc.ConfigurationID == cfgID {
			out = append(out, nc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

func (m *memStore) resultsFor(jobID uuid.UUID) []*models.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Result
	for _, r := range m.results {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out
}

// stagedWriter buffers writes made during CompleteJob. The memStore mutex is
// held by the caller for its whole lifetime.
type stagedWriter struct {
	m            *memStore
	deleteGraphs []int64
	configs      []*models.Configuration
	nodeConfigs  []*models.NodeConfiguration
	results      []*models.Result
}

func (w *stagedWriter) DeleteConfigurations(_ context.Context, graphID int64) error {
	w.deleteGraphs = append(w.deleteGraphs, graphID)
	return nil
}

func (w *stagedWriter) CreateConfiguration(_ context.Context, cfg *models.Configuration) error {
	w.configs = append(w.configs, cfg)
	return nil
}

func (w *stagedWriter) ResolveNode(_ context.Context, graphID, nodeID int64) (*models.Node, error) {
	n, ok := w.m.nodes[nodeID]
	if !ok || n.GraphID != graphID {
		return nil, store.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (w *stagedWriter) CreateNodeConfiguration(_ context.Context, nc *models.NodeConfiguration) error {
	w.nodeConfigs = append(w.nodeConfigs, nc)
	return nil
}

func (w *stagedWriter) CreateResult(_ context.Context, r *models.Result) error {
	w.results = append(w.results, r)
	return nil
}

func (w *stagedWriter) apply() {
	m := w.m
	for _, graphID := range w.deleteGraphs {
		for id, c := range m.configurations {
			if c.GraphID != graphID {
				continue
			}
			delete(m.configurations, id)
			m.superseded[c.JobID] = true
			kept := m.nodeConfigs[:0]
			for _, nc := range m.nodeConfigs {
				if nc.ConfigurationID != id {
					kept = append(kept, nc)
				}
			}
			m.nodeConfigs = kept
			keptResults := m.results[:0]
			for _, r := range m.results {
				if r.ConfigurationID == nil || *r.ConfigurationID != id {
					keptResults = append(keptResults, r)
				}
			}
			m.results = keptResults
		}
	}
	for _, c := range w.configs {
		m.configurations[c.ID] = c
	}
	m.nodeConfigs = append(m.nodeConfigs, w.nodeConfigs...)
	m.results = append(m.results, w.results...)
}

var _ store.Store = (*memStore)(nil)
var _ store.ResultWriter = (*stagedWriter)(nil)

// --- other collaborators ---

type memCache struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]models.JobStatus
}

func newMemCache() *memCache {
	return &memCache{statuses: map[uuid.UUID]models.JobStatus{}}
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) SetJobStatus(_ context.Context, id uuid.UUID, status models.JobStatus, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[id] = status
	return nil
}

func (c *memCache) GetJobStatus(_ context.Context, id uuid.UUID) (models.JobStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[id]
	return s, ok, nil
}

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

type recordingDispatcher struct {
	mu        sync.Mutex
	delivered []*models.Notification
	err       error
}

func (d *recordingDispatcher) Deliver(_ context.Context, n *models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, n)
	return d.err
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
}

func (a *recordingAlerter) Alert(_ context.Context, al Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
}

type memArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{objects: map[string][]byte{}, types: map[string]string{}}
}

func (a *memArtifacts) Put(_ context.Context, key string, body []byte, contentType string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = body
	a.types[key] = contentType
	return nil
}

func (a *memArtifacts) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.objects[key]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	return b, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
