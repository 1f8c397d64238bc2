// Package analysisclient talks to the standalone analysis server, which runs
// top event probability analyses synchronously on request instead of through
// the worker job queue.
package analysisclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/fuzzjobs/internal/analysis"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
	"github.com/kiranshivaraju/fuzzjobs/pkg/resultxml"
)

// Sentinel errors for analysis server failures.
var (
	ErrUnreachable = errors.New("analysis server unreachable")
	ErrTimeout     = errors.New("analysis server timeout")
	ErrBadRequest  = errors.New("analysis server rejected request")
	ErrJobNotFound = errors.New("analysis job not found")
	ErrJobPending  = errors.New("analysis job still running")
	ErrServer      = errors.New("analysis server error")
	ErrUnknownNode = errors.New("unknown node")
)

// JobState is the server's view of a job as reported by ListJobs.
type JobState string

const (
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobRunning   JobState = "running"
)

var jobStates = map[string]JobState{
	"c": JobCompleted,
	"f": JobFailed,
	"r": JobRunning,
}

// Client is the interface for the analysis server.
type Client interface {
	CreateJob(ctx context.Context, graphXML []byte, decompositionNumber int, verifyOnly bool) (*CreatedJob, error)
	GetJobResult(ctx context.Context, jobID int64) (*Report, error)
	AbortJob(ctx context.Context, jobID int64) (bool, error)
	ListJobs(ctx context.Context) (map[string]JobState, error)
}

// CreatedJob is the server's answer to CreateJob.
type CreatedJob struct {
	JobID             int64 `json:"jobid"`
	NumConfigurations int   `json:"num_configurations"`
	NumNodes          int   `json:"num_nodes"`
}

// Report is a finished analysis, normalized the same way worker results are.
// The server names nodes by primary key; ResolveNodes translates them to the
// ids the editor uses.
type Report struct {
	DecompositionNumber string         `json:"decompositionNumber,omitempty"`
	Timestamp           string         `json:"timestamp,omitempty"`
	Issues              models.Issues  `json:"issues"`
	Configurations      []ConfigReport `json:"configurations"`
}

// ConfigReport is one configuration with its probability summary.
type ConfigReport struct {
	Costs   int                `json:"costs"`
	Choices []resultxml.Choice `json:"choices,omitempty"`
	Points  []models.Point     `json:"points,omitempty"`
	Minimum *float64           `json:"minimum,omitempty"`
	Maximum *float64           `json:"maximum,omitempty"`
	Peak    *float64           `json:"peak,omitempty"`
}

// HTTPClient implements Client over the server's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new analysis server client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// CreateJob submits a graph for analysis.
func (c *HTTPClient) CreateJob(ctx context.Context, graphXML []byte, decompositionNumber int, verifyOnly bool) (*CreatedJob, error) {
	params := url.Values{}
	params.Set("decompositionNumber", strconv.Itoa(decompositionNumber))
	params.Set("verifyOnly", strconv.FormatBool(verifyOnly))

	status, body, err := c.do(ctx, http.MethodPost, "/fuzztree/analysis/createJob", params, graphXML)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}

	// The server writes Python style single quoted JSON.
	var job CreatedJob
	if err := json.Unmarshal(bytes.ReplaceAll(body, []byte("'"), []byte(`"`)), &job); err != nil {
		return nil, fmt.Errorf("%w: decoding createJob response: %v", ErrServer, err)
	}
	return &job, nil
}

// GetJobResult fetches a finished analysis. It returns ErrJobPending while
// the server is still computing.
func (c *HTTPClient) GetJobResult(ctx context.Context, jobID int64) (*Report, error) {
	params := url.Values{}
	params.Set("jobId", strconv.FormatInt(jobID, 10))

	status, body, err := c.do(ctx, http.MethodGet, "/fuzztree/analysis/getJobResult", params, nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return buildReport(body)
	case http.StatusAccepted:
		return nil, ErrJobPending
	default:
		return nil, statusError(status, body)
	}
}

// AbortJob stops a running analysis. It reports false when the job had
// already finished.
func (c *HTTPClient) AbortJob(ctx context.Context, jobID int64) (bool, error) {
	params := url.Values{}
	params.Set("jobId", strconv.FormatInt(jobID, 10))

	status, body, err := c.do(ctx, http.MethodGet, "/fuzztree/analysis/abortJob", params, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusMethodNotAllowed:
		return false, nil
	default:
		return false, statusError(status, body)
	}
}

// ListJobs returns every job the server knows about.
func (c *HTTPClient) ListJobs(ctx context.Context) (map[string]JobState, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/fuzztree/analysis/listJobs", nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrServer, status)
	}

	body = bytes.TrimSpace(body)
	jobs := map[string]JobState{}
	if len(body) == 0 || string(body) == "()" {
		return jobs, nil
	}

	var pairs [][]json.RawMessage
	if err := json.Unmarshal(bytes.ReplaceAll(body, []byte("'"), []byte(`"`)), &pairs); err != nil {
		return nil, fmt.Errorf("%w: decoding listJobs response: %v", ErrServer, err)
	}
	for _, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("%w: listJobs entry has %d fields", ErrServer, len(p))
		}
		var code string
		if err := json.Unmarshal(p[1], &code); err != nil {
			return nil, fmt.Errorf("%w: listJobs status: %v", ErrServer, err)
		}
		state, ok := jobStates[code]
		if !ok {
			return nil, fmt.Errorf("%w: unknown job status %q", ErrServer, code)
		}
		jobs[strings.Trim(string(p[0]), `"`)] = state
	}
	return jobs, nil
}

// WaitForResult polls GetJobResult every interval until the job is no longer
// pending or ctx is done.
func WaitForResult(ctx context.Context, c Client, jobID int64, interval time.Duration) (*Report, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := c.GetJobResult(ctx, jobID)
		if !errors.Is(err, ErrJobPending) {
			return report, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body []byte) (int, []byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/xml")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, classifyError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, msg)
	case http.StatusNotFound:
		return ErrJobNotFound
	default:
		return fmt.Errorf("%w: status %d: %s", ErrServer, status, msg)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// buildReport decodes an analysis server document and runs it through the
// same normalizer worker results use.
func buildReport(data []byte) (*Report, error) {
	doc, err := resultxml.Parse(resultxml.SchemaLegacyAnalysis, data)
	if err != nil {
		return nil, err
	}

	issues, err := analysis.InterpretIssues(doc.Issues)
	if err != nil {
		return nil, err
	}

	report := &Report{
		DecompositionNumber: doc.DecompositionNumber,
		Timestamp:           doc.Timestamp,
		Issues:              issues,
		Configurations:      make([]ConfigReport, 0, len(doc.Configurations)),
	}

	results := make(map[string]resultxml.Result, len(doc.Results))
	for _, r := range doc.Results {
		results[r.ConfigID] = r
	}

	for _, cfg := range doc.Configurations {
		entry := ConfigReport{Choices: cfg.Choices}
		if cfg.Costs != "" {
			costs, err := strconv.Atoi(cfg.Costs)
			if err != nil {
				return nil, fmt.Errorf("%w: costs %q", analysis.ErrMalformedNumber, cfg.Costs)
			}
			entry.Costs = costs
		}
		if r, ok := results[cfg.ID]; ok {
			v, err := analysis.InterpretValue(r)
			if err != nil {
				return nil, err
			}
			entry.Points, entry.Minimum, entry.Maximum, entry.Peak = v.Points, v.Minimum, v.Maximum, v.Peak
		}
		report.Configurations = append(report.Configurations, entry)
	}
	return report, nil
}

var _ Client = (*HTTPClient)(nil)
