package models

import (
	"time"

	"github.com/google/uuid"
)

// JobKind names the backend computation a job asks for.
type JobKind string

const (
	JobKindMincut     JobKind = "mincut"
	JobKindTopEvent   JobKind = "topevent"
	JobKindSimulation JobKind = "simulation"
	JobKindEPS        JobKind = "eps"
	JobKindPDF        JobKind = "pdf"
)

var jobKinds = map[JobKind]bool{
	JobKindMincut:     true,
	JobKindTopEvent:   true,
	JobKindSimulation: true,
	JobKindEPS:        true,
	JobKindPDF:        true,
}

// Valid reports whether k is one of the known job kinds.
func (k JobKind) Valid() bool {
	return jobKinds[k]
}

// IsRendering reports whether the job produces a document instead of analysis results.
func (k JobKind) IsRendering() bool {
	return k == JobKindEPS || k == JobKindPDF
}

// InputContentType is the media type of the input a worker downloads for this kind.
func (k JobKind) InputContentType() string {
	if k.IsRendering() {
		return "application/text"
	}
	return "application/xml"
}

// ArtifactContentType is the media type of a rendering job's output.
func (k JobKind) ArtifactContentType() string {
	switch k {
	case JobKindPDF:
		return "application/pdf"
	case JobKindEPS:
		return "application/postscript"
	default:
		return "application/octet-stream"
	}
}

// JobStatus is what the frontend sees while polling a job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

// ParseFailureExitCode is recorded when a worker reported success but its
// payload could not be ingested.
const ParseFailureExitCode = -444

// Job is one request to a backend worker. A job is done once ExitCode is set;
// the worker addresses it by Secret, never by ID.
type Job struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	GraphID       *int64    `db:"graph_id"       json:"graph_id,omitempty"`
	GraphModified time.Time `db:"graph_modified" json:"graph_modified"`
	Kind          JobKind   `db:"kind"           json:"kind"`
	Secret        string    `db:"secret"         json:"-"`
	ExitCode      *int      `db:"exit_code"      json:"exit_code,omitempty"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
}

// Done reports whether the worker has reported back.
func (j *Job) Done() bool {
	return j.ExitCode != nil
}

// Status derives the frontend status from the exit code.
func (j *Job) Status() JobStatus {
	switch {
	case j.ExitCode == nil:
		return JobStatusPending
	case *j.ExitCode == 0:
		return JobStatusSuccess
	default:
		return JobStatusError
	}
}
