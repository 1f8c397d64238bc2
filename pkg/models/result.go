package models

import (
	"time"

	"github.com/google/uuid"
)

// ResultKind classifies a stored result row.
type ResultKind string

const (
	ResultKindGraphIssues ResultKind = "graph_issues"
	ResultKindTopEvent    ResultKind = "topevent"
	ResultKindSimulation  ResultKind = "simulation"
	ResultKindMincut      ResultKind = "mincut"
	ResultKindPDF         ResultKind = "pdf"
	ResultKindEPS         ResultKind = "eps"
)

// Point is an (x, y) sample of a probability membership function.
type Point [2]float64

// Issue is a validation or analysis message attached to a graph element.
type Issue struct {
	Message   string `json:"message"`
	IssueID   int    `json:"issueId"`
	ElementID string `json:"elementId"`
}

// Issues splits messages into fatal errors and warnings.
type Issues struct {
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Empty reports whether there is nothing to show.
func (i Issues) Empty() bool {
	return len(i.Errors) == 0 && len(i.Warnings) == 0
}

// Result is one materialized backend output. Absent numeric values stay nil.
type Result struct {
	ID              uuid.UUID  `db:"id"               json:"id"`
	GraphID         int64      `db:"graph_id"         json:"graph_id"`
	JobID           uuid.UUID  `db:"job_id"           json:"job_id"`
	ConfigurationID *uuid.UUID `db:"configuration_id" json:"configuration_id,omitempty"`
	Kind            ResultKind `db:"kind"             json:"kind"`
	Minimum         *float64   `db:"minimum"          json:"minimum,omitempty"`
	Maximum         *float64   `db:"maximum"          json:"maximum,omitempty"`
	Peak            *float64   `db:"peak"             json:"peak,omitempty"`
	Reliability     *float64   `db:"reliability"      json:"reliability,omitempty"`
	MTTF            *float64   `db:"mttf"             json:"mttf,omitempty"`
	Rounds          *int64     `db:"rounds"           json:"rounds,omitempty"`
	Failures        *int64     `db:"failures"         json:"failures,omitempty"`
	Ratio           *float64   `db:"ratio"            json:"ratio,omitempty"`
	Points          []Point    `db:"points"           json:"points,omitempty"`
	Issues          *Issues    `db:"issues"           json:"issues,omitempty"`
	BinaryValue     []byte     `db:"binary_value"     json:"-"`
	ArtifactKey     *string    `db:"artifact_key"     json:"-"`
	CreatedAt       time.Time  `db:"created_at"       json:"created_at"`

	// Configuration is joined in by result queries; nil for unlinked rows.
	Configuration *Configuration `db:"-" json:"configuration,omitempty"`
}
