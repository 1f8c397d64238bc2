// Package resultxml decodes the XML documents backend workers and the analysis
// server send back. Both supported schemas decode into the same Document so
// that downstream code never cares which producer it talked to.
//
// Numeric values are kept as the strings found in the document. Converting
// them is the normalizer's job, which is also where malformed numbers surface.
package resultxml

import "github.com/kiranshivaraju/fuzzjobs/pkg/models"

// ResultType is the xsi:type of a result element.
type ResultType string

const (
	ResultAnalysis   ResultType = "AnalysisResult"
	ResultSimulation ResultType = "SimulationResult"
	ResultMincut     ResultType = "MincutResult"
)

// Document is one decoded result document.
type Document struct {
	DecompositionNumber string
	Timestamp           string
	ValidResult         string
	Configurations      []Configuration
	Results             []Result
	// Issues are document-level messages not tied to a single result.
	Issues []Issue
}

// Configuration is one instantiation of the graph's variation points.
type Configuration struct {
	ID      string
	Costs   string
	Choices []Choice
}

// Choice is the decision a configuration made for the node identified by Key.
type Choice struct {
	Key       string            `json:"key"`
	Type      models.ChoiceType `json:"type"`
	FeatureID string            `json:"featureId,omitempty"`
	Included  bool              `json:"included,omitempty"`
	N         int               `json:"n,omitempty"`
}

// Result is one analysis, simulation or mincut outcome.
type Result struct {
	Type                ResultType
	ID                  string
	ModelID             string
	ConfigID            string
	Timestamp           string
	ValidResult         string
	DecompositionNumber string
	Probability         *Probability
	Reliability         *string
	MTTF                *string
	Rounds              *string
	Failures            *string
	Issues              []Issue
}

// Probability is either crisp (Value set) or decomposed into alpha cuts.
type Probability struct {
	Type      string
	Value     *string
	AlphaCuts []AlphaCut
}

// AlphaCut is the probability interval at one membership level.
type AlphaCut struct {
	Key        string
	LowerBound string
	UpperBound string
}

// Issue is a message about a graph element.
type Issue struct {
	IssueID   string
	ElementID string
	Message   string
	IsFatal   bool
}
