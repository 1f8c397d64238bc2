package resultxml

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

type xmlBackendResults struct {
	XMLName        xml.Name           `xml:"backendResults"`
	Configurations []xmlConfiguration `xml:"configuration"`
	Results        []xmlResult        `xml:"result"`
	Issues         []xmlIssue         `xml:"issue"`
}

type xmlConfiguration struct {
	ID      string      `xml:"id,attr"`
	Costs   string      `xml:"costs,attr"`
	Choices []xmlChoice `xml:"choice"`
}

type xmlChoice struct {
	Key   string `xml:"key,attr"`
	Value struct {
		Attrs []xml.Attr `xml:",any,attr"`
	} `xml:"value"`
}

type xmlResult struct {
	Attrs               []xml.Attr      `xml:",any,attr"`
	ID                  string          `xml:"id,attr"`
	ModelID             string          `xml:"modelId,attr"`
	ConfigID            string          `xml:"configId,attr"`
	Timestamp           string          `xml:"timestamp,attr"`
	ValidResult         string          `xml:"validResult,attr"`
	DecompositionNumber string          `xml:"decompositionNumber,attr"`
	Reliability         *string         `xml:"reliability,attr"`
	MTTF                *string         `xml:"mttf,attr"`
	Rounds              *string         `xml:"nSimulatedRounds,attr"`
	Failures            *string         `xml:"nFailures,attr"`
	Probability         *xmlProbability `xml:"probability"`
	Issues              []xmlIssue      `xml:"issue"`
}

type xmlProbability struct {
	Attrs     []xml.Attr    `xml:",any,attr"`
	Value     *string       `xml:"value,attr"`
	AlphaCuts []xmlAlphaCut `xml:"alphaCuts"`
}

type xmlAlphaCut struct {
	Key   string `xml:"key,attr"`
	Value struct {
		LowerBound string `xml:"lowerBound,attr"`
		UpperBound string `xml:"upperBound,attr"`
	} `xml:"value"`
}

type xmlIssue struct {
	IssueID   string `xml:"issueId,attr"`
	ElementID string `xml:"elementId,attr"`
	Message   string `xml:"message,attr"`
	IsFatal   string `xml:"isFatal,attr"`
}

func parseBackendResults(data []byte) (*Document, error) {
	var raw xmlBackendResults
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	doc := &Document{}

	for _, rc := range raw.Configurations {
		cfg := Configuration{ID: rc.ID, Costs: rc.Costs}
		for _, ch := range rc.Choices {
			c, err := decodeChoice(ch.Key, ch.Value.Attrs)
			if err != nil {
				return nil, err
			}
			cfg.Choices = append(cfg.Choices, c)
		}
		doc.Configurations = append(doc.Configurations, cfg)
	}

	for _, rr := range raw.Results {
		r := Result{
			Type:                ResultType(xsiType(rr.Attrs)),
			ID:                  rr.ID,
			ModelID:             rr.ModelID,
			ConfigID:            rr.ConfigID,
			Timestamp:           rr.Timestamp,
			ValidResult:         rr.ValidResult,
			DecompositionNumber: rr.DecompositionNumber,
			Reliability:         rr.Reliability,
			MTTF:                rr.MTTF,
			Rounds:              rr.Rounds,
			Failures:            rr.Failures,
		}
		switch r.Type {
		case ResultAnalysis, ResultSimulation, ResultMincut:
		default:
			return nil, fmt.Errorf("%w: %q (result %q)", ErrUnknownResult, r.Type, rr.ID)
		}
		if rr.Probability != nil {
			p := &Probability{Type: xsiType(rr.Probability.Attrs), Value: rr.Probability.Value}
			for _, ac := range rr.Probability.AlphaCuts {
				p.AlphaCuts = append(p.AlphaCuts, AlphaCut{
					Key:        ac.Key,
					LowerBound: ac.Value.LowerBound,
					UpperBound: ac.Value.UpperBound,
				})
			}
			r.Probability = p
		}
		issues, err := convertIssues(rr.Issues)
		if err != nil {
			return nil, err
		}
		r.Issues = issues
		doc.Results = append(doc.Results, r)
	}

	issues, err := convertIssues(raw.Issues)
	if err != nil {
		return nil, err
	}
	doc.Issues = issues

	return doc, nil
}

func convertIssues(raw []xmlIssue) ([]Issue, error) {
	var out []Issue
	for _, ri := range raw {
		fatal := false
		if ri.IsFatal != "" {
			b, err := strconv.ParseBool(ri.IsFatal)
			if err != nil {
				return nil, fmt.Errorf("%w: issue isFatal %q", ErrMalformedDocument, ri.IsFatal)
			}
			fatal = b
		}
		out = append(out, Issue{
			IssueID:   ri.IssueID,
			ElementID: ri.ElementID,
			Message:   ri.Message,
			IsFatal:   fatal,
		})
	}
	return out, nil
}
