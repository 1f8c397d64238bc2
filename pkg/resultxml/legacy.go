package resultxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// parseLegacyAnalysis walks the analysis server's document token by token.
// That document reuses the element name "value" for both choices and alpha
// cut intervals, so the meaning of each element depends on what encloses it.
//
// Each "configurations" element carries both the configuration and its
// probability. It is split into a Configuration and an AnalysisResult linked
// by a synthesized id.
func parseLegacyAnalysis(data []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	doc := &Document{}

	var (
		rootSeen  bool
		cfg       *Configuration
		res       *Result
		choiceKey *string
		cut       *AlphaCut
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case strings.Contains(name, "AnalysisResult"):
				rootSeen = true
				doc.DecompositionNumber, _ = attr(t.Attr, "decompositionNumber")
				doc.Timestamp, _ = attr(t.Attr, "timestamp")
				doc.ValidResult, _ = attr(t.Attr, "validResult")

			case name == "configurations":
				idx := len(doc.Configurations)
				costs, _ := attr(t.Attr, "costs")
				cfg = &Configuration{ID: fmt.Sprintf("cfg-%d", idx), Costs: costs}
				res = &Result{
					Type:                ResultAnalysis,
					ID:                  fmt.Sprintf("res-%d", idx),
					ConfigID:            cfg.ID,
					Timestamp:           doc.Timestamp,
					ValidResult:         doc.ValidResult,
					DecompositionNumber: doc.DecompositionNumber,
				}

			case name == "choices":
				if cfg == nil {
					return nil, fmt.Errorf("%w: choices outside of configurations", ErrMalformedDocument)
				}
				key, _ := attr(t.Attr, "key")
				choiceKey = &key

			case name == "probability":
				if res == nil {
					return nil, fmt.Errorf("%w: probability outside of configurations", ErrMalformedDocument)
				}
				p := &Probability{Type: xsiType(t.Attr)}
				if v, ok := attr(t.Attr, "value"); ok {
					p.Value = &v
				}
				res.Probability = p

			case name == "alphaCuts":
				if res == nil || res.Probability == nil {
					return nil, fmt.Errorf("%w: alphaCuts outside of probability", ErrMalformedDocument)
				}
				key, _ := attr(t.Attr, "key")
				cut = &AlphaCut{Key: key}

			case name == "value":
				switch {
				case choiceKey != nil:
					c, err := decodeChoice(*choiceKey, t.Attr)
					if err != nil {
						return nil, err
					}
					cfg.Choices = append(cfg.Choices, c)
				case cut != nil:
					cut.LowerBound, _ = attr(t.Attr, "lowerBound")
					cut.UpperBound, _ = attr(t.Attr, "upperBound")
				}

			case name == "errors" || name == "warnings":
				elementID, _ := attr(t.Attr, "elementId")
				message, _ := attr(t.Attr, "message")
				issueID, _ := attr(t.Attr, "issueId")
				doc.Issues = append(doc.Issues, Issue{
					IssueID:   issueID,
					ElementID: elementID,
					Message:   message,
					IsFatal:   name == "errors",
				})
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "configurations":
				if cfg != nil {
					doc.Configurations = append(doc.Configurations, *cfg)
					doc.Results = append(doc.Results, *res)
				}
				cfg, res = nil, nil
			case "choices":
				choiceKey = nil
			case "alphaCuts":
				if cut != nil && res != nil && res.Probability != nil {
					res.Probability.AlphaCuts = append(res.Probability.AlphaCuts, *cut)
				}
				cut = nil
			}
		}
	}

	if !rootSeen {
		return nil, fmt.Errorf("%w: no AnalysisResult element", ErrMalformedDocument)
	}
	return doc, nil
}
