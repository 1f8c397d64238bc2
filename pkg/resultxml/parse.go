package resultxml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

var (
	ErrMalformedDocument = errors.New("malformed result document")
	ErrUnknownChoice     = errors.New("unknown choice type")
	ErrUnknownResult     = errors.New("unknown result type")
	ErrUnknownSchema     = errors.New("unknown result schema")
)

// Schema selects the document layout Parse expects.
type Schema int

const (
	// SchemaBackendResults is the backendResults document written by workers.
	SchemaBackendResults Schema = iota
	// SchemaLegacyAnalysis is the AnalysisResult document returned by the
	// standalone analysis server.
	SchemaLegacyAnalysis
)

func (s Schema) String() string {
	switch s {
	case SchemaBackendResults:
		return "backendResults"
	case SchemaLegacyAnalysis:
		return "legacyAnalysis"
	default:
		return fmt.Sprintf("Schema(%d)", int(s))
	}
}

// Parse decodes data according to schema.
func Parse(schema Schema, data []byte) (*Document, error) {
	switch schema {
	case SchemaBackendResults:
		return parseBackendResults(data)
	case SchemaLegacyAnalysis:
		return parseLegacyAnalysis(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, schema)
	}
}

// xsiType returns the local part of an xsi:type attribute, if present.
// Documents are not consistent about declaring the xsi namespace, so only the
// local attribute name is matched.
func xsiType(attrs []xml.Attr) string {
	for _, a := range attrs {
		if a.Name.Local != "type" {
			continue
		}
		if a.Name.Space == "" || a.Name.Space == "xsi" || strings.HasSuffix(a.Name.Space, "XMLSchema-instance") {
			v := a.Value
			if i := strings.IndexByte(v, ':'); i >= 0 {
				v = v[i+1:]
			}
			return v
		}
	}
	return ""
}

func attr(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// decodeChoice builds a Choice from the attributes of a choice value element.
// Only the three known variants are accepted.
func decodeChoice(key string, attrs []xml.Attr) (Choice, error) {
	c := Choice{Key: key, Type: models.ChoiceType(xsiType(attrs))}
	switch c.Type {
	case models.ChoiceFeature:
		v, ok := attr(attrs, "featureId")
		if !ok {
			return Choice{}, fmt.Errorf("%w: feature choice for %q without featureId", ErrMalformedDocument, key)
		}
		c.FeatureID = v
	case models.ChoiceInclusion:
		v, ok := attr(attrs, "included")
		if !ok {
			return Choice{}, fmt.Errorf("%w: inclusion choice for %q without included", ErrMalformedDocument, key)
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Choice{}, fmt.Errorf("%w: inclusion choice for %q: %v", ErrMalformedDocument, key, err)
		}
		c.Included = b
	case models.ChoiceRedundancy:
		v, ok := attr(attrs, "n")
		if !ok {
			return Choice{}, fmt.Errorf("%w: redundancy choice for %q without n", ErrMalformedDocument, key)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Choice{}, fmt.Errorf("%w: redundancy choice for %q: %v", ErrMalformedDocument, key, err)
		}
		c.N = n
	default:
		return Choice{}, fmt.Errorf("%w: %q for node %q", ErrUnknownChoice, c.Type, key)
	}
	return c, nil
}
