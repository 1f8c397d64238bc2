// Package analysis turns decoded result documents into the numeric summaries
// stored for each configuration. It is shared by the worker ingestion path and
// the standalone analysis server client.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
	"github.com/kiranshivaraju/fuzzjobs/pkg/resultxml"
)

// ErrMalformedNumber is returned when a numeric field cannot be parsed.
var ErrMalformedNumber = errors.New("malformed number")

// Values is the storage-ready summary of one result. Nil fields were absent
// from the source record or were not-a-number.
type Values struct {
	Points      []models.Point
	Minimum     *float64
	Maximum     *float64
	Peak        *float64
	Reliability *float64
	MTTF        *float64
	Rounds      *int64
	Failures    *int64
	Ratio       *float64
}

// InterpretValue computes the numeric summary of a result.
//
// Alpha cuts are ordered by key and the cut at position i of N gets the
// membership level (i+1)/N. Each cut contributes its lower bound and, when it
// differs, its upper bound. Points are sorted ascending by x, then y.
// Minimum and Maximum are the extreme x values; Peak is the x of the first
// point with the highest membership level.
func InterpretValue(r resultxml.Result) (Values, error) {
	var v Values

	if r.Probability != nil {
		points, err := probabilityPoints(r.Probability)
		if err != nil {
			return Values{}, fmt.Errorf("result %q: %w", r.ID, err)
		}
		if len(points) > 0 {
			v.Points = points
			v.Minimum, v.Maximum, v.Peak = summarize(points)
		}
	}

	var err error
	if v.Reliability, err = optionalFloat("reliability", r.Reliability); err != nil {
		return Values{}, fmt.Errorf("result %q: %w", r.ID, err)
	}
	if v.MTTF, err = optionalFloat("mttf", r.MTTF); err != nil {
		return Values{}, fmt.Errorf("result %q: %w", r.ID, err)
	}
	if v.Rounds, err = optionalInt("nSimulatedRounds", r.Rounds); err != nil {
		return Values{}, fmt.Errorf("result %q: %w", r.ID, err)
	}
	if v.Failures, err = optionalInt("nFailures", r.Failures); err != nil {
		return Values{}, fmt.Errorf("result %q: %w", r.ID, err)
	}

	if v.Rounds != nil && v.Failures != nil && *v.Rounds > 0 {
		ratio := float64(*v.Failures) / float64(*v.Rounds)
		v.Ratio = &ratio
	}

	return v, nil
}

// probabilityPoints samples the membership function. A crisp probability is
// a single degenerate cut at full membership.
func probabilityPoints(p *resultxml.Probability) ([]models.Point, error) {
	if p.Value != nil && len(p.AlphaCuts) == 0 {
		x, err := parseFloat("probability", *p.Value)
		if err != nil {
			return nil, err
		}
		return []models.Point{{x, 1}}, nil
	}

	type cut struct {
		key          int
		lower, upper float64
	}

	cuts := make([]cut, 0, len(p.AlphaCuts))
	for _, ac := range p.AlphaCuts {
		key, err := strconv.Atoi(ac.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: alpha cut key %q", ErrMalformedNumber, ac.Key)
		}
		lower, err := parseFloat("lowerBound", ac.LowerBound)
		if err != nil {
			return nil, err
		}
		upper, err := parseFloat("upperBound", ac.UpperBound)
		if err != nil {
			return nil, err
		}
		cuts = append(cuts, cut{key: key, lower: lower, upper: upper})
	}
	sort.SliceStable(cuts, func(i, j int) bool { return cuts[i].key < cuts[j].key })

	n := float64(len(cuts))
	points := make([]models.Point, 0, 2*len(cuts))
	for i, c := range cuts {
		y := float64(i+1) / n
		points = append(points, models.Point{c.lower, y})
		if c.upper != c.lower {
			points = append(points, models.Point{c.upper, y})
		}
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i][0] != points[j][0] {
			return points[i][0] < points[j][0]
		}
		return points[i][1] < points[j][1]
	})
	return points, nil
}

func summarize(points []models.Point) (minimum, maximum, peak *float64) {
	lo, hi := points[0][0], points[0][0]
	tip := points[0]
	for _, p := range points[1:] {
		lo = math.Min(lo, p[0])
		hi = math.Max(hi, p[0])
		if p[1] > tip[1] {
			tip = p
		}
	}
	px := tip[0]
	return &lo, &hi, &px
}

// InterpretIssues splits issues into fatal errors and warnings, keeping the
// document order within each group. An empty issueId is reported as 0.
func InterpretIssues(issues []resultxml.Issue) (models.Issues, error) {
	var out models.Issues
	for _, is := range issues {
		id := 0
		if is.IssueID != "" {
			n, err := strconv.Atoi(is.IssueID)
			if err != nil {
				return models.Issues{}, fmt.Errorf("%w: issueId %q", ErrMalformedNumber, is.IssueID)
			}
			id = n
		}
		entry := models.Issue{Message: is.Message, IssueID: id, ElementID: is.ElementID}
		if is.IsFatal {
			out.Errors = append(out.Errors, entry)
		} else {
			out.Warnings = append(out.Warnings, entry)
		}
	}
	return out, nil
}

func parseFloat(field, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformedNumber, field, s)
	}
	return f, nil
}

// optionalFloat stores NaN as nil. Anything else that does not parse is an error.
func optionalFloat(field string, s *string) (*float64, error) {
	if s == nil {
		return nil, nil
	}
	f, err := parseFloat(field, *s)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) {
		return nil, nil
	}
	return &f, nil
}

// optionalInt reads a count. Counts are never negative and must fit in an int64.
func optionalInt(field string, s *string) (*int64, error) {
	f, err := optionalFloat(field, s)
	if err != nil || f == nil {
		return nil, err
	}
	if math.IsInf(*f, 0) || *f < 0 || *f >= math.MaxInt64 {
		return nil, fmt.Errorf("%w: %s %q out of range", ErrMalformedNumber, field, *s)
	}
	n := int64(*f)
	return &n, nil
}
