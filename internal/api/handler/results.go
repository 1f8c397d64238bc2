package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kiranshivaraju/fuzzjobs/internal/api/response"
	"github.com/kiranshivaraju/fuzzjobs/internal/store"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

const (
	defaultPageLength = 10
	maxPageLength     = 100
)

// NewResultsHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/results.
// It speaks the server side protocol of the results table: iDisplayStart and
// iDisplayLength select the page, iSortCol_0 names a column whose field is
// given by mDataProp_<col>, sSortDir_0 is asc or desc.
func NewResultsHandler(lister ResultLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		q := r.URL.Query()
		offset, err := intParam(q, "iDisplayStart", 0)
		if err != nil || offset < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "iDisplayStart must be a non-negative integer", nil)
			return
		}
		limit, err := intParam(q, "iDisplayLength", defaultPageLength)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "iDisplayLength must be an integer", nil)
			return
		}
		if limit <= 0 {
			limit = defaultPageLength
		}
		if limit > maxPageLength {
			limit = maxPageLength
		}

		orderBy, err := sortParam(q)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_SORT", err.Error(), nil)
			return
		}

		results, total, err := lister.ListResults(r.Context(), store.ResultFilter{
			JobID:   jobID,
			Offset:  offset,
			Limit:   limit,
			OrderBy: orderBy,
		})
		if err != nil {
			if errors.Is(err, store.ErrInvalidSort) {
				response.Error(w, http.StatusBadRequest, "INVALID_SORT", err.Error(), nil)
				return
			}
			slog.ErrorContext(r.Context(), "list results failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		rows := make([]map[string]any, 0, len(results))
		for _, res := range results {
			rows = append(rows, resultRow(res))
		}
		response.Table(w, response.TablePage{
			Echo:                q.Get("sEcho"),
			TotalRecords:        total,
			TotalDisplayRecords: total,
			Rows:                rows,
		})
	}
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// sortParam only honours the first sorting column.
func sortParam(q url.Values) (string, error) {
	cols, err := intParam(q, "iSortingCols", 0)
	if err != nil {
		return "", errors.New("iSortingCols must be an integer")
	}
	if cols == 0 {
		return "", nil
	}

	col := q.Get("iSortCol_0")
	if _, err := strconv.Atoi(col); err != nil {
		return "", errors.New("iSortCol_0 must be a column index")
	}
	field := q.Get("mDataProp_" + col)
	if _, ok := store.SortableResultFields[field]; !ok {
		return "", errors.New("column " + strconv.Quote(field) + " is not sortable")
	}

	switch q.Get("sSortDir_0") {
	case "", "asc":
		return field, nil
	case "desc":
		return "-" + field, nil
	default:
		return "", errors.New("sSortDir_0 must be asc or desc")
	}
}

// resultRow flattens a result into the shape the table renders. Numeric
// fields that are not set are left out.
func resultRow(res *models.Result) map[string]any {
	row := map[string]any{
		"id":   res.ID,
		"kind": res.Kind,
	}
	putFloat(row, "minimum", res.Minimum)
	putFloat(row, "maximum", res.Maximum)
	putFloat(row, "peak", res.Peak)
	putFloat(row, "reliability", res.Reliability)
	putFloat(row, "mttf", res.MTTF)
	putFloat(row, "ratio", res.Ratio)
	if res.Rounds != nil {
		row["rounds"] = *res.Rounds
	}
	if res.Failures != nil {
		row["failures"] = *res.Failures
	}
	if len(res.Points) > 0 {
		row["points"] = res.Points
	}
	if c := res.Configuration; c != nil {
		row["configuration"] = c.ID
		row["costs"] = c.Costs
		choices := c.Choices
		if choices == nil {
			choices = map[int64]models.ChoiceSetting{}
		}
		row["choices"] = choices
	}
	if res.Issues != nil && !res.Issues.Empty() {
		row["issues"] = res.Issues
	}
	return row
}

func putFloat(row map[string]any, key string, v *float64) {
	if v != nil {
		row[key] = *v
	}
}
