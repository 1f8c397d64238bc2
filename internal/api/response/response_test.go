package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/fuzzjobs/internal/api/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]string{"status": "success"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "success", data["status"])
}

func TestCreated_SetsLocation(t *testing.T) {
	w := httptest.NewRecorder()
	response.Created(w, "/api/v1/jobs/abc", map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/v1/jobs/abc", w.Header().Get("Location"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "abc", body["data"].(map[string]any)["id"])
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	response.Accepted(w, map[string]string{"status": "pending"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pending", body["data"].(map[string]any)["status"])
}

func TestNoContentAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	response.NoContentAccepted(w)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestTable_NotEnveloped(t *testing.T) {
	w := httptest.NewRecorder()
	response.Table(w, response.TablePage{
		Echo:                "3",
		TotalRecords:        12,
		TotalDisplayRecords: 12,
		Rows:                []map[string]any{{"peak": 0.2}},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "3", body["sEcho"])
	assert.Equal(t, float64(12), body["totalRecords"])
	assert.Equal(t, float64(12), body["totalDisplayRecords"])
	assert.Len(t, body["rows"], 1)
	assert.NotContains(t, body, "data")
}

func TestTable_EmptyRowsIsArray(t *testing.T) {
	w := httptest.NewRecorder()
	response.Table(w, response.TablePage{})

	assert.JSONEq(t, `{"totalRecords":0,"totalDisplayRecords":0,"rows":[]}`, w.Body.String())
}

func TestBlob(t *testing.T) {
	w := httptest.NewRecorder()
	response.Blob(w, "application/pdf", []byte("%PDF"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF", w.Body.String())
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "JOB_NOT_FOUND", errBody["code"])
	assert.Equal(t, "Job not found", errBody["message"])
	assert.NotContains(t, errBody, "details")
}

func TestError_WithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload",
		map[string]string{"kind": "oneof"})

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "oneof", details["kind"])
}
