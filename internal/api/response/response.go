package response

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// TablePage is the server side processing reply the results table expects.
// It is written without the data envelope.
type TablePage struct {
	Echo                string           `json:"sEcho,omitempty"`
	TotalRecords        int              `json:"totalRecords"`
	TotalDisplayRecords int              `json:"totalDisplayRecords"`
	Rows                []map[string]any `json:"rows"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

// NoContentAccepted acknowledges a request with 202 and an empty body.
func NoContentAccepted(w http.ResponseWriter) {
	w.WriteHeader(http.StatusAccepted)
}

func Table(w http.ResponseWriter, page TablePage) {
	if page.Rows == nil {
		page.Rows = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, page)
}

// Blob writes raw bytes, such as worker input documents or rendered files.
func Blob(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
