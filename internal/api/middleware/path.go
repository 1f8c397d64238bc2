package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const workerPrefix = "/api/v1/back/"

// loggedPath hides the secret of worker URLs.
func loggedPath(r *http.Request) string {
	if !strings.HasPrefix(r.URL.Path, workerPrefix) {
		return r.URL.Path
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return workerPrefix + "..."
}
