package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/medialens/internal/api/response"
)

// Recovery converts a handler panic into a 500 envelope. The matched route and
// subject id are logged with the stack so a bad job row can be traced back.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			attrs := []any{
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", chimw.GetReqID(r.Context()),
			}
			// chi fills the route context in place while routing, so the
			// outer request already carries the matched pattern and params.
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, "route", pattern)
				}
				if id := rctx.URLParam("subjectID"); id != "" {
					attrs = append(attrs, "subject_id", id)
				}
			}
			attrs = append(attrs, "stack", string(debug.Stack()))
			slog.Error("handler panicked", attrs...)

			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
