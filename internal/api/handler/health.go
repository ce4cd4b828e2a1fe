package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/medialens/internal/api/response"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler checks database and cache connectivity. A nil cache is
// reported as disabled and does not degrade health.
func NewHealthHandler(db Pinger, c Pinger, providers []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"database": "ok", "cache": "ok"}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if c == nil {
			checks["cache"] = "disabled"
		} else if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] == "degraded" || checks["cache"] == "degraded" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":    "ok",
			"services":  checks,
			"providers": providers,
		})
	}
}
