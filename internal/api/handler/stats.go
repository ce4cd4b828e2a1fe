package handler

import (
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/medialens/internal/api/response"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

type statsResponse struct {
	Jobs  map[models.JobStatus]int `json:"jobs"`
	Total int                      `json:"total"`
}

// Stats serves GET /api/v1/stats: job counts by status.
func (h *Jobs) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.jobs.CountJobsByStatus(r.Context())
	if err != nil {
		slog.Error("count jobs failed", "error", err)
		internalError(w)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	response.JSON(w, statsResponse{Jobs: counts, Total: total})
}
