package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/medialens/internal/api/response"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

// statusTTL matches the worker's mirror lifetime.
const statusTTL = 24 * time.Hour

type statusResponse struct {
	SubjectID string           `json:"subject_id"`
	Status    models.JobStatus `json:"status"`
	Cached    bool             `json:"cached"`
}

// Status serves GET /api/v1/jobs/{subjectID}/status. The Redis mirror answers
// first; a miss or cache error falls back to the store and refills the mirror.
func (h *Jobs) Status(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	if h.cache != nil {
		status, ok, err := h.cache.GetJobStatus(r.Context(), subjectID)
		if err != nil {
			slog.Warn("status mirror read failed", "subject_id", subjectID, "error", err)
		}
		if ok && models.JobStatus(status).Valid() {
			response.JSON(w, statusResponse{SubjectID: subjectID, Status: models.JobStatus(status), Cached: true})
			return
		}
	}

	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.mirror(r, subjectID, job.Status)
	response.JSON(w, statusResponse{SubjectID: subjectID, Status: job.Status})
}

func (h *Jobs) mirror(r *http.Request, subjectID string, status models.JobStatus) {
	if h.cache == nil {
		return
	}
	if err := h.cache.SetJobStatus(r.Context(), subjectID, string(status), statusTTL); err != nil {
		slog.Debug("status mirror failed", "subject_id", subjectID, "error", err)
	}
}
