package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/medialens/internal/api/middleware"
	"github.com/kiranshivaraju/medialens/internal/api/response"
	"github.com/kiranshivaraju/medialens/internal/cache"
	"github.com/kiranshivaraju/medialens/internal/store"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

// ResultLister reads stored analysis results.
type ResultLister interface {
	ListResultsBySubject(ctx context.Context, subjectID string) ([]*models.AnalysisResult, error)
}

// Jobs serves the job inspection and requeue endpoints.
type Jobs struct {
	jobs    store.JobAdmin
	results ResultLister
	cache   cache.Cache
}

// NewJobs builds the job handlers. c may be nil.
func NewJobs(jobs store.JobAdmin, results ResultLister, c cache.Cache) *Jobs {
	return &Jobs{jobs: jobs, results: results, cache: c}
}

// Get serves GET /api/v1/jobs/{subjectID}.
func (h *Jobs) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, job)
}

// Results serves GET /api/v1/jobs/{subjectID}/results.
func (h *Jobs) Results(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	results, err := h.results.ListResultsBySubject(r.Context(), job.SubjectID)
	if err != nil {
		slog.Error("list results failed", "subject_id", job.SubjectID, "error", err)
		internalError(w)
		return
	}
	if results == nil {
		results = []*models.AnalysisResult{}
	}
	response.Collection(w, results, len(results))
}

// Requeue serves POST /api/v1/jobs/{subjectID}/requeue. Only failed jobs
// can be requeued.
func (h *Jobs) Requeue(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	job, err := h.jobs.RequeueJob(r.Context(), subjectID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		notFound(w, subjectID)
		return
	case errors.Is(err, store.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
		return
	case err != nil:
		slog.Error("requeue failed", "subject_id", subjectID, "error", err)
		internalError(w)
		return
	}

	caller, _ := mw.GetCaller(r)
	slog.Info("job requeued", "subject_id", subjectID, "job_id", job.ID, "requested_by", caller.Name)

	h.mirror(r, subjectID, job.Status)
	response.Accepted(w, job)
}

func (h *Jobs) lookup(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	subjectID := chi.URLParam(r, "subjectID")
	job, err := h.jobs.GetJobBySubject(r.Context(), subjectID)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, subjectID)
		return nil, false
	}
	if err != nil {
		slog.Error("get job failed", "subject_id", subjectID, "error", err)
		internalError(w)
		return nil, false
	}
	return job, true
}

func notFound(w http.ResponseWriter, subjectID string) {
	response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND",
		"No job for subject "+subjectID, nil)
}

func internalError(w http.ResponseWriter) {
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"An unexpected error occurred", nil)
}
