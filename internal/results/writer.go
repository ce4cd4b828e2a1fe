// Package results persists provider output for a job.
package results

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/kiranshivaraju/medialens/internal/store"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

// ErrWriteFailed wraps any persistence failure. The job is retried.
var ErrWriteFailed = errors.New("result write failed")

const truncationMarker = "\n[truncated]"

type Writer struct {
	store    store.ResultStore
	maxBytes int
}

// NewWriter creates a Writer. maxBytes <= 0 disables truncation.
func NewWriter(s store.ResultStore, maxBytes int) *Writer {
	return &Writer{store: s, maxBytes: maxBytes}
}

// Store upserts the analysis for job keyed by its subject and analysis kind.
// Re-running a job replaces the earlier row instead of adding one.
func (w *Writer) Store(ctx context.Context, job *models.Job, out models.AnalysisOutput, providerName string) (*models.AnalysisResult, error) {
	result := &models.AnalysisResult{
		JobID:        job.ID,
		SubjectID:    job.SubjectID,
		MediaKind:    job.MediaKind,
		AnalysisKind: job.MediaKind.AnalysisKind(),
		Content:      Truncate(out.Content, w.maxBytes),
		Provider:     providerName,
		Model:        out.Model,
		TokensUsed:   out.TokensUsed,
		ProcessingMS: out.Duration.Milliseconds(),
	}

	saved, err := w.store.UpsertAnalysisResult(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %s: %v", ErrWriteFailed, job.SubjectID, err)
	}
	return saved, nil
}

// Truncate shortens s to at most maxBytes without splitting a UTF-8 sequence,
// appending a marker when anything was cut.
func Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	limit := maxBytes - len(truncationMarker)
	if limit <= 0 {
		limit = maxBytes
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	if limit+len(truncationMarker) > maxBytes {
		return s[:limit]
	}
	return s[:limit] + truncationMarker
}
