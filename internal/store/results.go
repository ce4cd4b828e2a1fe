package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

const resultColumns = `id, job_id, subject_id, media_kind, analysis_kind, content, provider, model,
	tokens_used, processing_ms, created_at, updated_at`

// UpsertAnalysisResult writes a result keyed by (subject_id, analysis_kind).
// A second write for the same key replaces the content of the first.
func (s *PostgresStore) UpsertAnalysisResult(ctx context.Context, r *models.AnalysisResult) (*models.AnalysisResult, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := s.now()

	var out models.AnalysisResult
	err := s.pool.QueryRow(ctx,
		`INSERT INTO analysis_results (id, job_id, subject_id, media_kind, analysis_kind, content, provider, model,
		   tokens_used, processing_ms, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		 ON CONFLICT (subject_id, analysis_kind) DO UPDATE SET
		   job_id = EXCLUDED.job_id,
		   media_kind = EXCLUDED.media_kind,
		   content = EXCLUDED.content,
		   provider = EXCLUDED.provider,
		   model = EXCLUDED.model,
		   tokens_used = EXCLUDED.tokens_used,
		   processing_ms = EXCLUDED.processing_ms,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+resultColumns,
		r.ID, r.JobID, r.SubjectID, string(r.MediaKind), string(r.AnalysisKind), r.Content, r.Provider, r.Model,
		r.TokensUsed, r.ProcessingMS, now,
	).Scan(&out.ID, &out.JobID, &out.SubjectID, &out.MediaKind, &out.AnalysisKind, &out.Content,
		&out.Provider, &out.Model, &out.TokensUsed, &out.ProcessingMS, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert analysis result: %w", err)
	}
	return &out, nil
}

func (s *PostgresStore) ListResultsBySubject(ctx context.Context, subjectID string) ([]*models.AnalysisResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM analysis_results WHERE subject_id = $1 ORDER BY analysis_kind`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := []*models.AnalysisResult{}
	for rows.Next() {
		var r models.AnalysisResult
		if err := rows.Scan(&r.ID, &r.JobID, &r.SubjectID, &r.MediaKind, &r.AnalysisKind, &r.Content,
			&r.Provider, &r.Model, &r.TokensUsed, &r.ProcessingMS, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}
