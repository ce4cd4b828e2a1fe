package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

const promptColumns = `id, tier, tenant_id, content, active, created_at, updated_at`

// ListActivePrompts returns the active records that can contribute to a prompt
// for kind: the global master, the global kind prompt and, when tenantID is
// set, the tenant's kind prompt. Order is unspecified.
func (s *PostgresStore) ListActivePrompts(ctx context.Context, kind models.MediaKind, tenantID *string) ([]*models.PromptRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+promptColumns+` FROM analysis_prompts
		 WHERE active AND (
		   (tier = 'master' AND tenant_id IS NULL)
		   OR (tier = $1 AND tenant_id IS NULL)
		   OR (tier = $1 AND $2::text IS NOT NULL AND tenant_id = $2::text)
		 )`, string(models.TierFor(kind)), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list active prompts: %w", err)
	}
	defer rows.Close()

	var prompts []*models.PromptRecord
	for rows.Next() {
		var p models.PromptRecord
		if err := rows.Scan(&p.ID, &p.Tier, &p.TenantID, &p.Content, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, &p)
	}
	return prompts, rows.Err()
}

// SetPrompt deactivates the current record for (tier, tenant) and inserts
// content as the new active one.
func (s *PostgresStore) SetPrompt(ctx context.Context, tier models.PromptTier, tenantID *string, content string) (*models.PromptRecord, error) {
	if tier == models.PromptTierMaster && tenantID != nil {
		return nil, fmt.Errorf("master prompts cannot be tenant scoped")
	}

	var p models.PromptRecord
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		now := s.now()
		if _, err := tx.Exec(ctx,
			`UPDATE analysis_prompts SET active = FALSE, updated_at = $3
			 WHERE active AND tier = $1 AND tenant_id IS NOT DISTINCT FROM $2::text`,
			string(tier), tenantID, now); err != nil {
			return fmt.Errorf("deactivate prompt: %w", err)
		}

		return tx.QueryRow(ctx,
			`INSERT INTO analysis_prompts (tier, tenant_id, content, active, created_at, updated_at)
			 VALUES ($1, $2, $3, TRUE, $4, $4)
			 RETURNING `+promptColumns,
			string(tier), tenantID, content, now,
		).Scan(&p.ID, &p.Tier, &p.TenantID, &p.Content, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("set prompt: %w", err)
	}
	return &p, nil
}
