// Package prompt builds the instruction text sent to analysis providers from
// the master, media-kind and tenant prompt tiers.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/medialens/pkg/models"
)

const separator = "\n\n"

// Source returns the active prompt records that may apply to a job.
// Implementations may return them in any order.
type Source interface {
	ListActivePrompts(ctx context.Context, kind models.MediaKind, tenantID *string) ([]*models.PromptRecord, error)
}

type Composer struct {
	source Source
}

func NewComposer(source Source) *Composer {
	return &Composer{source: source}
}

// Compose concatenates the master, kind and tenant tiers in that order.
// Missing or blank tiers contribute nothing; an empty result means no tier
// was configured.
func (c *Composer) Compose(ctx context.Context, kind models.MediaKind, tenantID *string) (string, error) {
	records, err := c.source.ListActivePrompts(ctx, kind, tenantID)
	if err != nil {
		return "", fmt.Errorf("load prompts for %s: %w", kind, err)
	}

	var master, perKind, perTenant *models.PromptRecord
	for _, r := range records {
		if r == nil || !r.Active {
			continue
		}
		switch {
		case r.Tier == models.PromptTierMaster && r.TenantID == nil:
			master = newer(master, r)
		case r.Tier == models.TierFor(kind) && r.TenantID == nil:
			perKind = newer(perKind, r)
		case r.Tier == models.TierFor(kind) && tenantID != nil && r.TenantID != nil && *r.TenantID == *tenantID:
			perTenant = newer(perTenant, r)
		}
	}

	parts := make([]string, 0, 3)
	for _, r := range []*models.PromptRecord{master, perKind, perTenant} {
		if r == nil {
			continue
		}
		if text := strings.TrimSpace(r.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, separator), nil
}

// newer keeps the most recently updated record when a source returns more
// than one for a tier.
func newer(cur, candidate *models.PromptRecord) *models.PromptRecord {
	if cur == nil || candidate.UpdatedAt.After(cur.UpdatedAt) {
		return candidate
	}
	return cur
}

// DefaultFor is the instruction used when no prompt tier is configured.
func DefaultFor(kind models.MediaKind) string {
	switch kind {
	case models.MediaKindAudio:
		return "Transcribe the spoken content of this audio recording."
	case models.MediaKindVideo:
		return "Describe what happens in this video, including people, objects, actions and any visible text."
	default:
		return "Describe this image, including people, objects, setting and any visible text."
	}
}
