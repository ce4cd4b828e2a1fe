package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/medialens/pkg/models"
	postgrest "github.com/supabase-community/postgrest-go"
)

const promptTable = "analysis_prompts"

// SupabaseSource reads prompt records over Supabase's PostgREST API.
type SupabaseSource struct {
	client *postgrest.Client
}

// NewSupabaseSource connects to {url}/rest/v1 using the service role key.
func NewSupabaseSource(url, serviceKey string) (*SupabaseSource, error) {
	client := postgrest.NewClient(strings.TrimRight(url, "/")+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("init supabase client: %w", client.ClientError)
	}
	return &SupabaseSource{client: client}, nil
}

// ListActivePrompts fetches master and kind-tier records for the global scope
// and, when set, the tenant scope. The composer discards anything else.
// postgrest-go has no context support, so ctx is only checked up front.
func (s *SupabaseSource) ListActivePrompts(ctx context.Context, kind models.MediaKind, tenantID *string) ([]*models.PromptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := s.client.From(promptTable).
		Select("id,tier,tenant_id,content,active,created_at,updated_at", "", false).
		Eq("active", "true").
		In("tier", []string{string(models.PromptTierMaster), string(models.TierFor(kind))})
	if tenantID != nil {
		q = q.Or("tenant_id.is.null,tenant_id.eq."+quoteFilterValue(*tenantID), "")
	} else {
		q = q.Is("tenant_id", "null")
	}

	body, _, err := q.Execute()
	if err != nil {
		return nil, fmt.Errorf("supabase list prompts: %w", err)
	}

	var records []*models.PromptRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode supabase prompts: %w", err)
	}
	return records, nil
}

// quoteFilterValue wraps a value in double quotes so reserved characters such
// as ',' ':' and '.' survive inside a PostgREST logical filter.
func quoteFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
