package prompt

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/medialens/internal/cache"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

// CachedSource is a read-through cache in front of another Source.
// Cache failures are logged and fall through to the inner source.
type CachedSource struct {
	inner Source
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedSource wraps inner. A non-positive ttl disables caching.
func NewCachedSource(inner Source, c cache.Cache, ttl time.Duration) *CachedSource {
	return &CachedSource{inner: inner, cache: c, ttl: ttl}
}

func (s *CachedSource) ListActivePrompts(ctx context.Context, kind models.MediaKind, tenantID *string) ([]*models.PromptRecord, error) {
	if s.ttl <= 0 || s.cache == nil {
		return s.inner.ListActivePrompts(ctx, kind, tenantID)
	}

	tenant := ""
	if tenantID != nil {
		tenant = *tenantID
	}
	key := cache.PromptKey(string(kind), tenant)

	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("prompt cache read failed", "key", key, "error", err)
	}
	if ok {
		var records []*models.PromptRecord
		if err := json.Unmarshal(raw, &records); err == nil {
			return records, nil
		}
		slog.Warn("prompt cache entry corrupt, reloading", "key", key)
	}

	records, err := s.inner.ListActivePrompts(ctx, kind, tenantID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(records); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			slog.Warn("prompt cache write failed", "key", key, "error", err)
		}
	}
	return records, nil
}

// Invalidate drops the cached records for kind and tenant. A nil tenant means
// a global prompt changed, and every tenant's composition includes it, so all
// entries for kind are dropped.
func (s *CachedSource) Invalidate(ctx context.Context, kind models.MediaKind, tenantID *string) error {
	if s.cache == nil {
		return nil
	}
	if tenantID != nil {
		return s.cache.Delete(ctx, cache.PromptKey(string(kind), *tenantID))
	}
	if err := s.cache.Delete(ctx, cache.PromptKey(string(kind), "")); err != nil {
		return err
	}
	n, err := s.cache.DeleteMatching(ctx, cache.PromptTenantsPattern(string(kind)))
	if err != nil {
		return err
	}
	slog.Debug("prompt cache invalidated", "media_kind", kind, "tenant_entries", n)
	return nil
}
