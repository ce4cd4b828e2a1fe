package prompt_test

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/medialens/internal/cache"
	"github.com/kiranshivaraju/medialens/internal/prompt"
	"github.com/kiranshivaraju/medialens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache is an in-memory cache.Cache.
type memCache struct {
	cache.Noop
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	lastTTL time.Duration
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.lastTTL = ttl
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memCache) DeleteMatching(_ context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestCachedSource_ReadThrough(t *testing.T) {
	inner := &fakeSource{records: []*models.PromptRecord{record(models.PromptTierMaster, nil, "M")}}
	mc := newMemCache()
	src := prompt.NewCachedSource(inner, mc, time.Minute)
	tenant := strPtr("!room:example.org")

	for i := 0; i < 3; i++ {
		got, err := src.ListActivePrompts(context.Background(), models.MediaKindImage, tenant)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "M", got[0].Content)
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, time.Minute, mc.lastTTL)
	assert.Contains(t, mc.data, cache.PromptKey("image", "!room:example.org"))

	require.NoError(t, src.Invalidate(context.Background(), models.MediaKindImage, tenant))
	_, err := src.ListActivePrompts(context.Background(), models.MediaKindImage, tenant)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedSource_CacheErrorFallsThrough(t *testing.T) {
	inner := &fakeSource{records: []*models.PromptRecord{record(models.PromptTierAudio, nil, "A")}}
	mc := newMemCache()
	mc.getErr = errors.New("redis down")
	src := prompt.NewCachedSource(inner, mc, time.Minute)

	got, err := src.ListActivePrompts(context.Background(), models.MediaKindAudio, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedSource_ZeroTTLDisables(t *testing.T) {
	inner := &fakeSource{}
	mc := newMemCache()
	src := prompt.NewCachedSource(inner, mc, 0)

	_, _ = src.ListActivePrompts(context.Background(), models.MediaKindVideo, nil)
	_, _ = src.ListActivePrompts(context.Background(), models.MediaKindVideo, nil)
	assert.Equal(t, 2, inner.calls)
	assert.Empty(t, mc.data)
}

func TestCachedSource_InnerErrorNotCached(t *testing.T) {
	inner := &fakeSource{err: errors.New("boom")}
	mc := newMemCache()
	src := prompt.NewCachedSource(inner, mc, time.Minute)

	_, err := src.ListActivePrompts(context.Background(), models.MediaKindVideo, nil)
	require.Error(t, err)
	assert.Empty(t, mc.data)
}

func TestCachedSource_GlobalInvalidateDropsTenantEntries(t *testing.T) {
	inner := &fakeSource{records: []*models.PromptRecord{record(models.PromptTierMaster, nil, "M")}}
	mc := newMemCache()
	src := prompt.NewCachedSource(inner, mc, time.Minute)
	ctx := context.Background()

	for _, tenant := range []*string{nil, strPtr("!a:example.org"), strPtr("!b:example.org")} {
		_, err := src.ListActivePrompts(ctx, models.MediaKindImage, tenant)
		require.NoError(t, err)
	}
	_, err := src.ListActivePrompts(ctx, models.MediaKindVideo, strPtr("!a:example.org"))
	require.NoError(t, err)
	require.Len(t, mc.data, 4)

	require.NoError(t, src.Invalidate(ctx, models.MediaKindImage, nil))
	assert.Equal(t, map[string]bool{cache.PromptKey("video", "!a:example.org"): true}, keysOf(mc))

	_, err = src.ListActivePrompts(ctx, models.MediaKindImage, strPtr("!b:example.org"))
	require.NoError(t, err)
	assert.Equal(t, 5, inner.calls)
}

func TestCachedSource_TenantInvalidateLeavesOthers(t *testing.T) {
	inner := &fakeSource{}
	mc := newMemCache()
	src := prompt.NewCachedSource(inner, mc, time.Minute)
	ctx := context.Background()

	_, _ = src.ListActivePrompts(ctx, models.MediaKindAudio, nil)
	_, _ = src.ListActivePrompts(ctx, models.MediaKindAudio, strPtr("!a:example.org"))
	_, _ = src.ListActivePrompts(ctx, models.MediaKindAudio, strPtr("!b:example.org"))

	require.NoError(t, src.Invalidate(ctx, models.MediaKindAudio, strPtr("!a:example.org")))
	assert.Equal(t, map[string]bool{
		cache.PromptKey("audio", ""):               true,
		cache.PromptKey("audio", "!b:example.org"): true,
	}, keysOf(mc))
}

func keysOf(m *memCache) map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.data))
	for k := range m.data {
		out[k] = true
	}
	return out
}
