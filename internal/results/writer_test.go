package results_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/medialens/internal/results"
	"github.com/kiranshivaraju/medialens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResultStore keeps one row per (subject, analysis kind).
type fakeResultStore struct {
	rows map[string]*models.AnalysisResult
	err  error
}

func (f *fakeResultStore) UpsertAnalysisResult(_ context.Context, r *models.AnalysisResult) (*models.AnalysisResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := r.SubjectID + "|" + string(r.AnalysisKind)
	if existing, ok := f.rows[key]; ok {
		r.ID = existing.ID
	} else {
		r.ID = uuid.New()
	}
	cp := *r
	f.rows[key] = &cp
	return &cp, nil
}

func (f *fakeResultStore) ListResultsBySubject(_ context.Context, subjectID string) ([]*models.AnalysisResult, error) {
	var out []*models.AnalysisResult
	for _, r := range f.rows {
		if r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func testJob(kind models.MediaKind) *models.Job {
	return &models.Job{ID: uuid.New(), SubjectID: "$event:example.org", MediaKind: kind}
}

func TestStore_DerivesAnalysisKind(t *testing.T) {
	fs := &fakeResultStore{rows: map[string]*models.AnalysisResult{}}
	w := results.NewWriter(fs, 0)
	tokens := 77

	saved, err := w.Store(context.Background(), testJob(models.MediaKindAudio), models.AnalysisOutput{
		Content: "hello world", TokensUsed: &tokens, Duration: 1500 * time.Millisecond, Model: "whisper-1",
	}, "openai")
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisKindTranscription, saved.AnalysisKind)
	assert.Equal(t, "openai", saved.Provider)
	assert.Equal(t, "whisper-1", saved.Model)
	assert.Equal(t, int64(1500), saved.ProcessingMS)
	assert.Equal(t, &tokens, saved.TokensUsed)

	saved, err = w.Store(context.Background(), testJob(models.MediaKindVideo), models.AnalysisOutput{Content: "x"}, "bedrock")
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisKindDescription, saved.AnalysisKind)
}

func TestStore_RerunReplaces(t *testing.T) {
	fs := &fakeResultStore{rows: map[string]*models.AnalysisResult{}}
	w := results.NewWriter(fs, 0)
	job := testJob(models.MediaKindImage)

	first, err := w.Store(context.Background(), job, models.AnalysisOutput{Content: "first"}, "ollama")
	require.NoError(t, err)
	second, err := w.Store(context.Background(), job, models.AnalysisOutput{Content: "second"}, "ollama")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	rows, _ := fs.ListResultsBySubject(context.Background(), job.SubjectID)
	require.Len(t, rows, 1)
	assert.Equal(t, "second", rows[0].Content)
}

func TestStore_WrapsFailure(t *testing.T) {
	w := results.NewWriter(&fakeResultStore{err: errors.New("connection refused")}, 0)

	_, err := w.Store(context.Background(), testJob(models.MediaKindImage), models.AnalysisOutput{Content: "x"}, "ollama")
	assert.ErrorIs(t, err, results.ErrWriteFailed)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", results.Truncate("short", 100))
	assert.Equal(t, "unbounded", results.Truncate("unbounded", 0))

	long := strings.Repeat("a", 200)
	got := results.Truncate(long, 50)
	assert.LessOrEqual(t, len(got), 50)
	assert.True(t, strings.HasSuffix(got, "[truncated]"))

	// Multi-byte runes are never split.
	emoji := strings.Repeat("日本語", 40)
	for _, limit := range []int{13, 14, 15, 16, 31, 32} {
		got := results.Truncate(emoji, limit)
		assert.True(t, utf8.ValidString(got), "limit %d", limit)
		assert.LessOrEqual(t, len(got), limit)
	}
}
