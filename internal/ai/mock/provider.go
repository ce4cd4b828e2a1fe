package mock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/medialens/internal/ai"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

type AnalyzeFunc func(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error)

// MockProvider satisfies models.AnalysisProvider for testing.
type MockProvider struct {
	Name_            string
	Caps             models.Capabilities
	AnalyzeImageFunc AnalyzeFunc
	AnalyzeVideoFunc AnalyzeFunc
	AnalyzeAudioFunc AnalyzeFunc

	calls atomic.Int64
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Capabilities() models.Capabilities { return m.Caps }

// Calls returns how many Analyze* calls the provider has served.
func (m *MockProvider) Calls() int { return int(m.calls.Load()) }

func (m *MockProvider) AnalyzeImage(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	return m.call(ctx, m.AnalyzeImageFunc, data, contentType, prompt)
}

func (m *MockProvider) AnalyzeVideo(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	return m.call(ctx, m.AnalyzeVideoFunc, data, contentType, prompt)
}

func (m *MockProvider) AnalyzeAudio(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	return m.call(ctx, m.AnalyzeAudioFunc, data, contentType, prompt)
}

func (m *MockProvider) call(ctx context.Context, fn AnalyzeFunc, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	m.calls.Add(1)
	if fn == nil {
		return models.AnalysisOutput{}, ai.ErrUnsupportedMedia
	}
	return fn(ctx, data, contentType, prompt)
}

// NewMockProvider returns a MockProvider that accepts every kind and answers
// with a fixed description.
func NewMockProvider() *MockProvider {
	respond := func(_ context.Context, _ []byte, _, prompt string) (models.AnalysisOutput, error) {
		tokens := 42
		return models.AnalysisOutput{
			Content:    "Mock analysis for prompt: " + prompt,
			TokensUsed: &tokens,
			Duration:   10 * time.Millisecond,
			Model:      "mock-v1",
		}, nil
	}
	return &MockProvider{
		Name_:            "mock",
		Caps:             models.Capabilities{Image: true, Video: true, Audio: true},
		AnalyzeImageFunc: respond,
		AnalyzeVideoFunc: respond,
		AnalyzeAudioFunc: respond,
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	fail := func(context.Context, []byte, string, string) (models.AnalysisOutput, error) {
		return models.AnalysisOutput{}, err
	}
	return &MockProvider{
		Name_:            "mock-failing",
		Caps:             models.Capabilities{Image: true, Video: true, Audio: true},
		AnalyzeImageFunc: fail,
		AnalyzeVideoFunc: fail,
		AnalyzeAudioFunc: fail,
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	block := func(ctx context.Context, _ []byte, _, _ string) (models.AnalysisOutput, error) {
		<-ctx.Done()
		return models.AnalysisOutput{}, ai.ErrInferenceTimeout
	}
	return &MockProvider{
		Name_:            "mock-timeout",
		Caps:             models.Capabilities{Image: true, Video: true, Audio: true},
		AnalyzeImageFunc: block,
		AnalyzeVideoFunc: block,
		AnalyzeAudioFunc: block,
	}
}

// Compile-time check that MockProvider implements AnalysisProvider.
var _ models.AnalysisProvider = (*MockProvider)(nil)
