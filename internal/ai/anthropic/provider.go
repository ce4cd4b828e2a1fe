package anthropic

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranshivaraju/medialens/internal/ai/llm"
	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/pkg/models"
	lcanthropic "github.com/tmc/langchaingo/llms/anthropic"
)

// Provider implements models.AnalysisProvider using Anthropic's Messages API.
// Only images are accepted.
type Provider struct {
	client *llm.Client
}

func NewProvider(cfg config.AnthropicConfig, maxTokens int, timeout time.Duration) (*Provider, error) {
	model, err := lcanthropic.New(
		lcanthropic.WithToken(cfg.APIKey),
		lcanthropic.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	client := llm.NewClient("anthropic", model, cfg.Model, maxTokens, timeout).WithErrorMapper(lcanthropic.MapError)
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Capabilities() models.Capabilities {
	return models.Capabilities{Image: true}
}

func (p *Provider) AnalyzeImage(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	return p.client.Describe(ctx, data, contentType, prompt)
}

func (p *Provider) AnalyzeVideo(_ context.Context, _ []byte, _, _ string) (models.AnalysisOutput, error) {
	return models.AnalysisOutput{}, fmt.Errorf("%w: anthropic does not accept video", llm.ErrUnsupportedMedia)
}

func (p *Provider) AnalyzeAudio(_ context.Context, _ []byte, _, _ string) (models.AnalysisOutput, error) {
	return models.AnalysisOutput{}, fmt.Errorf("%w: anthropic does not accept audio", llm.ErrUnsupportedMedia)
}

var _ models.AnalysisProvider = (*Provider)(nil)
