package vllm

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranshivaraju/medialens/internal/ai/llm"
	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/pkg/models"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// vLLM ignores the token but the OpenAI client refuses to start without one.
const placeholderToken = "vllm"

// Provider implements models.AnalysisProvider against vLLM's OpenAI-compatible
// server.
type Provider struct {
	client *llm.Client
}

func NewProvider(cfg config.VLLMConfig, maxTokens int, timeout time.Duration) (*Provider, error) {
	model, err := lcopenai.New(
		lcopenai.WithToken(placeholderToken),
		lcopenai.WithModel(cfg.Model),
		lcopenai.WithBaseURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create vllm model: %w", err)
	}
	client := llm.NewClient("vllm", model, cfg.Model, maxTokens, timeout).
		WithDataURLImages().
		WithErrorMapper(lcopenai.MapError)
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string { return "vllm" }

func (p *Provider) Capabilities() models.Capabilities {
	return models.Capabilities{Image: true}
}

func (p *Provider) AnalyzeImage(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	return p.client.Describe(ctx, data, contentType, prompt)
}

func (p *Provider) AnalyzeVideo(_ context.Context, _ []byte, _, _ string) (models.AnalysisOutput, error) {
	return models.AnalysisOutput{}, fmt.Errorf("%w: vllm does not accept video", llm.ErrUnsupportedMedia)
}

func (p *Provider) AnalyzeAudio(_ context.Context, _ []byte, _, _ string) (models.AnalysisOutput, error) {
	return models.AnalysisOutput{}, fmt.Errorf("%w: vllm does not accept audio", llm.ErrUnsupportedMedia)
}

var _ models.AnalysisProvider = (*Provider)(nil)
