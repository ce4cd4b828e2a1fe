package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranshivaraju/medialens/internal/ai/llm"
	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/pkg/models"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

// Provider implements models.AnalysisProvider against a local Ollama server.
// The configured model must be vision-capable (llava, llama3.2-vision, ...).
type Provider struct {
	client *llm.Client
}

func NewProvider(cfg config.OllamaConfig, maxTokens int, timeout time.Duration) (*Provider, error) {
	model, err := lcollama.New(
		lcollama.WithModel(cfg.Model),
		lcollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return &Provider{client: llm.NewClient("ollama", model, cfg.Model, maxTokens, timeout)}, nil
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) Capabilities() models.Capabilities {
	return models.Capabilities{Image: true}
}

func (p *Provider) AnalyzeImage(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	return p.client.Describe(ctx, data, contentType, prompt)
}

func (p *Provider) AnalyzeVideo(_ context.Context, _ []byte, _, _ string) (models.AnalysisOutput, error) {
	return models.AnalysisOutput{}, fmt.Errorf("%w: ollama does not accept video", llm.ErrUnsupportedMedia)
}

func (p *Provider) AnalyzeAudio(_ context.Context, _ []byte, _, _ string) (models.AnalysisOutput, error) {
	return models.AnalysisOutput{}, fmt.Errorf("%w: ollama does not accept audio", llm.ErrUnsupportedMedia)
}

var _ models.AnalysisProvider = (*Provider)(nil)
