package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kiranshivaraju/medialens/internal/ai/llm"
	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/pkg/models"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// Provider implements models.AnalysisProvider using OpenAI. Images go through
// the chat completions API; audio goes through the transcription endpoint.
type Provider struct {
	cfg        config.OpenAIConfig
	client     *llm.Client
	httpClient *http.Client
	timeout    time.Duration
}

func NewProvider(cfg config.OpenAIConfig, maxTokens int, timeout time.Duration) (*Provider, error) {
	opts := []lcopenai.Option{
		lcopenai.WithToken(cfg.APIKey),
		lcopenai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
	}
	model, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}

	return &Provider{
		cfg:        cfg,
		client:     llm.NewClient("openai", model, cfg.Model, maxTokens, timeout).
			WithDataURLImages().
			WithErrorMapper(lcopenai.MapError),
		httpClient: &http.Client{},
		timeout:    timeout,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Capabilities() models.Capabilities {
	return models.Capabilities{Image: true, Audio: true}
}

func (p *Provider) AnalyzeImage(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	return p.client.Describe(ctx, data, contentType, prompt)
}

func (p *Provider) AnalyzeVideo(_ context.Context, _ []byte, _, _ string) (models.AnalysisOutput, error) {
	return models.AnalysisOutput{}, fmt.Errorf("%w: openai does not accept video", llm.ErrUnsupportedMedia)
}

func (p *Provider) AnalyzeAudio(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	return p.transcribe(ctx, data, contentType, prompt)
}

var _ models.AnalysisProvider = (*Provider)(nil)
