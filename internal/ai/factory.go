package ai

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/medialens/internal/ai/anthropic"
	"github.com/kiranshivaraju/medialens/internal/ai/bedrock"
	"github.com/kiranshivaraju/medialens/internal/ai/ollama"
	"github.com/kiranshivaraju/medialens/internal/ai/openai"
	"github.com/kiranshivaraju/medialens/internal/ai/vllm"
	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

// NewProvider constructs the named AI provider from config.
// Called once per distinct provider at startup.
func NewProvider(ctx context.Context, name string, cfg config.AIConfig) (models.AnalysisProvider, error) {
	switch name {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.MaxTokens, cfg.InferenceTimeout)
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, cfg.MaxTokens, cfg.InferenceTimeout)
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		return openai.NewProvider(cfg.OpenAI, cfg.MaxTokens, cfg.InferenceTimeout)
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY")
		}
		return anthropic.NewProvider(cfg.Anthropic, cfg.MaxTokens, cfg.InferenceTimeout)
	case "bedrock":
		return bedrock.NewProvider(ctx, cfg.Bedrock, cfg.MaxTokens, cfg.InferenceTimeout)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, anthropic, ollama, vllm, bedrock", name)
	}
}
