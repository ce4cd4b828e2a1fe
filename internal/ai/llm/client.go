package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/medialens/pkg/models"
	"github.com/tmc/langchaingo/llms"
)

// Client wraps a langchaingo model for single-shot multimodal generation.
type Client struct {
	provider  string
	model     llms.Model
	modelName string
	maxTokens int
	timeout   time.Duration

	dataURLImages bool
	mapError      func(error) error
}

// NewClient creates a Client. A zero timeout leaves the caller's deadline alone.
func NewClient(provider string, model llms.Model, modelName string, maxTokens int, timeout time.Duration) *Client {
	return &Client{
		provider:  provider,
		model:     model,
		modelName: modelName,
		maxTokens: maxTokens,
		timeout:   timeout,
		mapError:  llms.NewErrorMapper(provider).Map,
	}
}

// WithErrorMapper replaces the generic langchaingo error mapper with a
// vendor-specific one such as openai.MapError.
func (c *Client) WithErrorMapper(fn func(error) error) *Client {
	c.mapError = fn
	return c
}

// WithDataURLImages makes the client send media as a base64 data URL image
// part. OpenAI-compatible backends reject langchaingo's binary part encoding.
func (c *Client) WithDataURLImages() *Client {
	c.dataURLImages = true
	return c
}

func (c *Client) ModelName() string { return c.modelName }

// Describe sends the media bytes and the prompt as one human message and
// returns the first choice.
func (c *Client) Describe(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	if len(data) == 0 {
		return models.AnalysisOutput{}, fmt.Errorf("%w: empty media payload", ErrInvalidInput)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var media llms.ContentPart = llms.BinaryPart(contentType, data)
	if c.dataURLImages {
		media = llms.ImageURLPart("data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data))
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{media, llms.TextPart(prompt)},
		},
	}

	opts := []llms.CallOption{}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	elapsed := time.Since(start)
	if err != nil {
		slog.Warn("generation failed", "provider", c.provider, "model", c.modelName,
			"duration_ms", elapsed.Milliseconds(), "error", err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.AnalysisOutput{}, fmt.Errorf("%w: %s: %v", ErrInferenceTimeout, c.provider, err)
		}
		return models.AnalysisOutput{}, ClassifyError(c.provider, c.mapError(err))
	}

	if len(resp.Choices) == 0 {
		return models.AnalysisOutput{}, fmt.Errorf("%w: no response choices", ErrInvalidResponse)
	}
	choice := resp.Choices[0]
	content := strings.TrimSpace(choice.Content)
	if content == "" {
		return models.AnalysisOutput{}, fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	return models.AnalysisOutput{
		Content:    content,
		TokensUsed: TokensFrom(choice.GenerationInfo),
		Duration:   elapsed,
		Model:      c.modelName,
	}, nil
}

// TokensFrom extracts a total token count from langchaingo generation info.
// Backends report usage under different keys; nil means none was reported.
func TokensFrom(info map[string]any) *int {
	if info == nil {
		return nil
	}
	if total, ok := asInt(info["TotalTokens"]); ok && total > 0 {
		return &total
	}
	for _, pair := range [][2]string{{"InputTokens", "OutputTokens"}, {"PromptTokens", "CompletionTokens"}} {
		in, okIn := asInt(info[pair[0]])
		out, okOut := asInt(info[pair[1]])
		if okIn || okOut {
			total := in + out
			return &total
		}
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
