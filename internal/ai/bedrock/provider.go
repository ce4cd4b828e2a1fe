// Package bedrock analyzes images and videos through the Bedrock Converse API.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/kiranshivaraju/medialens/internal/ai/llm"
	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

// Converser is the slice of the bedrockruntime client the provider needs.
type Converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type Provider struct {
	api              Converser
	model            string
	maxTokens        int
	timeout          time.Duration
	maxVideoDuration time.Duration
}

// NewProvider loads AWS credentials from the default chain for the configured region.
func NewProvider(ctx context.Context, cfg config.BedrockConfig, maxTokens int, timeout time.Duration) (*Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg, maxTokens, timeout), nil
}

// NewWithClient builds a Provider over an existing Converse client.
func NewWithClient(api Converser, cfg config.BedrockConfig, maxTokens int, timeout time.Duration) *Provider {
	return &Provider{
		api:              api,
		model:            cfg.Model,
		maxTokens:        maxTokens,
		timeout:          timeout,
		maxVideoDuration: cfg.MaxVideoDuration,
	}
}

func (p *Provider) Name() string { return "bedrock" }

func (p *Provider) Capabilities() models.Capabilities {
	return models.Capabilities{Image: true, Video: true, MaxVideoDuration: p.maxVideoDuration}
}

func (p *Provider) AnalyzeImage(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	format, ok := imageFormat(contentType)
	if !ok {
		return models.AnalysisOutput{}, fmt.Errorf("%w: bedrock image format %q", llm.ErrInvalidInput, contentType)
	}
	block := &types.ContentBlockMemberImage{Value: types.ImageBlock{
		Format: format,
		Source: &types.ImageSourceMemberBytes{Value: data},
	}}
	return p.converse(ctx, block, data, prompt)
}

func (p *Provider) AnalyzeVideo(ctx context.Context, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	format, ok := videoFormat(contentType)
	if !ok {
		return models.AnalysisOutput{}, fmt.Errorf("%w: bedrock video format %q", llm.ErrInvalidInput, contentType)
	}
	block := &types.ContentBlockMemberVideo{Value: types.VideoBlock{
		Format: format,
		Source: &types.VideoSourceMemberBytes{Value: data},
	}}
	return p.converse(ctx, block, data, prompt)
}

func (p *Provider) AnalyzeAudio(_ context.Context, _ []byte, _, _ string) (models.AnalysisOutput, error) {
	return models.AnalysisOutput{}, fmt.Errorf("%w: bedrock does not accept audio", llm.ErrUnsupportedMedia)
}

func (p *Provider) converse(ctx context.Context, media types.ContentBlock, data []byte, prompt string) (models.AnalysisOutput, error) {
	if len(data) == 0 {
		return models.AnalysisOutput{}, fmt.Errorf("%w: empty media payload", llm.ErrInvalidInput)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.model),
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				media,
				&types.ContentBlockMemberText{Value: prompt},
			},
		}},
	}
	if p.maxTokens > 0 {
		input.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(p.maxTokens))}
	}

	start := time.Now()
	out, err := p.api.Converse(ctx, input)
	elapsed := time.Since(start)
	if err != nil {
		return models.AnalysisOutput{}, classify(err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return models.AnalysisOutput{}, fmt.Errorf("%w: bedrock returned no message", llm.ErrInvalidResponse)
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return models.AnalysisOutput{}, fmt.Errorf("%w: empty content", llm.ErrInvalidResponse)
	}

	var tokens *int
	if out.Usage != nil && out.Usage.TotalTokens != nil {
		n := int(*out.Usage.TotalTokens)
		tokens = &n
	}

	return models.AnalysisOutput{
		Content:    content,
		TokensUsed: tokens,
		Duration:   elapsed,
		Model:      p.model,
	}, nil
}

// classify treats request validation failures as permanent. Throttling,
// service errors and timeouts are retried.
func classify(err error) error {
	var validation *types.ValidationException
	if errors.As(err, &validation) {
		return fmt.Errorf("%w: bedrock: %v", llm.ErrInvalidInput, err)
	}
	return llm.ClassifyError("bedrock", err)
}

func imageFormat(contentType string) (types.ImageFormat, bool) {
	switch baseType(contentType) {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	}
	return "", false
}

func videoFormat(contentType string) (types.VideoFormat, bool) {
	switch baseType(contentType) {
	case "video/mp4":
		return types.VideoFormatMp4, true
	case "video/quicktime":
		return types.VideoFormatMov, true
	case "video/webm":
		return types.VideoFormatWebm, true
	case "video/x-matroska":
		return types.VideoFormatMkv, true
	case "video/x-flv":
		return types.VideoFormatFlv, true
	case "video/mpeg":
		return types.VideoFormatMpeg, true
	case "video/x-ms-wmv":
		return types.VideoFormatWmv, true
	case "video/3gpp":
		return types.VideoFormatThreeGp, true
	}
	return "", false
}

func baseType(contentType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
}

var _ models.AnalysisProvider = (*Provider)(nil)
