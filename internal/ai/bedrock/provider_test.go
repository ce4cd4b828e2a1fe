package bedrock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/kiranshivaraju/medialens/internal/ai/bedrock"
	"github.com/kiranshivaraju/medialens/internal/ai/llm"
	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverser struct {
	out   *bedrockruntime.ConverseOutput
	err   error
	input *bedrockruntime.ConverseInput
}

func (f *fakeConverser) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func textOutput(text string, tokens int32) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
		}},
		Usage: &types.TokenUsage{TotalTokens: aws.Int32(tokens)},
	}
}

func newProvider(api bedrock.Converser) *bedrock.Provider {
	return bedrock.NewWithClient(api, config.BedrockConfig{
		Region:           "us-east-1",
		Model:            "us.amazon.nova-pro-v1:0",
		MaxVideoDuration: 90 * time.Second,
	}, 512, time.Second)
}

func TestCapabilities(t *testing.T) {
	caps := newProvider(&fakeConverser{}).Capabilities()
	assert.True(t, caps.Image)
	assert.True(t, caps.Video)
	assert.False(t, caps.Audio)
	assert.Equal(t, 90*time.Second, caps.MaxVideoDuration)
}

func TestAnalyzeVideo_SendsVideoBlock(t *testing.T) {
	fc := &fakeConverser{out: textOutput("A dog runs across a field.", 321)}
	p := newProvider(fc)

	out, err := p.AnalyzeVideo(context.Background(), []byte("mp4-bytes"), "video/mp4", "Describe the clip")
	require.NoError(t, err)
	assert.Equal(t, "A dog runs across a field.", out.Content)
	require.NotNil(t, out.TokensUsed)
	assert.Equal(t, 321, *out.TokensUsed)
	assert.Equal(t, "us.amazon.nova-pro-v1:0", out.Model)

	require.NotNil(t, fc.input)
	assert.Equal(t, "us.amazon.nova-pro-v1:0", aws.ToString(fc.input.ModelId))
	assert.Equal(t, int32(512), aws.ToInt32(fc.input.InferenceConfig.MaxTokens))
	content := fc.input.Messages[0].Content
	require.Len(t, content, 2)
	video, ok := content[0].(*types.ContentBlockMemberVideo)
	require.True(t, ok)
	assert.Equal(t, types.VideoFormatMp4, video.Value.Format)
	assert.Equal(t, &types.ContentBlockMemberText{Value: "Describe the clip"}, content[1])
}

func TestAnalyzeImage_FormatMapping(t *testing.T) {
	fc := &fakeConverser{out: textOutput("ok", 1)}
	p := newProvider(fc)

	_, err := p.AnalyzeImage(context.Background(), []byte("x"), "image/jpeg; charset=binary", "p")
	require.NoError(t, err)
	img, ok := fc.input.Messages[0].Content[0].(*types.ContentBlockMemberImage)
	require.True(t, ok)
	assert.Equal(t, types.ImageFormatJpeg, img.Value.Format)

	_, err = p.AnalyzeImage(context.Background(), []byte("x"), "image/bmp", "p")
	assert.ErrorIs(t, err, llm.ErrInvalidInput)
}

func TestAnalyzeAudio_Unsupported(t *testing.T) {
	_, err := newProvider(&fakeConverser{}).AnalyzeAudio(context.Background(), []byte("x"), "audio/ogg", "p")
	assert.ErrorIs(t, err, llm.ErrUnsupportedMedia)
}

func TestErrorClassification(t *testing.T) {
	msg := "video too long"
	p := newProvider(&fakeConverser{err: &types.ValidationException{Message: &msg}})
	_, err := p.AnalyzeVideo(context.Background(), []byte("x"), "video/mp4", "p")
	assert.ErrorIs(t, err, llm.ErrInvalidInput)
	assert.True(t, llm.IsPermanent(err))

	p = newProvider(&fakeConverser{err: &types.ThrottlingException{Message: &msg}})
	_, err = p.AnalyzeVideo(context.Background(), []byte("x"), "video/mp4", "p")
	assert.ErrorIs(t, err, llm.ErrProviderUnavailable)
	assert.False(t, llm.IsPermanent(err))

	p = newProvider(&fakeConverser{err: context.DeadlineExceeded})
	_, err = p.AnalyzeImage(context.Background(), []byte("x"), "image/png", "p")
	assert.ErrorIs(t, err, llm.ErrInferenceTimeout)

	p = newProvider(&fakeConverser{err: errors.New("connection reset")})
	_, err = p.AnalyzeImage(context.Background(), []byte("x"), "image/png", "p")
	assert.ErrorIs(t, err, llm.ErrProviderUnavailable)
}

func TestEmptyResponse(t *testing.T) {
	p := newProvider(&fakeConverser{out: textOutput("  ", 3)})
	_, err := p.AnalyzeImage(context.Background(), []byte("x"), "image/png", "p")
	assert.ErrorIs(t, err, llm.ErrInvalidResponse)
}
