// Package models contains shared data models used across the medialens codebase.
package models

import (
	"context"
	"time"
)

// AnalysisProvider is the contract every generative backend implements.
// Workers never call a vendor directly; they look one up in the registry.
type AnalysisProvider interface {
	// Name returns the provider identifier (e.g., "openai", "bedrock").
	Name() string
	// Capabilities describes which media kinds the provider accepts.
	Capabilities() Capabilities

	AnalyzeImage(ctx context.Context, data []byte, contentType, prompt string) (AnalysisOutput, error)
	AnalyzeVideo(ctx context.Context, data []byte, contentType, prompt string) (AnalysisOutput, error)
	AnalyzeAudio(ctx context.Context, data []byte, contentType, prompt string) (AnalysisOutput, error)
}

// Capabilities is the static feature set of a provider.
type Capabilities struct {
	Image bool `json:"image"`
	Video bool `json:"video"`
	Audio bool `json:"audio"`
	// MaxVideoDuration bounds accepted video length; zero means unbounded.
	MaxVideoDuration time.Duration `json:"max_video_duration,omitempty"`
}

// Supports reports whether the provider accepts media of the given kind.
func (c Capabilities) Supports(kind MediaKind) bool {
	switch kind {
	case MediaKindImage:
		return c.Image
	case MediaKindVideo:
		return c.Video
	case MediaKindAudio:
		return c.Audio
	}
	return false
}

// AnalysisOutput is what a provider returns for one media item.
type AnalysisOutput struct {
	Content    string
	TokensUsed *int
	Duration   time.Duration
	Model      string
}
