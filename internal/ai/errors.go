package ai

import "github.com/kiranshivaraju/medialens/internal/ai/llm"

// The sentinels live in the llm package so adapters can return them without
// importing the registry.
var (
	ErrProviderUnavailable = llm.ErrProviderUnavailable
	ErrInferenceTimeout    = llm.ErrInferenceTimeout
	ErrInvalidResponse     = llm.ErrInvalidResponse
	ErrInvalidInput        = llm.ErrInvalidInput
	ErrUnsupportedMedia    = llm.ErrUnsupportedMedia
)

// IsPermanent reports whether a provider error should fail the job without retry.
func IsPermanent(err error) bool {
	return llm.IsPermanent(err)
}
