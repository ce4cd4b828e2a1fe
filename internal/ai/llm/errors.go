// Package llm holds the pieces shared by every provider adapter: the error
// taxonomy and a langchaingo-backed multimodal client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/tmc/langchaingo/llms"
)

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")

	// Validation-class errors. A job that hits one of these is not retried.
	ErrInvalidInput     = errors.New("ai provider rejected input")
	ErrUnsupportedMedia = errors.New("media kind not supported by provider")
)

// IsPermanent reports whether err signals a failure that retrying cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrUnsupportedMedia)
}

// ClassifyError maps transport-level errors to sentinel errors. Errors that
// already carry a sentinel are returned unchanged. langchaingo error codes for
// invalid requests, content filtering and token limits are validation-class.
func ClassifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrProviderUnavailable, ErrInferenceTimeout, ErrInvalidResponse, ErrInvalidInput, ErrUnsupportedMedia,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || llms.IsTimeoutError(err) {
		return fmt.Errorf("%w: %s: %s", ErrInferenceTimeout, provider, detail(err))
	}

	if llms.IsInvalidRequestError(err) || llms.IsContentFilterError(err) || llms.IsTokenLimitError(err) {
		return fmt.Errorf("%w: %s: %s", ErrInvalidInput, provider, detail(err))
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %s", ErrInferenceTimeout, provider, detail(err))
	}

	return fmt.Errorf("%w: %s: %s", ErrProviderUnavailable, provider, detail(err))
}

// detail keeps the vendor message that a langchaingo error code would hide.
func detail(err error) string {
	var lerr *llms.Error
	if errors.As(err, &lerr) && lerr.Cause != nil {
		return fmt.Sprintf("%s: %v", lerr.Code, lerr.Cause)
	}
	return err.Error()
}

// StatusError classifies an HTTP status from a vendor API. 400 and 413/415/422
// mean the request itself is bad; everything else is worth retrying.
func StatusError(provider string, status int, body string) error {
	switch status {
	case 400, 413, 415, 422:
		return fmt.Errorf("%w: %s: status %d: %s", ErrInvalidInput, provider, status, body)
	}
	return fmt.Errorf("%w: %s: status %d: %s", ErrProviderUnavailable, provider, status, body)
}
