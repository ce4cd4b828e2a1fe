package media

import (
	"errors"
	"fmt"
)

var (
	// ErrTooLarge means the media exceeds the configured size limit. Not retryable.
	ErrTooLarge = errors.New("media exceeds size limit")
	// ErrInvalidLocator means the locator cannot address any media. Not retryable.
	ErrInvalidLocator = errors.New("invalid media locator")
)

// FetchError reports a download that failed after all attempts.
type FetchError struct {
	Locator   string
	Attempts  int
	Status    int // last HTTP status, 0 for transport failures
	Retryable bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s failed after %d attempts: status %d: %v", e.Locator, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.Locator, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a fetch failure that retrying the job
// cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrTooLarge) || errors.Is(err, ErrInvalidLocator)
}
