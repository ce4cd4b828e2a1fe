package media

import (
	"fmt"
	"net/url"
	"strings"
)

const mxcScheme = "mxc://"

// ParseLocator splits an mxc://<server>/<media-id> URI.
func ParseLocator(locator string) (server, mediaID string, err error) {
	if !strings.HasPrefix(locator, mxcScheme) {
		return "", "", fmt.Errorf("%w: %q is not an mxc:// URI", ErrInvalidLocator, locator)
	}
	rest := strings.TrimPrefix(locator, mxcScheme)
	server, mediaID, ok := strings.Cut(rest, "/")
	if !ok || server == "" || mediaID == "" || strings.Contains(mediaID, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	return server, mediaID, nil
}

func downloadURL(homeserver, server, mediaID string) string {
	return fmt.Sprintf("%s/_matrix/client/v1/media/download/%s/%s",
		strings.TrimRight(homeserver, "/"), url.PathEscape(server), url.PathEscape(mediaID))
}
