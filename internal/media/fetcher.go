// Package media downloads archived media from a Matrix homeserver.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/pkg/models"
	"golang.org/x/time/rate"
)

// One initial attempt plus two retries.
const maxAttempts = 3

// Media is a downloaded payload.
type Media struct {
	Data        []byte
	ContentType string
}

// Fetcher resolves mxc:// locators to bytes. It owns the access credential
// and paces outbound requests with a token bucket.
type Fetcher struct {
	homeserver    string
	maxBytes      int64
	retryDelay    time.Duration
	notFoundDelay time.Duration
	client        *http.Client
	cred          *Credential
	limiter       *rate.Limiter
	logger        *slog.Logger
}

func NewFetcher(cfg config.MediaConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	client := &http.Client{Timeout: cfg.Timeout}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Fetcher{
		homeserver:    cfg.HomeserverURL,
		maxBytes:      int64(cfg.MaxBytes),
		retryDelay:    cfg.RetryDelay,
		notFoundDelay: cfg.NotFoundDelay,
		client:        client,
		cred: &Credential{
			homeserver: cfg.HomeserverURL,
			username:   cfg.Username,
			password:   cfg.Password,
			deviceID:   cfg.DeviceID,
			ttl:        cfg.TokenTTL,
			backoff:    cfg.AuthBackoff,
			client:     client,
			logger:     logger,
			now:        time.Now,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Credential exposes the fetcher's token cache.
func (f *Fetcher) Credential() *Credential { return f.cred }

// Fetch downloads the media behind locator. hint, when set, supplies the
// content type recorded at ingestion. A 404 is treated as transient since
// media may still be propagating between servers.
func (f *Fetcher) Fetch(ctx context.Context, locator string, hint *models.MediaDescriptor) (*Media, error) {
	server, mediaID, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	u := downloadURL(f.homeserver, server, mediaID)

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := f.retryDelay
			if lastStatus == http.StatusNotFound {
				delay = f.notFoundDelay
			} else if lastStatus == http.StatusUnauthorized {
				delay = 0
			}
			if err := sleep(ctx, delay); err != nil {
				return nil, &FetchError{Locator: locator, Attempts: attempt - 1, Status: lastStatus, Retryable: true, Err: err}
			}
		}

		data, header, status, err := f.download(ctx, u)
		if err == nil {
			return &Media{Data: data, ContentType: resolveContentType(hint, header, data)}, nil
		}
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}

		lastErr, lastStatus = err, status
		if status == http.StatusUnauthorized {
			f.cred.Invalidate()
		}
		f.logger.Warn("media download failed",
			"locator", locator, "attempt", attempt, "status", status, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, &FetchError{
		Locator:   locator,
		Attempts:  maxAttempts,
		Status:    lastStatus,
		Retryable: true,
		Err:       lastErr,
	}
}

func (f *Fetcher) download(ctx context.Context, u string) ([]byte, string, int, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", 0, fmt.Errorf("rate limiter: %w", err)
	}

	token, err := f.cred.Token(ctx)
	if err != nil {
		return nil, "", 0, fmt.Errorf("authenticate: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, "", resp.StatusCode, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, resp.ContentLength, f.maxBytes)
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", resp.StatusCode, fmt.Errorf("reading body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, "", resp.StatusCode, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

// resolveContentType prefers the ingestion-time mimetype, then a specific
// response header, then sniffing.
func resolveContentType(hint *models.MediaDescriptor, header string, data []byte) string {
	if hint != nil && hint.MimeType != "" {
		return hint.MimeType
	}
	if ct := strings.TrimSpace(header); ct != "" && !strings.HasPrefix(ct, "application/octet-stream") {
		return ct
	}
	return http.DetectContentType(data)
}
