package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Tokens are refreshed this long before the server says they expire.
const expirySkew = 30 * time.Second

// Credential caches a Matrix access token. It is safe for concurrent use;
// concurrent callers share a single login.
type Credential struct {
	homeserver string
	username   string
	password   string
	deviceID   string
	ttl        time.Duration
	backoff    time.Duration
	client     *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

type loginRequest struct {
	Type       string          `json:"type"`
	Identifier loginIdentifier `json:"identifier"`
	Password   string          `json:"password"`
	DeviceID   string          `json:"device_id,omitempty"`
	DeviceName string          `json:"initial_device_display_name,omitempty"`
}

type loginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresInMS int64  `json:"expires_in_ms"`
}

type matrixError struct {
	ErrCode      string `json:"errcode"`
	Error        string `json:"error"`
	RetryAfterMS int64  `json:"retry_after_ms"`
}

// loginError is a login refused by the homeserver.
type loginError struct {
	status  int
	errCode string
	message string
}

func (e *loginError) Error() string {
	return fmt.Sprintf("login status %d: %s %s", e.status, e.errCode, e.message)
}

// rejected reports whether the homeserver refused the credentials themselves.
// Retrying cannot succeed until the configuration changes.
func (e *loginError) rejected() bool {
	return e.status == http.StatusUnauthorized || e.status == http.StatusForbidden || e.errCode == "M_FORBIDDEN"
}

// Token returns a valid access token, logging in when none is cached or the
// cached one has expired. Login is retried until it succeeds or ctx ends.
func (c *Credential) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry) {
		return c.token, nil
	}

	for attempt := 1; ; attempt++ {
		token, ttl, wait, err := c.login(ctx)
		if err == nil {
			c.token = token
			c.expiry = c.now().Add(ttl - expirySkew)
			c.logger.Info("media source authenticated", "homeserver", c.homeserver, "expires_in", ttl)
			return token, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		var le *loginError
		if errors.As(err, &le) && le.rejected() {
			c.logger.Error("media source rejected credentials", "attempt", attempt, "retry_in", wait,
				"user", c.username, "errcode", le.errCode, "error", err)
		} else {
			c.logger.Warn("media source login failed", "attempt", attempt, "retry_in", wait, "error", err)
		}
		if err := sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

// Invalidate drops the cached token so the next Token call logs in again.
func (c *Credential) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

// login performs one password login. On failure it returns how long to wait
// before the next attempt.
func (c *Credential) login(ctx context.Context) (string, time.Duration, time.Duration, error) {
	body, err := json.Marshal(loginRequest{
		Type:       "m.login.password",
		Identifier: loginIdentifier{Type: "m.id.user", User: c.username},
		Password:   c.password,
		DeviceID:   c.deviceID,
		DeviceName: "medialens",
	})
	if err != nil {
		return "", 0, c.backoff, fmt.Errorf("encode login: %w", err)
	}

	u := strings.TrimRight(c.homeserver, "/") + "/_matrix/client/v3/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", 0, c.backoff, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, c.backoff, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode == http.StatusOK:
		var lr loginResponse
		if err := json.Unmarshal(raw, &lr); err != nil || lr.AccessToken == "" {
			return "", 0, c.backoff, fmt.Errorf("malformed login response")
		}
		ttl := c.ttl
		if lr.ExpiresInMS > 0 {
			ttl = time.Duration(lr.ExpiresInMS) * time.Millisecond
		}
		if ttl <= expirySkew {
			ttl = expirySkew + time.Second
		}
		return lr.AccessToken, ttl, 0, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		var me matrixError
		_ = json.Unmarshal(raw, &me)
		return "", 0, retryAfter(resp.Header.Get("Retry-After"), me.RetryAfterMS, c.backoff),
			fmt.Errorf("login rate limited")

	default:
		var me matrixError
		_ = json.Unmarshal(raw, &me)
		return "", 0, c.backoff, &loginError{status: resp.StatusCode, errCode: me.ErrCode, message: me.Error}
	}
}

// retryAfter prefers the body hint, then the header (seconds), then fallback.
func retryAfter(header string, bodyMS int64, fallback time.Duration) time.Duration {
	if bodyMS > 0 {
		return time.Duration(bodyMS) * time.Millisecond
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
