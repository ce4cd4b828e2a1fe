package media_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/internal/media"
	"github.com/kiranshivaraju/medialens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pngHeader = "\x89PNG\r\n\x1a\n"

// homeserver is a scripted Matrix server. downloads receives each download
// request in order and returns the status to answer with.
type homeserver struct {
	mu        sync.Mutex
	logins    atomic.Int32
	downloads atomic.Int32
	tokens    []string
	loginPlan []func(w http.ResponseWriter)
	plan      []int
	body      string
	ctype     string
	seenAuth  []string
}

func (h *homeserver) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/_matrix/client/v3/login", func(w http.ResponseWriter, r *http.Request) {
		n := int(h.logins.Add(1))
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "m.login.password", req["type"])
		assert.Equal(t, "archiver-pass", req["password"])

		if n <= len(h.loginPlan) && h.loginPlan[n-1] != nil {
			h.loginPlan[n-1](w)
			return
		}
		token := "token-" + string(rune('0'+n))
		h.mu.Lock()
		h.tokens = append(h.tokens, token)
		h.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": token, "expires_in_ms": 3600000})
	})
	mux.HandleFunc("/_matrix/client/v1/media/download/example.org/abc123", func(w http.ResponseWriter, r *http.Request) {
		n := int(h.downloads.Add(1))
		h.mu.Lock()
		h.seenAuth = append(h.seenAuth, r.Header.Get("Authorization"))
		h.mu.Unlock()

		status := http.StatusOK
		if n <= len(h.plan) {
			status = h.plan[n-1]
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if h.ctype != "" {
			w.Header().Set("Content-Type", h.ctype)
		}
		_, _ = w.Write([]byte(h.body))
	})
	return mux
}

func newFetcher(url string, maxBytes config.ByteSize) *media.Fetcher {
	return media.NewFetcher(config.MediaConfig{
		HomeserverURL:     url,
		Username:          "archiver",
		Password:          "archiver-pass",
		DeviceID:          "medialens",
		MaxBytes:          maxBytes,
		TokenTTL:          time.Hour,
		RequestsPerSecond: 0,
		Timeout:           5 * time.Second,
		RetryDelay:        time.Millisecond,
		NotFoundDelay:     time.Millisecond,
		AuthBackoff:       time.Millisecond,
	}, nil)
}

const locator = "mxc://example.org/abc123"

// --- Fetch ---

func TestFetch_Success(t *testing.T) {
	hs := &homeserver{body: pngHeader + "rest", ctype: "image/png"}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	f := newFetcher(srv.URL, config.MB)
	m, err := f.Fetch(context.Background(), locator, nil)
	require.NoError(t, err)
	assert.Equal(t, pngHeader+"rest", string(m.Data))
	assert.Equal(t, "image/png", m.ContentType)
	assert.Equal(t, []string{"Bearer token-1"}, hs.seenAuth)
}

func TestFetch_ReusesCredential(t *testing.T) {
	hs := &homeserver{body: "x"}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	f := newFetcher(srv.URL, config.MB)
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), locator, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hs.logins.Load())
}

func TestFetch_NotFoundThenSuccess(t *testing.T) {
	hs := &homeserver{plan: []int{404, 404}, body: "late"}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	m, err := newFetcher(srv.URL, config.MB).Fetch(context.Background(), locator, nil)
	require.NoError(t, err)
	assert.Equal(t, "late", string(m.Data))
	assert.Equal(t, int32(3), hs.downloads.Load())
}

func TestFetch_NotFoundExhausted(t *testing.T) {
	hs := &homeserver{plan: []int{404, 404, 404, 200}}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	_, err := newFetcher(srv.URL, config.MB).Fetch(context.Background(), locator, nil)
	require.Error(t, err)

	var fe *media.FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Retryable)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.False(t, media.IsPermanent(err))
	assert.Equal(t, int32(3), hs.downloads.Load())
}

func TestFetch_ServerErrorsExhausted(t *testing.T) {
	hs := &homeserver{plan: []int{502, 503, 500}}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	_, err := newFetcher(srv.URL, config.MB).Fetch(context.Background(), locator, nil)
	var fe *media.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 500, fe.Status)
}

func TestFetch_UnauthorizedReauthenticates(t *testing.T) {
	hs := &homeserver{plan: []int{401}, body: "ok"}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	_, err := newFetcher(srv.URL, config.MB).Fetch(context.Background(), locator, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hs.logins.Load())
	assert.Equal(t, []string{"Bearer token-1", "Bearer token-2"}, hs.seenAuth)
}

func TestFetch_TooLargeByContentLength(t *testing.T) {
	hs := &homeserver{body: strings.Repeat("a", 2048)}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	_, err := newFetcher(srv.URL, 1024).Fetch(context.Background(), locator, nil)
	assert.ErrorIs(t, err, media.ErrTooLarge)
	assert.True(t, media.IsPermanent(err))
	assert.Equal(t, int32(1), hs.downloads.Load())
}

func TestFetch_InvalidLocator(t *testing.T) {
	f := newFetcher("http://localhost:1", config.MB)
	for _, loc := range []string{"https://example.org/a", "mxc://example.org", "mxc:///abc", "mxc://example.org/a/b"} {
		_, err := f.Fetch(context.Background(), loc, nil)
		assert.ErrorIs(t, err, media.ErrInvalidLocator, loc)
	}
}

func TestFetch_ContentTypeResolution(t *testing.T) {
	hs := &homeserver{body: pngHeader + "data", ctype: "application/octet-stream"}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()
	f := newFetcher(srv.URL, config.MB)

	m, err := f.Fetch(context.Background(), locator, &models.MediaDescriptor{MimeType: "image/webp"})
	require.NoError(t, err)
	assert.Equal(t, "image/webp", m.ContentType)

	m, err = f.Fetch(context.Background(), locator, &models.MediaDescriptor{Size: 12})
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.ContentType)
}

// --- Credential ---

func TestCredential_LoginRetriesOnRateLimit(t *testing.T) {
	hs := &homeserver{
		body: "ok",
		loginPlan: []func(w http.ResponseWriter){
			func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"errcode":"M_LIMIT_EXCEEDED","retry_after_ms":5}`))
			},
			func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
	}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	f := newFetcher(srv.URL, config.MB)
	token, err := f.Credential().Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-3", token)
	assert.Equal(t, int32(3), hs.logins.Load())
}

func TestCredential_LoginStopsOnCancel(t *testing.T) {
	hs := &homeserver{}
	forbidden := func(w http.ResponseWriter) { w.WriteHeader(http.StatusForbidden) }
	for i := 0; i < 1000; i++ {
		hs.loginPlan = append(hs.loginPlan, forbidden)
	}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newFetcher(srv.URL, config.MB).Credential().Token(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, hs.logins.Load(), int32(1))
}

func TestCredential_RejectedCredentialsLogAtError(t *testing.T) {
	hs := &homeserver{
		loginPlan: []func(w http.ResponseWriter){
			func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"errcode":"M_FORBIDDEN","error":"Invalid password"}`))
			},
			func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
	}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := media.NewFetcher(config.MediaConfig{
		HomeserverURL: srv.URL,
		Username:      "archiver",
		Password:      "archiver-pass",
		MaxBytes:      config.MB,
		TokenTTL:      time.Hour,
		Timeout:       5 * time.Second,
		AuthBackoff:   time.Millisecond,
	}, logger)

	token, err := f.Credential().Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-3", token)

	var levels []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		levels = append(levels, rec["level"].(string)+" "+rec["msg"].(string))
	}
	assert.Equal(t, []string{
		"ERROR media source rejected credentials",
		"WARN media source login failed",
		"INFO media source authenticated",
	}, levels)
	assert.Contains(t, buf.String(), `"errcode":"M_FORBIDDEN"`)
}

func TestCredential_Invalidate(t *testing.T) {
	hs := &homeserver{}
	srv := httptest.NewServer(hs.handler(t))
	defer srv.Close()

	cred := newFetcher(srv.URL, config.MB).Credential()
	first, err := cred.Token(context.Background())
	require.NoError(t, err)
	cred.Invalidate()
	second, err := cred.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestParseLocator(t *testing.T) {
	server, id, err := media.ParseLocator("mxc://matrix.example.org/AbCdEf")
	require.NoError(t, err)
	assert.Equal(t, "matrix.example.org", server)
	assert.Equal(t, "AbCdEf", id)
}
