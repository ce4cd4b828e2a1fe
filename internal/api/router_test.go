package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/medialens/internal/api"
	mw "github.com/kiranshivaraju/medialens/internal/api/middleware"
	"github.com/kiranshivaraju/medialens/internal/cache"
	"github.com/kiranshivaraju/medialens/internal/store"
	"github.com/kiranshivaraju/medialens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubKeys never matches a key, so every protected request fails auth.
type stubKeys struct{}

func (stubKeys) GetAPIKeyByPrefix(context.Context, string) ([]*models.APIKey, error) {
	return nil, nil
}
func (stubKeys) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }
func (stubKeys) CreateAPIKey(context.Context, *models.APIKey) error   { return nil }
func (stubKeys) RevokeAPIKey(context.Context, uuid.UUID) error        { return nil }

func newTestRouter() http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(stubKeys{}),
		RateLimit: mw.NewRateLimit(cache.Noop{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router := newTestRouter()

	for _, path := range []string{"/api/v1/health", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter()

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/stats"},
		{"GET", "/api/v1/jobs/$evt1"},
		{"GET", "/api/v1/jobs/$evt1/results"},
		{"POST", "/api/v1/jobs/$evt1/requeue"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ store.KeyStore = stubKeys{}
