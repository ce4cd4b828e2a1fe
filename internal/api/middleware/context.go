package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	keyIDKey        contextKey = "api_key_id"
	keyNameKey      contextKey = "api_key_name"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
)

// Caller identifies the API key behind an authenticated request.
type Caller struct {
	KeyID  uuid.UUID
	Name   string
	Prefix string
	Scopes []string
}

// WithCaller stores the authenticated caller in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	ctx = context.WithValue(ctx, keyIDKey, c.KeyID)
	ctx = context.WithValue(ctx, keyNameKey, c.Name)
	ctx = context.WithValue(ctx, keyPrefixKey, c.Prefix)
	return context.WithValue(ctx, apiKeyScopesKey, c.Scopes)
}

// GetCaller returns the caller set by Authenticate.
func GetCaller(r *http.Request) (Caller, bool) {
	ctx := r.Context()
	id, ok := ctx.Value(keyIDKey).(uuid.UUID)
	if !ok {
		return Caller{}, false
	}
	name, _ := ctx.Value(keyNameKey).(string)
	prefix, _ := ctx.Value(keyPrefixKey).(string)
	return Caller{KeyID: id, Name: name, Prefix: prefix, Scopes: getScopes(r)}, true
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok && prefix != ""
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}
