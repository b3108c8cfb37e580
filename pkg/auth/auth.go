// Package auth attaches credentials to requests of the marketing API.
//
// Three providers are available: a static API key header, a static bearer
// token, and OAuth2 client credentials with cached, refreshable tokens.
// The client calls Invalidate after a 401 response so the next request
// acquires fresh credentials where the provider supports it.
package auth

import (
	"context"
	"net/http"
)

// DefaultAPIKeyHeader is the header carrying the API key.
const DefaultAPIKeyHeader = "X-API-Key"

// Provider applies credentials to outbound requests.
type Provider interface {
	// Apply sets the credentials on req. Errors are apierr authentication errors.
	Apply(ctx context.Context, req *http.Request) error

	// Invalidate drops cached credentials after the server rejected them.
	Invalidate()
}

// APIKey sends a static key in a request header.
type APIKey struct {
	// Header defaults to DefaultAPIKeyHeader.
	Header string
	Key    string
}

// NewAPIKey creates an API key provider using DefaultAPIKeyHeader.
func NewAPIKey(key string) *APIKey {
	return &APIKey{Header: DefaultAPIKeyHeader, Key: key}
}

// Apply implements Provider.
func (a *APIKey) Apply(ctx context.Context, req *http.Request) error {
	header := a.Header
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	req.Header.Set(header, a.Key)
	return nil
}

// Invalidate implements Provider. A static key cannot be refreshed.
func (a *APIKey) Invalidate() {}
