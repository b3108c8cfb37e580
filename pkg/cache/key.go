package cache

import (
	"net/url"
	"slices"
	"strings"
)

// keyPrefix namespaces every cache key.
const keyPrefix = "mailer"

// Key identifies a cached response.
type Key struct {
	// Endpoint is the request path, e.g. "/v3/campaigns".
	Endpoint string

	// Query holds the request query parameters.
	Query url.Values

	// Account separates entries of different API accounts sharing one Redis.
	Account string
}

// String returns the deterministic Redis key.
// Format: mailer:<endpoint>:<k=v>...:acct=<account>
//
// Example:
//
//	mailer:v3/campaigns:page=2:per_page=50:acct=acme
func (k Key) String() string {
	parts := []string{keyPrefix}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	names := make([]string, 0, len(k.Query))
	for name := range k.Query {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		parts = append(parts, name+"="+strings.Join(k.Query[name], ","))
	}

	if k.Account != "" {
		parts = append(parts, "acct="+k.Account)
	}
	return strings.Join(parts, ":")
}

// endpointScope returns the SCAN pattern for an endpoint and a filter that
// keeps the endpoint itself and its sub-resources, across query strings and
// accounts.
func endpointScope(endpoint string) (pattern string, match func(string) bool) {
	trimmed := strings.Trim(endpoint, "/")
	if trimmed == "" {
		return keyPrefix + ":*", func(string) bool { return true }
	}
	base := keyPrefix + ":" + trimmed
	return base + "*", func(key string) bool {
		rest, ok := strings.CutPrefix(key, base)
		return ok && (rest == "" || rest[0] == ':' || rest[0] == '/')
	}
}
