package cache

import (
	"net/http"
	"time"
)

// Entry is a cached API response.
type Entry struct {
	// Data is the response body.
	Data []byte `json:"data"`

	// ETag for If-None-Match revalidation.
	ETag string `json:"etag,omitempty"`

	// Expires is when the entry stops being fresh.
	Expires time.Time `json:"expires"`

	// LastModified for If-Modified-Since revalidation.
	LastModified time.Time `json:"last_modified,omitzero"`

	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header,omitempty"`
	CachedAt   time.Time   `json:"cached_at"`
}

// IsExpired reports whether the entry is no longer fresh.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the remaining freshness lifetime, 0 once expired.
func (e *Entry) TTL() time.Duration {
	return max(time.Until(e.Expires), 0)
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
