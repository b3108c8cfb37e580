package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is the freshness lifetime when the response announces none.
const DefaultTTL = 5 * time.Minute

// ResponseToEntry converts a response into an Entry. The body is read and
// restored so the caller can still consume it.
func ResponseToEntry(resp *http.Response) (*Entry, error) {
	if resp == nil {
		return nil, errors.New("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	now := time.Now()
	entry := &Entry{
		Data:       body,
		ETag:       resp.Header.Get("ETag"),
		Expires:    ExpiresFromHeaders(resp.Header, now),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		CachedAt:   now,
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		if t, err := http.ParseTime(lastMod); err == nil {
			entry.LastModified = t
		}
	}
	return entry, nil
}

// ExpiresFromHeaders returns when a response stops being fresh: now plus
// Cache-Control max-age, else the Expires header, else now plus DefaultTTL.
// A past Expires value yields now.
func ExpiresFromHeaders(h http.Header, now time.Time) time.Time {
	if maxAge, ok := maxAge(h.Get("Cache-Control")); ok {
		return now.Add(maxAge)
	}

	if expiresStr := h.Get("Expires"); expiresStr != "" {
		if expires, err := http.ParseTime(expiresStr); err == nil {
			if expires.Before(now) {
				return now
			}
			return expires
		}
	}

	return now.Add(DefaultTTL)
}

// IsCacheable reports whether a response may be stored: a 200 answer whose
// Cache-Control does not forbid storing it.
func IsCacheable(resp *http.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusOK {
		return false
	}
	for directive := range strings.SplitSeq(resp.Header.Get("Cache-Control"), ",") {
		switch strings.ToLower(strings.TrimSpace(directive)) {
		case "no-store", "private":
			return false
		}
	}
	return true
}

// CanRevalidate reports whether a conditional request can be made for the entry.
func CanRevalidate(entry *Entry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// AddConditionalHeaders sets If-None-Match, or If-Modified-Since when the
// entry has no ETag.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil {
		return
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}

func maxAge(cacheControl string) (time.Duration, bool) {
	for directive := range strings.SplitSeq(cacheControl, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}
