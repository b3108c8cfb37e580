package apierr

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxRetryAfter caps server-provided wait hints.
const maxRetryAfter = time.Hour

// FromResponse classifies a failed HTTP response. The message is taken from a
// JSON body's "message" or "error" field when present.
func FromResponse(status int, header http.Header, body []byte) *Error {
	retryAfter := ParseRetryAfter(header.Get("Retry-After"))
	if retryAfter == 0 && status == http.StatusTooManyRequests {
		retryAfter = parseResetSeconds(header.Get("X-RateLimit-Reset"))
	}
	return FromStatus(status, messageFromBody(body), retryAfter)
}

// ParseRetryAfter parses a Retry-After header value given either as
// delay-seconds or as an HTTP date. Returns 0 if the value is absent or invalid.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return min(time.Duration(seconds)*time.Second, maxRetryAfter)
	}

	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return min(d, maxRetryAfter)
		}
	}

	return 0
}

func parseResetSeconds(value string) time.Duration {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return min(time.Duration(seconds*float64(time.Second)), maxRetryAfter)
}

func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if s, ok := payload.Error.(string); ok {
		return s
	}
	return payload.Code
}
