package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
	"github.com/Sternrassler/mailer-client/pkg/cache"
)

// HeaderRequestID carries the per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// Request describes one API call.
type Request struct {
	Method string

	// Path relative to the base URL, e.g. "/v3/campaigns".
	Path  string
	Query url.Values

	// Body is JSON encoded when not nil.
	Body any

	Header http.Header

	// Endpoint is the logical name used for metrics and logs, e.g.
	// "campaigns". Defaults to Path.
	Endpoint string
}

func (r Request) endpoint() string {
	if r.Endpoint != "" {
		return r.Endpoint
	}
	return r.Path
}

func (r Request) operation() string {
	return r.Method + " " + r.endpoint()
}

func (r Request) cacheable() bool {
	return r.Method == http.MethodGet && r.Body == nil
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string

	// FromCache is true when the body was served from the response cache,
	// either fresh or revalidated with 304 Not Modified.
	FromCache bool
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func responseFromEntry(entry *cache.Entry, requestID string) *Response {
	return &Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Header.Clone(),
		Body:       entry.Data,
		RequestID:  requestID,
		FromCache:  true,
	}
}

// newHTTPRequest builds the outbound request. Encoding failures are
// validation errors since retrying cannot fix them.
func (c *Client) newHTTPRequest(ctx context.Context, r Request, requestID string) (*http.Request, error) {
	target := c.baseURL.JoinPath(r.Path)
	if len(r.Query) > 0 {
		target.RawQuery = r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, apierr.Validation("encode request body: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, apierr.Validation("create request: %v", err)
	}

	for name, values := range r.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func normalizeMethod(method string) string {
	if method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(method)
}
