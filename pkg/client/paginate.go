package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"

	"github.com/Sternrassler/mailer-client/pkg/pagination"
)

// Fetcher returns a pagination.FetchFunc that GETs path with the page
// parameters merged over query. The response body may be a bare JSON array
// or an object with "data" and "pagination" fields.
func (c *Client) Fetcher(endpoint, path string, query url.Values) pagination.FetchFunc {
	return func(ctx context.Context, params url.Values) (*pagination.RawResponse, error) {
		merged := make(url.Values, len(query)+len(params))
		maps.Copy(merged, query)
		maps.Copy(merged, params)

		resp, err := c.Do(ctx, Request{
			Method:   http.MethodGet,
			Path:     path,
			Query:    merged,
			Endpoint: endpoint,
		})
		if err != nil {
			return nil, err
		}
		return decodeRawResponse(resp.Body)
	}
}

func decodeRawResponse(body []byte) (*pagination.RawResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return &pagination.RawResponse{Data: json.RawMessage(trimmed)}, nil
	}

	var raw pagination.RawResponse
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return &raw, nil
}

// Iterate returns an iterator over every item of a paginated endpoint.
// The client already retries each request, so the iterator makes a single
// attempt per page unless opts override it.
func Iterate[T any](c *Client, endpoint, path string, opts ...pagination.IteratorOption) *pagination.Iterator[T] {
	opts = append([]pagination.IteratorOption{
		pagination.WithRetryAttempts(1),
		pagination.WithLogger(c.logger),
	}, opts...)
	return pagination.NewIteratorFor[T](c.factory, endpoint, c.Fetcher(endpoint, path, nil), opts...)
}

// ListAll collects every item of a paginated endpoint.
func ListAll[T any](ctx context.Context, c *Client, endpoint, path string, opts ...pagination.IteratorOption) ([]T, error) {
	return Iterate[T](c, endpoint, path, opts...).ToSlice(ctx)
}
