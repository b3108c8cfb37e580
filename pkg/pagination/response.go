package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// FetchFunc fetches one page given its query parameters. Implementations must
// be safe to call again after a failure.
type FetchFunc func(ctx context.Context, params url.Values) (*RawResponse, error)

// RawResponse is a list response as returned by the API. Data is either a
// JSON array or an object with a "data" array.
type RawResponse struct {
	Data       json.RawMessage `json:"data"`
	Pagination *RawPagination  `json:"pagination,omitempty"`
}

// RawPagination holds the pagination fields any strategy may report.
type RawPagination struct {
	Page       int        `json:"page,omitempty"`
	PerPage    int        `json:"per_page,omitempty"`
	Count      *int       `json:"count,omitempty"`
	TotalCount *int       `json:"total_count,omitempty"`
	TotalPages *int       `json:"total_pages,omitempty"`
	Cursor     *RawCursor `json:"cursor,omitempty"`
	NextToken  string     `json:"next_token,omitempty"`
	PageToken  string     `json:"page_token,omitempty"`
}

// RawCursor holds the cursors around a page.
type RawCursor struct {
	Previous string `json:"previous,omitempty"`
	Next     string `json:"next,omitempty"`
}

func (p *RawPagination) total() *int {
	if p == nil {
		return nil
	}
	if p.Count != nil {
		return p.Count
	}
	return p.TotalCount
}

// Result is one parsed page. Data is allocated per page.
type Result[T any] struct {
	Data       []T
	Pagination PageInfo
	Request    Options
	Raw        *RawResponse
}

func decodeData[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}

	switch raw[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		var nested struct {
			Data []T `json:"data"`
		}
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, err
		}
		if nested.Data == nil {
			return []T{}, nil
		}
		return nested.Data, nil
	default:
		return nil, fmt.Errorf("data is neither an array nor an object")
	}
}
