package pagination

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"sync"
	"time"
)

type contact struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

func makeContacts(n int) []contact {
	out := make([]contact, n)
	for i := range out {
		out[i] = contact{ID: i + 1, Email: "user" + strconv.Itoa(i+1) + "@example.com"}
	}
	return out
}

// fakeAPI serves a fixed dataset under one of the three strategies and
// records every request it receives.
type fakeAPI struct {
	mu       sync.Mutex
	items    []contact
	strategy Strategy

	// withCount makes offset responses report the total.
	withCount bool
	// nested wraps page data as {"data": [...]}.
	nested bool
	// failures makes the first N calls fail with failErr.
	failures int
	failErr  error

	requests []url.Values
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeAPI) fetch(ctx context.Context, params url.Values) (*RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.requests = append(f.requests, params)
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, f.failErr
	}
	f.mu.Unlock()

	switch f.strategy {
	case StrategyCursor:
		return f.cursorPage(params), nil
	case StrategyToken:
		return f.tokenPage(params), nil
	default:
		return f.offsetPage(params), nil
	}
}

func (f *fakeAPI) slice(start, size int) json.RawMessage {
	start = min(start, len(f.items))
	end := min(start+size, len(f.items))
	var body any = f.items[start:end]
	if f.nested {
		body = map[string]any{"data": f.items[start:end]}
	}
	data, _ := json.Marshal(body)
	return data
}

func (f *fakeAPI) offsetPage(params url.Values) *RawResponse {
	page, _ := strconv.Atoi(params.Get("page"))
	perPage, _ := strconv.Atoi(params.Get("per_page"))
	resp := &RawResponse{
		Data:       f.slice((page-1)*perPage, perPage),
		Pagination: &RawPagination{Page: page, PerPage: perPage},
	}
	if f.withCount {
		total := len(f.items)
		resp.Pagination.Count = &total
	}
	return resp
}

func (f *fakeAPI) cursorPage(params url.Values) *RawResponse {
	start, _ := strconv.Atoi(params.Get("cursor"))
	limit, _ := strconv.Atoi(params.Get("limit"))
	cursor := &RawCursor{}
	if start > 0 {
		cursor.Previous = strconv.Itoa(max(start-limit, 0))
	}
	if start+limit < len(f.items) {
		cursor.Next = strconv.Itoa(start + limit)
	}
	return &RawResponse{
		Data:       f.slice(start, limit),
		Pagination: &RawPagination{Cursor: cursor},
	}
}

func (f *fakeAPI) tokenPage(params url.Values) *RawResponse {
	start := 0
	if tok := params.Get("next_token"); tok != "" {
		start, _ = strconv.Atoi(tok[len("tok-"):])
	}
	limit, _ := strconv.Atoi(params.Get("limit"))
	p := &RawPagination{}
	if start+limit < len(f.items) {
		p.NextToken = "tok-" + strconv.Itoa(start+limit)
	}
	return &RawResponse{Data: f.slice(start, limit), Pagination: p}
}

// noSleep records iterator backoff delays without waiting.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delays = append(n.delays, d)
	return ctx.Err()
}

func intPtr(v int) *int { return &v }
