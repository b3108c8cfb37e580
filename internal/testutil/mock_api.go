// Package testutil provides a configurable mock of the marketing API.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/pagination"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Dataset is a paginated collection served by the mock.
type Dataset struct {
	Strategy pagination.Strategy
	Items    []any

	// WithCount adds total counts to offset responses. Without it the client
	// has to infer whether more pages exist.
	WithCount bool
}

// MockAPI is a configurable mock marketing API server for testing.
type MockAPI struct {
	server *httptest.Server

	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	datasets map[string]Dataset
	failures map[string][]MockResponse

	requests          map[string]int
	requestCount      int
	conditionalCount  int
	lastRequestHeader http.Header
}

// NewMockAPI starts a mock server. Every response carries healthy
// X-RateLimit-* headers unless a handler overrides them.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
		datasets: make(map[string]Dataset),
		failures: make(map[string][]MockResponse),
		requests: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.requests[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}

		var injected *MockResponse
		if queued := mock.failures[r.URL.Path]; len(queued) > 0 {
			injected = &queued[0]
			mock.failures[r.URL.Path] = queued[1:]
		}
		handler, hasHandler := mock.handlers[r.URL.Path]
		dataset, hasDataset := mock.datasets[r.URL.Path]
		mock.mu.Unlock()

		setQuotaHeaders(w, 100, 60)

		switch {
		case injected != nil:
			writeResponse(w, *injected)
		case hasHandler:
			handler(w, r)
		case hasDataset:
			serveDataset(w, r, dataset)
		default:
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Client returns an HTTP client for the mock server.
func (m *MockAPI) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.lastRequestHeader = nil
	clear(m.requests)
}

// SetHandler sets a custom handler for a path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetDataset serves a paginated collection on path.
func (m *MockAPI) SetDataset(path string, ds Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[path] = ds
}

// FailNext makes the next n requests to path answer with resp before the
// configured behavior resumes.
func (m *MockAPI) FailNext(path string, n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for range n {
		m.failures[path] = append(m.failures[path], resp)
	}
}

// RequestCount returns the number of requests made to the server.
func (m *MockAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathRequestCount returns the number of requests made to path.
func (m *MockAPI) PathRequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// ConditionalCount returns the number of conditional requests.
func (m *MockAPI) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader.Clone()
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func setQuotaHeaders(w http.ResponseWriter, remaining, resetSeconds int) {
	w.Header().Set("X-RateLimit-Limit", "100")
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSeconds))
}

// serveDataset answers with one page of ds in the wire format of its strategy.
func serveDataset(w http.ResponseWriter, r *http.Request, ds Dataset) {
	q := r.URL.Query()
	total := len(ds.Items)
	body := map[string]any{}

	switch ds.Strategy {
	case pagination.StrategyCursor:
		limit := intParam(q.Get("limit"), 50)
		start := intParam(q.Get("cursor"), 0)
		end := min(start+limit, total)
		start = min(start, end)
		body["data"] = ds.Items[start:end]
		cursor := map[string]string{}
		if start > 0 {
			cursor["previous"] = strconv.Itoa(max(start-limit, 0))
		}
		if end < total {
			cursor["next"] = strconv.Itoa(end)
		}
		body["pagination"] = map[string]any{"cursor": cursor}

	case pagination.StrategyToken:
		limit := intParam(q.Get("limit"), 50)
		start := 0
		if token := q.Get("next_token"); token != "" {
			fmt.Sscanf(token, "tok-%d", &start)
		}
		end := min(start+limit, total)
		start = min(start, end)
		body["data"] = ds.Items[start:end]
		p := map[string]any{}
		if end < total {
			p["next_token"] = fmt.Sprintf("tok-%d", end)
		}
		body["pagination"] = p

	default:
		page := max(intParam(q.Get("page"), 1), 1)
		perPage := intParam(q.Get("per_page"), 50)
		start := min((page-1)*perPage, total)
		end := min(start+perPage, total)
		body["data"] = ds.Items[start:end]
		p := map[string]any{"page": page, "per_page": perPage}
		if ds.WithCount {
			p["count"] = total
		}
		body["pagination"] = p
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

func intParam(value string, fallback int) int {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return fallback
}

// NewJSONResponse creates a cacheable 200 OK response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"ETag":          `"test-etag-123"`,
			"Cache-Control": "max-age=300",
			"Content-Type":  "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(int(retryAfter.Seconds())),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewErrorResponse creates an error response with the given status and message.
func NewErrorResponse(status int, message string) MockResponse {
	body, _ := json.Marshal(map[string]string{"message": message})
	return MockResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewConditionalHandler answers 304 Not Modified when If-None-Match matches etag.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "max-age=300")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}

// NewQuotaHandler serves data while announcing the given server quota.
func NewQuotaHandler(remaining, resetSeconds int, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setQuotaHeaders(w, remaining, resetSeconds)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
