package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
)

// Manager builds requests and parses responses for one endpoint. The endpoint
// config is resolved once at construction; later registry changes do not
// affect an existing Manager.
type Manager struct {
	endpoint string
	config   EndpointConfig
}

// NewManager creates a manager for endpoint. A nil registry resolves every
// endpoint to DefaultEndpointConfig.
func NewManager(registry *Registry, endpoint string) *Manager {
	cfg := DefaultEndpointConfig()
	if registry != nil {
		cfg = registry.Get(endpoint)
	}
	return &Manager{endpoint: endpoint, config: cfg}
}

// Endpoint returns the endpoint name.
func (m *Manager) Endpoint() string { return m.endpoint }

// Config returns the endpoint config held by the manager.
func (m *Manager) Config() EndpointConfig { return m.config }

// Strategy returns the endpoint strategy.
func (m *Manager) Strategy() Strategy { return m.config.Strategy }

// InitialOptions returns the options for the first page.
func (m *Manager) InitialOptions() Options {
	switch m.config.Strategy {
	case StrategyCursor:
		return CursorOptions{Limit: m.config.DefaultLimit}
	case StrategyToken:
		return TokenOptions{Limit: m.config.DefaultLimit}
	default:
		return OffsetOptions{Page: 1, PerPage: m.config.DefaultLimit}
	}
}

// limit resolves a requested page size: unset means DefaultLimit and values
// above MaxLimit are clamped.
func (m *Manager) limit(requested int) int {
	if requested <= 0 {
		return m.config.DefaultLimit
	}
	return min(requested, m.config.MaxLimit)
}

func (m *Manager) checkStrategy(opts Options) error {
	if opts.Strategy() != m.config.Strategy {
		return apierr.Validation("endpoint %s uses %s pagination, got %s options",
			m.endpoint, m.config.Strategy, opts.Strategy())
	}
	return nil
}

// BuildQueryParams translates opts into query parameters. Nil opts selects
// the first page.
func (m *Manager) BuildQueryParams(opts Options) (url.Values, error) {
	if opts == nil {
		opts = m.InitialOptions()
	}
	if err := m.checkStrategy(opts); err != nil {
		return nil, err
	}

	params := url.Values{}
	switch o := opts.(type) {
	case OffsetOptions:
		params.Set(m.config.pageParam(), strconv.Itoa(max(o.Page, 1)))
		params.Set(m.config.sizeParam(), strconv.Itoa(m.limit(o.PerPage)))
		if o.WithCount {
			params.Set("with_count", "true")
		}
	case CursorOptions:
		if o.Cursor != "" {
			params.Set(m.config.cursorParam(), o.Cursor)
		}
		if o.Before != "" {
			params.Set("before", o.Before)
		}
		if o.After != "" {
			params.Set("after", o.After)
		}
		params.Set(m.config.sizeParam(), strconv.Itoa(m.limit(o.Limit)))
	case TokenOptions:
		if o.NextToken != "" {
			params.Set(m.config.tokenParam(), o.NextToken)
		}
		if o.PageToken != "" {
			params.Set("page_token", o.PageToken)
		}
		params.Set(m.config.sizeParam(), strconv.Itoa(m.limit(o.Limit)))
	}
	return params, nil
}

// ParseResponse decodes raw into a Result for the page requested with req.
// Nil req means the first page.
func ParseResponse[T any](m *Manager, raw *RawResponse, req Options) (*Result[T], error) {
	if raw == nil {
		return nil, fmt.Errorf("parse %s page: empty response", m.endpoint)
	}
	if req == nil {
		req = m.InitialOptions()
	}
	if err := m.checkStrategy(req); err != nil {
		return nil, err
	}

	data, err := decodeData[T](raw.Data)
	if err != nil {
		return nil, fmt.Errorf("parse %s page: %w", m.endpoint, err)
	}

	var info PageInfo
	switch o := req.(type) {
	case OffsetOptions:
		info = m.offsetPage(o, raw.Pagination, len(data))
	case CursorOptions:
		info = m.cursorPage(o, raw.Pagination, len(data))
	case TokenOptions:
		info = tokenPage(o, raw.Pagination)
	}

	return &Result[T]{
		Data:       data,
		Pagination: info,
		Request:    req,
		Raw:        raw,
	}, nil
}

func (m *Manager) offsetPage(o OffsetOptions, p *RawPagination, n int) OffsetPage {
	page := OffsetPage{Page: max(o.Page, 1), PerPage: m.limit(o.PerPage)}
	if p != nil {
		if p.Page > 0 {
			page.Page = p.Page
		}
		if p.PerPage > 0 {
			page.PerPage = p.PerPage
		}
		page.TotalPages = p.TotalPages
	}

	switch total := p.total(); {
	case total != nil:
		page.Total = total
		page.More = page.Page*page.PerPage < *total
		if page.TotalPages == nil {
			pages := (*total + page.PerPage - 1) / page.PerPage
			page.TotalPages = &pages
		}
	case page.TotalPages != nil:
		page.More = page.Page < *page.TotalPages
	default:
		page.More = n >= page.PerPage
		page.Inferred = true
	}
	return page
}

// cursorPage reports more data when the server issued a next cursor. Without
// one, a full page is taken to imply more; NextPageOptions still has no cursor
// to follow, so such a listing ends there.
func (m *Manager) cursorPage(o CursorOptions, p *RawPagination, n int) CursorPage {
	page := CursorPage{}
	page.Total = p.total()

	if p != nil && p.Cursor != nil {
		page.Previous = p.Cursor.Previous
		page.Next = p.Cursor.Next
	}
	if page.Next != "" {
		page.More = true
		return page
	}

	page.More = n >= m.limit(o.Limit)
	page.Inferred = true
	return page
}

// tokenPage reports more data when the server issued a continuation token
// that differs from the one just used.
func tokenPage(o TokenOptions, p *RawPagination) TokenPage {
	page := TokenPage{}
	if p == nil {
		return page
	}
	page.Total = p.total()
	page.NextToken = p.NextToken
	page.PageToken = p.PageToken
	page.More = p.NextToken != "" || (p.PageToken != "" && p.PageToken != o.PageToken)
	return page
}

// NextPageOptions returns the options for the page after the one described by
// info, or nil when there is none.
func (m *Manager) NextPageOptions(req Options, info PageInfo) Options {
	if info == nil || !info.HasMore() {
		return nil
	}

	switch p := info.(type) {
	case OffsetPage:
		o, _ := req.(OffsetOptions)
		return OffsetOptions{Page: p.Page + 1, PerPage: p.PerPage, WithCount: o.WithCount}
	case CursorPage:
		if p.Next == "" {
			return nil
		}
		o, _ := req.(CursorOptions)
		return CursorOptions{Cursor: p.Next, Limit: o.Limit}
	case TokenPage:
		o, _ := req.(TokenOptions)
		switch {
		case p.NextToken != "":
			return TokenOptions{NextToken: p.NextToken, Limit: o.Limit}
		case p.PageToken != "":
			return TokenOptions{PageToken: p.PageToken, Limit: o.Limit}
		}
	}
	return nil
}

// PreviousPageOptions returns the options for the page before the one
// described by info, or nil. Token pagination is forward-only.
func (m *Manager) PreviousPageOptions(req Options, info PageInfo) Options {
	switch p := info.(type) {
	case OffsetPage:
		if p.Page <= 1 {
			return nil
		}
		o, _ := req.(OffsetOptions)
		return OffsetOptions{Page: p.Page - 1, PerPage: p.PerPage, WithCount: o.WithCount}
	case CursorPage:
		if p.Previous == "" {
			return nil
		}
		o, _ := req.(CursorOptions)
		return CursorOptions{Cursor: p.Previous, Limit: o.Limit}
	}
	return nil
}

// ValidationResult lists the problems found in a set of options.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateOptions checks opts against the endpoint bounds. Zero values are
// accepted as "use the default".
func (m *Manager) ValidateOptions(opts Options) ValidationResult {
	if opts == nil {
		return ValidationResult{Valid: true}
	}

	var errs []string
	if opts.Strategy() != m.config.Strategy {
		errs = append(errs, fmt.Sprintf("endpoint uses %s pagination, got %s options", m.config.Strategy, opts.Strategy()))
	}

	checkLimit := func(name string, v int) {
		if v != 0 && (v < 1 || v > m.config.MaxLimit) {
			errs = append(errs, fmt.Sprintf("%s must be between 1 and %d (got %d)", name, m.config.MaxLimit, v))
		}
	}

	switch o := opts.(type) {
	case OffsetOptions:
		if o.Page < 0 {
			errs = append(errs, fmt.Sprintf("page must be >= 1 (got %d)", o.Page))
		}
		checkLimit("per_page", o.PerPage)
	case CursorOptions:
		checkLimit("limit", o.Limit)
	case TokenOptions:
		checkLimit("limit", o.Limit)
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Validate is ValidateOptions returning a validation error.
func (m *Manager) Validate(opts Options) error {
	res := m.ValidateOptions(opts)
	if res.Valid {
		return nil
	}
	return apierr.Validation("invalid pagination options for %s: %s", m.endpoint, strings.Join(res.Errors, "; "))
}
