package pagination

// Options selects a page. The concrete type is one of OffsetOptions,
// CursorOptions or TokenOptions and must match the endpoint strategy.
type Options interface {
	Strategy() Strategy
	isOptions()
}

// OffsetOptions selects a page by number. Zero values mean "use the default".
type OffsetOptions struct {
	Page      int  `json:"page,omitempty"`
	PerPage   int  `json:"per_page,omitempty"`
	WithCount bool `json:"with_count,omitempty"`
}

// CursorOptions selects a page relative to an opaque cursor.
type CursorOptions struct {
	Cursor string `json:"cursor,omitempty"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// TokenOptions continues a token-paginated listing.
type TokenOptions struct {
	NextToken string `json:"next_token,omitempty"`
	PageToken string `json:"page_token,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

func (OffsetOptions) Strategy() Strategy { return StrategyOffset }
func (CursorOptions) Strategy() Strategy { return StrategyCursor }
func (TokenOptions) Strategy() Strategy  { return StrategyToken }

func (OffsetOptions) isOptions() {}
func (CursorOptions) isOptions() {}
func (TokenOptions) isOptions()  {}

// Signal tells how a page's has-more answer was obtained.
type Signal int

const (
	// SignalAuthoritative means the server stated whether more data exists,
	// through a total count, a next cursor or a continuation token.
	SignalAuthoritative Signal = iota

	// SignalInferred means the server gave no such statement and a full page
	// was taken to imply more data.
	SignalInferred
)

// String returns the signal name.
func (s Signal) String() string {
	if s == SignalInferred {
		return "inferred"
	}
	return "authoritative"
}

// MarshalText implements encoding.TextMarshaler.
func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PageInfo describes where a fetched page sits in the listing. The concrete
// type is one of OffsetPage, CursorPage or TokenPage.
type PageInfo interface {
	Strategy() Strategy
	HasMore() bool
	TotalCount() (int, bool)
	Signal() Signal
	isPageInfo()
}

// Continuation is the part of PageInfo shared by every strategy.
type Continuation struct {
	More     bool `json:"has_more"`
	Total    *int `json:"total_count,omitempty"`
	Inferred bool `json:"inferred,omitempty"`
}

// HasMore reports whether another page is expected.
func (c Continuation) HasMore() bool { return c.More }

// TotalCount returns the total number of items if the server reported it.
func (c Continuation) TotalCount() (int, bool) {
	if c.Total == nil {
		return 0, false
	}
	return *c.Total, true
}

// Signal reports whether More was stated by the server or inferred.
func (c Continuation) Signal() Signal {
	if c.Inferred {
		return SignalInferred
	}
	return SignalAuthoritative
}

// OffsetPage is the PageInfo of an offset-paginated endpoint.
type OffsetPage struct {
	Continuation
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages *int `json:"total_pages,omitempty"`
}

// CursorPage is the PageInfo of a cursor-paginated endpoint.
type CursorPage struct {
	Continuation
	Previous string `json:"previous,omitempty"`
	Next     string `json:"next,omitempty"`
}

// TokenPage is the PageInfo of a token-paginated endpoint.
type TokenPage struct {
	Continuation
	NextToken string `json:"next_token,omitempty"`
	PageToken string `json:"page_token,omitempty"`
}

func (OffsetPage) Strategy() Strategy { return StrategyOffset }
func (CursorPage) Strategy() Strategy { return StrategyCursor }
func (TokenPage) Strategy() Strategy  { return StrategyToken }

func (OffsetPage) isPageInfo() {}
func (CursorPage) isPageInfo() {}
func (TokenPage) isPageInfo()  {}
