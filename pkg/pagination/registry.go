package pagination

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Strategy identifies how an endpoint pages through its results.
type Strategy int

const (
	// StrategyOffset pages by page number and page size.
	StrategyOffset Strategy = iota

	// StrategyCursor pages by opaque position cursors.
	StrategyCursor

	// StrategyToken pages forward by server-issued continuation tokens.
	StrategyToken
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyOffset:
		return "offset"
	case StrategyCursor:
		return "cursor"
	case StrategyToken:
		return "token"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if s < StrategyOffset || s > StrategyToken {
		return nil, fmt.Errorf("invalid pagination strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStrategy parses a case-insensitive strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "offset":
		return StrategyOffset, nil
	case "cursor":
		return StrategyCursor, nil
	case "token":
		return StrategyToken, nil
	default:
		return 0, fmt.Errorf("unknown pagination strategy %q", name)
	}
}

// EndpointConfig describes how one endpoint paginates. Empty parameter names
// fall back to page, per_page (offset) or limit (cursor, token), cursor and
// next_token.
type EndpointConfig struct {
	Strategy     Strategy `json:"strategy"`
	DefaultLimit int      `json:"default_limit"`
	MaxLimit     int      `json:"max_limit"`
	PageParam    string   `json:"page_param,omitempty"`
	SizeParam    string   `json:"size_param,omitempty"`
	CursorParam  string   `json:"cursor_param,omitempty"`
	TokenParam   string   `json:"token_param,omitempty"`
}

// DefaultEndpointConfig is used for endpoints that were never registered.
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		Strategy:     StrategyOffset,
		DefaultLimit: 50,
		MaxLimit:     100,
	}
}

// Validate checks the configuration.
func (c EndpointConfig) Validate() error {
	if c.Strategy < StrategyOffset || c.Strategy > StrategyToken {
		return fmt.Errorf("invalid pagination strategy %d", int(c.Strategy))
	}
	if c.DefaultLimit < 1 {
		return fmt.Errorf("default_limit must be >= 1 (got %d)", c.DefaultLimit)
	}
	if c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("max_limit (%d) must be >= default_limit (%d)", c.MaxLimit, c.DefaultLimit)
	}
	return nil
}

func (c EndpointConfig) pageParam() string {
	return cmp.Or(c.PageParam, "page")
}

func (c EndpointConfig) sizeParam() string {
	if c.Strategy == StrategyOffset {
		return cmp.Or(c.SizeParam, "per_page")
	}
	return cmp.Or(c.SizeParam, "limit")
}

func (c EndpointConfig) cursorParam() string {
	return cmp.Or(c.CursorParam, "cursor")
}

func (c EndpointConfig) tokenParam() string {
	return cmp.Or(c.TokenParam, "next_token")
}

// Registry maps endpoint names to pagination configs. It is safe for
// concurrent use; the last registration of a name wins.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]EndpointConfig
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]EndpointConfig)}
}

// NewDefaultRegistry creates a registry preloaded with the list endpoints of
// the marketing API.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for name, cfg := range defaultEndpoints {
		r.configs[name] = cfg
	}
	return r
}

var defaultEndpoints = map[string]EndpointConfig{
	"campaigns":        {Strategy: StrategyOffset, DefaultLimit: 50, MaxLimit: 100},
	"templates":        {Strategy: StrategyOffset, DefaultLimit: 20, MaxLimit: 100},
	"senders":          {Strategy: StrategyOffset, DefaultLimit: 50, MaxLimit: 100},
	"lists":            {Strategy: StrategyOffset, DefaultLimit: 50, MaxLimit: 100},
	"segments":         {Strategy: StrategyOffset, DefaultLimit: 50, MaxLimit: 100},
	"webhooks":         {Strategy: StrategyOffset, DefaultLimit: 25, MaxLimit: 100},
	"contacts":         {Strategy: StrategyCursor, DefaultLimit: 100, MaxLimit: 500},
	"email_events":     {Strategy: StrategyCursor, DefaultLimit: 100, MaxLimit: 1000},
	"campaign_reports": {Strategy: StrategyToken, DefaultLimit: 50, MaxLimit: 200},
}

// Get returns the config for endpoint, or DefaultEndpointConfig when none is registered.
func (r *Registry) Get(endpoint string) EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cfg, ok := r.configs[endpoint]; ok {
		return cfg
	}
	return DefaultEndpointConfig()
}

// Register adds or replaces the config for name.
func (r *Registry) Register(name string, cfg EndpointConfig) error {
	if name == "" {
		return fmt.Errorf("endpoint name must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
	return nil
}

// All returns a copy of every registered config.
func (r *Registry) All() map[string]EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.configs)
}

// Names returns the registered endpoint names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.configs))
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.configs[name]
	return ok
}

// Remove deletes the config for name and reports whether it existed. Managers
// already built for name keep their config.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.configs[name]
	delete(r.configs, name)
	return ok
}

// Clear removes every config.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.configs)
}
