package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "simple endpoint no params",
			key:  Key{Endpoint: "/v3/campaigns/"},
			want: "mailer:v3/campaigns",
		},
		{
			name: "query params sorted",
			key: Key{
				Endpoint: "/v3/campaigns",
				Query:    url.Values{"per_page": []string{"50"}, "page": []string{"2"}},
			},
			want: "mailer:v3/campaigns:page=2:per_page=50",
		},
		{
			name: "repeated query values joined",
			key: Key{
				Endpoint: "/v3/contacts",
				Query:    url.Values{"tag": []string{"vip", "beta"}},
			},
			want: "mailer:v3/contacts:tag=vip,beta",
		},
		{
			name: "account suffix",
			key: Key{
				Endpoint: "/v3/contacts",
				Query:    url.Values{"limit": []string{"100"}},
				Account:  "acme",
			},
			want: "mailer:v3/contacts:limit=100:acct=acme",
		},
		{
			name: "empty endpoint",
			key:  Key{},
			want: "mailer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_Deterministic(t *testing.T) {
	query := url.Values{
		"z": []string{"1"},
		"a": []string{"2"},
		"m": []string{"3"},
	}
	key := Key{Endpoint: "/v3/lists", Query: query, Account: "acme"}

	first := key.String()
	for i := 0; i < 20; i++ {
		if got := key.String(); got != first {
			t.Fatalf("String() not deterministic: %q vs %q", got, first)
		}
	}
}

func TestEndpointScope(t *testing.T) {
	pattern, match := endpointScope("/v3/campaigns")
	if pattern != "mailer:v3/campaigns*" {
		t.Errorf("pattern = %q", pattern)
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"mailer:v3/campaigns", true},
		{"mailer:v3/campaigns:page=1", true},
		{"mailer:v3/campaigns/42:acct=acme", true},
		{"mailer:v3/campaigns_archive:page=1", false},
		{"mailer:v3/contacts", false},
	}
	for _, tt := range tests {
		if got := match(tt.key); got != tt.want {
			t.Errorf("match(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
