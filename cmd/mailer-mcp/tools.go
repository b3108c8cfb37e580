package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/client"
	"github.com/Sternrassler/mailer-client/pkg/pagination"
	"github.com/Sternrassler/mailer-client/pkg/resilience"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// defaultMaxResults caps list_all when the caller sets no limit.
const defaultMaxResults = 1000

// NewServer creates an MCP server exposing c as tools.
func NewServer(c *client.Client, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mailer-mcp",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(mcp.NewTool("health_check",
		mcp.WithDescription("Report the client's health: circuit breaker, request queue, rate limits and Redis"),
	), healthCheckHandler(c))

	s.AddTool(mcp.NewTool("list_endpoints",
		mcp.WithDescription("List the paginated endpoints and their pagination strategy"),
	), listEndpointsHandler(c))

	s.AddTool(mcp.NewTool("list_all",
		mcp.WithDescription("Fetch every item of a paginated endpoint"),
		mcp.WithString("endpoint", mcp.Required(), mcp.Description("Registered endpoint name, e.g. campaigns")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Request path, e.g. /v3/campaigns")),
		mcp.WithNumber("max_results", mcp.Description("Maximum number of items to return (default 1000)")),
		mcp.WithObject("params", mcp.Description("Additional query parameters")),
	), listAllHandler(c))

	s.AddTool(mcp.NewTool("update_retry_config",
		mcp.WithDescription("Change the retry policy at runtime; omitted fields keep their value"),
		mcp.WithNumber("max_retries", mcp.Description("Retries after the first attempt")),
		mcp.WithNumber("base_delay_ms", mcp.Description("Backoff before the first retry in milliseconds")),
		mcp.WithNumber("max_delay_ms", mcp.Description("Upper bound for any retry delay in milliseconds")),
	), updateRetryConfigHandler(c))

	return s
}

func healthCheckHandler(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(c.Health(ctx))
	}
}

type endpointInfo struct {
	Name         string `json:"name"`
	Strategy     string `json:"strategy"`
	DefaultLimit int    `json:"default_limit"`
	MaxLimit     int    `json:"max_limit"`
}

func listEndpointsHandler(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		configs := c.Factory().AllConfigs()
		out := make([]endpointInfo, 0, len(configs))
		for name, cfg := range configs {
			out = append(out, endpointInfo{
				Name:         name,
				Strategy:     cfg.Strategy.String(),
				DefaultLimit: cfg.DefaultLimit,
				MaxLimit:     cfg.MaxLimit,
			})
		}
		slices.SortFunc(out, func(a, b endpointInfo) int { return strings.Compare(a.Name, b.Name) })
		return jsonResult(out)
	}
}

type listAllResult struct {
	Endpoint string            `json:"endpoint"`
	Count    int               `json:"count"`
	Items    []json.RawMessage `json:"items"`
}

func listAllHandler(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		endpoint, _ := args["endpoint"].(string)
		path, _ := args["path"].(string)
		if endpoint == "" || path == "" {
			return mcp.NewToolResultError("endpoint and path are required"), nil
		}

		maxResults := defaultMaxResults
		if n, ok := numberArg(args, "max_results"); ok && n > 0 {
			maxResults = int(n)
		}

		query := url.Values{}
		if params, ok := args["params"].(map[string]any); ok {
			for k, v := range params {
				query.Set(k, fmt.Sprint(v))
			}
		}

		it := pagination.NewIteratorFor[json.RawMessage](c.Factory(), endpoint, c.Fetcher(endpoint, path, query),
			pagination.WithRetryAttempts(1),
			pagination.WithMaxResults(maxResults),
		)
		items, err := it.ToSlice(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list %s: %v", endpoint, err)), nil
		}
		return jsonResult(listAllResult{Endpoint: endpoint, Count: len(items), Items: items})
	}
}

func updateRetryConfigHandler(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		var opts []resilience.RetryOption
		if n, ok := numberArg(args, "max_retries"); ok {
			opts = append(opts, resilience.WithMaxRetries(int(n)))
		}
		if n, ok := numberArg(args, "base_delay_ms"); ok {
			opts = append(opts, resilience.WithBaseDelay(time.Duration(n)*time.Millisecond))
		}
		if n, ok := numberArg(args, "max_delay_ms"); ok {
			opts = append(opts, resilience.WithMaxDelay(time.Duration(n)*time.Millisecond))
		}
		if len(opts) == 0 {
			return mcp.NewToolResultError("no retry setting given"), nil
		}

		if err := c.UpdateRetryConfig(opts...); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		cfg := c.RetryConfig()
		return jsonResult(map[string]any{
			"max_retries":   cfg.MaxRetries,
			"base_delay_ms": cfg.BaseDelay.Milliseconds(),
			"max_delay_ms":  cfg.MaxDelay.Milliseconds(),
		})
	}
}

// numberArg reads a numeric argument. JSON numbers decode as float64.
func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
