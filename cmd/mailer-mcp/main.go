// Command mailer-mcp exposes the marketing API client as MCP tools over
// stdio. When METRICS_ADDR is set it also serves /health and /metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/client"
	"github.com/Sternrassler/mailer-client/pkg/logging"
	"github.com/Sternrassler/mailer-client/pkg/metrics"
	"github.com/mark3labs/mcp-go/server"
)

const version = "0.1.0"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		logger := logging.NewLogger("mailer-mcp")
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	// stdout carries the MCP protocol; logs go to stderr.
	logging.Setup(logging.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "mailer-mcp",
	})
	logger := logging.NewLogger("mailer-mcp")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := cfg.RedisClient()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid Redis configuration")
	}
	if redisClient != nil {
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		logger.Info().Msg("Connected to Redis")
	}

	apiClient, err := client.New(cfg.ClientConfig(redisClient))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create mailer client")
	}
	defer apiClient.Close()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newHTTPHandler(apiClient),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving /health and /metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("HTTP server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Str("base_url", cfg.BaseURL).Msg("Starting MCP server on stdio")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(NewServer(apiClient, version)) }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("MCP server stopped")
		}
	}
}

// newHTTPHandler serves the health report and Prometheus metrics.
func newHTTPHandler(c *client.Client) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		report := c.Health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == client.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
	return mux
}
