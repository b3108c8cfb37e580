package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/auth"
	"github.com/Sternrassler/mailer-client/pkg/client"
	"github.com/Sternrassler/mailer-client/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Config holds the server configuration loaded from environment variables.
type Config struct {
	// API
	BaseURL   string
	UserAgent string
	Account   string
	Timeout   time.Duration

	// Credentials, first match wins: API key, access token, client credentials.
	APIKey       string
	AccessToken  string
	ClientID     string
	ClientSecret string
	TokenURL     string

	// Redis is optional; it enables the shared cache and server quota state.
	RedisURL string

	// Resilience
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	MaxConcurrency    int

	// Server
	MetricsAddr string
	LogLevel    logging.LogLevel
	LogPretty   bool
}

// LoadConfig loads configuration from environment variables.
// It loads a .env file if present (silent fail if not found).
func LoadConfig() (*Config, error) {
	godotenv.Load()

	level, err := logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		BaseURL:           os.Getenv("MAILER_BASE_URL"),
		UserAgent:         getEnvOrDefault("MAILER_USER_AGENT", "mailer-mcp/0.1.0"),
		Account:           os.Getenv("MAILER_ACCOUNT"),
		Timeout:           getEnvDurationOrDefault("MAILER_TIMEOUT", 30*time.Second),
		APIKey:            os.Getenv("MAILER_API_KEY"),
		AccessToken:       os.Getenv("MAILER_ACCESS_TOKEN"),
		ClientID:          os.Getenv("MAILER_CLIENT_ID"),
		ClientSecret:      os.Getenv("MAILER_CLIENT_SECRET"),
		TokenURL:          os.Getenv("MAILER_TOKEN_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RequestsPerSecond: getEnvFloatOrDefault("MAILER_RPS", 10),
		Burst:             getEnvIntOrDefault("MAILER_BURST", 20),
		MaxRetries:        getEnvIntOrDefault("MAILER_MAX_RETRIES", 3),
		MaxConcurrency:    getEnvIntOrDefault("MAILER_MAX_CONCURRENCY", 5),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		LogLevel:          level,
		LogPretty:         getEnvBoolOrDefault("LOG_PRETTY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("MAILER_BASE_URL is required")
	}
	if c.APIKey == "" && c.AccessToken == "" && c.ClientID == "" {
		return fmt.Errorf("one of MAILER_API_KEY, MAILER_ACCESS_TOKEN or MAILER_CLIENT_ID is required")
	}
	if c.APIKey == "" && c.AccessToken == "" {
		if c.ClientSecret == "" || c.TokenURL == "" {
			return fmt.Errorf("MAILER_CLIENT_SECRET and MAILER_TOKEN_URL are required with MAILER_CLIENT_ID")
		}
	}
	return nil
}

// Provider builds the credential provider.
func (c *Config) Provider() auth.Provider {
	switch {
	case c.APIKey != "":
		return auth.NewAPIKey(c.APIKey)
	case c.AccessToken != "":
		return auth.NewBearerToken(c.AccessToken)
	default:
		return auth.NewClientCredentials(c.ClientID, c.ClientSecret, c.TokenURL, nil, nil)
	}
}

// RedisClient connects to REDIS_URL, or returns nil when it is unset. Both
// "redis://" URLs and plain host:port addresses are accepted.
func (c *Config) RedisClient() (*redis.Client, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if !strings.Contains(c.RedisURL, "://") {
		return redis.NewClient(&redis.Options{Addr: c.RedisURL}), nil
	}
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// ClientConfig maps the environment onto the client configuration.
func (c *Config) ClientConfig(redisClient redis.UniversalClient) client.Config {
	cfg := client.DefaultConfig(c.BaseURL, c.UserAgent)
	cfg.Timeout = c.Timeout
	cfg.Auth = c.Provider()
	cfg.Account = c.Account
	cfg.RateLimit.MaxRequestsPerSecond = c.RequestsPerSecond
	cfg.RateLimit.BurstLimit = c.Burst
	cfg.Retry.MaxRetries = c.MaxRetries
	cfg.MaxConcurrency = c.MaxConcurrency
	if redisClient != nil {
		cfg.Redis = redisClient
		cfg.EnableCache = true
	}
	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
