package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port        int
	LogLevel    string
	CORSOrigins []string

	// Backend
	BackendURL     string
	UseMockBackend bool
	FetchDelay     time.Duration // simulated latency of mock fetches
	ConfirmDelay   time.Duration // simulated latency of mock mutation confirmations
	ConfirmTimeout time.Duration // deadline of one mutation confirmation

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Pipeline rules
	TransitionPolicy domain.TransitionPolicy

	// Viewer identity (HS256 secret for optional bearer tokens)
	ViewerTokenSecret string

	// Observability
	OTLPEndpoint string

	// Dev mode
	DevTools bool // DEV_TOOLS=true exposes /v1/dev fault injection on the mock backend
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:        getEnvInt("PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		BackendURL:     getEnv("BACKEND_URL", "http://localhost:8081"),
		UseMockBackend: getEnv("USE_MOCK_BACKEND", "true") == "true",
		FetchDelay:     getEnvDuration("FETCH_DELAY", time.Second),
		ConfirmDelay:   getEnvDuration("CONFIRM_DELAY", 500*time.Millisecond),
		ConfirmTimeout: getEnvDuration("CONFIRM_TIMEOUT", 30*time.Second),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		TransitionPolicy: domain.ParseTransitionPolicy(getEnv("TRANSITION_POLICY", string(domain.TransitionOpen))),

		ViewerTokenSecret: getEnv("VIEWER_TOKEN_SECRET", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		DevTools: getEnv("DEV_TOOLS", "false") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
