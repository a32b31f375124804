package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Upstream feed.
	UpstreamURLTemplate string // fmt template with one %02d verb for the bucket index
	RequestedHoursAgo   int
	UpstreamTimeout     time.Duration
	BreakerEnabled      bool

	// Polling.
	PollInterval time.Duration

	// Identity matching.
	MatchRadiusKM float64

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional snapshot publisher.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Optional local-context lookup collaborator.
	WindContextEnabled   bool
	WindContextBaseURL   string
	WindContextTimeout   time.Duration
	WindContextCacheSize int
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is merged in first when
// present.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	pollInterval, err := parseDuration("POLL_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}
	upstreamTimeout, err := parseDuration("UPSTREAM_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	windTimeout, err := parseDuration("WINDCTX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	matchRadius, err := parseFloat("MATCH_RADIUS_KM", 150)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		UpstreamURLTemplate: os.Getenv("UPSTREAM_URL_TEMPLATE"),
		RequestedHoursAgo:   envInt("REQUESTED_HOURS_AGO", 0),
		UpstreamTimeout:     upstreamTimeout,
		BreakerEnabled:      envBool("BREAKER_ENABLED", true),
		PollInterval:        pollInterval,
		MatchRadiusKM:       matchRadius,
		HTTPAddr:            envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		LogFormat:           envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:     shutdownTimeout,

		KafkaEnabled:   envBool("KAFKA_ENABLED", false),
		KafkaBrokers:   parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "tracked-constellation"),

		WindContextEnabled:   envBool("WINDCTX_ENABLED", false),
		WindContextBaseURL:   os.Getenv("WINDCTX_BASE_URL"),
		WindContextTimeout:   windTimeout,
		WindContextCacheSize: envInt("WINDCTX_CACHE_SIZE", 1000),
	}

	if cfg.UpstreamURLTemplate == "" {
		return nil, errors.New("UPSTREAM_URL_TEMPLATE is required")
	}
	if !strings.Contains(cfg.UpstreamURLTemplate, "%02d") {
		return nil, errors.New("UPSTREAM_URL_TEMPLATE must contain a %02d bucket verb")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("POLL_INTERVAL must be positive")
	}
	if cfg.MatchRadiusKM <= 0 {
		return nil, errors.New("MATCH_RADIUS_KM must be positive")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_SINK_TOPIC is empty")
		}
	}
	if cfg.WindContextEnabled && cfg.WindContextBaseURL == "" {
		return nil, errors.New("WINDCTX_ENABLED is true but WINDCTX_BASE_URL is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
