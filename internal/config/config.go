package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Store backends selectable via STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string

	// Persistence.
	StoreBackend           string
	PostgresURL            string
	PostgresMaxConns       int32
	DynamoDBStatsTable     string
	DynamoDBLocationsTable string
	AWSRegion              string

	// Game event publishing.
	EventsEnabled      bool
	KafkaBrokers       []string
	KafkaTopic         string
	BatchSize          int
	BatchFlushInterval time.Duration

	// NASA API client.
	NASAAPIKey           string
	NASATimeout          time.Duration
	NASARateLimit        float64
	NASARateBurst        int
	NASACacheSize        int
	NASACacheTTL         time.Duration
	NASAPrefetchSchedule string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	nasaTimeout, err := parsePositiveDuration("NASA_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	nasaCacheTTL, err := parsePositiveDuration("NASA_CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}

	nasaRate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("NASA_RATE_LIMIT", "2"), 64)
	if err != nil || nasaRate <= 0 {
		return nil, errors.New("invalid NASA_RATE_LIMIT")
	}

	maxConns, err := strconv.ParseInt(sharedcfg.EnvOrDefault("POSTGRES_MAX_CONNS", "10"), 10, 32)
	if err != nil || maxConns <= 0 {
		return nil, errors.New("invalid POSTGRES_MAX_CONNS")
	}

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		CORSAllowedOrigins: splitList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),

		StoreBackend:           strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", StoreMemory)),
		PostgresURL:            os.Getenv("POSTGRES_URL"),
		PostgresMaxConns:       int32(maxConns),
		DynamoDBStatsTable:     sharedcfg.EnvOrDefault("DYNAMODB_STATS_TABLE", "explorer-user-stats"),
		DynamoDBLocationsTable: sharedcfg.EnvOrDefault("DYNAMODB_LOCATIONS_TABLE", "explorer-locations"),
		AWSRegion:              sharedcfg.EnvOrDefault("AWS_REGION", "us-east-1"),

		EventsEnabled:      os.Getenv("EVENTS_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "game-events"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		NASAAPIKey:           sharedcfg.EnvOrDefault("NASA_API_KEY", "DEMO_KEY"),
		NASATimeout:          nasaTimeout,
		NASARateLimit:        nasaRate,
		NASARateBurst:        parsePositiveInt("NASA_RATE_BURST", 5),
		NASACacheSize:        parsePositiveInt("NASA_CACHE_SIZE", 500),
		NASACacheTTL:         nasaCacheTTL,
		NASAPrefetchSchedule: prefetchSchedule(),
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if cfg.PostgresURL == "" {
			return nil, errors.New("STORE_BACKEND is postgres but POSTGRES_URL is not set")
		}
	case StoreDynamoDB:
		if cfg.DynamoDBStatsTable == "" || cfg.DynamoDBLocationsTable == "" {
			return nil, errors.New("STORE_BACKEND is dynamodb but DYNAMODB_STATS_TABLE or DYNAMODB_LOCATIONS_TABLE is empty")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.EventsEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when EVENTS_ENABLED is true")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when EVENTS_ENABLED is true")
		}
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// prefetchSchedule returns the cron spec for NASA cache warm-up. An explicitly
// empty NASA_PREFETCH_SCHEDULE disables the scheduler.
func prefetchSchedule() string {
	if v, ok := os.LookupEnv("NASA_PREFETCH_SCHEDULE"); ok {
		return strings.TrimSpace(v)
	}
	return "@daily"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
