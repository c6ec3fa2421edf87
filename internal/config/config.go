package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the cartpulse services.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Worker    WorkerConfig
	Cache     CacheConfig
	Geo       GeoConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type RateLimitConfig struct {
	Enabled     bool
	IngestRPS   float64
	IngestBurst int
	MgmtRPS     float64
	MgmtBurst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// WorkerConfig configures the aggregation worker.
type WorkerConfig struct {
	QueueName      string
	PollTimeout    time.Duration
	RollupInterval time.Duration
	MaxAttempts    int
}

// CacheConfig holds the TTL for each cached query family.
type CacheConfig struct {
	TopProductsTTL  time.Duration
	ProductTTL      time.Duration
	UserSummaryTTL  time.Duration
	OverviewTTL     time.Duration
	TimeseriesTTL   time.Duration
	ProductStatsTTL time.Duration
}

// GeoConfig configures optional GeoIP enrichment of ingested events.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
	CacheSize    int
	CacheTTL     time.Duration
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("CARTPULSE_HTTP_ADDR", ":8080"),
			Env:             getEnv("CARTPULSE_ENV", "development"),
			ShutdownTimeout: getDurationEnv("CARTPULSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("CARTPULSE_DB_HOST", "localhost"),
			Port:     getIntEnv("CARTPULSE_DB_PORT", 5432),
			User:     getEnv("CARTPULSE_DB_USER", "cartpulse"),
			Password: getEnv("CARTPULSE_DB_PASSWORD", "cartpulse_secret"),
			DBName:   getEnv("CARTPULSE_DB_NAME", "cartpulse"),
			SSLMode:  getEnv("CARTPULSE_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("CARTPULSE_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("CARTPULSE_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("CARTPULSE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CARTPULSE_REDIS_PASSWORD", ""),
			DB:       getIntEnv("CARTPULSE_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("CARTPULSE_JWT_SECRET", ""),
			TokenTTL:  getDurationEnv("CARTPULSE_TOKEN_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolEnv("CARTPULSE_RATE_LIMIT_ENABLED", true),
			IngestRPS:   getFloatEnv("CARTPULSE_RATE_LIMIT_INGEST_RPS", 500),
			IngestBurst: getIntEnv("CARTPULSE_RATE_LIMIT_INGEST_BURST", 100),
			MgmtRPS:     getFloatEnv("CARTPULSE_RATE_LIMIT_MGMT_RPS", 100),
			MgmtBurst:   getIntEnv("CARTPULSE_RATE_LIMIT_MGMT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("CARTPULSE_LOG_LEVEL", "info"),
			Format: getEnv("CARTPULSE_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("CARTPULSE_METRICS_ENABLED", true),
			Path:    getEnv("CARTPULSE_METRICS_PATH", "/metrics"),
		},
		Worker: WorkerConfig{
			QueueName:      getEnv("CARTPULSE_QUEUE_NAME", "analytics"),
			PollTimeout:    getDurationEnv("CARTPULSE_QUEUE_POLL_TIMEOUT", 5*time.Second),
			RollupInterval: getDurationEnv("CARTPULSE_ROLLUP_INTERVAL", 5*time.Minute),
			MaxAttempts:    getIntEnv("CARTPULSE_QUEUE_MAX_ATTEMPTS", 3),
		},
		Cache: CacheConfig{
			TopProductsTTL:  getDurationEnv("CARTPULSE_CACHE_TOP_PRODUCTS_TTL", 60*time.Second),
			ProductTTL:      getDurationEnv("CARTPULSE_CACHE_PRODUCT_TTL", 120*time.Second),
			UserSummaryTTL:  getDurationEnv("CARTPULSE_CACHE_USER_SUMMARY_TTL", 60*time.Second),
			OverviewTTL:     getDurationEnv("CARTPULSE_CACHE_OVERVIEW_TTL", 60*time.Second),
			TimeseriesTTL:   getDurationEnv("CARTPULSE_CACHE_TIMESERIES_TTL", 60*time.Second),
			ProductStatsTTL: getDurationEnv("CARTPULSE_CACHE_PRODUCT_STATS_TTL", 60*time.Second),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("CARTPULSE_GEO_ENABLED", false),
			DatabasePath: getEnv("CARTPULSE_GEO_DB_PATH", "/app/data/GeoLite2-Country.mmdb"),
			CacheSize:    getIntEnv("CARTPULSE_GEO_CACHE_SIZE", 10000),
			CacheTTL:     getDurationEnv("CARTPULSE_GEO_CACHE_TTL", 1*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("CARTPULSE_JWT_SECRET is required")
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("CARTPULSE_QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
