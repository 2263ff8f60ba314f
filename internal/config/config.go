package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DBDriver    string   `mapstructure:"DB_DRIVER"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	SQLitePath  string   `mapstructure:"SQLITE_PATH"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	GeminiAPIKey      string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel       string        `mapstructure:"GEMINI_MODEL"`
	GeminiBaseURL     string        `mapstructure:"GEMINI_BASE_URL"`
	GenerationTimeout time.Duration `mapstructure:"GENERATION_TIMEOUT"`

	DuplicateOrderWindow time.Duration `mapstructure:"DUPLICATE_ORDER_WINDOW"`

	RedisURL     string `mapstructure:"REDIS_URL"`
	EventsStream string `mapstructure:"EVENTS_STREAM"`

	BlobS3Bucket    string `mapstructure:"BLOB_S3_BUCKET"`
	BlobS3Region    string `mapstructure:"BLOB_S3_REGION"`
	BlobS3Endpoint  string `mapstructure:"BLOB_S3_ENDPOINT"`
	BlobS3PathStyle bool   `mapstructure:"BLOB_S3_PATH_STYLE"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var keys = []string{
	"PORT", "ENV", "DB_DRIVER", "DATABASE_URL", "SQLITE_PATH", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL", "GENERATION_TIMEOUT",
	"DUPLICATE_ORDER_WINDOW", "REDIS_URL", "EVENTS_STREAM",
	"BLOB_S3_BUCKET", "BLOB_S3_REGION", "BLOB_S3_ENDPOINT", "BLOB_S3_PATH_STYLE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("SQLITE_PATH", "careplan.db")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-pro")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("GENERATION_TIMEOUT", "45s")
	v.SetDefault("DUPLICATE_ORDER_WINDOW", "24h")
	v.SetDefault("EVENTS_STREAM", "careplan.events")
	v.SetDefault("BLOB_S3_REGION", "us-east-1")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// GenerationConfigured reports whether a real generation backend has
// credentials. Without them the server falls back to the mock generator.
func (c *Config) GenerationConfigured() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

// Validate checks that the selected storage driver has what it needs and
// that the timing knobs are usable.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER is %q", DriverPostgres)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER is %q", DriverSQLite)
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DBDriver)
	}

	if c.DuplicateOrderWindow <= 0 {
		return fmt.Errorf("DUPLICATE_ORDER_WINDOW must be positive, got %s", c.DuplicateOrderWindow)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive, got %s", c.GenerationTimeout)
	}
	if c.RequestTimeout > 0 && c.RequestTimeout <= c.GenerationTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must exceed GENERATION_TIMEOUT (%s)", c.RequestTimeout, c.GenerationTimeout)
	}
	return nil
}
