package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// osu! API v2
	OsuClientID     string        `envconfig:"OSU_CLIENT_ID" required:"true"`
	OsuClientSecret string        `envconfig:"OSU_CLIENT_SECRET" required:"true"`
	OsuBaseURL      string        `envconfig:"OSU_BASE_URL" default:"https://osu.ppy.sh/api/v2"`
	OsuTokenURL     string        `envconfig:"OSU_TOKEN_URL" default:"https://osu.ppy.sh/oauth/token"`
	OsuTimeout      time.Duration `envconfig:"OSU_TIMEOUT" default:"30s"`
	OsuMaxRetries   int           `envconfig:"OSU_MAX_RETRIES" default:"0"`
	OsuRetryDelay   time.Duration `envconfig:"OSU_RETRY_DELAY" default:"1s"`

	// Tabular store: "postgres" or "sqlite"
	TableBackend string `envconfig:"TABLE_BACKEND" default:"postgres"`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"bwsrank"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"bwsrank"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" default:""`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// SQLite
	SQLitePath string `envconfig:"SQLITE_PATH" default:"bwsrank.db"`

	// Persisted run state: "redis" or "memory"
	StateBackend string `envconfig:"STATE_BACKEND" default:"redis"`

	// Redis
	RedisHost      string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort      int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"bwsrank"`

	// Sheets
	ImportSheet string `envconfig:"IMPORT_SHEET" default:"_import"`
	ExportSheet string `envconfig:"EXPORT_SHEET" default:"_export"`
	FilterSheet string `envconfig:"FILTER_SHEET" default:"_filtered_badges"`

	// Run
	TimeBudget              time.Duration `envconfig:"TIME_BUDGET" default:"5m"`
	AccumulateResumedOutput bool          `envconfig:"ACCUMULATE_RESUMED_OUTPUT" default:"false"`
	RunLeaseTTL             time.Duration `envconfig:"RUN_LEASE_TTL" default:"10m"`

	// Scoring policy
	BadgeMinYear       int     `envconfig:"BADGE_MIN_YEAR" default:"2021"`
	BWSBadgeBase       float64 `envconfig:"BWS_BADGE_BASE" default:"0.9937"`
	BWSBadgeExponent   float64 `envconfig:"BWS_BADGE_EXPONENT" default:"1.7"`
	FallbackDuelRating float64 `envconfig:"FALLBACK_DUEL_RATING" default:"0.001"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Monitoring
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL" default:""`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OsuClientID == "" {
		return fmt.Errorf("OSU_CLIENT_ID is required")
	}

	if c.OsuClientSecret == "" {
		return fmt.Errorf("OSU_CLIENT_SECRET is required")
	}

	switch c.TableBackend {
	case "postgres":
		if c.DatabasePassword == "" {
			return fmt.Errorf("DATABASE_PASSWORD is required for the postgres table backend")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite table backend")
		}
	default:
		return fmt.Errorf("TABLE_BACKEND must be postgres or sqlite, got %q", c.TableBackend)
	}

	if c.StateBackend != "redis" && c.StateBackend != "memory" {
		return fmt.Errorf("STATE_BACKEND must be redis or memory, got %q", c.StateBackend)
	}

	if c.IsProduction() && c.StateBackend == "memory" {
		return fmt.Errorf("STATE_BACKEND=memory loses checkpoints between runs and is not allowed in production")
	}

	if c.ImportSheet == "" || c.ExportSheet == "" || c.FilterSheet == "" {
		return fmt.Errorf("IMPORT_SHEET, EXPORT_SHEET and FILTER_SHEET must be set")
	}

	if c.TimeBudget <= 0 {
		return fmt.Errorf("TIME_BUDGET must be positive")
	}

	if c.OsuMaxRetries < 0 {
		return fmt.Errorf("OSU_MAX_RETRIES must not be negative")
	}

	if c.BWSBadgeBase <= 0 || c.BWSBadgeBase >= 1 {
		return fmt.Errorf("BWS_BADGE_BASE must be between 0 and 1 exclusive")
	}

	if c.BWSBadgeExponent <= 0 {
		return fmt.Errorf("BWS_BADGE_EXPONENT must be positive")
	}

	return nil
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StagingSheet is where resumed segments are parked when output accumulation is on
func (c *Config) StagingSheet() string {
	return c.ExportSheet + "_partial"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
