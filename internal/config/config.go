// Package config loads and validates all runtime configuration for the gateway.
//
// Configuration is read from environment variables (preferred for containers)
// or from a config.yaml file in the working directory. Environment variables
// take precedence over the YAML file.
//
// Platform provider credentials ({PROVIDER}_API_KEY) are resolved through the
// catalog's per-provider env-var names, so adding a provider to the catalog
// automatically adds its credential variable here.
//
// Redis is optional — set CACHE_MODE=memory and QUEUE_MODE=memory to run
// with no external dependencies.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/dban0001/llmgateway/internal/catalog"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	// Default: info.
	LogLevel string

	// Env is the deployment environment: "production" or "development".
	// It switches the worker's auto-topup and stats cadences.
	Env string

	// ProviderEnv maps a catalog provider id to its platform credential,
	// read from the provider's {NAME}_API_KEY variable. Providers without a
	// configured credential are absent from the map.
	ProviderEnv map[string]string

	// Redis holds the connection URL shared by the response cache and the
	// log queue. Required when either runs in redis mode.
	Redis RedisConfig

	// Cache controls the response cache backend.
	Cache CacheConfig

	// Queue controls the log queue backend.
	Queue QueueConfig

	// ClickHouse configures the optional analytics mirror for log rows.
	// Leave Addr empty to disable.
	ClickHouse ClickHouseConfig

	// Payments configures the payment processor used for credit top-ups.
	// Leave SecretKey empty to disable the auto-topup loop.
	Payments PaymentsConfig

	// CORSOrigins is the list of allowed CORS origins.
	// Use ["*"] to allow any origin (default). Set to specific origins in prod.
	CORSOrigins []string

	// DevSeed loads a small in-memory fixture (org, project, api key) at
	// startup. Development only.
	DevSeed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Mode selects the cache backend:
	//   "redis"  — Redis-backed cache (requires REDIS_URL). Recommended for production.
	//   "memory" — In-process TTL cache. No external deps; not shared across replicas.
	//   "none"   — Cache disabled entirely.
	// Default: "memory".
	Mode string

	// TTL is the fallback time-to-live for cached responses when the project
	// does not configure one. Default: 1h.
	TTL time.Duration

	// ExcludeExact is a list of exact model names that must never be cached.
	ExcludeExact []string

	// ExcludePatterns is a list of Go regular expressions matched against
	// model names. Requests whose model matches any pattern are not cached.
	ExcludePatterns []string
}

// QueueConfig controls the log queue backend.
type QueueConfig struct {
	// Mode selects the queue backend:
	//   "redis"  — durable Redis lists; survives restarts. Production default.
	//   "memory" — in-process queue for development and tests.
	Mode string
}

// ClickHouseConfig holds the analytics sink connection.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// PaymentsConfig holds the payment processor credentials.
type PaymentsConfig struct {
	SecretKey string
	// BaseURL overrides the processor endpoint (mock servers in dev).
	BaseURL string
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load(cat *catalog.Catalog) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("NODE_ENV", "development")
	v.SetDefault("CACHE_MODE", "memory")
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("QUEUE_MODE", "memory")
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("CLICKHOUSE_DATABASE", "default")
	v.SetDefault("DEV_SEED", false)

	// ── Build config ──────────────────────────────────────────────────────────
	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
		Env:      strings.ToLower(v.GetString("NODE_ENV")),

		ProviderEnv: providerEnv(cat, v),

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		Cache: CacheConfig{
			Mode:            strings.ToLower(v.GetString("CACHE_MODE")),
			TTL:             v.GetDuration("CACHE_TTL"),
			ExcludeExact:    v.GetStringSlice("CACHE_EXCLUDE_EXACT"),
			ExcludePatterns: v.GetStringSlice("CACHE_EXCLUDE_PATTERNS"),
		},

		Queue: QueueConfig{
			Mode: strings.ToLower(v.GetString("QUEUE_MODE")),
		},

		ClickHouse: ClickHouseConfig{
			Addr:     v.GetString("CLICKHOUSE_ADDR"),
			Database: v.GetString("CLICKHOUSE_DATABASE"),
			Username: v.GetString("CLICKHOUSE_USERNAME"),
			Password: v.GetString("CLICKHOUSE_PASSWORD"),
		},

		Payments: PaymentsConfig{
			SecretKey: v.GetString("STRIPE_SECRET_KEY"),
			BaseURL:   v.GetString("STRIPE_BASE_URL"),
		},

		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),
		DevSeed:     v.GetBool("DEV_SEED"),
	}

	// ── Validation ────────────────────────────────────────────────────────────
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Production reports whether the gateway runs with production cadences.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// providerEnv reads each catalog provider's credential variable.
func providerEnv(cat *catalog.Catalog, v *viper.Viper) map[string]string {
	out := make(map[string]string)
	for _, p := range cat.Providers() {
		if p.EnvKey == "" {
			continue
		}
		if token := v.GetString(p.EnvKey); token != "" {
			out[p.ID] = token
		}
	}
	return out
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	switch c.Cache.Mode {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf(
			"config: invalid CACHE_MODE %q; must be one of: redis, memory, none",
			c.Cache.Mode,
		)
	}

	switch c.Queue.Mode {
	case "redis", "memory":
	default:
		return fmt.Errorf(
			"config: invalid QUEUE_MODE %q; must be one of: redis, memory",
			c.Queue.Mode,
		)
	}

	// Redis URL is required when either backend uses Redis.
	if (c.Cache.Mode == "redis" || c.Queue.Mode == "redis") && c.Redis.URL == "" {
		return fmt.Errorf(
			"config: REDIS_URL is required when CACHE_MODE=redis or QUEUE_MODE=redis; " +
				"set both to memory to run without Redis",
		)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	switch c.Env {
	case "production", "development":
	default:
		return fmt.Errorf(
			"config: invalid NODE_ENV %q; must be production or development",
			c.Env,
		)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: CACHE_TTL must be a positive duration")
	}

	return nil
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
