package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Every environment variable is read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis (optional L2 fetch cache)
	Redis RedisConfig

	// Catalog
	Catalog CatalogConfig

	// Fetcher
	Fetcher FetcherConfig

	// Sandbox
	Sandbox SandboxConfig

	// Engine
	Engine EngineConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// CatalogConfig locates the data source catalog file.
type CatalogConfig struct {
	Path string
}

// FetcherConfig tunes the external data fetch layer.
type FetcherConfig struct {
	Workers      int           // bounded concurrency for batch fetches
	MaxBatch     int           // default max entity codes per external call
	CacheTTL     time.Duration // default cache entry lifetime
	CacheMaxSize int           // LRU capacity of the in-process cache
	MaxAttempts  int           // retry attempts for transient failures
	InitialDelay time.Duration // first backoff delay
	MaxDelay     time.Duration // backoff ceiling
	CallTimeout  time.Duration // per external call deadline
}

// SandboxConfig bounds factor code execution.
type SandboxConfig struct {
	ExecTimeout   time.Duration // wall clock ceiling per execution
	MaxScriptSize int           // bytes
	MaxCallStack  int           // goja call stack depth ceiling
}

// EngineConfig tunes strategy runs.
type EngineConfig struct {
	Workers    int           // bounded concurrency for factor execution units
	RunTimeout time.Duration // run level deadline
	TopN       int           // default ranked output size
}

// SchedulerConfig drives the scheduled jobs.
type SchedulerConfig struct {
	StrategyID    string // strategy to run on schedule, empty disables the run job
	RunSchedule   string // cron expression (with seconds) for the strategy run
	SweepSchedule string // cron expression (with seconds) for the cache sweep
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Catalog: CatalogConfig{
			Path: getEnv("CATALOG_PATH", "config/catalog.yaml"),
		},

		Fetcher: FetcherConfig{
			Workers:      getEnvAsInt("FETCH_WORKERS", 8),
			MaxBatch:     getEnvAsInt("FETCH_MAX_BATCH", 50),
			CacheTTL:     getEnvAsDuration("FETCH_CACHE_TTL", "24h"),
			CacheMaxSize: getEnvAsInt("FETCH_CACHE_MAX_SIZE", 4096),
			MaxAttempts:  getEnvAsInt("FETCH_MAX_ATTEMPTS", 3),
			InitialDelay: getEnvAsDuration("FETCH_INITIAL_DELAY", "500ms"),
			MaxDelay:     getEnvAsDuration("FETCH_MAX_DELAY", "10s"),
			CallTimeout:  getEnvAsDuration("FETCH_CALL_TIMEOUT", "30s"),
		},

		Sandbox: SandboxConfig{
			ExecTimeout:   getEnvAsDuration("SANDBOX_EXEC_TIMEOUT", "5s"),
			MaxScriptSize: getEnvAsInt("SANDBOX_MAX_SCRIPT_SIZE", 65536),
			MaxCallStack:  getEnvAsInt("SANDBOX_MAX_CALL_STACK", 1024),
		},

		Engine: EngineConfig{
			Workers:    getEnvAsInt("ENGINE_WORKERS", 8),
			RunTimeout: getEnvAsDuration("ENGINE_RUN_TIMEOUT", "10m"),
			TopN:       getEnvAsInt("ENGINE_TOP_N", 20),
		},

		Scheduler: SchedulerConfig{
			StrategyID:    getEnv("SCHED_STRATEGY_ID", ""),
			RunSchedule:   getEnv("SCHED_RUN_SCHEDULE", "0 0 18 * * 1-5"),
			SweepSchedule: getEnv("SCHED_SWEEP_SCHEDULE", "0 0 * * * *"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Fetcher.Workers < 1 {
		return fmt.Errorf("FETCH_WORKERS must be >= 1")
	}
	if c.Fetcher.MaxBatch < 1 {
		return fmt.Errorf("FETCH_MAX_BATCH must be >= 1")
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("ENGINE_WORKERS must be >= 1")
	}
	if c.Sandbox.ExecTimeout <= 0 {
		return fmt.Errorf("SANDBOX_EXEC_TIMEOUT must be > 0")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
