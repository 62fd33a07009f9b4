package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production, test

	// Database (optional: persistence/calibration degrade when empty)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	Upstream UpstreamConfig
	News     NewsConfig
	LLM      LLMConfig

	// Orchestration
	Engine EngineConfig
	Cache  CacheConfig
	Tasks  TasksConfig

	// Fan-out
	Kafka KafkaConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database URL was configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// UpstreamConfig holds the shared market data API configuration.
// PerMinute/PerDay are the quota gate limits.
type UpstreamConfig struct {
	BaseURL   string
	APIKey    string
	PerMinute int
	PerDay    int
	MaxRPS    float64
	Timeout   time.Duration
}

// NewsConfig holds the HTML fallback listing used when the upstream quota is spent
type NewsConfig struct {
	FallbackURL string
	MaxArticles int
}

// LLMConfig holds the synthesis endpoint configuration
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestsPerMin int
	Timeout        time.Duration
}

// EngineConfig holds orchestrator deadlines
type EngineConfig struct {
	BatchTimeout     time.Duration // shared deadline for independent tasks
	DependentTimeout time.Duration // per dependent task
	SynthesisTimeout time.Duration
}

// CacheConfig holds response cache TTLs per category
type CacheConfig struct {
	QuoteTTL        time.Duration
	TimeSeriesTTL   time.Duration
	NewsTTL         time.Duration
	FundamentalsTTL time.Duration
	MacroTTL        time.Duration
	DefaultTTL      time.Duration
	L2Enabled       bool
}

// TasksConfig holds registry overrides
type TasksConfig struct {
	OverridesPath string
	Disabled      []string
}

// KafkaConfig holds contract publishing configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether brokers were configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// SchedulerConfig holds watchlist scheduling configuration
type SchedulerConfig struct {
	Schedule  string
	Watchlist []string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// External APIs
		Upstream: UpstreamConfig{
			BaseURL:   getEnv("UPSTREAM_BASE_URL", "https://www.alphavantage.co/query"),
			APIKey:    getEnv("UPSTREAM_API_KEY", ""),
			PerMinute: getEnvAsInt("UPSTREAM_PER_MINUTE", 5),
			PerDay:    getEnvAsInt("UPSTREAM_PER_DAY", 25),
			MaxRPS:    getEnvAsFloat("UPSTREAM_MAX_RPS", 1),
			Timeout:   getEnvAsDuration("UPSTREAM_TIMEOUT", "20s"),
		},

		News: NewsConfig{
			FallbackURL: getEnv("NEWS_FALLBACK_URL", "https://finance.yahoo.com/quote/%s/news"),
			MaxArticles: getEnvAsInt("NEWS_MAX_ARTICLES", 20),
		},

		LLM: LLMConfig{
			BaseURL:        getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         getEnv("LLM_API_KEY", ""),
			Model:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			RequestsPerMin: getEnvAsInt("LLM_REQUESTS_PER_MIN", 20),
			Timeout:        getEnvAsDuration("LLM_TIMEOUT", "60s"),
		},

		// Orchestration
		Engine: EngineConfig{
			BatchTimeout:     getEnvAsDuration("ENGINE_BATCH_TIMEOUT", "90s"),
			DependentTimeout: getEnvAsDuration("ENGINE_DEPENDENT_TIMEOUT", "45s"),
			SynthesisTimeout: getEnvAsDuration("ENGINE_SYNTHESIS_TIMEOUT", "90s"),
		},

		Cache: CacheConfig{
			QuoteTTL:        getEnvAsDuration("CACHE_TTL_QUOTE", "1m"),
			TimeSeriesTTL:   getEnvAsDuration("CACHE_TTL_TIMESERIES", "15m"),
			NewsTTL:         getEnvAsDuration("CACHE_TTL_NEWS", "10m"),
			FundamentalsTTL: getEnvAsDuration("CACHE_TTL_FUNDAMENTALS", "24h"),
			MacroTTL:        getEnvAsDuration("CACHE_TTL_MACRO", "24h"),
			DefaultTTL:      getEnvAsDuration("CACHE_TTL_DEFAULT", "5m"),
			L2Enabled:       getEnvAsBool("CACHE_L2_ENABLED", true),
		},

		Tasks: TasksConfig{
			OverridesPath: getEnv("TASKS_CONFIG", ""),
			Disabled:      getEnvAsList("TASKS_DISABLED"),
		},

		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "signal-contracts"),
		},

		Scheduler: SchedulerConfig{
			Schedule:  getEnv("SCHEDULER_SPEC", "0 30 16 * * 1-5"),
			Watchlist: getEnvAsList("SCHEDULER_WATCHLIST"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile loads an explicit env file first, then reads configuration.
// Variables already set in the environment win over the file.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}
	return Load()
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	if c.Upstream.PerMinute <= 0 || c.Upstream.PerDay <= 0 {
		return fmt.Errorf("UPSTREAM_PER_MINUTE and UPSTREAM_PER_DAY must be positive")
	}
	if c.Upstream.PerMinute > c.Upstream.PerDay {
		return fmt.Errorf("UPSTREAM_PER_MINUTE (%d) exceeds UPSTREAM_PER_DAY (%d)", c.Upstream.PerMinute, c.Upstream.PerDay)
	}

	if c.Engine.BatchTimeout <= 0 || c.Engine.DependentTimeout <= 0 || c.Engine.SynthesisTimeout <= 0 {
		return fmt.Errorf("engine timeouts must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
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

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
