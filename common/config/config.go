package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Queue     QueueConfig
	Crypto    CryptoConfig
	LLM       LLMConfig
	OAuth     OAuthConfig
	SMTP      SMTPConfig
	Sandbox   SandboxConfig
	Telemetry TelemetryConfig
	Features  FeatureFlags
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds optional Redis settings. Redis is used for the
// progress mirror and the credential refresh lock; the engine runs
// without it.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig holds workflow read-cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// QueueConfig holds run-request queue settings
type QueueConfig struct {
	Type       string // "memory" for single-instance deployments
	BufferSize int
}

// CryptoConfig holds credential encryption settings
type CryptoConfig struct {
	// EncryptionKey is either a 64-hex-character raw key or an arbitrary
	// passphrase from which a key is derived via scrypt.
	EncryptionKey string
}

// LLMConfig holds chat-completions provider settings for the ai-chat node
type LLMConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	HTTPTimeout time.Duration
}

// OAuthConfig holds Gmail OAuth defaults. A gmail-oauth-config credential
// takes precedence when present.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// SMTPConfig holds fallback email transport defaults
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// SandboxConfig holds code-node sandbox settings
type SandboxConfig struct {
	// EnvAllowlist lists environment variable names exposed to user code
	// as $env. Everything else is invisible to the sandbox.
	EnvAllowlist []string
	Timeout      time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// FeatureFlags for engine toggles
type FeatureFlags struct {
	EnableRedisMirror bool
	EnableStrictGraph bool
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "flowgrid"),
			User:        getEnv("POSTGRES_USER", "flowgrid"),
			Password:    getEnv("POSTGRES_PASSWORD", "flowgrid"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		},
		Queue: QueueConfig{
			Type:       getEnv("QUEUE_TYPE", "memory"),
			BufferSize: getEnvInt("QUEUE_BUFFER_SIZE", 1000),
		},
		Crypto: CryptoConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "claude-3-5-haiku-latest"),
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.anthropic.com"),
			HTTPTimeout: getEnvDuration("LLM_HTTP_TIMEOUT", 60*time.Second),
		},
		OAuth: OAuthConfig{
			ClientID:     getEnv("GMAIL_CLIENT_ID", ""),
			ClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GMAIL_REDIRECT_URI", ""),
		},
		SMTP: SMTPConfig{
			Host: getEnv("SMTP_HOST", ""),
			Port: getEnvInt("SMTP_PORT", 587),
			User: getEnv("SMTP_USER", ""),
			Pass: getEnv("SMTP_PASS", ""),
			From: getEnv("SMTP_FROM", ""),
		},
		Sandbox: SandboxConfig{
			EnvAllowlist: getEnvSlice("CODE_ENV_ALLOWLIST", nil),
			Timeout:      getEnvDuration("CODE_TIMEOUT", 30*time.Second),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
		Features: FeatureFlags{
			EnableRedisMirror: getEnvBool("ENABLE_REDIS_MIRROR", false),
			EnableStrictGraph: getEnvBool("ENABLE_STRICT_GRAPH", false),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.IsProduction() && c.Crypto.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required in production")
	}

	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Service.Environment == "production"
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis address, or "" when Redis is not configured
func (c *Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
