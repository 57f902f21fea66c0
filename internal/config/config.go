package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinSimilarityThreshold is the lowest similarity threshold the engine accepts.
// Anything below it makes impostor acceptance trivially easy.
const MinSimilarityThreshold = 0.5

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sessions SessionConfig  `mapstructure:"sessions"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RedisConfig holds Redis configuration for the optional redis session backend
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionConfig holds session issuance configuration
type SessionConfig struct {
	// Backend selects the session store: "memory" or "redis"
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Issuer  string        `mapstructure:"issuer"`
}

// AuditConfig holds the audit ring configuration
type AuditConfig struct {
	// RingSize is the number of most recent events retained
	RingSize int `mapstructure:"ring_size"`
}

// SecurityConfig holds the decision-engine tunables
type SecurityConfig struct {
	Similarity   SimilarityConfig   `mapstructure:"similarity"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Lockdown     LockdownConfig     `mapstructure:"lockdown"`
	Nonces       NonceConfig        `mapstructure:"nonces"`
	// VerifyDelay models network/compute latency between rate-limit
	// admission and identity lookup. Zero disables it.
	VerifyDelay time.Duration `mapstructure:"verify_delay"`
}

// SimilarityConfig holds biometric matching thresholds
type SimilarityConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	// MinVariance is the liveness gate: samples with population standard
	// deviation below it are treated as static/blank input.
	MinVariance float64 `mapstructure:"min_variance"`
}

// RateLimitingConfig holds the per-origin sliding window parameters
type RateLimitingConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// LockdownConfig holds the global lockdown parameters
type LockdownConfig struct {
	ImpersonationThreshold int           `mapstructure:"impersonation_threshold"`
	Duration               time.Duration `mapstructure:"duration"`
}

// NonceConfig holds replay-protection nonce parameters
type NonceConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/biogate")

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Bind environment variables
	v.SetEnvPrefix("BIOGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fails fast on malformed configuration. These are programmer/operator
// errors, not runtime outcomes, so they abort startup.
func (c *Config) Validate() error {
	if c.Security.RateLimiting.Window <= 0 {
		return fmt.Errorf("security.rate_limiting.window must be positive, got %s", c.Security.RateLimiting.Window)
	}
	if c.Security.RateLimiting.MaxAttempts <= 0 {
		return fmt.Errorf("security.rate_limiting.max_attempts must be positive, got %d", c.Security.RateLimiting.MaxAttempts)
	}
	if c.Security.Lockdown.ImpersonationThreshold <= 0 {
		return fmt.Errorf("security.lockdown.impersonation_threshold must be positive, got %d", c.Security.Lockdown.ImpersonationThreshold)
	}
	if c.Security.Lockdown.Duration <= 0 {
		return fmt.Errorf("security.lockdown.duration must be positive, got %s", c.Security.Lockdown.Duration)
	}
	if c.Security.Similarity.Threshold < MinSimilarityThreshold || c.Security.Similarity.Threshold > 1 {
		return fmt.Errorf("security.similarity.threshold must be in [%.1f, 1.0], got %v", MinSimilarityThreshold, c.Security.Similarity.Threshold)
	}
	if c.Security.Similarity.MinVariance < 0 {
		return fmt.Errorf("security.similarity.min_variance must not be negative, got %v", c.Security.Similarity.MinVariance)
	}
	if c.Security.VerifyDelay < 0 {
		return fmt.Errorf("security.verify_delay must not be negative, got %s", c.Security.VerifyDelay)
	}
	if c.Security.Nonces.TTL <= 0 {
		return fmt.Errorf("security.nonces.ttl must be positive, got %s", c.Security.Nonces.TTL)
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive, got %s", c.Sessions.TTL)
	}
	if c.Sessions.Backend != "memory" && c.Sessions.Backend != "redis" {
		return fmt.Errorf("sessions.backend must be \"memory\" or \"redis\", got %q", c.Sessions.Backend)
	}
	if c.Audit.RingSize <= 0 {
		return fmt.Errorf("audit.ring_size must be positive, got %d", c.Audit.RingSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Session defaults
	v.SetDefault("sessions.backend", "memory")
	v.SetDefault("sessions.ttl", "15m")
	v.SetDefault("sessions.issuer", "biogate")

	// Audit defaults
	v.SetDefault("audit.ring_size", 100)

	// Security defaults
	v.SetDefault("security.similarity.threshold", 0.94)
	v.SetDefault("security.similarity.min_variance", 0.01)
	v.SetDefault("security.rate_limiting.window", "60s")
	v.SetDefault("security.rate_limiting.max_attempts", 5)
	v.SetDefault("security.lockdown.impersonation_threshold", 3)
	v.SetDefault("security.lockdown.duration", "60s")
	v.SetDefault("security.nonces.ttl", "60s")
	v.SetDefault("security.verify_delay", "0s")
}
