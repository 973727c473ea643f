// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the service
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	Security  SecurityConfig  `json:"security"`
	Cache     CacheConfig     `json:"cache"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type SecurityConfig struct {
	// Short code generation. Changing the salt changes every future
	// encoding and is a breaking operational change.
	ShortCodeSalt     string `json:"-"`
	ShortCodeLength   int    `json:"short_code_length"`
	ShortCodeAlphabet string `json:"short_code_alphabet"`

	// Sessions
	SessionTTL       time.Duration `json:"session_ttl"`
	SessionKeyHeader string        `json:"session_key_header"`
	SessionCookie    string        `json:"session_cookie"`

	BcryptCost int `json:"bcrypt_cost"`
}

type CacheConfig struct {
	Provider    string        `json:"provider"` // memory, redis
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	PingTimeout time.Duration `json:"ping_timeout"`
}

type SchedulerConfig struct {
	HitCountEnabled       bool          `json:"hit_count_enabled"`
	HitCountInterval      time.Duration `json:"hit_count_interval"`
	SessionExpiryEnabled  bool          `json:"session_expiry_enabled"`
	SessionExpiryInterval time.Duration `json:"session_expiry_interval"`
	ReconcileBatchSize    int           `json:"reconcile_batch_size"`
}

type LoggingConfig struct {
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DefaultShortCodeAlphabet is the 62-symbol alphabet used for short codes.
const DefaultShortCodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Load reads configuration from the environment, falling back to a .env file
// for any keys not already set.
func Load() (*Config, error) {
	if err := loadEnvFile(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "shrty"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 9000),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Security: SecurityConfig{
			ShortCodeSalt:     getEnvString("SHORT_CODE_SALT", ""),
			ShortCodeLength:   getEnvInt("SHORT_CODE_LENGTH", 5),
			ShortCodeAlphabet: getEnvString("SHORT_CODE_ALPHABET", DefaultShortCodeAlphabet),
			SessionTTL:        getEnvDuration("SESSION_TTL", 1*time.Hour),
			SessionKeyHeader:  getEnvString("SESSION_KEY_HEADER", "X-Session-ID"),
			SessionCookie:     getEnvString("SESSION_COOKIE", "sessionId"),
			BcryptCost:        getEnvInt("BCRYPT_COST", 12),
		},
		Cache: CacheConfig{
			Provider:    getEnvString("CACHE_PROVIDER", "memory"),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "shrty."),
			PingTimeout: getEnvDuration("CACHE_PING_TIMEOUT", 5*time.Second),
		},
		Scheduler: SchedulerConfig{
			HitCountEnabled:       getEnvBool("SCHEDULER_HIT_COUNT_ENABLED", true),
			HitCountInterval:      getEnvDuration("SCHEDULER_HIT_COUNT_INTERVAL", 10*time.Second),
			SessionExpiryEnabled:  getEnvBool("SCHEDULER_SESSION_EXPIRY_ENABLED", true),
			SessionExpiryInterval: getEnvDuration("SCHEDULER_SESSION_EXPIRY_INTERVAL", 10*time.Second),
			ReconcileBatchSize:    getEnvInt("SCHEDULER_RECONCILE_BATCH_SIZE", 500),
		},
		Logging: LoggingConfig{
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "data/shrty.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Database.Host == "" {
		errs = append(errs, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errs = append(errs, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "DB_USER is required")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}

	if cfg.Security.ShortCodeSalt == "" {
		errs = append(errs, "SHORT_CODE_SALT is required")
	}
	if cfg.Security.ShortCodeLength < 3 {
		errs = append(errs, "SHORT_CODE_LENGTH must be at least 3")
	}
	if len(cfg.Security.ShortCodeAlphabet) < 16 {
		errs = append(errs, "SHORT_CODE_ALPHABET must contain at least 16 distinct symbols")
	}
	if cfg.Security.SessionTTL <= 0 {
		errs = append(errs, "SESSION_TTL must be positive")
	}
	if cfg.Security.BcryptCost < 10 || cfg.Security.BcryptCost > 14 {
		errs = append(errs, "BCRYPT_COST must be between 10 and 14")
	}

	switch cfg.Cache.Provider {
	case "memory":
	case "redis":
		if cfg.Cache.RedisURL == "" {
			errs = append(errs, "CACHE_REDIS_URL is required for the redis cache provider")
		}
	default:
		errs = append(errs, "CACHE_PROVIDER must be one of: memory, redis")
	}

	if cfg.Scheduler.HitCountInterval <= 0 {
		errs = append(errs, "SCHEDULER_HIT_COUNT_INTERVAL must be positive")
	}
	if cfg.Scheduler.SessionExpiryInterval <= 0 {
		errs = append(errs, "SCHEDULER_SESSION_EXPIRY_INTERVAL must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// loadEnvFile loads key=value pairs from a .env file into the environment
// without overriding variables that are already set
func loadEnvFile(envFile string) error {
	file, err := os.Open(envFile)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
