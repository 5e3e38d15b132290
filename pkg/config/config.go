package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aryan0dhankhar/usersvc/pkg/database"
)

// FileEnv names an optional config file (yaml, json, toml) read before the environment
const FileEnv = "USERSVC_CONFIG"

// Store and cache backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds the application configuration
type Config struct {
	Environment string
	ServerPort  int
	LogLevel    string
	LogFormat   string

	StoreBackend string
	Database     database.Config

	CacheBackend         string
	RedisURL             string
	CacheTTL             time.Duration
	CacheKeyPrefix       string
	CacheBreakerFailures int
	CacheBreakerCooldown time.Duration

	BulkMaxItems int

	// WriteRateLimit is the number of writes each caller may issue per minute; 0 disables it
	WriteRateLimit int

	AuthEnabled bool
	JWTSecret   string
	JWTTTL      time.Duration

	OTLPEndpoint string
}

var defaults = map[string]string{
	"ENVIRONMENT":                 "development",
	"SERVER_PORT":                 "8080",
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "json",
	"STORE_BACKEND":               StoreMemory,
	"DATABASE_HOST":               "localhost",
	"DATABASE_PORT":               "5432",
	"DATABASE_USER":               "usersvc",
	"DATABASE_PASSWORD":           "dev",
	"DATABASE_NAME":               "usersvc",
	"DATABASE_SSLMODE":            "disable",
	"DATABASE_MAX_OPEN_CONNS":     "25",
	"DATABASE_MAX_IDLE_CONNS":     "5",
	"DATABASE_CONN_MAX_LIFETIME":  "5m",
	"CACHE_BACKEND":               CacheMemory,
	"REDIS_URL":                   "redis://localhost:6379",
	"CACHE_TTL":                   "60s",
	"CACHE_KEY_PREFIX":            "usersvc:",
	"CACHE_BREAKER_FAILURES":      "5",
	"CACHE_BREAKER_COOLDOWN":      "30s",
	"BULK_MAX_ITEMS":              "1000",
	"RATE_LIMIT_WRITES_PER_MIN":   "600",
	"AUTH_ENABLED":                "false",
	"JWT_SECRET":                  "",
	"JWT_TTL":                     "15m",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
}

// Load reads configuration from an optional file and environment variables.
// Environment variables win over file values.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := v.GetString(FileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	p := parser{v: v}
	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		ServerPort:  p.intValue("SERVER_PORT"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:   strings.ToLower(v.GetString("LOG_FORMAT")),

		StoreBackend: strings.ToLower(v.GetString("STORE_BACKEND")),
		Database: database.Config{
			Host:            v.GetString("DATABASE_HOST"),
			Port:            p.intValue("DATABASE_PORT"),
			User:            v.GetString("DATABASE_USER"),
			Password:        v.GetString("DATABASE_PASSWORD"),
			Database:        v.GetString("DATABASE_NAME"),
			SSLMode:         v.GetString("DATABASE_SSLMODE"),
			MaxOpenConns:    p.intValue("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    p.intValue("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: p.duration("DATABASE_CONN_MAX_LIFETIME"),
		},

		CacheBackend:         strings.ToLower(v.GetString("CACHE_BACKEND")),
		RedisURL:             v.GetString("REDIS_URL"),
		CacheTTL:             p.duration("CACHE_TTL"),
		CacheKeyPrefix:       v.GetString("CACHE_KEY_PREFIX"),
		CacheBreakerFailures: p.intValue("CACHE_BREAKER_FAILURES"),
		CacheBreakerCooldown: p.duration("CACHE_BREAKER_COOLDOWN"),

		BulkMaxItems:   p.intValue("BULK_MAX_ITEMS"),
		WriteRateLimit: p.intValue("RATE_LIMIT_WRITES_PER_MIN"),

		AuthEnabled: p.boolValue("AUTH_ENABLED"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		JWTTTL:      p.duration("JWT_TTL"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: want memory or postgres", c.StoreBackend)
	}
	switch c.CacheBackend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q: want memory, redis or none", c.CacheBackend)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: want json or text", c.LogFormat)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.ServerPort)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("invalid CACHE_TTL: must be positive")
	}
	if c.BulkMaxItems <= 0 {
		return fmt.Errorf("invalid BULK_MAX_ITEMS: must be positive")
	}
	if c.WriteRateLimit < 0 {
		return fmt.Errorf("invalid RATE_LIMIT_WRITES_PER_MIN: must not be negative")
	}
	if c.AuthEnabled && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED is true")
	}
	return nil
}

// parser keeps the first conversion error so Load reads like a field list
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) intValue(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(p.v.GetString(key)))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return n
}

func (p *parser) duration(key string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(p.v.GetString(key)))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return d
}

func (p *parser) boolValue(key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(p.v.GetString(key)))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return b
}
