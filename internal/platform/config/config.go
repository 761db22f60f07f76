package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Bus captures event bus broker and resilience configuration. Every field has
// a default so the bus is usable with zero configuration in development.
type Bus struct {
	// RedisURL is the broker connection address (redis://host:port/db).
	RedisURL string
	// RedisPassword overrides any password embedded in RedisURL when set.
	RedisPassword string

	// MaxReconnectAttempts caps reconnect attempts per connection.
	// 0 means retry forever.
	MaxReconnectAttempts int
	// ReconnectBaseDelay seeds the exponential backoff between attempts.
	ReconnectBaseDelay time.Duration
	// ReconnectMaxDelay bounds the backoff.
	ReconnectMaxDelay time.Duration
	// ConnectTimeout bounds each connection establishment attempt.
	ConnectTimeout time.Duration
	// KeepAliveInterval is how often idle connections are pinged.
	KeepAliveInterval time.Duration
}

// Database captures relational datastore configuration.
type Database struct {
	URL string
}

// Config is the process-wide configuration assembled by FromEnv.
type Config struct {
	Server   Server
	Bus      Bus
	Database Database
}

// FromEnv builds the full configuration from environment variables so main
// stays lean. Missing variables fall back to development defaults.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envString("COMPLYD_ADDR", ":8080"),
			JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Bus: Bus{
			RedisURL:             envString("REDIS_URL", "redis://localhost:6379/0"),
			RedisPassword:        os.Getenv("REDIS_PASSWORD"),
			MaxReconnectAttempts: envInt("BUS_MAX_RECONNECT_ATTEMPTS", 0),
			ReconnectBaseDelay:   envDuration("BUS_RECONNECT_BASE_DELAY", time.Second),
			ReconnectMaxDelay:    envDuration("BUS_RECONNECT_MAX_DELAY", 30*time.Second),
			ConnectTimeout:       envDuration("BUS_CONNECT_TIMEOUT", 10*time.Second),
			KeepAliveInterval:    envDuration("BUS_KEEPALIVE_INTERVAL", 30*time.Second),
		},
		Database: Database{
			URL: envString("DATABASE_URL", ""),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
