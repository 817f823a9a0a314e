// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes. It is parsed from env values such as
// "500MiB", "1 GiB" or a plain byte count.
type ByteSize int64

// String formats the size using IEC units.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	Scratch  ScratchConfig
	SQLite   SQLiteConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 5000, where the frontend expects it)
	Port int `env:"SERVER_PORT" default:"5000"`

	// ReadTimeout is the maximum duration for reading the request, body included (default: 5m)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"5m"`

	// WriteTimeout is the maximum duration for writing the response (default: 5m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// UploadConfig holds database upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted request body (default: 500MiB)
	MaxFileSize ByteSize `env:"UPLOAD_MAX_FILE_SIZE" default:"500MiB"`

	// MaxConcurrent is the maximum number of uploads processed in parallel (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a processing slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single upload's processing, introspection included (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// ScratchConfig holds settings for the on-disk scratch area where uploaded
// databases are materialized.
type ScratchConfig struct {
	// Dir is the scratch root (default: <os temp dir>/sqlview)
	Dir string `env:"SCRATCH_DIR"`

	// Retain keeps each request's database after the response is sent, for
	// post-hoc inspection (default: false)
	Retain bool `env:"SCRATCH_RETAIN" default:"false"`

	// MaxAge is how old a request directory must be before a sweep removes it (default: 30m)
	MaxAge time.Duration `env:"SCRATCH_MAX_AGE" default:"30m"`

	// SweepSchedule is the cron spec for the background sweep (default: @every 10m)
	SweepSchedule string `env:"SCRATCH_SWEEP_SCHEDULE" default:"@every 10m"`
}

// SQLiteConfig holds settings applied to every opened upload.
type SQLiteConfig struct {
	// BusyTimeout is passed to the engine's busy_timeout pragma (default: 5s)
	BusyTimeout time.Duration `env:"SQLITE_BUSY_TIMEOUT" default:"5s"`

	// QuickCheck runs PRAGMA quick_check right after open (default: false)
	QuickCheck bool `env:"SQLITE_QUICK_CHECK" default:"false"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the sustained rate per IP (default: 30)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"30"`

	// Burst is the bucket size per IP (default: 10)
	Burst int `env:"RATE_LIMIT_BURST" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AllowedOrigins is a comma-separated list of CORS origins (default: Vite dev server)
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text, json or tint (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// ScratchDir returns the configured scratch root, falling back to a
// subdirectory of the OS temp dir.
func (c *ScratchConfig) ScratchDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(os.TempDir(), "sqlview")
}
