// Package config provides centralized configuration management for the
// upload gateway. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request body.
	// This is also the backstop that unblocks a read stalled past the
	// per-part idle window (default: 15m for large uploads)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15m"`

	// WriteTimeout is the maximum duration for writing the response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// UploadConfig holds multipart processing settings. These map directly
// onto core.Options and core.Limits for each request.
type UploadConfig struct {
	// UseTempFiles streams file parts to temporary files instead of
	// buffering them in memory (default: false)
	UseTempFiles bool `env:"UPLOAD_USE_TEMP_FILES" default:"false"`

	// TempFileDir is the directory for temporary files (default: OS temp dir)
	TempFileDir string `env:"UPLOAD_TEMP_FILE_DIR"`

	// MaxFileSize is the per-file byte cap; 0 disables (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxFieldSize is the per-field value cap (default: 1MB)
	MaxFieldSize int64 `env:"UPLOAD_MAX_FIELD_SIZE" default:"1048576"`

	// MaxFiles is the maximum file parts per request; 0 disables (default: 0)
	MaxFiles int `env:"UPLOAD_MAX_FILES" default:"0"`

	// MaxTotalSize is the aggregate byte cap per request; 0 disables (default: 200MB)
	MaxTotalSize int64 `env:"UPLOAD_MAX_TOTAL_SIZE" default:"209715200"`

	// IdleTimeout is the per-file-part stall window; 0 disables (default: 60s)
	IdleTimeout time.Duration `env:"UPLOAD_IDLE_TIMEOUT" default:"60s"`

	// AbortOnLimit closes the connection with OnLimitStatus when a file
	// exceeds MaxFileSize, instead of truncating (default: false)
	AbortOnLimit bool `env:"UPLOAD_ABORT_ON_LIMIT" default:"false"`

	// OnLimitStatus is the HTTP status sent on a limit-triggered close (default: 400)
	OnLimitStatus int `env:"UPLOAD_ON_LIMIT_STATUS" default:"400"`

	// ResponseOnLimit is the body text sent on a limit-triggered close
	ResponseOnLimit string `env:"UPLOAD_RESPONSE_ON_LIMIT" default:"Bad Request"`

	// ParseNested expands bracket/dot-path field names into nested
	// structures (default: false)
	ParseNested bool `env:"UPLOAD_PARSE_NESTED" default:"false"`

	// MaxConcurrent is the maximum number of parallel parse sessions (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a parse slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Debug enables per-part lifecycle logging (default: false)
	Debug bool `env:"UPLOAD_DEBUG" default:"false"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects requests without a valid X-API-Key header (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
