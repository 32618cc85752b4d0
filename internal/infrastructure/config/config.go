package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Downloads DownloadConfig
	Scanner   ScannerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// AllowedOrigins is the comma-separated CORS origin list; "*"
	// admits any origin
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

// DownloadConfig holds download registry configuration.
type DownloadConfig struct {
	// Dir is the save directory; empty means the platform default
	Dir string `envconfig:"DOWNLOAD_DIR" default:""`
}

// ScannerConfig holds integrity scanner configuration.
type ScannerConfig struct {
	Enabled bool `envconfig:"SCAN_ENABLED" default:"true"`
	// Path overrides scanner discovery with an explicit binary
	Path string `envconfig:"SCAN_PATH" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Downloads: DownloadConfig{
			Dir: "",
		},
		Scanner: ScannerConfig{
			Enabled: true,
			Path:    "",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// DownloadDir resolves the configured save directory, falling back to
// the user's Downloads folder when none is set.
func (c *Config) DownloadDir() string {
	if c.Downloads.Dir != "" {
		return c.Downloads.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}
	return filepath.Join(home, "Downloads")
}
