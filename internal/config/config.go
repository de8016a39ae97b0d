package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration, read from <configDir>/config.yaml.
type Config struct {
	// SearchWindow limits the mail search to messages newer than this.
	SearchWindow time.Duration `yaml:"search_window"`

	// MaxResults caps the number of search hits requested from the mail API.
	MaxResults int64 `yaml:"max_results"`

	// ScanLimit is how many search hits are opened before giving up.
	ScanLimit int `yaml:"scan_limit"`

	// CacheToken stores the bearer token in the local database between runs.
	// When false every run goes through the identity provider.
	CacheToken bool `yaml:"cache_token"`

	// TokenSafetyMargin discards a cached token this long before its expiry.
	TokenSafetyMargin time.Duration `yaml:"token_safety_margin"`

	// APIEndpoint overrides the Gmail API base URL. Empty means Google's.
	APIEndpoint string `yaml:"api_endpoint,omitempty"`

	// Debug enables development logging.
	Debug bool `yaml:"debug"`

	// MetricsAddr serves Prometheus metrics when non-empty, e.g. "127.0.0.1:9464".
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SearchWindow:      30 * time.Minute,
		MaxResults:        10,
		ScanLimit:         5,
		CacheToken:        true,
		TokenSafetyMargin: 60 * time.Second,
	}
}

// Load reads configDir/config.yaml over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(configDir string) (*Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(configDir, "config.yaml")
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	OverrideFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot work with.
func (c *Config) Validate() error {
	if c.MaxResults <= 0 || c.MaxResults > 10 {
		return fmt.Errorf("max_results must be between 1 and 10, got %d", c.MaxResults)
	}
	if c.ScanLimit <= 0 || c.ScanLimit > 5 {
		return fmt.Errorf("scan_limit must be between 1 and 5, got %d", c.ScanLimit)
	}
	if c.SearchWindow <= 0 {
		return fmt.Errorf("search_window must be positive")
	}
	if c.TokenSafetyMargin < 0 {
		return fmt.Errorf("token_safety_margin must not be negative")
	}
	return nil
}

// OverrideFromEnv applies GRABOTP_* environment variables.
func OverrideFromEnv(cfg *Config) {
	if v := os.Getenv("GRABOTP_SEARCH_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SearchWindow = d
		}
	}
	if v := os.Getenv("GRABOTP_CACHE_TOKEN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CacheToken = b
		}
	}
	if v := os.Getenv("GRABOTP_API_ENDPOINT"); v != "" {
		cfg.APIEndpoint = v
	}
	if v := os.Getenv("GRABOTP_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("GRABOTP_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

// DefaultDir returns ~/.config/grabotp.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "grabotp"), nil
}
