// Package config loads bwingest settings from YAML. Command-line flags are
// applied on top of the loaded values by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/bwingest/internal/archive"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "BWINGEST_CONF"

// ErrMissingAuth is returned by Validate when archive credentials are absent.
var ErrMissingAuth = errors.New("archive username and api key are required")

// Config is the top-level configuration.
type Config struct {
	Archive archive.Config `yaml:"archive"`
	Log     LogConfig      `yaml:"log"`
}

// LogConfig controls where and how verbosely runs are logged.
type LogConfig struct {
	Dir   string `yaml:"dir"` // empty logs to stdout
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Archive: archive.Config{
			URL:         "http://localhost:8000",
			ScriptAlias: "/",
			Timeout:     30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath returns ~/.bwingest/config.yaml, or "" when there is no home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bwingest", "config.yaml")
}

// LoadConfig reads the config at path. An empty path falls back to
// $BWINGEST_CONF, then DefaultPath. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports missing credentials and unusable values.
func (c *Config) Validate() error {
	if c.Archive.Username == "" || c.Archive.APIKey == "" {
		return ErrMissingAuth
	}
	if c.Archive.URL == "" {
		return errors.New("archive url is required")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
