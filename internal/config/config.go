package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures everything Lookout reads from its config file.
type Config struct {
	BaseURL          string
	SessionCookie    string
	LandingRoute     string
	DefaultRoute     string
	PollSeconds      int
	RequestTimeout   time.Duration
	LogFile          string
	LogLevel         string
	MinServerVersion string
}

const (
	defaultConfigPath     = "~/.config/lookout/config.toml"
	defaultBaseURL        = "http://127.0.0.1:5000"
	defaultLandingRoute   = "/login"
	defaultRoute          = "/home"
	defaultPollSeconds    = 10
	defaultRequestTimeout = 10 * time.Second
	defaultLogFile        = "~/.local/state/lookout/lookout.log"
	defaultLogLevel       = "info"
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		BaseURL:        defaultBaseURL,
		LandingRoute:   defaultLandingRoute,
		DefaultRoute:   defaultRoute,
		PollSeconds:    defaultPollSeconds,
		RequestTimeout: defaultRequestTimeout,
		LogFile:        mustExpand(defaultLogFile),
		LogLevel:       defaultLogLevel,
	}
}

// DefaultPath returns the expanded default config file location.
func DefaultPath() string {
	return mustExpand(defaultConfigPath)
}

// Load locates and parses the Lookout config, falling back to defaults when
// the file is missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		BaseURL               string `toml:"base_url"`
		SessionCookie         string `toml:"session_cookie"`
		LandingRoute          string `toml:"landing_route"`
		DefaultRoute          string `toml:"default_route"`
		PollSeconds           int    `toml:"poll_seconds"`
		RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
		LogFile               string `toml:"log_file"`
		LogLevel              string `toml:"log_level"`
		MinServerVersion      string `toml:"min_server_version"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.Apply(Overrides{
		BaseURL:          raw.BaseURL,
		SessionCookie:    raw.SessionCookie,
		LandingRoute:     raw.LandingRoute,
		DefaultRoute:     raw.DefaultRoute,
		PollSeconds:      raw.PollSeconds,
		RequestTimeout:   time.Duration(raw.RequestTimeoutSeconds) * time.Second,
		LogFile:          raw.LogFile,
		LogLevel:         raw.LogLevel,
		MinServerVersion: raw.MinServerVersion,
	})
	return cfg, nil
}

// Overrides are values layered on top of a loaded Config. Blank strings and
// non-positive numbers leave the current value alone.
type Overrides struct {
	BaseURL          string
	SessionCookie    string
	LandingRoute     string
	DefaultRoute     string
	PollSeconds      int
	RequestTimeout   time.Duration
	LogFile          string
	LogLevel         string
	MinServerVersion string
}

// Apply layers o onto c.
func (c *Config) Apply(o Overrides) {
	setString(&c.BaseURL, o.BaseURL)
	setString(&c.SessionCookie, o.SessionCookie)
	setString(&c.LandingRoute, o.LandingRoute)
	setString(&c.DefaultRoute, o.DefaultRoute)
	setString(&c.LogLevel, o.LogLevel)
	setString(&c.MinServerVersion, o.MinServerVersion)
	if v := strings.TrimSpace(o.LogFile); v != "" {
		c.LogFile = mustExpand(v)
	}
	if o.PollSeconds > 0 {
		c.PollSeconds = o.PollSeconds
	}
	if o.RequestTimeout > 0 {
		c.RequestTimeout = o.RequestTimeout
	}
}

// PollInterval returns the background refresh cadence.
func (c Config) PollInterval() time.Duration {
	if c.PollSeconds <= 0 {
		return defaultPollSeconds * time.Second
	}
	return time.Duration(c.PollSeconds) * time.Second
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading tilde and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
