package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

const (
	defaultPort    = 8080
	defaultTimeout = 30 * time.Second
	defaultPoll    = 5 * time.Second
)

// Config holds application configuration.
type Config struct {
	APIKey    string        `toml:"api_key"`
	BaseURL   string        `toml:"base_url"`
	OutputDir string        `toml:"output_dir"`
	Timeout   time.Duration `toml:"timeout"`

	Poll    PollConfig    `toml:"poll"`
	History HistoryConfig `toml:"history"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
}

// PollConfig controls status polling.
type PollConfig struct {
	Interval    time.Duration `toml:"interval"`
	MaxAttempts int           `toml:"max_attempts"`
}

// HistoryConfig controls the capture history database.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

// ServerConfig controls the HTTP adapter.
type ServerConfig struct {
	Port   int    `toml:"port"`
	Secret string `toml:"secret"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file or env is present.
func Default() *Config {
	return &Config{
		OutputDir: DefaultOutputDir(),
		Timeout:   defaultTimeout,
		Poll:      PollConfig{Interval: defaultPoll},
		History:   HistoryConfig{DBPath: DefaultHistoryPath()},
		Server:    ServerConfig{Port: defaultPort},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "shotgrab", "config.toml")
}

// DefaultHistoryPath returns the default history database path using XDG_CACHE_HOME.
func DefaultHistoryPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "shotgrab", "history.db")
}

// DefaultOutputDir returns the default screenshot directory.
func DefaultOutputDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Pictures", "shotgrab")
}

// Load builds Config from defaults, the TOML file at path and the
// environment, in that order. An empty path means DefaultPath. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	meta, err := toml.DecodeFile(resolved, cfg)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("parse config: %w", err)
	default:
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("parse config: unknown keys %s", strings.Join(keys, ", "))
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.OutputDir) == "" {
		cfg.OutputDir = DefaultOutputDir()
	}
	if strings.TrimSpace(cfg.History.DBPath) == "" {
		cfg.History.DBPath = DefaultHistoryPath()
	}
	if cfg.OutputDir, err = ExpandPath(cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("output_dir: %w", err)
	}
	if cfg.History.DBPath, err = ExpandPath(cfg.History.DBPath); err != nil {
		return nil, fmt.Errorf("history.db_path: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SHOTGRAB_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("SHOTGRAB_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("SHOTGRAB_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("SHOTGRAB_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHOTGRAB_PORT: invalid port %q", v)
		}
		c.Server.Port = p
	}
	if v := os.Getenv("SHOTGRAB_SECRET"); v != "" {
		c.Server.Secret = v
	}
	if v := os.Getenv("SHOTGRAB_HISTORY_DB"); v != "" {
		c.History.DBPath = v
		c.History.Enabled = true
	}
	if v := os.Getenv("SHOTGRAB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Poll.Interval < 0 {
		return fmt.Errorf("poll.interval must not be negative")
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("poll.max_attempts must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if lvl := strings.TrimSpace(c.Log.Level); lvl != "" {
		if _, err := logrus.ParseLevel(lvl); err != nil {
			return fmt.Errorf("log.level: unsupported level %q", c.Log.Level)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "text", "console", "json":
	default:
		return fmt.Errorf("log.format: unsupported format %q", c.Log.Format)
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DBPath) == "" {
		return fmt.Errorf("history.db_path is required when history is enabled")
	}
	return nil
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
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
