package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultHistoryPath(t *testing.T) {
	t.Run("with XDG_CACHE_HOME", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "/custom/cache")

		expected := "/custom/cache/shotgrab/history.db"
		if path := DefaultHistoryPath(); path != expected {
			t.Errorf("DefaultHistoryPath() = %q, want %q", path, expected)
		}
	})

	t.Run("without XDG_CACHE_HOME", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "")

		path := DefaultHistoryPath()
		if !strings.HasSuffix(path, filepath.Join(".cache", "shotgrab", "history.db")) {
			t.Errorf("DefaultHistoryPath() = %q, want suffix .cache/shotgrab/history.db", path)
		}
	})
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	expected := "/custom/config/shotgrab/config.toml"
	if path := DefaultPath(); path != expected {
		t.Errorf("DefaultPath() = %q, want %q", path, expected)
	}
}

func TestDefaultOutputDir(t *testing.T) {
	path := DefaultOutputDir()
	if !strings.HasSuffix(path, filepath.Join("Pictures", "shotgrab")) {
		t.Errorf("DefaultOutputDir() = %q, want suffix Pictures/shotgrab", path)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CACHE_HOME", "")

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Poll.Interval != 5*time.Second {
		t.Errorf("Poll.Interval = %v, want 5s", cfg.Poll.Interval)
	}
	if cfg.Poll.MaxAttempts != 0 {
		t.Errorf("Poll.MaxAttempts = %d, want 0", cfg.Poll.MaxAttempts)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled = true, want false")
	}
	if want := filepath.Join(home, "Pictures", "shotgrab"); cfg.OutputDir != want {
		t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}

func TestLoad_ParsesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, `
api_key = "abc"
base_url = "https://api.example.com/v1"
output_dir = "~/shots"
timeout = "10s"

[poll]
interval = "2s"
max_attempts = 12

[history]
enabled = true
db_path = "~/hist.db"

[server]
port = 9090
secret = "s3cret"

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIKey != "abc" || cfg.BaseURL != "https://api.example.com/v1" {
		t.Errorf("APIKey/BaseURL = %q/%q", cfg.APIKey, cfg.BaseURL)
	}
	if cfg.OutputDir != filepath.Join(home, "shots") {
		t.Errorf("OutputDir = %q, want it under HOME", cfg.OutputDir)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
	if cfg.Poll.Interval != 2*time.Second || cfg.Poll.MaxAttempts != 12 {
		t.Errorf("Poll = %+v", cfg.Poll)
	}
	if !cfg.History.Enabled || cfg.History.DBPath != filepath.Join(home, "hist.db") {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Secret != "s3cret" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
api_key = "from-file"

[server]
port = 9090
`)
	dbPath := filepath.Join(t.TempDir(), "h.db")
	t.Setenv("SHOTGRAB_API_KEY", "from-env")
	t.Setenv("SHOTGRAB_PORT", "7070")
	t.Setenv("SHOTGRAB_HISTORY_DB", dbPath)
	t.Setenv("SHOTGRAB_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.APIKey)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
	if !cfg.History.Enabled || cfg.History.DBPath != dbPath {
		t.Errorf("History = %+v, want enabled at %q", cfg.History, dbPath)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoad_InvalidPortEnv(t *testing.T) {
	t.Setenv("SHOTGRAB_PORT", "eighty")

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "SHOTGRAB_PORT") {
		t.Fatalf("Load error = %v, want SHOTGRAB_PORT error", err)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	_, err := Load(writeConfig(t, `api_key = [`))
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %v, want parse config error", err)
	}
}

func TestLoad_UnknownKeysFail(t *testing.T) {
	_, err := Load(writeConfig(t, "apikey = \"abc\"\n[poll]\nevery = \"1s\"\n"))
	if err == nil {
		t.Fatal("Load returned nil error, want unknown key error")
	}
	if !strings.Contains(err.Error(), "apikey") || !strings.Contains(err.Error(), "poll.every") {
		t.Errorf("Load error = %q, want both unknown keys named", err.Error())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"negative interval", func(c *Config) { c.Poll.Interval = -time.Second }, "poll.interval"},
		{"negative attempts", func(c *Config) { c.Poll.MaxAttempts = -1 }, "poll.max_attempts"},
		{"negative timeout", func(c *Config) { c.Timeout = -1 }, "timeout"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"history without path", func(c *Config) { c.History = HistoryConfig{Enabled: true} }, "history.db_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/a/b")
	if err != nil {
		t.Fatalf("ExpandPath returned error: %v", err)
	}
	if want := filepath.Join(home, "a/b"); got != want {
		t.Errorf("ExpandPath = %q, want %q", got, want)
	}

	if _, err := ExpandPath("   "); err == nil {
		t.Error("ExpandPath returned nil error for blank path")
	}
}
