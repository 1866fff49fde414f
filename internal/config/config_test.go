package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9085, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Len(t, cfg.Pool.Extensions, 6)
	assert.Equal(t, 8, cfg.Hours.Open)
	assert.Equal(t, 18, cfg.Hours.Close)
	assert.Equal(t, 3, cfg.Sessions.MaxValidationRetries)
	assert.Equal(t, 5, cfg.Breaker.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Detect.RingTimeout.Duration())
	assert.Equal(t, 6*time.Second, cfg.Detect.SilenceGap.Duration())

	dialer, ok := cfg.Retry[CategoryDialer]
	require.True(t, ok)
	assert.Equal(t, 3, dialer.MaxRetries)
	assert.Equal(t, "exponential", dialer.Strategy)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9191
pool:
  extensions: ["201", "202"]
dialer:
  base_url: "https://dialer.example.com"
  api_token: "super-secret"
detect:
  silence_gap: "8s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, []string{"201", "202"}, cfg.Pool.Extensions)
	assert.Equal(t, "https://dialer.example.com", cfg.Dialer.BaseURL)
	assert.Equal(t, "super-secret", cfg.Dialer.APIToken.Value())
	assert.Equal(t, 8*time.Second, cfg.Detect.SilenceGap.Duration())
}

func TestLoad_RejectsWorldReadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
		{"empty pool", func(c *Config) { c.Pool.Extensions = nil }, "at least one extension"},
		{"duplicate extension", func(c *Config) { c.Pool.Extensions = []string{"101", "101"} }, "duplicate pool extension"},
		{"close before open", func(c *Config) { c.Hours.Open = 18; c.Hours.Close = 8 }, "must be after open"},
		{"bad strategy", func(c *Config) {
			c.Retry["dialer"] = RetryConfig{MaxRetries: 3, BaseDelay: Duration(time.Second), Strategy: "random"}
		}, "unknown strategy"},
		{"zero breaker threshold", func(c *Config) { c.Breaker.Threshold = 0 }, "breaker threshold"},
		{"bad callback hour", func(c *Config) { c.Dialer.CallbackHour = 25 }, "callback_hour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("token-value")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "token-value", s.Value())
	assert.True(t, s.IsSet())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "token-value")

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("nonsense")))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o600))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Stop()
	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9292\n"), 0o600))

	select {
	case cfg := <-w.Updates():
		assert.Equal(t, 9292, cfg.Server.Port)
	case err := <-w.Errors():
		t.Fatalf("unexpected watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcher_InvalidConfigKeepsRunning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o600))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Stop()
	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o600))

	select {
	case err := <-w.Errors():
		assert.Contains(t, err.Error(), "validation failed")
	case cfg := <-w.Updates():
		t.Fatalf("invalid config should not be delivered, got port %d", cfg.Server.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher error")
	}
}
