// Package config provides configuration loading for dialerd.
package config

import (
	"fmt"
	"time"
)

// Config is the root dialerd configuration.
type Config struct {
	Server    ServerConfig           `koanf:"server"`
	Logging   LoggingConfig          `koanf:"logging"`
	Telemetry TelemetryConfig        `koanf:"telemetry"`
	Pool      PoolConfig             `koanf:"pool"`
	Hours     HoursConfig            `koanf:"hours"`
	Sessions  SessionsConfig         `koanf:"sessions"`
	Retry     map[string]RetryConfig `koanf:"retry"`
	Breaker   BreakerConfig          `koanf:"breaker"`
	Dialer    DialerConfig           `koanf:"dialer"`
	Audit     AuditConfig            `koanf:"audit"`
	Detect    DetectConfig           `koanf:"detect"`
}

// ServerConfig holds webhook server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RateLimit       float64  `koanf:"rate_limit"`
	RateBurst       int      `koanf:"rate_burst"`
}

// LoggingConfig holds logger settings consumed by internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OTel exporter settings.
type TelemetryConfig struct {
	Enabled        bool   `koanf:"enabled"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
	Endpoint       string `koanf:"endpoint"`
	Protocol       string `koanf:"protocol"`
	Insecure       bool   `koanf:"insecure"`
}

// PoolConfig names the agent extensions available for leasing.
type PoolConfig struct {
	Extensions []string `koanf:"extensions"`
}

// HoursConfig is the fixed weekly business-hours schedule.
type HoursConfig struct {
	Timezone string `koanf:"timezone"`
	Open     int    `koanf:"open"`
	Close    int    `koanf:"close"`
	Weekends bool   `koanf:"weekends"`
}

// SessionsConfig bounds the per-session validation retry counter.
type SessionsConfig struct {
	MaxValidationRetries int `koanf:"max_validation_retries"`
}

// RetryConfig is a per-category retry policy for outbound calls.
type RetryConfig struct {
	MaxRetries int      `koanf:"max_retries"`
	BaseDelay  Duration `koanf:"base_delay"`
	Strategy   string   `koanf:"strategy"`
	Timeout    Duration `koanf:"timeout"`
}

// BreakerConfig configures circuit breakers for external services.
type BreakerConfig struct {
	Threshold    int      `koanf:"threshold"`
	ResetTimeout Duration `koanf:"reset_timeout"`
}

// DialerConfig points at the external dialer system.
type DialerConfig struct {
	BaseURL      string   `koanf:"base_url"`
	APIToken     Secret   `koanf:"api_token"`
	Timeout      Duration `koanf:"timeout"`
	CallbackHour int      `koanf:"callback_hour"`
}

// AuditConfig configures the audit event stream.
type AuditConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// DetectConfig tunes the status detector heuristics.
type DetectConfig struct {
	VoicemailKeywords []string `koanf:"voicemail_keywords"`
	IVRKeywords       []string `koanf:"ivr_keywords"`
	TonePhrases       []string `koanf:"tone_phrases"`
	RingTimeout       Duration `koanf:"ring_timeout"`
	SilenceGap        Duration `koanf:"silence_gap"`
}

// RetryCategories with built-in default policies.
const (
	CategoryDialer = "dialer"
	CategoryCRM    = "crm"
	CategorySMS    = "sms"
)

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9085
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 50
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "dialerd"
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = "dev"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}

	if len(cfg.Pool.Extensions) == 0 {
		cfg.Pool.Extensions = []string{"101", "102", "103", "104", "105", "106"}
	}

	if cfg.Hours.Timezone == "" {
		cfg.Hours.Timezone = "Local"
	}
	if cfg.Hours.Open == 0 && cfg.Hours.Close == 0 {
		cfg.Hours.Open = 8
		cfg.Hours.Close = 18
	}

	if cfg.Sessions.MaxValidationRetries == 0 {
		cfg.Sessions.MaxValidationRetries = 3
	}

	if cfg.Retry == nil {
		cfg.Retry = map[string]RetryConfig{}
	}
	defaultRetry := map[string]RetryConfig{
		CategoryDialer: {MaxRetries: 3, BaseDelay: Duration(time.Second), Strategy: "exponential", Timeout: Duration(10 * time.Second)},
		CategoryCRM:    {MaxRetries: 3, BaseDelay: Duration(500 * time.Millisecond), Strategy: "linear", Timeout: Duration(5 * time.Second)},
		CategorySMS:    {MaxRetries: 2, BaseDelay: Duration(time.Second), Strategy: "fixed", Timeout: Duration(5 * time.Second)},
	}
	for name, policy := range defaultRetry {
		if _, ok := cfg.Retry[name]; !ok {
			cfg.Retry[name] = policy
		}
	}

	if cfg.Breaker.Threshold == 0 {
		cfg.Breaker.Threshold = 5
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = Duration(30 * time.Second)
	}

	if cfg.Dialer.BaseURL == "" {
		cfg.Dialer.BaseURL = "http://localhost:8081"
	}
	if cfg.Dialer.Timeout == 0 {
		cfg.Dialer.Timeout = Duration(15 * time.Second)
	}
	if cfg.Dialer.CallbackHour == 0 {
		cfg.Dialer.CallbackHour = 10
	}

	if cfg.Audit.NATSURL == "" {
		cfg.Audit.NATSURL = "nats://localhost:4222"
	}
	if cfg.Audit.SubjectPrefix == "" {
		cfg.Audit.SubjectPrefix = "dialerd.audit"
	}

	if len(cfg.Detect.VoicemailKeywords) == 0 {
		cfg.Detect.VoicemailKeywords = []string{
			"leave a message", "leave your message", "after the tone",
			"after the beep", "mailbox", "voicemail", "is not available",
			"record your message",
		}
	}
	if len(cfg.Detect.IVRKeywords) == 0 {
		cfg.Detect.IVRKeywords = []string{
			"press 1", "press one", "press 2", "press two",
			"main menu", "para espanol", "to speak with", "dial",
		}
	}
	if len(cfg.Detect.TonePhrases) == 0 {
		cfg.Detect.TonePhrases = []string{"beep", "tone", "fax"}
	}
	if cfg.Detect.RingTimeout == 0 {
		cfg.Detect.RingTimeout = Duration(30 * time.Second)
	}
	if cfg.Detect.SilenceGap == 0 {
		cfg.Detect.SilenceGap = Duration(6 * time.Second)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if len(c.Pool.Extensions) == 0 {
		return fmt.Errorf("pool must define at least one extension")
	}
	seen := make(map[string]bool, len(c.Pool.Extensions))
	for _, ext := range c.Pool.Extensions {
		if ext == "" {
			return fmt.Errorf("pool extension cannot be empty")
		}
		if seen[ext] {
			return fmt.Errorf("duplicate pool extension %q", ext)
		}
		seen[ext] = true
	}
	if c.Hours.Open < 0 || c.Hours.Open > 23 {
		return fmt.Errorf("hours open must be 0-23, got %d", c.Hours.Open)
	}
	if c.Hours.Close < 1 || c.Hours.Close > 24 {
		return fmt.Errorf("hours close must be 1-24, got %d", c.Hours.Close)
	}
	if c.Hours.Close <= c.Hours.Open {
		return fmt.Errorf("hours close (%d) must be after open (%d)", c.Hours.Close, c.Hours.Open)
	}
	if _, err := time.LoadLocation(c.Hours.Timezone); err != nil {
		return fmt.Errorf("invalid hours timezone %q: %w", c.Hours.Timezone, err)
	}
	if c.Sessions.MaxValidationRetries < 1 {
		return fmt.Errorf("sessions max_validation_retries must be >= 1")
	}
	for name, policy := range c.Retry {
		if policy.MaxRetries < 1 {
			return fmt.Errorf("retry category %q: max_retries must be >= 1", name)
		}
		switch policy.Strategy {
		case "exponential", "linear", "fixed":
		default:
			return fmt.Errorf("retry category %q: unknown strategy %q", name, policy.Strategy)
		}
		if policy.BaseDelay.Duration() <= 0 {
			return fmt.Errorf("retry category %q: base_delay must be > 0", name)
		}
	}
	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker threshold must be >= 1, got %d", c.Breaker.Threshold)
	}
	if c.Breaker.ResetTimeout.Duration() <= 0 {
		return fmt.Errorf("breaker reset_timeout must be > 0")
	}
	if c.Dialer.BaseURL == "" {
		return fmt.Errorf("dialer base_url is required")
	}
	if c.Dialer.CallbackHour < 0 || c.Dialer.CallbackHour > 23 {
		return fmt.Errorf("dialer callback_hour must be 0-23, got %d", c.Dialer.CallbackHour)
	}
	if c.Detect.RingTimeout.Duration() <= 0 {
		return fmt.Errorf("detect ring_timeout must be > 0")
	}
	if c.Detect.SilenceGap.Duration() <= 0 {
		return fmt.Errorf("detect silence_gap must be > 0")
	}
	return nil
}

// Location resolves the configured business-hours timezone.
func (h HoursConfig) Location() *time.Location {
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
