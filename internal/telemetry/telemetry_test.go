package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dialerd/internal/config"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tel)
	assert.False(t, tel.Degraded())

	// No-op providers must still hand out usable tracers and meters.
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips validation", func(c *Config) { c.Enabled = false; c.Endpoint = "" }, ""},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, "endpoint is required"},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, "protocol must be"},
		{"insecure remote rejected", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "collector.example.com:4317"
			c.Insecure = true
		}, "insecure connections to remote"},
		{"insecure localhost allowed", func(c *Config) { c.Enabled = true }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
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

func TestFromApp(t *testing.T) {
	app := config.TelemetryConfig{
		Enabled:        true,
		ServiceName:    "dialerd",
		ServiceVersion: "1.2.3",
		Endpoint:       "localhost:4318",
		Protocol:       "http/protobuf",
		Insecure:       true,
	}
	cfg := FromApp(app)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "localhost:4317", stripScheme("http://localhost:4317"))
	assert.Equal(t, "collector:4317", stripScheme("https://collector:4317"))
	assert.Equal(t, "localhost:4317", stripScheme("localhost:4317"))
}
