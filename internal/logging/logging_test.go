package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_ValidatesConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNew_DefaultConfig(t *testing.T) {
	logger, err := New(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestFromStrings(t *testing.T) {
	cfg, err := FromStrings("debug", "console", false)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromStrings("loud", "json", false)
	assert.Error(t, err)
}

func TestContextFields_CarriesCallID(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithCallID(context.Background(), "call-123")
	ctx = WithRequestID(ctx, "req-9")

	tl.Info(ctx, "session created")

	entries := tl.FilterMessage("session created").All()
	require.Len(t, entries, 1)

	fields := map[string]string{}
	for _, f := range entries[0].Context {
		fields[f.Key] = f.String
	}
	assert.Equal(t, "call-123", fields["call_id"])
	assert.Equal(t, "req-9", fields["request_id"])
}

func TestFromContext_ReturnsNopWhenAbsent(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	// Must not panic.
	logger.Info(context.Background(), "ignored")
}

func TestFromContext_RoundTrip(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "round trip")
	tl.AssertLogged(t, zapcore.InfoLevel, "round trip")
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15551234567", "+********4567"},
		{"5551234567", "******4567"},
		{"4567", "4567"},
		{"", ""},
		{"+1 (555) 123-4567", "+* (***) ***-4567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskPhone(tt.in), tt.in)
	}
}

func TestPhone_FieldIsMasked(t *testing.T) {
	f := Phone("phone_number", "+15551234567")
	assert.Equal(t, zap.String("phone_number", "+********4567"), f)
}
