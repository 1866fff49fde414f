package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/dialerd/internal/session"

// Metrics holds registry instruments.
type Metrics struct {
	activeSessions metric.Int64UpDownCounter
	poolAvailable  metric.Int64Gauge
	sessionsTotal  metric.Int64Counter
}

// NewMetrics creates session metrics on the global meter provider.
func NewMetrics(logger *logging.Logger) *Metrics {
	if logger == nil {
		logger = logging.Nop()
	}
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	m.activeSessions, err = meter.Int64UpDownCounter(
		"dialerd.sessions.active",
		metric.WithDescription("Number of currently active call sessions."),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create active sessions gauge", zap.Error(err))
	}

	m.poolAvailable, err = meter.Int64Gauge(
		"dialerd.pool.available_extensions",
		metric.WithDescription("Agent extensions currently free for leasing."),
		metric.WithUnit("{extension}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create pool gauge", zap.Error(err))
	}

	m.sessionsTotal, err = meter.Int64Counter(
		"dialerd.sessions.created_total",
		metric.WithDescription("Total call sessions created."),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create sessions counter", zap.Error(err))
	}

	return m
}

func (m *Metrics) recordSessionStart(ctx context.Context, available int) {
	if m.activeSessions != nil {
		m.activeSessions.Add(ctx, 1)
	}
	if m.sessionsTotal != nil {
		m.sessionsTotal.Add(ctx, 1)
	}
	if m.poolAvailable != nil {
		m.poolAvailable.Record(ctx, int64(available))
	}
}

func (m *Metrics) recordSessionEnd(ctx context.Context, available int) {
	if m.activeSessions != nil {
		m.activeSessions.Add(ctx, -1)
	}
	if m.poolAvailable != nil {
		m.poolAvailable.Record(ctx, int64(available))
	}
}
