package resilience

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialerd/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/dialerd/internal/resilience"

// Metrics holds executor and breaker instruments.
type Metrics struct {
	retries     metric.Int64Counter
	recoveries  metric.Int64Counter
	exhaustions metric.Int64Counter
	breakerOpen metric.Int64Counter
	rejections  metric.Int64Counter
}

// NewMetrics creates resilience metrics on the global meter provider.
func NewMetrics(logger *logging.Logger) *Metrics {
	if logger == nil {
		logger = logging.Nop()
	}
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	m.retries, err = meter.Int64Counter(
		"dialerd.retry.attempts_total",
		metric.WithDescription("Failed attempts that consumed retry budget, labeled by category."),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create retries counter", zap.Error(err))
	}

	m.recoveries, err = meter.Int64Counter(
		"dialerd.retry.recoveries_total",
		metric.WithDescription("Operations that succeeded after at least one failed attempt."),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create recoveries counter", zap.Error(err))
	}

	m.exhaustions, err = meter.Int64Counter(
		"dialerd.retry.exhaustions_total",
		metric.WithDescription("Operations that failed after the full retry budget."),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create exhaustions counter", zap.Error(err))
	}

	m.breakerOpen, err = meter.Int64Counter(
		"dialerd.breaker.opened_total",
		metric.WithDescription("Circuit breaker open transitions, labeled by service."),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create breaker counter", zap.Error(err))
	}

	m.rejections, err = meter.Int64Counter(
		"dialerd.breaker.rejections_total",
		metric.WithDescription("Calls rejected while a circuit breaker was open."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create rejections counter", zap.Error(err))
	}

	return m
}

func (m *Metrics) recordRetry(ctx context.Context, category string) {
	if m.retries != nil {
		m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
	}
}

func (m *Metrics) recordRecovery(ctx context.Context, category string, attempts int) {
	if m.recoveries != nil {
		m.recoveries.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", category),
			attribute.Int("attempts", attempts),
		))
	}
}

func (m *Metrics) recordExhaustion(ctx context.Context, category string) {
	if m.exhaustions != nil {
		m.exhaustions.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
	}
}

func (m *Metrics) recordBreakerOpen(ctx context.Context, service string) {
	if m.breakerOpen != nil {
		m.breakerOpen.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
	}
}

func (m *Metrics) recordBreakerRejection(ctx context.Context, service string) {
	if m.rejections != nil {
		m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
	}
}
