package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "hasura-query-builder"

// ClientMetrics holds the query builder's instruments. A nil *ClientMetrics
// records nothing.
type ClientMetrics struct {
	compileDuration     metric.Float64Histogram
	compileErrors       metric.Int64Counter
	requestDuration     metric.Float64Histogram
	requestCounter      metric.Int64Counter
	errorCounter        metric.Int64Counter
	rowsReturned        metric.Int64Histogram
	cacheHits           metric.Int64Counter
	cacheMisses         metric.Int64Counter
	activeSubscriptions metric.Int64UpDownCounter
}

// NewClientMetrics creates the instruments on provider.
func NewClientMetrics(provider metric.MeterProvider) (*ClientMetrics, error) {
	meter := provider.Meter(meterName)
	m := &ClientMetrics{}
	var err error

	if m.compileDuration, err = meter.Float64Histogram(
		"hqb.compile.duration",
		metric.WithDescription("Duration of query compilation in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create compile duration histogram: %w", err)
	}
	if m.compileErrors, err = meter.Int64Counter(
		"hqb.compile.errors.total",
		metric.WithDescription("Total number of failed compilations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create compile error counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram(
		"hqb.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if m.requestCounter, err = meter.Int64Counter(
		"hqb.requests.total",
		metric.WithDescription("Total number of GraphQL requests sent"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	if m.errorCounter, err = meter.Int64Counter(
		"hqb.errors.total",
		metric.WithDescription("Total number of failed GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	if m.rowsReturned, err = meter.Int64Histogram(
		"hqb.rows.returned",
		metric.WithDescription("Number of rows returned per request"),
	); err != nil {
		return nil, fmt.Errorf("failed to create rows histogram: %w", err)
	}
	if m.cacheHits, err = meter.Int64Counter(
		"hqb.cache.hits.total",
		metric.WithDescription("Total number of query cache hits"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache hit counter: %w", err)
	}
	if m.cacheMisses, err = meter.Int64Counter(
		"hqb.cache.misses.total",
		metric.WithDescription("Total number of query cache misses"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache miss counter: %w", err)
	}
	if m.activeSubscriptions, err = meter.Int64UpDownCounter(
		"hqb.subscriptions.active",
		metric.WithDescription("Number of open subscriptions"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active subscriptions counter: %w", err)
	}
	return m, nil
}

// InitMetrics creates the instruments on the global meter provider.
func InitMetrics(logger *slog.Logger) (*ClientMetrics, error) {
	m, err := NewClientMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client metrics: %w", err)
	}
	logger.Debug("client metrics initialized")
	return m, nil
}

// RecordCompile records one compilation.
func (m *ClientMetrics) RecordCompile(ctx context.Context, duration time.Duration, operation string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	m.compileDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.compileErrors.Add(ctx, 1, attrs)
	}
}

// RecordRequest records a finished request and its outcome.
func (m *ClientMetrics) RecordRequest(ctx context.Context, duration time.Duration, operationType, connection string, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation_type", operationType),
		attribute.String("connection", connection),
		attribute.Bool("has_errors", err != nil),
	}
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation_type", operationType),
			attribute.String("connection", connection),
		))
	}
}

// RecordRows records the row count of one result.
func (m *ClientMetrics) RecordRows(ctx context.Context, count int, table string) {
	if m == nil {
		return
	}
	m.rowsReturned.Record(ctx, int64(count), metric.WithAttributes(attribute.String("table", table)))
}

// RecordCacheLookup counts a cache hit or miss.
func (m *ClientMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Add(ctx, 1)
		return
	}
	m.cacheMisses.Add(ctx, 1)
}

// SubscriptionOpened increments the open subscription gauge.
func (m *ClientMetrics) SubscriptionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSubscriptions.Add(ctx, 1)
}

// SubscriptionClosed decrements the open subscription gauge.
func (m *ClientMetrics) SubscriptionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSubscriptions.Add(ctx, -1)
}
