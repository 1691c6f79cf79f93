package observability

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInitMeterProvider(t *testing.T) {
	cfg := Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
	}

	mp, err := InitMeterProvider(cfg)
	require.NoError(t, err, "Should initialize meter provider without error")
	require.NotNil(t, mp, "Meter provider should not be nil")
	require.NotNil(t, mp.provider, "Provider should not be nil")
	require.NotNil(t, mp.exporter, "Exporter should not be nil")

	// Clean up
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	err = mp.Shutdown(context.Background(), logger)
	assert.NoError(t, err, "Should shutdown without error")
}

func TestClientMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewClientMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCompile(ctx, 2*time.Millisecond, "select", nil)
	m.RecordRequest(ctx, 10*time.Millisecond, "query", "default", errors.New("boom"))
	m.RecordRows(ctx, 3, "users")
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)
	m.SubscriptionOpened(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, metric := range rm.ScopeMetrics[0].Metrics {
		names[metric.Name] = true
	}
	for _, want := range []string{
		"hqb.compile.duration",
		"hqb.request.duration",
		"hqb.requests.total",
		"hqb.errors.total",
		"hqb.rows.returned",
		"hqb.cache.hits.total",
		"hqb.cache.misses.total",
		"hqb.subscriptions.active",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
	assert.False(t, names["hqb.compile.errors.total"], "no compile error was recorded")
}

func TestClientMetrics_NilIsNoop(t *testing.T) {
	var m *ClientMetrics
	ctx := context.Background()
	m.RecordCompile(ctx, time.Millisecond, "select", nil)
	m.RecordRequest(ctx, time.Millisecond, "query", "default", nil)
	m.RecordCacheLookup(ctx, true)
	m.SubscriptionOpened(ctx)
	m.SubscriptionClosed(ctx)
}

func TestExporterSettings(t *testing.T) {
	_, err := newExporterSettings(OTLPExporterConfig{Protocol: "udp"})
	require.Error(t, err)

	s, err := newExporterSettings(OTLPExporterConfig{
		Endpoint:         "http://collector:4318",
		Protocol:         "http",
		Insecure:         true,
		Compression:      "gzip",
		RetryEnabled:     true,
		RetryMaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolHTTP, s.protocol)
	assert.True(t, s.endpointIsURL())
	assert.True(t, s.gzip)
	assert.True(t, s.retry)
	assert.Nil(t, s.tls)
	assert.Len(t, s.traceHTTP(), 4)
	assert.Len(t, s.logHTTP(), 4)

	s, err = newExporterSettings(OTLPExporterConfig{Endpoint: "collector:4317"})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolGRPC, s.protocol)
	assert.NotNil(t, s.tls)
	assert.Len(t, s.traceGRPC(), 2)
	assert.Len(t, s.logGRPC(), 2)
}

func TestBuildTLSConfig_FileNotFound(t *testing.T) {
	// Missing CA file should surface a clear error.
	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSCertFile: "/nonexistent/ca.pem",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read OTLP TLS CA file")
}

func TestBuildTLSConfig_InvalidCertFormat(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ca.pem"

	// Write a non-PEM payload to trigger parse failure.
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0600))

	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSCertFile: path,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse OTLP TLS CA file")
}

func TestBuildTLSConfig_MissingClientKeyPair(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/client.crt"

	// Only set the cert path to ensure missing key is rejected.
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0600))

	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSClientCertFile: path,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTLP TLS client cert and key must both be set")
}

func TestTraceSamplerForRatio_Boundaries(t *testing.T) {
	never := traceSamplerForRatio(0)
	always := traceSamplerForRatio(1)

	decisionNever := never.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{1},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decisionNever)

	decisionAlways := always.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{2},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decisionAlways)
}

func TestTraceSamplerForRatio_ParentAwareMidRange(t *testing.T) {
	sampler := traceSamplerForRatio(0.5)

	parentSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	decisionSampledParent := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentSampled,
		TraceID:       trace.TraceID{4},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decisionSampledParent)

	parentNotSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))
	decisionUnsampledParent := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentNotSampled,
		TraceID:       trace.TraceID{6},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decisionUnsampledParent)
}
