package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsReadHeaderTimeout = 5 * time.Second

// ServeMetrics exposes /metrics on addr until Shutdown. It requires Init
// and metrics to be enabled. The returned channel reports a server failure.
func (a *App) ServeMetrics(addr string) (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.meterProvider == nil {
		return nil, fmt.Errorf("metrics are disabled")
	}
	if a.metricsSrv != nil {
		return nil, fmt.Errorf("metrics server already running")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}
	a.metricsSrv = srv
	a.metricsListen = ln.Addr().String()
	a.cleanup.push("metrics server", srv.Shutdown)

	errs := make(chan error, 1)
	go func() {
		a.logger.Info("metrics endpoint enabled",
			slog.String("address", ln.Addr().String()),
			slog.String("path", "/metrics"),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()
	return errs, nil
}

// MetricsAddr reports where the metrics server listens, or "" when it is
// not running.
func (a *App) MetricsAddr() string {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.metricsListen
}

// WithShutdownTimeout derives the context used to release resources.
func WithShutdownTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}
