// Package app owns the runtime resources behind the hqb command: telemetry
// providers, the connection registry, the transport and the query client.
package app

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/TheColorRed/hasura-query-builder/internal/client"
	"github.com/TheColorRed/hasura-query-builder/internal/config"
	"github.com/TheColorRed/hasura-query-builder/internal/logging"
	"github.com/TheColorRed/hasura-query-builder/internal/naming"
	"github.com/TheColorRed/hasura-query-builder/internal/observability"
)

// App wires configuration into a ready client.
type App struct {
	cfg    *config.Config
	logger *logging.Logger
	// debug receives compiled documents when client.debug is on.
	debug io.Writer

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	metrics        *observability.ClientMetrics

	client        *client.Client
	namer         *naming.Namer
	metricsSrv    *http.Server
	metricsListen string

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper. debug may be nil.
func New(cfg *config.Config, logger *logging.Logger, debug io.Writer) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger, debug: debug}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Client returns the query client. It is nil until Init succeeds.
func (a *App) Client() *client.Client {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.client
}

// Namer returns the table namer built from the naming config. It is nil
// until Init succeeds.
func (a *App) Namer() *naming.Namer {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.namer
}

// Logger returns the application logger.
func (a *App) Logger() *logging.Logger { return a.logger }
