// Package config loads configuration from flags, env vars, .env files and a
// YAML file, and validates it.
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/TheColorRed/hasura-query-builder/internal/auth"
	"github.com/TheColorRed/hasura-query-builder/internal/connections"
	"github.com/TheColorRed/hasura-query-builder/internal/naming"
	"github.com/TheColorRed/hasura-query-builder/internal/observability"
	"github.com/TheColorRed/hasura-query-builder/internal/querycache"
)

// Config holds the application configuration.
type Config struct {
	// Hasura is the default connection.
	Hasura ConnectionConfig `mapstructure:"hasura"`
	// Connections are additional named endpoints, only settable from the file.
	Connections   map[string]ConnectionConfig `mapstructure:"connections"`
	Client        ClientConfig                `mapstructure:"client"`
	Cache         CacheConfig                 `mapstructure:"cache"`
	Auth          AuthConfig                  `mapstructure:"auth"`
	Observability ObservabilityConfig         `mapstructure:"observability"`
	Naming        naming.Config               `mapstructure:"naming"`
}

// ConnectionConfig describes one GraphQL endpoint.
type ConnectionConfig struct {
	URL               string            `mapstructure:"url"`
	WebSocketURL      string            `mapstructure:"ws_url"`
	Headers           map[string]string `mapstructure:"headers"`
	AdminSecret       string            `mapstructure:"admin_secret"`
	AdminSecretFile   string            `mapstructure:"admin_secret_file"`
	AdminSecretPrompt bool              `mapstructure:"admin_secret_prompt"`
	Role              string            `mapstructure:"role"`
	Timeout           time.Duration     `mapstructure:"timeout"`
}

// ClientConfig tunes the query client.
type ClientConfig struct {
	// Debug prints every compiled document before it is sent.
	Debug     bool `mapstructure:"debug"`
	ChunkSize int  `mapstructure:"chunk_size"`
	PageSize  int  `mapstructure:"page_size"`
	// Validate parses every compiled document before sending it.
	Validate bool `mapstructure:"validate"`
}

// CacheConfig sizes the response cache.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// QueryCache converts c for querycache.New.
func (c CacheConfig) QueryCache() querycache.Config {
	return querycache.Config{TTL: c.TTL, MaxEntries: c.MaxEntries}
}

// AuthConfig selects how bearer tokens are obtained.
type AuthConfig struct {
	// Mode is one of "", "token", "jwt" or "oauth2".
	Mode      string       `mapstructure:"mode"`
	Token     string       `mapstructure:"token"`
	TokenFile string       `mapstructure:"token_file"`
	JWT       JWTConfig    `mapstructure:"jwt"`
	OAuth2    OAuth2Config `mapstructure:"oauth2"`
}

// JWTConfig configures locally minted Hasura tokens.
type JWTConfig struct {
	PrivateKeyFile string        `mapstructure:"private_key_file"`
	Secret         string        `mapstructure:"secret"`
	KeyID          string        `mapstructure:"key_id"`
	Issuer         string        `mapstructure:"issuer"`
	Audience       []string      `mapstructure:"audience"`
	Subject        string        `mapstructure:"subject"`
	DefaultRole    string        `mapstructure:"default_role"`
	AllowedRoles   []string      `mapstructure:"allowed_roles"`
	TTL            time.Duration `mapstructure:"ttl"`
}

// OAuth2Config configures the client-credentials flow.
type OAuth2Config struct {
	TokenURL     string   `mapstructure:"token_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
	Audience     string   `mapstructure:"audience"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// Global OTLP settings (defaults for all signals)
	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// Telemetry returns the observability settings for one signal, with
// signal overrides merged over the global OTLP block.
func (c *ObservabilityConfig) Telemetry(signal string) observability.Config {
	otlp := c.OTLP
	switch signal {
	case "traces":
		if c.Traces != nil {
			otlp = mergeOTLPConfigs(c.OTLP, *c.Traces)
		}
	case "logs":
		if c.Logs != nil {
			otlp = mergeOTLPConfigs(c.OTLP, *c.Logs)
		}
	}
	return observability.Config{
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.ServiceVersion,
		Environment:      c.Environment,
		TraceSampleRatio: c.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

// mergeOTLPConfigs lays non-empty override values over base.
func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	result := base

	if override.Endpoint != "" {
		result.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	// A present override block always carries its own Insecure value.
	result.Insecure = override.Insecure

	if override.TLSCertFile != "" {
		result.TLSCertFile = override.TLSCertFile
	}
	if override.TLSClientCertFile != "" {
		result.TLSClientCertFile = override.TLSClientCertFile
	}
	if override.TLSClientKeyFile != "" {
		result.TLSClientKeyFile = override.TLSClientKeyFile
	}
	if override.Headers != nil {
		result.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			result.Headers[k] = v
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Compression != "" {
		result.Compression = override.Compression
	}
	if override.RetryMaxAttempts != 0 {
		result.RetryEnabled = override.RetryEnabled
		result.RetryMaxAttempts = override.RetryMaxAttempts
	}
	return result
}

// Registry builds the connection registry: Hasura as the default plus every
// named connection. Admin secret files are read here.
func (c *Config) Registry() (*connections.Registry, error) {
	conns := make([]connections.Connection, 0, 1+len(c.Connections))
	def, err := c.Hasura.connection(connections.Default)
	if err != nil {
		return nil, err
	}
	conns = append(conns, def)

	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		conn, err := c.Connections[name].connection(name)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return connections.NewRegistry(conns...)
}

func (cc ConnectionConfig) connection(name string) (connections.Connection, error) {
	secret := cc.AdminSecret
	if secret == "" && cc.AdminSecretFile != "" {
		s, err := readSecretFile(cc.AdminSecretFile)
		if err != nil {
			return connections.Connection{}, fmt.Errorf("connection %q: failed to read admin secret file: %w", name, err)
		}
		secret = s
	}
	return connections.Connection{
		Name:         name,
		URL:          cc.URL,
		WebSocketURL: cc.WebSocketURL,
		Headers:      cc.Headers,
		AdminSecret:  secret,
		Role:         cc.Role,
		Timeout:      cc.Timeout,
	}, nil
}

// TokenSource returns the configured bearer token source, or nil when
// Mode is empty.
func (a AuthConfig) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	switch strings.ToLower(a.Mode) {
	case "":
		return nil, nil
	case "token":
		token := a.Token
		if token == "" && a.TokenFile != "" {
			t, err := readSecretFile(a.TokenFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read token file: %w", err)
			}
			token = t
		}
		return auth.StaticSource(token), nil
	case "jwt":
		claims := auth.Claims{
			Issuer:       a.JWT.Issuer,
			Subject:      a.JWT.Subject,
			Audience:     a.JWT.Audience,
			DefaultRole:  a.JWT.DefaultRole,
			AllowedRoles: a.JWT.AllowedRoles,
			TTL:          a.JWT.TTL,
			KeyID:        a.JWT.KeyID,
		}
		if a.JWT.PrivateKeyFile == "" {
			if a.JWT.Secret == "" {
				return nil, auth.ErrNoSigningKey
			}
			return auth.MintedHMACSource([]byte(a.JWT.Secret), claims), nil
		}
		key, err := auth.LoadRSAPrivateKey(expandPath(a.JWT.PrivateKeyFile))
		if err != nil {
			return nil, err
		}
		return auth.MintedSource(key, claims), nil
	case "oauth2":
		cc := auth.ClientCredentials{
			TokenURL:     a.OAuth2.TokenURL,
			ClientID:     a.OAuth2.ClientID,
			ClientSecret: a.OAuth2.ClientSecret,
			Scopes:       a.OAuth2.Scopes,
			Audience:     a.OAuth2.Audience,
		}
		return cc.TokenSource(ctx), nil
	}
	return nil, fmt.Errorf("unknown auth mode %q", a.Mode)
}

func readSecretFile(path string) (string, error) {
	if path == "@-" {
		return readStdin()
	}
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
