package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/TheColorRed/hasura-query-builder/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) errorf(field, hint, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

func (r *ValidationResult) warnf(field, hint, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Hasura.validate("hasura", result)

	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		field := "connections." + name
		if name == "default" {
			result.errorf(field, "configure the default endpoint under hasura", "connection name %q is reserved", name)
			continue
		}
		conn := c.Connections[name]
		conn.validate(field, result)
	}

	c.Client.validate(result)
	c.Cache.validate(result)
	c.Auth.validate(result)
	if c.Auth.Mode != "" && c.Hasura.AdminSecret != "" {
		result.warnf("auth.mode", "drop hasura.admin_secret to run with the token's role",
			"admin secret and bearer token are both set; Hasura authorizes the admin secret first")
	}
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)

	return result
}

func (cc *ConnectionConfig) validate(prefix string, result *ValidationResult) {
	u, ok := validHTTPURL(cc.URL)
	if !ok {
		result.errorf(prefix+".url", "use a full URL such as http://localhost:8080/v1/graphql", "invalid GraphQL endpoint %q", cc.URL)
	}
	if cc.WebSocketURL != "" {
		ws, err := url.Parse(cc.WebSocketURL)
		if err != nil || (ws.Scheme != "ws" && ws.Scheme != "wss") || ws.Host == "" {
			result.errorf(prefix+".ws_url", "valid schemes are: ws, wss", "invalid subscription endpoint %q", cc.WebSocketURL)
		}
	}
	if cc.Timeout < 0 {
		result.errorf(prefix+".timeout", "", "timeout cannot be negative")
	}
	if cc.AdminSecret != "" && cc.AdminSecretFile != "" {
		result.errorf(prefix+".admin_secret_file", "set only one of admin_secret or admin_secret_file",
			"admin_secret and admin_secret_file are mutually exclusive")
	}
	hasSecret := cc.AdminSecret != "" || cc.AdminSecretFile != "" || cc.AdminSecretPrompt
	if ok && hasSecret && u.Scheme == "http" && !isLocalHost(u.Hostname()) {
		result.warnf(prefix+".url", "use https for remote endpoints", "admin secret will be sent in clear text to %s", u.Host)
	}
	for key := range cc.Headers {
		if strings.TrimSpace(key) == "" {
			result.errorf(prefix+".headers", "", "header name cannot be empty")
		}
	}
}

func (c *ClientConfig) validate(result *ValidationResult) {
	if c.ChunkSize <= 0 {
		result.errorf("client.chunk_size", "", "chunk_size must be greater than 0")
	}
	if c.PageSize <= 0 {
		result.errorf("client.page_size", "", "page_size must be greater than 0")
	}
}

func (c *CacheConfig) validate(result *ValidationResult) {
	if !c.Enabled {
		return
	}
	if c.TTL <= 0 {
		result.errorf("cache.ttl", "", "ttl must be greater than 0 when the cache is enabled")
	}
	if c.MaxEntries <= 0 {
		result.errorf("cache.max_entries", "", "max_entries must be greater than 0 when the cache is enabled")
	}
}

func (a *AuthConfig) validate(result *ValidationResult) {
	switch strings.ToLower(a.Mode) {
	case "":
		if a.Token != "" || a.TokenFile != "" {
			result.warnf("auth.mode", "set auth.mode to token", "a token is configured but auth.mode is empty")
		}
	case "token":
		if a.Token == "" && a.TokenFile == "" {
			result.errorf("auth.token", "", "token or token_file is required when auth.mode is token")
		}
		if a.Token != "" && a.TokenFile != "" {
			result.errorf("auth.token_file", "", "token and token_file are mutually exclusive")
		}
	case "jwt":
		j := a.JWT
		if j.PrivateKeyFile == "" && j.Secret == "" {
			result.errorf("auth.jwt", "", "private_key_file or secret is required when auth.mode is jwt")
		}
		if j.PrivateKeyFile != "" && j.Secret != "" {
			result.errorf("auth.jwt.secret", "", "private_key_file and secret are mutually exclusive")
		}
		if j.Secret != "" && len(j.Secret) < 32 {
			result.errorf("auth.jwt.secret", "Hasura rejects HS256 keys shorter than 32 bytes", "secret is too short")
		}
		if j.DefaultRole == "" {
			result.errorf("auth.jwt.default_role", "", "default_role is required when auth.mode is jwt")
		} else if len(j.AllowedRoles) > 0 && !contains(j.AllowedRoles, j.DefaultRole) {
			result.errorf("auth.jwt.allowed_roles", "", "allowed_roles must include default role %q", j.DefaultRole)
		}
		if j.TTL <= 0 {
			result.errorf("auth.jwt.ttl", "", "ttl must be greater than 0")
		}
	case "oauth2":
		o := a.OAuth2
		if _, ok := validHTTPURL(o.TokenURL); !ok {
			result.errorf("auth.oauth2.token_url", "", "invalid token endpoint %q", o.TokenURL)
		}
		if o.ClientID == "" {
			result.errorf("auth.oauth2.client_id", "", "client_id is required when auth.mode is oauth2")
		}
	default:
		result.errorf("auth.mode", "valid values are: token, jwt, oauth2", "invalid auth mode %q", a.Mode)
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.errorf("observability.logging.level", "valid values are: debug, info, warn, error", "invalid log level %q", o.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.errorf("observability.logging.format", "valid values are: json, text", "invalid log format %q", o.Logging.Format)
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.errorf("observability.trace_sample_ratio", "", "trace_sample_ratio must be between 0.0 and 1.0")
	}

	if o.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(o.MetricsAddr); err != nil {
			result.errorf("observability.metrics_addr", "use host:port or :port", "invalid metrics address %q", o.MetricsAddr)
		}
		if !o.MetricsEnabled {
			result.warnf("observability.metrics_addr", "enable observability.metrics_enabled", "metrics_addr is set but metrics are disabled")
		}
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.errorf(prefix+".protocol", "valid values are: grpc, http/protobuf", "invalid OTLP protocol %q", o.Protocol)
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.errorf(prefix+".endpoint", "use host:port or a full URL", "invalid OTLP endpoint %q for http/protobuf", o.Endpoint)
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.errorf(prefix+".compression", "valid values are: none, gzip", "invalid OTLP compression %q", o.Compression)
	}

	if o.RetryMaxAttempts < 0 {
		result.errorf(prefix+".retry_max_attempts", "", "retry_max_attempts cannot be negative")
	}
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	const field = "naming.plural_overrides"
	for from, to := range cfg.PluralOverrides {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			result.errorf(field, "", "override %q -> %q cannot have an empty side", from, to)
			continue
		}
		if err := naming.ValidateName(to); err != nil {
			result.errorf(field, "", "override for %q: %v", from, err)
		}
	}
}

func validHTTPURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, u.Scheme == "http" || u.Scheme == "https"
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

func isLocalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
