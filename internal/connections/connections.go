// Package connections resolves named GraphQL endpoints. A registry is built
// explicitly from configuration and passed to the client; there is no
// process-wide default.
package connections

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Default is the name used when a request does not pick a connection.
const Default = "default"

const (
	HeaderAdminSecret = "x-hasura-admin-secret"
	HeaderRole        = "x-hasura-role"
)

var (
	ErrNoDefault         = errors.New("no default connection configured")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrInvalidURL        = errors.New("invalid connection url")
)

// Connection describes one GraphQL endpoint.
type Connection struct {
	Name string
	// URL is the HTTP(S) GraphQL endpoint.
	URL string
	// WebSocketURL overrides the subscription endpoint. When empty it is
	// derived from URL.
	WebSocketURL string
	Headers      map[string]string
	AdminSecret  string
	// Role is sent as x-hasura-role unless a request sets its own.
	Role    string
	Timeout time.Duration
}

// HTTPURL returns the validated HTTP endpoint.
func (c Connection) HTTPURL() (string, error) {
	u, err := parseEndpoint(c.URL, "http", "https")
	if err != nil {
		return "", fmt.Errorf("connection %q: %w", c.Name, err)
	}
	return u.String(), nil
}

// WebSocketEndpoint returns the subscription endpoint, mapping http to ws
// and https to wss when no explicit URL is set.
func (c Connection) WebSocketEndpoint() (string, error) {
	if c.WebSocketURL != "" {
		u, err := parseEndpoint(c.WebSocketURL, "ws", "wss")
		if err != nil {
			return "", fmt.Errorf("connection %q: %w", c.Name, err)
		}
		return u.String(), nil
	}
	u, err := parseEndpoint(c.URL, "http", "https")
	if err != nil {
		return "", fmt.Errorf("connection %q: %w", c.Name, err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// Origin is the http(s) origin of the endpoint, used by the websocket
// handshake.
func (c Connection) Origin() string {
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		return "http://localhost/"
	}
	return u.Scheme + "://" + u.Host + "/"
}

// RequestHeaders builds the headers sent with every request. role and extra
// override the connection defaults.
func (c Connection) RequestHeaders(role string, extra map[string]string) http.Header {
	h := http.Header{}
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	if c.AdminSecret != "" {
		h.Set(HeaderAdminSecret, c.AdminSecret)
	}
	if role == "" {
		role = c.Role
	}
	if role != "" {
		h.Set(HeaderRole, role)
	}
	for k, v := range extra {
		h.Set(k, v)
	}
	return h
}

func parseEndpoint(raw string, schemes ...string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: scheme %q not in %v", ErrInvalidURL, u.Scheme, schemes)
}

// Registry holds named connections. It is read-only after construction.
type Registry struct {
	conns map[string]Connection
}

// NewRegistry validates conns and requires one named Default.
func NewRegistry(conns ...Connection) (*Registry, error) {
	r := &Registry{conns: make(map[string]Connection, len(conns))}
	for _, c := range conns {
		if c.Name == "" {
			c.Name = Default
		}
		if _, dup := r.conns[c.Name]; dup {
			return nil, fmt.Errorf("duplicate connection %q", c.Name)
		}
		if _, err := c.HTTPURL(); err != nil {
			return nil, err
		}
		if _, err := c.WebSocketEndpoint(); err != nil {
			return nil, err
		}
		r.conns[c.Name] = c
	}
	if _, ok := r.conns[Default]; !ok {
		return nil, ErrNoDefault
	}
	return r, nil
}

// Get returns the named connection. An empty name selects Default.
func (r *Registry) Get(name string) (Connection, error) {
	if name == "" {
		name = Default
	}
	c, ok := r.conns[name]
	if !ok {
		return Connection{}, fmt.Errorf("%w %q", ErrUnknownConnection, name)
	}
	return c, nil
}

// Names lists the registered connection names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
