// Package transport sends compiled GraphQL documents to Hasura over HTTP
// and streams subscriptions over the graphql-ws websocket protocol.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/TheColorRed/hasura-query-builder/internal/auth"
	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/connections"
	"github.com/TheColorRed/hasura-query-builder/internal/logging"
	"github.com/TheColorRed/hasura-query-builder/internal/observability"
)

// RequestIDHeader carries the client generated request ID.
const RequestIDHeader = "X-Request-ID"

// Request is one document bound for a connection.
type Request struct {
	Connection connections.Connection
	Body       *compiler.QueryBody
}

// Response is the GraphQL response envelope.
type Response struct {
	Data       map[string]any `json:"data"`
	Errors     []ErrorItem    `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Handler receives every subscription payload. Returning an error ends the
// subscription with that error.
type Handler func(*Response) error

// Transport executes documents. Do serves queries and mutations; Subscribe
// blocks until the server completes the subscription, the handler fails or
// ctx is done.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
	Subscribe(ctx context.Context, req Request, handle Handler) error
}

// ErrorItem is one entry of a GraphQL errors array.
type ErrorItem struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns the Hasura error code from extensions, if any.
func (e ErrorItem) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// GraphQLError is returned when the server answers with an errors array.
// The partial response, if any, is returned alongside it.
type GraphQLError struct {
	Errors []ErrorItem
}

func (e *GraphQLError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, item := range e.Errors {
		msgs[i] = item.Message
		if code := item.Code(); code != "" {
			msgs[i] += " (" + code + ")"
		}
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// StatusError is returned for non-2xx answers that carry no GraphQL errors.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Options configure the Hasura transport.
type Options struct {
	// TokenSource adds an Authorization bearer header when set.
	TokenSource oauth2.TokenSource
	Logger      *logging.Logger
	Metrics     *observability.ClientMetrics
	// HTTPClient defaults to an otelhttp instrumented client.
	HTTPClient *http.Client
}

// Hasura implements Transport with HTTP for queries and mutations and
// graphql-ws for subscriptions.
type Hasura struct {
	*HTTP
	*WebSocket
}

// New returns a transport that speaks to Hasura.
func New(opts Options) *Hasura {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Hasura{
		HTTP:      NewHTTP(opts),
		WebSocket: NewWebSocket(opts),
	}
}

var _ Transport = (*Hasura)(nil)

func decodeErrors(raw json.RawMessage) []ErrorItem {
	if len(raw) == 0 {
		return nil
	}
	var items []ErrorItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return items
	}
	var item ErrorItem
	if err := json.Unmarshal(raw, &item); err == nil && item.Message != "" {
		return []ErrorItem{item}
	}
	return []ErrorItem{{Message: strings.TrimSpace(string(raw))}}
}

func authorization(src oauth2.TokenSource) (string, error) {
	if src == nil {
		return "", nil
	}
	header, err := auth.BearerHeader(src)
	if err != nil {
		return "", fmt.Errorf("failed to obtain bearer token: %w", err)
	}
	return header, nil
}
