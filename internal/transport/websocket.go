package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/websocket"
	"golang.org/x/oauth2"

	"github.com/TheColorRed/hasura-query-builder/internal/gqlrequest"
	"github.com/TheColorRed/hasura-query-builder/internal/logging"
	"github.com/TheColorRed/hasura-query-builder/internal/observability"
)

// Subprotocol is the legacy Apollo protocol Hasura accepts for
// subscriptions.
const Subprotocol = "graphql-ws"

// graphql-ws message types.
const (
	msgConnectionInit      = "connection_init"
	msgConnectionAck       = "connection_ack"
	msgConnectionError     = "connection_error"
	msgConnectionTerminate = "connection_terminate"
	msgKeepAlive           = "ka"
	msgStart               = "start"
	msgData                = "data"
	msgError               = "error"
	msgComplete            = "complete"
	msgStop                = "stop"
)

// ErrConnectionRejected is returned when the server answers connection_init
// with connection_error.
var ErrConnectionRejected = errors.New("subscription connection rejected")

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebSocket runs subscriptions, one socket per subscription.
type WebSocket struct {
	tokens  oauth2.TokenSource
	logger  *logging.Logger
	metrics *observability.ClientMetrics
	// AckTimeout bounds the wait for connection_ack.
	AckTimeout time.Duration
}

// NewWebSocket returns the subscription half of the Hasura transport.
func NewWebSocket(opts Options) *WebSocket {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &WebSocket{tokens: opts.TokenSource, logger: logger, metrics: opts.Metrics, AckTimeout: 10 * time.Second}
}

// Subscribe starts req and calls handle for every data message. Payloads
// with GraphQL errors end the subscription with a *GraphQLError.
func (t *WebSocket) Subscribe(ctx context.Context, req Request, handle Handler) error {
	if req.Body == nil {
		return errors.New("transport: empty request body")
	}
	endpoint, err := req.Connection.WebSocketEndpoint()
	if err != nil {
		return err
	}

	meta, analysis := requestMeta(req)
	ctx = gqlrequest.WithMeta(logging.WithRequestIDContext(ctx, meta.RequestID), meta)
	logger := t.logger.WithFields(observability.GraphQLLogFields(ctx, meta)...)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "graphql.subscription")
	defer span.End()
	if span.IsRecording() {
		span.SetAttributes(observability.GraphQLSpanAttributes(analysis, meta)...)
	}

	cfg, err := websocket.NewConfig(endpoint, req.Connection.Origin())
	if err != nil {
		return fmt.Errorf("invalid subscription endpoint: %w", err)
	}
	cfg.Protocol = []string{Subprotocol}
	headers := req.Connection.RequestHeaders(req.Body.Options.Role, req.Body.Options.Headers)
	bearer, err := authorization(t.tokens)
	if err != nil {
		return err
	}
	if bearer != "" {
		headers.Set("Authorization", bearer)
	}
	cfg.Header = headers

	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return fmt.Errorf("subscription dial to %s failed: %w", req.Connection.Name, err)
	}
	defer conn.Close()

	t.metrics.SubscriptionOpened(ctx)
	defer t.metrics.SubscriptionClosed(ctx)
	logger.Info("subscription started")

	err = t.run(ctx, conn, headers, req, handle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("subscription ended", slog.String("error", err.Error()))
	} else {
		logger.Info("subscription completed")
	}
	return err
}

func (t *WebSocket) run(ctx context.Context, conn *websocket.Conn, headers map[string][]string, req Request, handle Handler) error {
	flat := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	initPayload, err := json.Marshal(map[string]any{"headers": flat})
	if err != nil {
		return err
	}
	if err := websocket.JSON.Send(conn, wsMessage{Type: msgConnectionInit, Payload: initPayload}); err != nil {
		return fmt.Errorf("connection_init: %w", err)
	}

	if t.AckTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.AckTimeout))
	}
	if err := awaitAck(conn); err != nil {
		return err
	}
	_ = conn.SetReadDeadline(time.Time{})

	id := uuid.New().String()
	startPayload, err := json.Marshal(req.Body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if err := websocket.JSON.Send(conn, wsMessage{ID: id, Type: msgStart, Payload: startPayload}); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	// Closing the socket unblocks Receive when ctx ends first.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = websocket.JSON.Send(conn, wsMessage{ID: id, Type: msgStop})
			_ = websocket.JSON.Send(conn, wsMessage{Type: msgConnectionTerminate})
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var msg wsMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("subscription read: %w", err)
		}
		if msg.ID != "" && msg.ID != id {
			continue
		}
		switch msg.Type {
		case msgKeepAlive:
		case msgData:
			var resp struct {
				Data   map[string]any  `json:"data"`
				Errors json.RawMessage `json:"errors"`
			}
			if err := json.Unmarshal(msg.Payload, &resp); err != nil {
				return fmt.Errorf("failed to decode subscription payload: %w", err)
			}
			if items := decodeErrors(resp.Errors); len(items) > 0 {
				return &GraphQLError{Errors: items}
			}
			if err := handle(&Response{Data: resp.Data}); err != nil {
				_ = websocket.JSON.Send(conn, wsMessage{ID: id, Type: msgStop})
				return err
			}
		case msgError:
			return &GraphQLError{Errors: decodeErrors(msg.Payload)}
		case msgComplete:
			return nil
		case msgConnectionError:
			return fmt.Errorf("%w: %s", ErrConnectionRejected, string(msg.Payload))
		}
	}
}

func awaitAck(conn *websocket.Conn) error {
	for {
		var msg wsMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			return fmt.Errorf("waiting for connection_ack: %w", err)
		}
		switch msg.Type {
		case msgConnectionAck:
			return nil
		case msgKeepAlive:
		case msgConnectionError:
			return fmt.Errorf("%w: %s", ErrConnectionRejected, string(msg.Payload))
		default:
			return fmt.Errorf("unexpected %q before connection_ack", msg.Type)
		}
	}
}
