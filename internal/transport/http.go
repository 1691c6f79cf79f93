package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"

	"github.com/TheColorRed/hasura-query-builder/internal/gqlrequest"
	"github.com/TheColorRed/hasura-query-builder/internal/logging"
	"github.com/TheColorRed/hasura-query-builder/internal/observability"
)

const tracerName = "hasura-query-builder/transport"

// maxErrorBody bounds how much of a failed response ends up in errors.
const maxErrorBody = 4 << 10

// HTTP posts documents as JSON.
type HTTP struct {
	client  *http.Client
	tokens  oauth2.TokenSource
	logger  *logging.Logger
	metrics *observability.ClientMetrics
}

// NewHTTP returns the HTTP half of the Hasura transport.
func NewHTTP(opts Options) *HTTP {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "hasura " + r.Method
				}),
			),
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &HTTP{client: client, tokens: opts.TokenSource, logger: logger, metrics: opts.Metrics}
}

// Do sends req and decodes the response. A response carrying GraphQL
// errors is returned together with a *GraphQLError.
func (t *HTTP) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Body == nil {
		return nil, errors.New("transport: empty request body")
	}
	endpoint, err := req.Connection.HTTPURL()
	if err != nil {
		return nil, err
	}

	meta, analysis := requestMeta(req)
	ctx = gqlrequest.WithMeta(logging.WithRequestIDContext(ctx, meta.RequestID), meta)
	logger := t.logger.WithFields(observability.GraphQLLogFields(ctx, meta)...)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "graphql.request")
	defer span.End()
	if span.IsRecording() {
		span.SetAttributes(observability.GraphQLSpanAttributes(analysis, meta)...)
	}

	if req.Connection.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Connection.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := t.do(ctx, endpoint, req, meta.RequestID)
	duration := time.Since(start)
	t.metrics.RecordRequest(ctx, duration, meta.OperationType, meta.Connection, err)

	level := slog.LevelDebug
	attrs := []any{slog.Duration("duration", duration), slog.Int64("duration_ms", duration.Milliseconds())}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	logger.Log(ctx, level, "graphql request completed", attrs...)
	return resp, err
}

func (t *HTTP) do(ctx context.Context, endpoint string, req Request, requestID string) (*Response, error) {
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header = req.Connection.RequestHeaders(req.Body.Options.Role, req.Body.Options.Headers)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, requestID)
	bearer, err := authorization(t.tokens)
	if err != nil {
		return nil, err
	}
	if bearer != "" {
		httpReq.Header.Set("Authorization", bearer)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.Connection.Name, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var envelope struct {
		Data       map[string]any  `json:"data"`
		Errors     json.RawMessage `json:"errors"`
		Extensions map[string]any  `json:"extensions"`
	}
	if jsonErr := json.Unmarshal(body, &envelope); jsonErr != nil {
		if httpResp.StatusCode >= 300 {
			return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: truncate(body)}
		}
		return nil, fmt.Errorf("failed to decode response: %w", jsonErr)
	}

	resp := &Response{Data: envelope.Data, Errors: decodeErrors(envelope.Errors), Extensions: envelope.Extensions}
	if len(resp.Errors) > 0 {
		return resp, &GraphQLError{Errors: resp.Errors}
	}
	if httpResp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: truncate(body)}
	}
	return resp, nil
}

// requestMeta analyzes the outgoing document. A document the parser
// rejects is still sent so the server reports the error.
func requestMeta(req Request) (gqlrequest.Meta, *gqlrequest.Analysis) {
	analysis, err := gqlrequest.Analyze(req.Body.Query, req.Body.OperationName)
	if err != nil {
		analysis = nil
	}
	meta := gqlrequest.FromAnalysis(analysis)
	if meta.OperationType == "" {
		meta.OperationType = "unknown"
	}
	meta.RequestID = uuid.New().String()
	meta.Connection = req.Connection.Name
	meta.Role = req.Body.Options.Role
	if meta.Role == "" {
		meta.Role = req.Connection.Role
	}
	return meta, analysis
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
