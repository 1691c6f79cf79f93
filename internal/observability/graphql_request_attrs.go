package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TheColorRed/hasura-query-builder/internal/gqlrequest"
)

// GraphQLSpanAttributes builds span attributes for an outgoing request.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis, meta gqlrequest.Meta) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 10)

	if analysis != nil {
		if analysis.OperationName != "" {
			attrs = append(attrs, attribute.String("graphql.operation.name", analysis.OperationName))
		}
		if analysis.OperationType != "" {
			attrs = append(attrs, attribute.String("graphql.operation.type", analysis.OperationType))
		}
		if analysis.OperationHash != "" {
			attrs = append(attrs, attribute.String("graphql.operation.hash", analysis.OperationHash))
		}
		if len(analysis.RootFields) > 0 {
			attrs = append(attrs, attribute.StringSlice("graphql.root_fields", analysis.RootFields))
		}
		if analysis.Operation != nil {
			attrs = append(attrs,
				attribute.Int("graphql.query.field_count", analysis.FieldCount),
				attribute.Int("graphql.query.depth", analysis.SelectionDepth),
				attribute.Int("graphql.query.variable_count", analysis.VariableCount),
			)
		}
	}

	if meta.Connection != "" {
		attrs = append(attrs, attribute.String("hasura.connection", meta.Connection))
	}
	if meta.Role != "" {
		attrs = append(attrs, attribute.String("hasura.role", meta.Role))
	}
	return attrs
}

// GraphQLLogFields builds structured log fields for an outgoing request.
func GraphQLLogFields(ctx context.Context, meta gqlrequest.Meta) []any {
	fields := make([]any, 0, 8)

	if meta.RequestID != "" {
		fields = append(fields, slog.String("request_id", meta.RequestID))
	}
	if meta.OperationName != "" {
		fields = append(fields, slog.String("operation_name", meta.OperationName))
	}
	if meta.OperationType != "" {
		fields = append(fields, slog.String("operation_type", meta.OperationType))
	}
	if meta.OperationHash != "" {
		fields = append(fields, slog.String("operation_hash", meta.OperationHash))
	}
	if meta.Connection != "" {
		fields = append(fields, slog.String("connection", meta.Connection))
	}
	if meta.Role != "" {
		fields = append(fields, slog.String("role", meta.Role))
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
