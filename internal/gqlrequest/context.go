package gqlrequest

import "context"

type metaContextKey struct{}

// Meta describes the request in flight for logging and metrics.
type Meta struct {
	RequestID     string
	Connection    string
	Role          string
	OperationName string
	OperationType string
	OperationHash string
}

// FromAnalysis copies the operation fields of a.
func FromAnalysis(a *Analysis) Meta {
	if a == nil {
		return Meta{}
	}
	return Meta{
		OperationName: a.OperationName,
		OperationType: a.OperationType,
		OperationHash: a.OperationHash,
	}
}

// WithMeta stores request metadata in context.
func WithMeta(ctx context.Context, meta Meta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, metaContextKey{}, meta)
}

// MetaFromContext retrieves request metadata from context.
func MetaFromContext(ctx context.Context) (Meta, bool) {
	if ctx == nil {
		return Meta{}, false
	}
	meta, ok := ctx.Value(metaContextKey{}).(Meta)
	return meta, ok
}
