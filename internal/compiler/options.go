package compiler

import "github.com/TheColorRed/hasura-query-builder/internal/table"

// Operation selects how root descriptors are rendered.
type Operation string

const (
	OpSelect      Operation = "select"
	OpInsert      Operation = "insert"
	OpUpdate      Operation = "update"
	OpDelete      Operation = "delete"
	OpTransaction Operation = "transaction"
)

// OperationType is the keyword the document starts with.
type OperationType string

const (
	TypeQuery        OperationType = "query"
	TypeMutation     OperationType = "mutation"
	TypeSubscription OperationType = "subscription"
)

// QueryOptions travel with the compiled body to the transport. They are
// never serialized into the request payload.
type QueryOptions struct {
	Cache      bool
	Headers    map[string]string
	Connection string
	Role       string
}

// Options control a single compilation.
type Options struct {
	// Operation defaults to the kind of a single descriptor, or to a
	// transaction when several are given.
	Operation Operation
	// Name is the operation name in the document header.
	Name string
	// Type only matters for selects; mutations always compile to mutation.
	Type OperationType
	// Nested emits the bare field list with no header or wrapper.
	Nested bool
	// Expanded skips whitespace compaction.
	Expanded bool
	// Pretty reprints the document with the GraphQL printer.
	Pretty bool
	// Validate parses the document before returning it.
	Validate bool
	// Table overrides the rendered name and alias of every root.
	Table        table.BuildOptions
	QueryOptions QueryOptions
}

// QueryBody is the wire payload of one GraphQL request.
type QueryBody struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables"`
	Options       QueryOptions   `json:"-"`
	// RootKeys are the response keys of the root fields, one per table in
	// input order.
	RootKeys []string `json:"-"`
}
