package model

import (
	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
	"github.com/TheColorRed/hasura-query-builder/internal/table"
)

// Query is a model bound descriptor built by chained calls.
type Query struct {
	model   *Model
	table   *table.Table
	options compiler.QueryOptions
}

// Model returns the model the query was started from.
func (q *Query) Model() *Model { return q.model }

// Table returns the underlying descriptor. Changes to it affect the query.
func (q *Query) Table() *table.Table { return q.table }

// Attributes are the model's computed fields.
func (q *Query) Attributes() []result.Attribute {
	return append([]result.Attribute(nil), q.model.Attributes...)
}

// Select picks fields explicitly; the model defaults are no longer used.
func (q *Query) Select(fields ...string) *Query {
	q.table.Select(fields...)
	return q
}

// AddSelect adds fields on top of the model defaults.
func (q *Query) AddSelect(fields ...string) error {
	if !q.table.HasSelection() {
		defaults, err := q.model.DefaultSelection()
		if err != nil {
			return err
		}
		q.table.SelectAll(defaults...)
	}
	q.table.Select(fields...)
	return nil
}

// SelectNested adds relations to the selection.
func (q *Query) SelectNested(tables ...*table.Table) *Query {
	q.table.SelectNested(tables...)
	return q
}

func (q *Query) Where(f clause.Filter) *Query {
	q.table.Where(f)
	return q
}

func (q *Query) WhereEq(field string, value any) *Query {
	q.table.WhereEq(field, value)
	return q
}

func (q *Query) WhereOp(field, op string, value any) *Query {
	q.table.WhereOp(field, op, value)
	return q
}

// WhereTruthy requires each field to be present.
func (q *Query) WhereTruthy(fields ...string) *Query {
	for _, f := range fields {
		q.table.WhereTruthy(f)
	}
	return q
}

// WhereFalsy requires each field to be absent.
func (q *Query) WhereFalsy(fields ...string) *Query {
	for _, f := range fields {
		q.table.WhereFalsy(f)
	}
	return q
}

func (q *Query) Or(fn func(*table.Table)) *Query {
	q.table.Or(fn)
	return q
}

func (q *Query) And(fn func(*table.Table)) *Query {
	q.table.And(fn)
	return q
}

// Order sorts by one column.
func (q *Query) Order(field string, dir clause.Direction) *Query {
	q.table.Order(clause.SortFields{field: dir})
	return q
}

// OrderBy sorts by each entry in turn.
func (q *Query) OrderBy(fields ...clause.SortFields) *Query {
	q.table.OrderBy(fields...)
	return q
}

func (q *Query) Distinct(fields ...string) *Query {
	q.table.Distinct(fields...)
	return q
}

func (q *Query) Limit(limit int, offset ...int) *Query {
	q.table.Limit(limit, offset...)
	return q
}

func (q *Query) Offset(n int) *Query {
	q.table.Offset(n)
	return q
}

func (q *Query) As(alias string) *Query {
	q.table.As(alias)
	return q
}

func (q *Query) Connection(name string) *Query {
	q.table.Connection(name)
	return q
}

// Field registers a callback run on every returned row.
func (q *Query) Field(fn result.FieldFunc) *Query {
	q.table.Field(fn)
	return q
}

// Cursor streams rows after value of field in batches of size.
func (q *Query) Cursor(size int, field string, value any, ordering ...clause.CursorOrdering) *Query {
	q.table.Cursor(size, field, value, ordering...)
	return q
}

// Increment adds to numeric columns on update.
func (q *Query) Increment(values map[string]any) *Query {
	q.table.Increment(values)
	return q
}

// Role sends the request as role.
func (q *Query) Role(role string) *Query {
	q.options.Role = role
	return q
}

// Cached lets the client answer the query from its response cache.
func (q *Query) Cached() *Query {
	q.options.Cache = true
	return q
}

// Header adds a request header.
func (q *Query) Header(key, value string) *Query {
	if q.options.Headers == nil {
		q.options.Headers = map[string]string{}
	}
	q.options.Headers[key] = value
	return q
}

// Options returns the request options set on the query.
func (q *Query) Options() compiler.QueryOptions {
	opts := q.options
	opts.Connection = q.table.ConnectionName()
	if len(q.options.Headers) > 0 {
		opts.Headers = make(map[string]string, len(q.options.Headers))
		for k, v := range q.options.Headers {
			opts.Headers[k] = v
		}
	}
	return opts
}

// Clone returns an independent query on the same model.
func (q *Query) Clone() *Query {
	c := &Query{model: q.model, table: q.table.Clone(), options: q.options}
	c.options.Headers = nil
	for k, v := range q.options.Headers {
		c.Header(k, v)
	}
	return c
}

// Build compiles the query on its own. The operation follows the
// descriptor kind unless opts sets one.
func (q *Query) Build(opts compiler.Options) (*compiler.QueryBody, error) {
	if opts.Operation == "" {
		opts.Operation = compiler.Operation(q.table.Kind())
	}
	own := q.Options()
	if opts.QueryOptions.Connection == "" {
		opts.QueryOptions.Connection = own.Connection
	}
	if opts.QueryOptions.Role == "" {
		opts.QueryOptions.Role = own.Role
	}
	opts.QueryOptions.Cache = opts.QueryOptions.Cache || own.Cache
	if opts.QueryOptions.Headers == nil {
		opts.QueryOptions.Headers = own.Headers
	}
	return compiler.Compile([]*table.Table{q.table}, opts)
}
