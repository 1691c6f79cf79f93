package client

import (
	"context"
	"fmt"

	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/model"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
)

// Get runs q and returns every matching row. Mutating queries return their
// returning rows.
func (c *Client) Get(ctx context.Context, q *model.Query) ([]result.Row, error) {
	if q.Table().Kind().Mutating() {
		return c.Save(ctx, q)
	}
	body, err := c.compile(ctx, q, compiler.Options{})
	if err != nil {
		return nil, err
	}
	return c.rows(ctx, q, body)
}

// First returns the first matching row or ErrNotFound. q itself is left
// untouched.
func (c *Client) First(ctx context.Context, q *model.Query) (result.Row, error) {
	first := q.Clone()
	if _, byKey := first.Table().Clause(clause.KindPrimary); !byKey {
		first.Limit(1)
	}
	rows, err := c.Get(ctx, first)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", q.Table().Name(), ErrNotFound)
	}
	return rows[0], nil
}

// Pluck returns only the given fields of every matching row.
func (c *Client) Pluck(ctx context.Context, q *model.Query, fields ...string) ([]result.Row, error) {
	if len(fields) == 0 {
		return c.Get(ctx, q)
	}
	rows, err := c.Get(ctx, q.Clone().Select(fields...))
	if err != nil {
		return nil, err
	}
	out := make([]result.Row, len(rows))
	for i, row := range rows {
		picked := make(result.Row, len(fields))
		for _, f := range fields {
			if v, ok := row[f]; ok {
				picked[f] = v
			}
		}
		out[i] = picked
	}
	return out, nil
}

// Value returns field of the first matching row.
func (c *Client) Value(ctx context.Context, q *model.Query, field string) (any, error) {
	row, err := c.First(ctx, q.Clone().Select(field))
	if err != nil {
		return nil, err
	}
	return row[field], nil
}

// Values returns field of every matching row.
func (c *Client) Values(ctx context.Context, q *model.Query, field string) ([]any, error) {
	rows, err := c.Get(ctx, q.Clone().Select(field))
	if err != nil {
		return nil, err
	}
	return result.Pluck(rows, field), nil
}

// Exists reports whether any row matches q.
func (c *Client) Exists(ctx context.Context, q *model.Query) (bool, error) {
	n, err := c.Count(ctx, q)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DoesntExist reports whether no row matches q.
func (c *Client) DoesntExist(ctx context.Context, q *model.Query) (bool, error) {
	exists, err := c.Exists(ctx, q)
	return !exists, err
}
