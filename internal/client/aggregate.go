package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/model"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
	"github.com/TheColorRed/hasura-query-builder/internal/table"
)

// AggregateSuffix is appended to a table name to reach its aggregate root.
const AggregateSuffix = "_aggregate"

// aggregateTable turns a copy of q into <table>_aggregate selecting
// aggregate{selection}. Paging and streaming clauses are dropped; a primary
// key becomes equality filters since _aggregate roots take no pk arguments.
func aggregateTable(q *model.Query, selection string) *table.Table {
	src := q.Table()
	t := src.Clone(src.Name() + AggregateSuffix)
	if alias := src.Alias(); alias != "" {
		t.As(alias + AggregateSuffix)
	}
	t.SetKind(table.KindSelect).SetBuildOptions(table.BuildOptions{})
	t.Without(
		clause.KindLimit, clause.KindOffset, clause.KindOrder,
		clause.KindCursor, clause.KindBatchSize,
		clause.KindInsert, clause.KindSet, clause.KindIncrement, clause.KindConflict,
	)
	if pk, ok := src.Clause(clause.KindPrimary); ok {
		t.Without(clause.KindPrimary)
		for _, kv := range pk.(*clause.Primary).Keys() {
			t.WhereEq(kv.Column, kv.Value)
		}
	}
	t.ClearSelect().Select("aggregate{" + selection + "}")
	return t
}

func (c *Client) aggregate(ctx context.Context, q *model.Query, selection string) (map[string]any, string, error) {
	t := aggregateTable(q, selection)
	body, err := c.compileTables(ctx, []*table.Table{t}, compiler.Options{
		Operation:    compiler.OpSelect,
		QueryOptions: q.Options(),
	})
	if err != nil {
		return nil, "", err
	}
	data, err := c.execute(ctx, body)
	if err != nil {
		return nil, "", err
	}
	return data, body.RootKeys[0], nil
}

// Count returns the number of rows matching q.
func (c *Client) Count(ctx context.Context, q *model.Query) (int, error) {
	data, key, err := c.aggregate(ctx, q, "count")
	if err != nil {
		return 0, err
	}
	return result.Count(data, key)
}

// Max returns the largest value of each field as returned by the server.
func (c *Client) Max(ctx context.Context, q *model.Query, fields ...string) (map[string]any, error) {
	return c.aggregateFn(ctx, q, "max", fields)
}

// Min returns the smallest value of each field.
func (c *Client) Min(ctx context.Context, q *model.Query, fields ...string) (map[string]any, error) {
	return c.aggregateFn(ctx, q, "min", fields)
}

// Sum returns the total of each numeric field.
func (c *Client) Sum(ctx context.Context, q *model.Query, fields ...string) (map[string]any, error) {
	return c.aggregateFn(ctx, q, "sum", fields)
}

// Avg returns the mean of each numeric field.
func (c *Client) Avg(ctx context.Context, q *model.Query, fields ...string) (map[string]any, error) {
	return c.aggregateFn(ctx, q, "avg", fields)
}

// AggregateFloat runs fn over a single numeric field. ok is false when no
// row matched.
func (c *Client) AggregateFloat(ctx context.Context, q *model.Query, fn, field string) (value float64, ok bool, err error) {
	data, key, err := c.aggregate(ctx, q, fn+"{"+field+"}")
	if err != nil {
		return 0, false, err
	}
	return result.AggregateValue(data, key, fn, field)
}

func (c *Client) aggregateFn(ctx context.Context, q *model.Query, fn string, fields []string) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: at least one field is required", fn)
	}
	data, key, err := c.aggregate(ctx, q, fn+"{"+strings.Join(fields, " ")+"}")
	if err != nil {
		return nil, err
	}
	obj, _ := data[key].(map[string]any)
	agg, _ := obj["aggregate"].(map[string]any)
	values, ok := agg[fn].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w %q", result.ErrMissingField, key+".aggregate."+fn)
	}
	return values, nil
}
