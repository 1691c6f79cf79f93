package client

import (
	"context"
	"fmt"

	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/model"
	"github.com/TheColorRed/hasura-query-builder/internal/naming"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
	"github.com/TheColorRed/hasura-query-builder/internal/table"
)

// Save runs an insert, update or delete and returns the returning rows.
func (c *Client) Save(ctx context.Context, q *model.Query) ([]result.Row, error) {
	if !q.Table().Kind().Mutating() {
		return nil, fmt.Errorf("%s: save needs an insert, update or delete", q.Table().Name())
	}
	body, err := c.compile(ctx, q, compiler.Options{})
	if err != nil {
		return nil, err
	}
	data, err := c.execute(ctx, body)
	if err != nil {
		return nil, err
	}
	rows, err := result.Returning(data, body.RootKeys[0])
	if err != nil {
		return nil, err
	}
	return c.finish(ctx, q, rows)
}

// Affected runs a mutation and returns affected_rows.
func (c *Client) Affected(ctx context.Context, q *model.Query) (int, error) {
	if !q.Table().Kind().Mutating() {
		return 0, fmt.Errorf("%s: affected rows need an insert, update or delete", q.Table().Name())
	}
	body, err := c.compile(ctx, q, compiler.Options{})
	if err != nil {
		return 0, err
	}
	data, err := c.execute(ctx, body)
	if err != nil {
		return 0, err
	}
	return result.AffectedRows(data, body.RootKeys[0])
}

// Commit sends queries as one operation: several mutations run in a single
// database transaction, several selects in one round trip. Roots that would
// share a response key are aliased key2, key3 and so on. The result maps
// each response key to its rows, in the order the keys were assigned.
func (c *Client) Commit(ctx context.Context, queries ...*model.Query) (map[string][]result.Row, []string, error) {
	if len(queries) == 0 {
		return nil, nil, &compiler.ConfigError{Err: compiler.ErrNoTables}
	}
	conn, err := c.registry.Get(queries[0].Table().ConnectionName())
	if err != nil {
		return nil, nil, err
	}
	tables := make([]*table.Table, len(queries))
	for i, q := range queries {
		other, err := c.registry.Get(q.Table().ConnectionName())
		if err != nil {
			return nil, nil, err
		}
		if other.Name != conn.Name {
			return nil, nil, fmt.Errorf("%w: %s and %s", ErrMixedConnections, conn.Name, other.Name)
		}
		tables[i] = q.Table().Clone()
	}

	opts := compiler.Options{Operation: compiler.OpTransaction, QueryOptions: queries[0].Options()}
	body, err := c.compileTables(ctx, tables, opts)
	if err != nil {
		return nil, nil, err
	}
	if realiased := dedupeKeys(c, tables, body.RootKeys); realiased {
		if body, err = c.compileTables(ctx, tables, opts); err != nil {
			return nil, nil, err
		}
	}

	data, err := c.execute(ctx, body)
	if err != nil {
		return nil, nil, err
	}
	out := make(map[string][]result.Row, len(tables))
	for i, key := range body.RootKeys {
		var rows []result.Row
		if tables[i].Kind().Mutating() {
			rows, err = result.Returning(data, key)
		} else {
			rows, err = result.Rows(data, key)
		}
		if err != nil {
			return nil, nil, err
		}
		if rows, err = c.finish(ctx, queries[i], rows); err != nil {
			return nil, nil, err
		}
		out[key] = rows
	}
	return out, body.RootKeys, nil
}

// dedupeKeys aliases every root whose response key was already claimed by
// an earlier root and reports whether any alias changed.
func dedupeKeys(c *Client, tables []*table.Table, keys []string) bool {
	resolver := naming.NewAliasResolver(c.logger.Logger)
	changed := false
	for i, key := range keys {
		alias := resolver.Register(key, tables[i].Name())
		if alias == key {
			continue
		}
		changed = true
		if opts := tables[i].BuildOptions(); opts.Alias != "" {
			opts.Alias = alias
			tables[i].SetBuildOptions(opts)
			continue
		}
		tables[i].As(alias)
	}
	return changed
}
