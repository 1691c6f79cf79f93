package client

import (
	"context"
	"errors"
	"iter"

	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/connections"
	"github.com/TheColorRed/hasura-query-builder/internal/model"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
	"github.com/TheColorRed/hasura-query-builder/internal/transport"
)

// ErrStop ends Chunk or Watch early without reporting an error.
var ErrStop = errors.New("stop iteration")

// Chunk pages through q size rows at a time and calls fn with each page.
// Every page is fetched from a fresh copy of q, so q keeps its own limit and
// offset. Iteration stops after the first short page or when fn returns
// ErrStop.
func (c *Client) Chunk(ctx context.Context, q *model.Query, size int, fn func([]result.Row) error) error {
	if size <= 0 {
		size = c.chunkSize
	}
	for offset := 0; ; offset += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := c.Get(ctx, q.Clone().Limit(size, offset))
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := fn(rows); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		if len(rows) < size {
			return nil
		}
	}
}

// Lazy yields the rows of q one at a time, fetching them in chunks of the
// client's chunk size. A fetch error is yielded once and ends the sequence.
func (c *Client) Lazy(ctx context.Context, q *model.Query) iter.Seq2[result.Row, error] {
	return func(yield func(result.Row, error) bool) {
		err := c.Chunk(ctx, q, c.chunkSize, func(rows []result.Row) error {
			for _, row := range rows {
				if !yield(row, nil) {
					return ErrStop
				}
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

// Watch subscribes to q and calls fn with the rows of every update. Queries
// with a cursor stream through <table>_stream; fn then receives each new
// batch. Returning ErrStop from fn ends the subscription cleanly.
func (c *Client) Watch(ctx context.Context, q *model.Query, fn func([]result.Row) error) error {
	body, err := c.compile(ctx, q, compiler.Options{Operation: compiler.OpSelect, Type: compiler.TypeSubscription})
	if err != nil {
		return err
	}
	conn, err := c.registry.Get(body.Options.Connection)
	if err != nil {
		return err
	}
	c.printDebug(conn.Name, body)
	return c.subscribe(ctx, conn, body, func(resp *transport.Response) error {
		rows, err := result.Rows(resp.Data, body.RootKeys[0])
		if err != nil {
			return err
		}
		rows, err = c.finish(ctx, q, rows)
		if err != nil {
			return err
		}
		return fn(rows)
	})
}

func (c *Client) subscribe(ctx context.Context, conn connections.Connection, body *compiler.QueryBody, handle transport.Handler) error {
	err := c.transport.Subscribe(ctx, transport.Request{Connection: conn, Body: body}, handle)
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}
