// Package client runs model queries against Hasura: it compiles them,
// resolves the target connection, consults the response cache and reshapes
// the answer into rows.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"

	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/connections"
	"github.com/TheColorRed/hasura-query-builder/internal/logging"
	"github.com/TheColorRed/hasura-query-builder/internal/model"
	"github.com/TheColorRed/hasura-query-builder/internal/observability"
	"github.com/TheColorRed/hasura-query-builder/internal/querycache"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
	"github.com/TheColorRed/hasura-query-builder/internal/table"
	"github.com/TheColorRed/hasura-query-builder/internal/transport"
)

// DefaultChunkSize is used by Chunk and Lazy when no size is given.
const DefaultChunkSize = 100

var (
	// ErrNotFound is returned by First and Value when no row matches.
	ErrNotFound = errors.New("no matching row")
	// ErrMixedConnections is returned by Commit when queries target
	// different connections.
	ErrMixedConnections = errors.New("transaction queries target different connections")
)

// Client executes queries. It is safe for concurrent use as long as each
// goroutine works on its own queries.
type Client struct {
	registry  *connections.Registry
	transport transport.Transport
	cache     *querycache.Cache
	logger    *logging.Logger
	metrics   *observability.ClientMetrics
	debug     io.Writer
	validate  bool
	chunkSize int
}

// Option configures a Client.
type Option func(*Client)

// WithCache answers queries marked Cached from c.
func WithCache(c *querycache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

func WithLogger(l *logging.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func WithMetrics(m *observability.ClientMetrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithDebug prints every compiled document and its variables to w.
func WithDebug(w io.Writer) Option {
	return func(cl *Client) { cl.debug = w }
}

// WithValidation parses every compiled document before it is sent.
func WithValidation(on bool) Option {
	return func(cl *Client) { cl.validate = on }
}

func WithChunkSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.chunkSize = n
		}
	}
}

// New returns a client sending requests through tr to the connections in
// registry.
func New(registry *connections.Registry, tr transport.Transport, opts ...Option) (*Client, error) {
	if registry == nil {
		return nil, errors.New("client: connection registry is required")
	}
	if tr == nil {
		return nil, errors.New("client: transport is required")
	}
	c := &Client{
		registry:  registry,
		transport: tr,
		logger:    logging.Discard(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Registry returns the client's connections.
func (c *Client) Registry() *connections.Registry { return c.registry }

// compile builds q and records how long it took.
func (c *Client) compile(ctx context.Context, q *model.Query, opts compiler.Options) (*compiler.QueryBody, error) {
	opts.Validate = opts.Validate || c.validate
	start := time.Now()
	body, err := q.Build(opts)
	c.recordCompile(ctx, start, opts.Operation, q.Table(), err)
	return body, err
}

// compileTables builds descriptors that are not bound to a single query.
func (c *Client) compileTables(ctx context.Context, tables []*table.Table, opts compiler.Options) (*compiler.QueryBody, error) {
	opts.Validate = opts.Validate || c.validate
	start := time.Now()
	body, err := compiler.Compile(tables, opts)
	var first *table.Table
	if len(tables) > 0 {
		first = tables[0]
	}
	c.recordCompile(ctx, start, opts.Operation, first, err)
	return body, err
}

func (c *Client) recordCompile(ctx context.Context, start time.Time, op compiler.Operation, t *table.Table, err error) {
	operation := string(op)
	if operation == "" && t != nil {
		operation = string(t.Kind())
	}
	c.metrics.RecordCompile(ctx, time.Since(start), operation, err)
	if err != nil {
		c.logger.Debug("compile failed", slog.String("operation", operation), slog.String("error", err.Error()))
	}
}

// execute sends body and returns the data object.
func (c *Client) execute(ctx context.Context, body *compiler.QueryBody) (map[string]any, error) {
	conn, err := c.registry.Get(body.Options.Connection)
	if err != nil {
		return nil, err
	}
	c.printDebug(conn.Name, body)

	var cacheKey string
	if body.Options.Cache && c.cache != nil {
		cacheKey, err = querycache.Key(body.Query, body.OperationName, body.Variables)
		if err != nil {
			return nil, err
		}
		cached, hit := c.cache.Get(cacheKey)
		c.metrics.RecordCacheLookup(ctx, hit)
		if hit {
			c.logger.Debug("query cache hit", slog.String("connection", conn.Name))
			return clause.DeepCopy(cached).(map[string]any), nil
		}
	}

	resp, err := c.transport.Do(ctx, transport.Request{Connection: conn, Body: body})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.New("response carried no data")
	}
	if cacheKey != "" {
		c.cache.Set(cacheKey, clause.DeepCopy(resp.Data))
	}
	return resp.Data, nil
}

// rows executes body and reshapes its first root.
func (c *Client) rows(ctx context.Context, q *model.Query, body *compiler.QueryBody) ([]result.Row, error) {
	data, err := c.execute(ctx, body)
	if err != nil {
		return nil, err
	}
	rows, err := result.Rows(data, body.RootKeys[0])
	if err != nil {
		return nil, err
	}
	return c.finish(ctx, q, rows)
}

// finish runs the row callbacks and computed attributes of q.
func (c *Client) finish(ctx context.Context, q *model.Query, rows []result.Row) ([]result.Row, error) {
	if err := result.Apply(rows, q.Table().RowFuncs(), q.Attributes()); err != nil {
		return nil, err
	}
	c.metrics.RecordRows(ctx, len(rows), q.Table().Name())
	return rows, nil
}

func (c *Client) printDebug(connection string, body *compiler.QueryBody) {
	if c.debug == nil {
		return
	}
	header := color.New(color.FgHiBlack)
	header.Fprintf(c.debug, "# %s\n", connection)
	color.New(color.FgCyan).Fprintln(c.debug, body.Query)
	if len(body.Variables) == 0 {
		return
	}
	vars, err := json.MarshalIndent(body.Variables, "", "  ")
	if err != nil {
		fmt.Fprintf(c.debug, "variables: %v\n", err)
		return
	}
	color.New(color.FgYellow).Fprintln(c.debug, string(vars))
}
