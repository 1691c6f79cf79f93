package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/gqlrequest"
)

// maxDocumentSize bounds documents fetched over http.
const maxDocumentSize = 1 << 20

// Raw sends a hand-written document and returns its data object. The
// document is parsed first so syntax errors never reach the server.
func (c *Client) Raw(ctx context.Context, body *compiler.QueryBody) (map[string]any, error) {
	if body == nil || body.Query == "" {
		return nil, fmt.Errorf("raw: empty document")
	}
	analysis, err := gqlrequest.Analyze(body.Query, body.OperationName)
	if err != nil {
		return nil, fmt.Errorf("raw: %w", err)
	}
	if analysis.OperationType == string(compiler.TypeSubscription) {
		return nil, fmt.Errorf("raw: subscriptions need Watch")
	}
	if body.Variables == nil {
		body.Variables = map[string]any{}
	}
	return c.execute(ctx, body)
}

// RawFile reads a document from path and sends it with vars. path is
// either an http(s) URL or a file; a leading ~ is expanded.
func (c *Client) RawFile(ctx context.Context, path string, vars map[string]any, opts ...compiler.QueryOptions) (map[string]any, error) {
	doc, err := c.readDocument(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("raw: %w", err)
	}
	body := &compiler.QueryBody{Query: string(doc), Variables: vars}
	if len(opts) > 0 {
		body.Options = opts[0]
	}
	return c.Raw(ctx, body)
}

func (c *Client) readDocument(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(expanded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: %s", path, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}
