package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/connections"
	"github.com/TheColorRed/hasura-query-builder/internal/model"
	"github.com/TheColorRed/hasura-query-builder/internal/querycache"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
	"github.com/TheColorRed/hasura-query-builder/internal/testutil/hasuratest"
	"github.com/TheColorRed/hasura-query-builder/internal/transport"
)

var people = []any{
	map[string]any{"id": 1, "first": "Ada", "last": "Lovelace", "age": 36},
	map[string]any{"id": 2, "first": "Grace", "last": "Hopper", "age": 85},
	map[string]any{"id": 3, "first": "Alan", "last": "Turing", "age": 41},
	map[string]any{"id": 4, "first": "Edsger", "last": "Dijkstra", "age": 72},
	map[string]any{"id": 5, "first": "Barbara", "last": "Liskov", "age": 86},
}

func userModel() *model.Model {
	return &model.Model{
		Name:    "User",
		Primary: []string{"id"},
		Fields:  model.Columns("id", "first", "last"),
		Attributes: []result.Attribute{{
			Name: "full_name",
			Compute: func(r result.Row) (any, error) {
				return cast.ToString(r["first"]) + " " + cast.ToString(r["last"]), nil
			},
		}},
	}
}

// page slices people by the limit and offset arguments.
func page(args map[string]any) (any, error) {
	offset := cast.ToInt(args["offset"])
	end := len(people)
	if limit, ok := args["limit"]; ok {
		end = min(offset+cast.ToInt(limit), len(people))
	}
	if offset >= len(people) {
		return []any{}, nil
	}
	return people[offset:end], nil
}

func newClient(t *testing.T, srv *hasuratest.Server, opts ...Option) *Client {
	t.Helper()
	reg, err := connections.NewRegistry(srv.Connection())
	require.NoError(t, err)
	c, err := New(reg, transport.New(transport.Options{}), opts...)
	require.NoError(t, err)
	return c
}

func TestNew_Requirements(t *testing.T) {
	_, err := New(nil, transport.New(transport.Options{}))
	assert.Error(t, err)
	reg, err := connections.NewRegistry(connections.Connection{Name: connections.Default, URL: "http://localhost/v1/graphql"})
	require.NoError(t, err)
	_, err = New(reg, nil)
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users", page)
	c := newClient(t, srv)

	q := userModel().All().Field(func(r result.Row) error {
		r["initial"] = cast.ToString(r["first"])[:1]
		return nil
	})
	rows, err := c.Get(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, len(people))
	assert.Equal(t, "Ada Lovelace", rows[0]["full_name"])
	assert.Equal(t, "A", rows[0]["initial"])
}

func TestFirst(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users", page)
	srv.Handle("users_by_pk", func(args map[string]any) (any, error) {
		for _, p := range people {
			if cast.ToInt(p.(map[string]any)["id"]) == cast.ToInt(args["id"]) {
				return p, nil
			}
		}
		return nil, nil
	})
	c := newClient(t, srv)
	ctx := context.Background()

	t.Run("limits to one row", func(t *testing.T) {
		q := userModel().All()
		row, err := c.First(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, "Ada", row["first"])
		assert.Equal(t, float64(1), srv.LastRequest().Args["users"]["limit"])

		assert.NotContains(t, srv.LastRequest().Args["users"], "offset")
	})

	t.Run("primary key lookup", func(t *testing.T) {
		q, err := userModel().Find(3)
		require.NoError(t, err)
		row, err := c.First(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, "Alan Turing", row["full_name"])
		assert.NotContains(t, srv.LastRequest().Args["users_by_pk"], "limit")
	})

	t.Run("not found", func(t *testing.T) {
		q, err := userModel().Find(99)
		require.NoError(t, err)
		_, err = c.First(ctx, q)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPluckAndValues(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users", page)
	c := newClient(t, srv)
	ctx := context.Background()

	rows, err := c.Pluck(ctx, userModel().All(), "first")
	require.NoError(t, err)
	require.Len(t, rows, len(people))
	assert.Equal(t, result.Row{"first": "Ada"}, rows[0])
	assert.Contains(t, srv.LastRequest().Query, "users{first}")

	values, err := c.Values(ctx, userModel().All().Limit(2), "last")
	require.NoError(t, err)
	assert.Equal(t, []any{"Lovelace", "Hopper"}, values)

	value, err := c.Value(ctx, userModel().All(), "age")
	require.NoError(t, err)
	assert.Equal(t, float64(36), value)
}

func TestCount(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users_aggregate", func(args map[string]any) (any, error) {
		count := len(people)
		if _, filtered := args["where"]; filtered {
			count = 1
		}
		return map[string]any{"aggregate": map[string]any{"count": count}}, nil
	})
	c := newClient(t, srv)
	ctx := context.Background()

	q := userModel().All().Limit(2).Order("id", "asc")
	n, err := c.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, len(people), n)

	last := srv.LastRequest()
	assert.Contains(t, last.Query, "users_aggregate")
	assert.Contains(t, last.Query, "aggregate{count}")
	assert.NotContains(t, last.Args["users_aggregate"], "limit")
	assert.NotContains(t, last.Args["users_aggregate"], "order_by")

	byKey, err := userModel().Find(2)
	require.NoError(t, err)
	n, err = c.Count(ctx, byKey)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t,
		map[string]any{"id": map[string]any{"_eq": float64(2)}},
		srv.LastRequest().Args["users_aggregate"]["where"])

	exists, err := c.Exists(ctx, byKey)
	require.NoError(t, err)
	assert.True(t, exists)
	missing, err := c.DoesntExist(ctx, byKey)
	require.NoError(t, err)
	assert.False(t, missing)
}

func TestAggregates(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users_aggregate", func(map[string]any) (any, error) {
		return map[string]any{"aggregate": map[string]any{
			"max": map[string]any{"age": 86},
			"min": map[string]any{"age": 36},
			"sum": map[string]any{"age": 320},
			"avg": map[string]any{"age": 64.0},
		}}, nil
	})
	c := newClient(t, srv)
	ctx := context.Background()
	q := userModel().All()

	tests := []struct {
		name string
		run  func(context.Context, *model.Query, ...string) (map[string]any, error)
		fn   string
		want float64
	}{
		{"max", c.Max, "max", 86},
		{"min", c.Min, "min", 36},
		{"sum", c.Sum, "sum", 320},
		{"avg", c.Avg, "avg", 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.run(ctx, q, "age")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got["age"])
			assert.Contains(t, srv.LastRequest().Query, "aggregate{"+tt.fn+"{age}}")
		})
	}

	avg, ok, err := c.AggregateFloat(ctx, q, "avg", "age")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 64.0, avg, 0.001)

	_, err = c.Max(ctx, q)
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users", page)
	c := newClient(t, srv)
	ctx := context.Background()

	q := userModel().All().Order("id", "asc")
	var sizes []int
	err := c.Chunk(ctx, q, 2, func(rows []result.Row) error {
		sizes = append(sizes, len(rows))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Len(t, srv.Requests(), 3)
	assert.Equal(t, float64(4), srv.LastRequest().Args["users"]["offset"])

	body, err := q.Build(compiler.Options{})
	require.NoError(t, err)
	assert.NotContains(t, body.Query, "limit", "the base query is never mutated")

	t.Run("stop early", func(t *testing.T) {
		calls := 0
		err := c.Chunk(ctx, q, 2, func([]result.Row) error {
			calls++
			return ErrStop
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("callback error", func(t *testing.T) {
		boom := errors.New("boom")
		err := c.Chunk(ctx, q, 2, func([]result.Row) error { return boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestLazy(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users", page)
	c := newClient(t, srv, WithChunkSize(2))

	var ids []float64
	for row, err := range c.Lazy(context.Background(), userModel().All()) {
		require.NoError(t, err)
		ids = append(ids, row["id"].(float64))
		if len(ids) == 3 {
			break
		}
	}
	assert.Equal(t, []float64{1, 2, 3}, ids)
	assert.Len(t, srv.Requests(), 2)
}

func TestSave(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("insert_users", func(args map[string]any) (any, error) {
		objects := args["objects"].([]any)
		returning := make([]any, len(objects))
		for i, o := range objects {
			row := o.(map[string]any)
			row["id"] = 10 + i
			returning[i] = row
		}
		return map[string]any{"affected_rows": len(objects), "returning": returning}, nil
	})
	srv.Handle("delete_users", func(map[string]any) (any, error) {
		return map[string]any{"affected_rows": 2}, nil
	})
	c := newClient(t, srv)
	ctx := context.Background()

	rows, err := c.Save(ctx, userModel().Insert([]map[string]any{
		{"first": "Ken", "last": "Thompson"},
	}))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(10), rows[0]["id"])
	assert.Equal(t, "Ken Thompson", rows[0]["full_name"])

	n, err := c.Affected(ctx, userModel().Delete().WhereOp("age", "_gt", 80))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = c.Save(ctx, userModel().All())
	assert.Error(t, err)
}

func TestCommit(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("update_users", func(args map[string]any) (any, error) {
		return map[string]any{"affected_rows": 1, "returning": []any{args["_set"]}}, nil
	})
	c := newClient(t, srv)

	first := userModel().Update(map[string]any{"first": "Augusta"}).WhereEq("id", 1)
	second := userModel().Update(map[string]any{"first": "Amazing"}).WhereEq("id", 2)
	out, keys, err := c.Commit(context.Background(), first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"update_users", "update_users2"}, keys)
	assert.Equal(t, "Augusta", out["update_users"][0]["first"])
	assert.Equal(t, "Amazing", out["update_users2"][0]["first"])

	last := srv.LastRequest()
	assert.Contains(t, last.Query, "mutation")
	assert.Contains(t, last.Query, "update_users2:update_users")
	assert.Empty(t, first.Table().Alias(), "committed queries keep their own alias")
}

func TestCommit_MixedConnections(t *testing.T) {
	srv := hasuratest.NewServer(t)
	other := srv.Connection()
	other.Name = "reporting"
	reg, err := connections.NewRegistry(srv.Connection(), other)
	require.NoError(t, err)
	c, err := New(reg, transport.New(transport.Options{}))
	require.NoError(t, err)

	_, _, err = c.Commit(context.Background(),
		userModel().All(),
		userModel().All().Connection("reporting"),
	)
	assert.ErrorIs(t, err, ErrMixedConnections)
	assert.Empty(t, srv.Requests())
}

func TestCache(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users", page)
	c := newClient(t, srv, WithCache(querycache.New(querycache.Config{})))
	ctx := context.Background()

	for range 3 {
		rows, err := c.Get(ctx, userModel().All().Cached())
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", rows[0]["full_name"])
	}
	assert.Len(t, srv.Requests(), 1)

	_, err := c.Get(ctx, userModel().All())
	require.NoError(t, err)
	assert.Len(t, srv.Requests(), 2, "uncached queries always reach the server")
}

func TestRequestOptions(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users", page)
	c := newClient(t, srv)

	_, err := c.Get(context.Background(), userModel().All().Role("auditor").Header("x-trace", "abc"))
	require.NoError(t, err)
	last := srv.LastRequest()
	assert.Equal(t, "auditor", last.Header.Get(connections.HeaderRole))
	assert.Equal(t, "abc", last.Header.Get("x-trace"))
}

func TestWatch(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users_stream", func(args map[string]any) (any, error) {
		return hasuratest.Stream{people[:2], people[2:4], people[4:]}, nil
	})
	c := newClient(t, srv)

	q := userModel().All().Cursor(2, "id", 0)
	var batches []int
	err := c.Watch(context.Background(), q, func(rows []result.Row) error {
		batches = append(batches, len(rows))
		assert.NotEmpty(t, rows[0]["full_name"])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, batches)
	assert.Contains(t, srv.LastRequest().Query, "subscription")

	t.Run("stop", func(t *testing.T) {
		calls := 0
		err := c.Watch(context.Background(), q, func([]result.Row) error {
			calls++
			return ErrStop
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestRaw(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users", page)
	c := newClient(t, srv)
	ctx := context.Background()

	data, err := c.Raw(ctx, &compiler.QueryBody{
		Query:     `query($n:Int){users(limit:$n){id}}`,
		Variables: map[string]any{"n": 2},
	})
	require.NoError(t, err)
	assert.Len(t, data["users"], 2)

	_, err = c.Raw(ctx, &compiler.QueryBody{Query: `query{users{`})
	assert.Error(t, err)
	_, err = c.Raw(ctx, &compiler.QueryBody{Query: `subscription{users{id}}`})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "users.graphql")
	require.NoError(t, os.WriteFile(path, []byte(`query($n:Int){users(limit:$n){id}}`), 0o600))
	data, err = c.RawFile(ctx, path, map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Len(t, data["users"], 1)

	_, err = c.RawFile(ctx, filepath.Join(t.TempDir(), "missing.graphql"), nil)
	assert.Error(t, err)
}

func TestDebugOutput(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users", page)
	var buf bytes.Buffer
	c := newClient(t, srv, WithDebug(&buf))

	_, err := c.Get(context.Background(), userModel().All().Limit(1))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "# default")
	assert.Contains(t, buf.String(), "users(limit:$limit_0)")
	assert.Contains(t, buf.String(), `"limit_0": 1`)
}

func TestGraphQLErrorsSurface(t *testing.T) {
	srv := hasuratest.NewServer(t)
	c := newClient(t, srv)

	_, err := c.Get(context.Background(), userModel().All())
	var gqlErr *transport.GraphQLError
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, "validation-failed", gqlErr.Errors[0].Code())
}

func TestRawFile_URL(t *testing.T) {
	srv := hasuratest.NewServer(t)
	srv.Handle("users", page)
	c := newClient(t, srv)

	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users.graphql" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{users{id}}`))
	}))
	t.Cleanup(docs.Close)

	data, err := c.RawFile(context.Background(), docs.URL+"/users.graphql", nil)
	require.NoError(t, err)
	assert.Len(t, data["users"], len(people))

	_, err = c.RawFile(context.Background(), docs.URL+"/missing.graphql", nil)
	assert.Error(t, err)
}
