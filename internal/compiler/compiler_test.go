package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/table"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCompile_Golden(t *testing.T) {
	tests := []struct {
		name   string
		tables func() []*table.Table
		opts   Options
		vars   map[string]any
	}{
		{
			name: "select_basic",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users").Select("id", "name")}
			},
			opts: Options{Name: "GetUsers"},
			vars: map[string]any{},
		},
		{
			name: "select_clauses",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users").
					Select("id", "first").
					WhereEq("first", "Billy").
					WhereOp("age", "_gt", 18).
					Limit(10, 5).
					Order(clause.SortFields{"first": clause.Asc}).
					Distinct("first")}
			},
			opts: Options{Name: "GetUsers"},
			vars: map[string]any{
				"where_0": map[string]any{
					"first": map[string]any{"_eq": "Billy"},
					"age":   map[string]any{"_gt": 18},
				},
				"limit_0":       10,
				"offset_0":      5,
				"order_by_0":    map[string]any{"first": "asc"},
				"distinct_on_0": []string{"first"},
			},
		},
		{
			name: "select_by_pk",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users").
					Select("id", "first").
					WhereEq("first", "ignored").
					PrimaryKey("id", 5)}
			},
			vars: map[string]any{"primary_0_0": 5},
		},
		{
			name: "insert",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users").Select("id").Insert(map[string]any{"first": "John"})}
			},
			vars: map[string]any{"insert_object_0": []any{map[string]any{"first": "John"}}},
		},
		{
			name: "upsert_aliased",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users", "u").
					Select("id").
					Insert(map[string]any{"id": 1, "first": "John"}).
					OnConflict("users_pkey", []string{"first"}, nil)}
			},
			opts: Options{Name: "UpsertUser"},
			vars: map[string]any{
				"insert_object_0": []any{map[string]any{"id": 1, "first": "John"}},
				"on_conflict_0": map[string]any{
					"update_columns": []string{"first"},
					"constraint":     "users_pkey",
				},
			},
		},
		{
			name: "update_where",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users").
					WhereEq("id", 1).
					Update(map[string]any{"first": "Jane"}).
					Increment(map[string]any{"logins": 1})}
			},
			vars: map[string]any{
				"where_0":         map[string]any{"id": map[string]any{"_eq": 1}},
				"update_object_0": map[string]any{"first": "Jane"},
				"inc_object_0":    map[string]any{"logins": 1},
			},
		},
		{
			name: "update_by_pk",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users").
					Select("id", "first").
					PrimaryKey("id", 1).
					Update(map[string]any{"first": "Jane"})}
			},
			vars: map[string]any{
				"primary_0_0":     1,
				"update_object_0": map[string]any{"first": "Jane"},
			},
		},
		{
			name: "delete_by_compound_pk",
			tables: func() []*table.Table {
				return []*table.Table{table.New("memberships").
					Primary(
						clause.KeyValue{Column: "user_id", Value: 1},
						clause.KeyValue{Column: "group_id", Value: "g1"},
					).
					Delete()}
			},
			vars: map[string]any{"primary_0_0": 1, "primary_0_1": "g1"},
		},
		{
			name: "delete_returning",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users").WhereOp("age", "_lt", 18).Delete().Select("id")}
			},
			vars: map[string]any{"where_0": map[string]any{"age": map[string]any{"_lt": 18}}},
		},
		{
			name: "subscription_stream",
			tables: func() []*table.Table {
				return []*table.Table{table.New("messages").
					Select("id", "body").
					WhereEq("room", "general").
					Cursor(10, "id", 100, clause.CursorAsc)}
			},
			opts: Options{Name: "Feed", Type: TypeSubscription},
			vars: map[string]any{
				"where_0":      map[string]any{"room": map[string]any{"_eq": "general"}},
				"cursor_0":     map[string]any{"initial_value": map[string]any{"id": 100}, "ordering": "ASC"},
				"batch_size_0": 10,
			},
		},
		{
			name: "nested_tables",
			tables: func() []*table.Table {
				comments := table.New("comments").
					Select("body").
					Order(clause.SortFields{"created_at": clause.Desc})
				posts := table.New("posts").
					Select("title").
					SelectNested(comments).
					WhereEq("published", true).
					Limit(5)
				users := table.New("users").Select("id").SelectNested(posts)
				groups := table.New("groups").Select("id, name").Limit(3)
				return []*table.Table{users, groups}
			},
			vars: map[string]any{
				"where_2":    map[string]any{"published": map[string]any{"_eq": true}},
				"limit_2":    5,
				"order_by_3": map[string]any{"created_at": "desc"},
				"limit_1":    3,
			},
		},
		{
			name: "transaction_mutation",
			tables: func() []*table.Table {
				return []*table.Table{
					table.New("users").Select("id").Insert(map[string]any{"first": "A"}),
					table.New("posts").WhereEq("id", 1).Delete(),
				}
			},
			opts: Options{Name: "Batch", Operation: OpTransaction},
			vars: map[string]any{
				"insert_object_0": []any{map[string]any{"first": "A"}},
				"where_1":         map[string]any{"id": map[string]any{"_eq": 1}},
			},
		},
		{
			name: "aggregate",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users_aggregate").Select("aggregate{count}").WhereEq("active", true)}
			},
			vars: map[string]any{"where_0": map[string]any{"active": map[string]any{"_eq": true}}},
		},
		{
			name: "table_params",
			tables: func() []*table.Table {
				return []*table.Table{table.New("search_users").Select("id").Params(map[string]any{"search": "bob"})}
			},
			vars: map[string]any{"param_search_0": "bob"},
		},
		{
			name: "raw_selection_compacted",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users").Select("id,\n  posts {\n    id\n    title\n  }")}
			},
			vars: map[string]any{},
		},
		{
			name: "table_override",
			tables: func() []*table.Table {
				return []*table.Table{table.New("users").Select("id").PrimaryKey("id", 2)}
			},
			opts: Options{Table: table.BuildOptions{Name: "person", Alias: "p"}},
			vars: map[string]any{"primary_0_0": 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := Compile(tt.tables(), tt.opts)
			require.NoError(t, err)

			g := newGolden(t)
			g.Assert(t, tt.name, []byte(body.Query))
			assert.Equal(t, tt.vars, body.Variables)
			assert.Equal(t, tt.opts.Name, body.OperationName)

			require.NoError(t, validate(body.Query))
		})
	}
}

func TestCompile_Deterministic(t *testing.T) {
	build := func() []*table.Table {
		return []*table.Table{table.New("search_users").
			Select("id").
			Params(map[string]any{"z": 1, "a": "x", "m": true}).
			Where(clause.Filter{"b": map[string]any{"_eq": 1}, "a": map[string]any{"_eq": 2}})}
	}
	first, err := Compile(build(), Options{})
	require.NoError(t, err)
	for range 20 {
		next, err := Compile(build(), Options{})
		require.NoError(t, err)
		assert.Equal(t, first.Query, next.Query)
		assert.Equal(t, first.Variables, next.Variables)
	}
}

func TestCompile_LimitResetRemovesArguments(t *testing.T) {
	tbl := table.New("users").Select("id").Limit(10, 5).Limit(table.Reset, table.Reset)
	body, err := Compile([]*table.Table{tbl}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "query{users{id}}", body.Query)
	assert.Empty(t, body.Variables)
}

func TestCompile_StreamDropsPaging(t *testing.T) {
	tbl := table.New("messages").
		Select("id").
		Limit(5, 10).
		Order(clause.SortFields{"id": clause.Asc}).
		Distinct("room").
		Cursor(10, "id", 1, clause.CursorAsc)
	body, err := Compile([]*table.Table{tbl}, Options{Type: TypeSubscription})
	require.NoError(t, err)
	assert.Equal(t,
		"subscription($cursor_0:[messages_stream_cursor_input]!,$batch_size_0:Int!){messages_stream(cursor:$cursor_0,batch_size:$batch_size_0){id}}",
		body.Query)
	assert.NotContains(t, body.Variables, "limit_0")
	assert.NotContains(t, body.Variables, "order_by_0")

	plain, err := Compile([]*table.Table{table.New("messages").Select("id").Limit(5, 10)}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, plain.Variables["limit_0"])
}

func TestCompile_FalsyFiltersStaySeparate(t *testing.T) {
	tbl := table.New("users").WhereFalsy("a").WhereFalsy("b").Delete()
	body, err := Compile([]*table.Table{tbl}, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"_not": map[string]any{"a": map[string]any{}},
		"_and": []any{
			map[string]any{"_not": map[string]any{"b": map[string]any{}}},
		},
	}, body.Variables["where_0"])
}

func TestCompile_ParamsDoNotCollideWithClauses(t *testing.T) {
	tbl := table.New("search_users").
		Select("id").
		Limit(3).
		Params(map[string]any{"limit": "x"})
	body, err := Compile([]*table.Table{tbl}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, body.Variables["limit_0"])
	assert.Equal(t, "x", body.Variables["param_limit_0"])
}

func TestCompact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"punctuation", "users ( limit : $l ) { id ,\n name }", "users(limit:$l){id,name}"},
		{"names keep one space", "posts { id   title }", "posts{id title}"},
		{"string literal untouched", `posts(where:{title:{_eq:"a , b"}}) { id }`, `posts(where:{title:{_eq:"a , b"}}){id}`},
		{"escaped quote", `f(q: "say \"hi , there\"" ) { id }`, `f(q:"say \"hi , there\""){id}`},
		{"block string", "f(q: \"\"\" a , { b } \"\"\" ) { id }", "f(q:\"\"\" a , { b } \"\"\"){id}"},
		{"unterminated", `f(q: "a , b`, `f(q:"a , b`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compact(tt.in))
		})
	}
}

func TestCompile_RawSelectionKeepsStrings(t *testing.T) {
	tbl := table.New("users").Select(`id, posts(where:{title:{_eq:"a , b"}}) { id }`)
	body, err := Compile([]*table.Table{tbl}, Options{})
	require.NoError(t, err)
	assert.Equal(t, `query{users{id,posts(where:{title:{_eq:"a , b"}}){id}}}`, body.Query)
}

func TestCompile_CloneOffsetIsolation(t *testing.T) {
	base := table.New("users").Select("id").Limit(10, 0)
	clone := base.Clone().Offset(10)

	b1, err := Compile([]*table.Table{base}, Options{})
	require.NoError(t, err)
	b2, err := Compile([]*table.Table{clone}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, b1.Variables["offset_0"])
	assert.Equal(t, 10, b2.Variables["offset_0"])
}

func TestCompile_WhereRoundTrip(t *testing.T) {
	filter := clause.Filter{
		"_or": []any{
			map[string]any{"first": map[string]any{"_ilike": "b%"}},
			map[string]any{"posts": map[string]any{"title": map[string]any{"_in": []any{"a", "b"}}}},
		},
	}
	first, err := Compile([]*table.Table{table.New("users").Select("id").Where(filter)}, Options{})
	require.NoError(t, err)

	value := first.Variables["where_0"].(map[string]any)
	second, err := Compile([]*table.Table{table.New("users").Select("id").Where(clause.Filter(value))}, Options{})
	require.NoError(t, err)

	assert.Equal(t, first.Query, second.Query)
	assert.Equal(t, first.Variables, second.Variables)
}

func TestCompile_Nested(t *testing.T) {
	body, err := Compile([]*table.Table{table.New("users", "u").Select("id").Limit(1)}, Options{Nested: true})
	require.NoError(t, err)
	assert.Equal(t, "u:users(limit:$limit_0){id}", body.Query)
	assert.Equal(t, map[string]any{"limit_0": 1}, body.Variables)
}

func TestCompile_ExpandedAndPretty(t *testing.T) {
	tbl := func() []*table.Table {
		return []*table.Table{table.New("users").Select("id\n  name")}
	}

	expanded, err := Compile(tbl(), Options{Expanded: true})
	require.NoError(t, err)
	assert.Equal(t, "query{users{id,name}}", expanded.Query)

	raw, err := Compile([]*table.Table{table.New("users").Select("posts {\n  id\n}")}, Options{Expanded: true})
	require.NoError(t, err)
	assert.Contains(t, raw.Query, "\n  id\n")

	pretty, err := Compile(tbl(), Options{Pretty: true, Name: "Q"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pretty.Query, "query Q {"))
	assert.Contains(t, pretty.Query, "\n")
	require.NoError(t, validate(pretty.Query))
}

func TestCompile_ValidateRejectsBrokenDocument(t *testing.T) {
	_, err := Compile([]*table.Table{table.New("users").Select("id{")}, Options{Validate: true})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestCompile_QueryOptionsEcho(t *testing.T) {
	qo := QueryOptions{Cache: true, Role: "editor", Connection: "analytics", Headers: map[string]string{"x": "y"}}
	body, err := Compile([]*table.Table{table.New("users").Select("id")}, Options{QueryOptions: qo})
	require.NoError(t, err)
	assert.Equal(t, qo, body.Options)
}

type staticSource struct {
	selections []table.Selection
	err        error
}

func (s staticSource) DefaultSelection() ([]table.Selection, error) { return s.selections, s.err }

func TestCompile_DefaultSelectionFromSource(t *testing.T) {
	src := staticSource{selections: []table.Selection{table.Field("id"), table.Field("email")}}

	body, err := Compile([]*table.Table{table.New("users").SetSource(src)}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "query{users{id,email}}", body.Query)

	body, err = Compile([]*table.Table{table.New("users").SetSource(src).Select("name")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "query{users{name}}", body.Query)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name      string
		tables    []*table.Table
		opts      Options
		wantErr   error
		wantTyped any
	}{
		{
			name:      "no tables",
			wantErr:   ErrNoTables,
			wantTyped: &ConfigError{},
		},
		{
			name: "mixed transaction",
			tables: []*table.Table{
				table.New("users").Select("id"),
				table.New("posts").Select("id").Insert(map[string]any{"a": 1}),
			},
			opts:      Options{Operation: OpTransaction},
			wantErr:   ErrMixedTransaction,
			wantTyped: &ConfigError{},
		},
		{
			name:      "select without selection",
			tables:    []*table.Table{table.New("users")},
			wantErr:   ErrNoSelection,
			wantTyped: &ConfigError{},
		},
		{
			name:      "insert without selection",
			tables:    []*table.Table{table.New("users").Insert(map[string]any{"a": 1})},
			wantErr:   ErrNoSelection,
			wantTyped: &ConfigError{},
		},
		{
			name:      "nested without selection",
			tables:    []*table.Table{table.New("users").Select("id").SelectNested(table.New("posts"))},
			wantErr:   ErrNoSelection,
			wantTyped: &ConfigError{},
		},
		{
			name:      "stream outside subscription",
			tables:    []*table.Table{table.New("messages").Select("id").Cursor(5, "id", 1)},
			wantErr:   ErrStreamOutsideSubscription,
			wantTyped: &ConfigError{},
		},
		{
			name:      "cursor with primary key",
			tables:    []*table.Table{table.New("messages").Select("id").Cursor(5, "id", 1).PrimaryKey("id", 1)},
			opts:      Options{Type: TypeSubscription},
			wantErr:   ErrCursorWithPrimary,
			wantTyped: &ConfigError{},
		},
		{
			name:      "cursor without batch size",
			tables:    []*table.Table{table.New("messages").Select("id").Cursor(5, "id", 1).Without(clause.KindBatchSize)},
			opts:      Options{Type: TypeSubscription},
			wantErr:   ErrCursorWithoutBatch,
			wantTyped: &ConfigError{},
		},
		{
			name: "primary key on nested field",
			tables: []*table.Table{table.New("users").Select("id").
				SelectNested(table.New("posts").Select("id").PrimaryKey("id", 1))},
			wantErr:   ErrNestedArgument,
			wantTyped: &ConfigError{},
		},
		{
			name:      "untyped table parameter",
			tables:    []*table.Table{table.New("search").Select("id").Params(map[string]any{"q": nil})},
			wantErr:   clause.ErrUnsupportedParamType,
			wantTyped: &ValidationError{},
		},
		{
			name:      "float primary key",
			tables:    []*table.Table{table.New("users").Select("id").PrimaryKey("id", 1.5)},
			wantErr:   clause.ErrUnsupportedKeyType,
			wantTyped: &ValidationError{},
		},
		{
			name:      "unknown operation",
			tables:    []*table.Table{table.New("users").Select("id")},
			opts:      Options{Operation: "upsert"},
			wantErr:   ErrUnknownOperation,
			wantTyped: &ConfigError{},
		},
		{
			name:      "source failure",
			tables:    []*table.Table{table.New("users").SetSource(staticSource{err: errors.New("cycle")})},
			wantTyped: &ConfigError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := Compile(tt.tables, tt.opts)
			require.Error(t, err)
			assert.Nil(t, body)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			switch tt.wantTyped.(type) {
			case *ConfigError:
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
			case *ValidationError:
				var ve *ValidationError
				assert.ErrorAs(t, err, &ve)
			}
		})
	}
}

func TestConfigError_NamesTable(t *testing.T) {
	_, err := Compile([]*table.Table{table.New("users")}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"users"`)
}

func TestCompile_RootKeys(t *testing.T) {
	body, err := Compile([]*table.Table{
		table.New("users").Select("id"),
		table.New("users", "admins").Select("id"),
		table.New("posts").Select("id").PrimaryKey("id", 3),
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "admins", "posts_by_pk"}, body.RootKeys)

	body, err = Compile([]*table.Table{table.New("users").Insert(map[string]any{"name": "a"}).Select("id")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"insert_users"}, body.RootKeys)

	body, err = Compile([]*table.Table{table.New("users").Select("id")}, Options{
		Table: table.BuildOptions{Name: "people", Alias: "folks"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"folks"}, body.RootKeys)
}
