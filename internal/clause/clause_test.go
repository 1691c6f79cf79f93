package clause

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_ArgumentShapes(t *testing.T) {
	target := Target{Name: "users"}

	tests := []struct {
		name       string
		clause     Clause
		idx        int
		wantFrag   string
		wantParams []Param
		wantValues map[string]any
	}{
		{
			name:       "limit",
			clause:     NewLimit(10),
			idx:        1,
			wantFrag:   "limit:$limit_1",
			wantParams: []Param{{Name: "limit_1", Type: "Int"}},
			wantValues: map[string]any{"limit_1": 10},
		},
		{
			name:       "zero offset is still rendered",
			clause:     NewOffset(0),
			wantFrag:   "offset:$offset_0",
			wantParams: []Param{{Name: "offset_0", Type: "Int"}},
			wantValues: map[string]any{"offset_0": 0},
		},
		{
			name:       "distinct",
			clause:     NewDistinct("first", "last"),
			wantFrag:   "distinct_on:$distinct_on_0",
			wantParams: []Param{{Name: "distinct_on_0", Type: "[users_select_column!]"}},
			wantValues: map[string]any{"distinct_on_0": []string{"first", "last"}},
		},
		{
			name:       "order object",
			clause:     NewOrder(SortFields{"first": Asc, "last": Desc}),
			wantFrag:   "order_by:$order_by_0",
			wantParams: []Param{{Name: "order_by_0", Type: "[users_order_by!]"}},
			wantValues: map[string]any{"order_by_0": map[string]any{"first": "asc", "last": "desc"}},
		},
		{
			name:       "order list",
			clause:     NewOrderList(SortFields{"first": Asc}, SortFields{"last": DescNullsLast}),
			wantFrag:   "order_by:$order_by_0",
			wantParams: []Param{{Name: "order_by_0", Type: "[users_order_by!]"}},
			wantValues: map[string]any{"order_by_0": []any{
				map[string]any{"first": "asc"},
				map[string]any{"last": "desc_nulls_last"},
			}},
		},
		{
			name:       "insert objects",
			clause:     NewInsertObjects(map[string]any{"first": "John"}),
			wantFrag:   "objects:$insert_object_0",
			wantParams: []Param{{Name: "insert_object_0", Type: "[users_insert_input!]!"}},
			wantValues: map[string]any{"insert_object_0": []any{map[string]any{"first": "John"}}},
		},
		{
			name:       "update set",
			clause:     NewUpdateSet(map[string]any{"first": "Jane"}),
			wantFrag:   "_set:$update_object_0",
			wantParams: []Param{{Name: "update_object_0", Type: "users_set_input"}},
			wantValues: map[string]any{"update_object_0": map[string]any{"first": "Jane"}},
		},
		{
			name:       "increment",
			clause:     NewIncrement(map[string]any{"logins": 1}),
			wantFrag:   "_inc:$inc_object_0",
			wantParams: []Param{{Name: "inc_object_0", Type: "users_inc_input"}},
			wantValues: map[string]any{"inc_object_0": map[string]any{"logins": 1}},
		},
		{
			name:       "on conflict",
			clause:     NewOnConflict("users_pkey", []string{"first"}, nil),
			wantFrag:   "on_conflict:$on_conflict_0",
			wantParams: []Param{{Name: "on_conflict_0", Type: "users_on_conflict!"}},
			wantValues: map[string]any{"on_conflict_0": map[string]any{
				"update_columns": []string{"first"},
				"constraint":     "users_pkey",
			}},
		},
		{
			name:       "on conflict with nothing to update",
			clause:     NewOnConflict("users_pkey", nil, nil),
			wantFrag:   "on_conflict:$on_conflict_0",
			wantParams: []Param{{Name: "on_conflict_0", Type: "users_on_conflict!"}},
			wantValues: map[string]any{"on_conflict_0": map[string]any{
				"update_columns": []string{},
				"constraint":     "users_pkey",
			}},
		},
		{
			name:       "cursor",
			clause:     NewCursor("id", 5, ""),
			wantFrag:   "cursor:$cursor_0",
			wantParams: []Param{{Name: "cursor_0", Type: "[users_stream_cursor_input]!"}},
			wantValues: map[string]any{"cursor_0": map[string]any{"initial_value": map[string]any{"id": 5}}},
		},
		{
			name:       "cursor with ordering",
			clause:     NewCursor("id", 5, CursorDesc),
			wantFrag:   "cursor:$cursor_0",
			wantParams: []Param{{Name: "cursor_0", Type: "[users_stream_cursor_input]!"}},
			wantValues: map[string]any{"cursor_0": map[string]any{
				"initial_value": map[string]any{"id": 5},
				"ordering":      "DESC",
			}},
		},
		{
			name:       "batch size",
			clause:     NewBatchSize(20),
			wantFrag:   "batch_size:$batch_size_0",
			wantParams: []Param{{Name: "batch_size_0", Type: "Int!"}},
			wantValues: map[string]any{"batch_size_0": 20},
		},
		{
			name:   "compound primary key",
			clause: NewPrimary(KeyValue{Column: "id", Value: 5}, KeyValue{Column: "tenant", Value: "acme"}),
			idx:    3,
			wantFrag: "id:$primary_3_0,tenant:$primary_3_1",
			wantParams: []Param{
				{Name: "primary_3_0", Type: "Int!"},
				{Name: "primary_3_1", Type: "String!"},
			},
			wantValues: map[string]any{"primary_3_0": 5, "primary_3_1": "acme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.clause.Render(target, tt.idx)
			require.NoError(t, err)
			require.NotNil(t, r)
			assert.Equal(t, tt.clause.Kind(), r.Kind)
			assert.Equal(t, tt.wantFrag, r.Fragment)
			assert.Equal(t, tt.wantParams, r.Params)
			assert.Equal(t, tt.wantValues, r.Values)
		})
	}
}

func TestRender_SilentOmission(t *testing.T) {
	target := Target{Name: "users"}
	empty := []Clause{
		NewOrder(nil),
		NewOrderList(),
		NewDistinct(),
		NewUpdateSet(nil),
		NewIncrement(map[string]any{}),
		NewPrimary(),
		NewTableParams(nil),
		NewRaw("  ", nil, nil),
	}
	for _, c := range empty {
		t.Run(c.Kind().String(), func(t *testing.T) {
			r, err := c.Render(target, 0)
			require.NoError(t, err)
			assert.Nil(t, r)
		})
	}
}

func TestTarget_TypeBase(t *testing.T) {
	assert.Equal(t, "users", Target{Name: "users_aggregate"}.TypeBase())
	assert.Equal(t, "users", Target{Name: "users"}.TypeBase())
	assert.Equal(t, "aggregate_users", Target{Name: "aggregate_users"}.TypeBase())
}

func TestPrimary_KeyTypes(t *testing.T) {
	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	r, err := NewPrimary(KeyValue{Column: "id", Value: id}).Render(Target{Name: "users"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "String!", r.Params[0].Type)
	assert.Equal(t, id.String(), r.Values["primary_0_0"])

	_, err = NewPrimary(KeyValue{Column: "id", Value: 1.5}).Render(Target{Name: "users"}, 0)
	require.ErrorIs(t, err, ErrUnsupportedKeyType)
	assert.Contains(t, err.Error(), `column "id"`)
}

func TestClone_Independence(t *testing.T) {
	records := map[string]any{"tags": []any{"a"}}
	ins := NewInsertObjects(records)
	records["tags"].([]any)[0] = "mutated"

	clone := ins.Clone()
	r, err := clone.Render(Target{Name: "posts"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"tags": []any{"a"}}}, r.Values["insert_object_0"])

	limit := NewLimit(10)
	assert.NotSame(t, limit, limit.Clone())
}

func TestDeepCopy(t *testing.T) {
	src := map[string]any{
		"nested": map[string]any{"list": []any{map[string]any{"x": 1}}},
		"ids":    []int{1, 2},
	}
	dst := DeepCopy(src).(map[string]any)
	dst["nested"].(map[string]any)["list"].([]any)[0].(map[string]any)["x"] = 2
	dst["ids"].([]int)[0] = 9

	assert.Equal(t, 1, src["nested"].(map[string]any)["list"].([]any)[0].(map[string]any)["x"])
	assert.Equal(t, 1, src["ids"].([]int)[0])
}
