package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
)

func render(t *testing.T, tbl *Table, k clause.Kind) *clause.Rendered {
	t.Helper()
	c, ok := tbl.Clause(k)
	if !ok {
		return nil
	}
	r, err := c.Render(clause.Target{Name: tbl.Name()}, 0)
	require.NoError(t, err)
	return r
}

func TestSelect_SplitsFields(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   []string
	}{
		{name: "variadic", fields: []string{"id", "name"}, want: []string{"id", "name"}},
		{name: "comma separated", fields: []string{"id, name ,email"}, want: []string{"id", "name", "email"}},
		{name: "newlines", fields: []string{"id\n  name\n"}, want: []string{"id", "name"}},
		{
			name:   "braces keep nested separators",
			fields: []string{"id, posts { id, title }, aggregate{count}"},
			want:   []string{"id", "posts { id, title }", "aggregate{count}"},
		},
		{name: "arguments keep commas", fields: []string{"posts(limit: 1, offset: 2) { id }"}, want: []string{"posts(limit: 1, offset: 2) { id }"}},
		{name: "empty entries dropped", fields: []string{" , ,", ""}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := New("users").Select(tt.fields...)
			var got []string
			for _, s := range tbl.Selections() {
				got = append(got, s.Scalar)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLimit_Reset(t *testing.T) {
	tbl := New("users").Limit(10, 5)
	require.NotNil(t, render(t, tbl, clause.KindLimit))
	require.NotNil(t, render(t, tbl, clause.KindOffset))

	tbl.Limit(Reset, Reset)
	assert.Nil(t, render(t, tbl, clause.KindLimit))
	assert.Nil(t, render(t, tbl, clause.KindOffset))
}

func TestLimit_ZeroIsNotReset(t *testing.T) {
	tbl := New("users").Limit(0, 0)
	assert.Equal(t, 0, render(t, tbl, clause.KindLimit).Values["limit_0"])
	assert.Equal(t, 0, render(t, tbl, clause.KindOffset).Values["offset_0"])
}

func TestLimit_OmittedOffsetUntouched(t *testing.T) {
	tbl := New("users").Limit(10, 20).Limit(5)
	assert.Equal(t, 5, render(t, tbl, clause.KindLimit).Values["limit_0"])
	assert.Equal(t, 20, render(t, tbl, clause.KindOffset).Values["offset_0"])
}

func TestOrAnd_BuildGroups(t *testing.T) {
	tbl := New("users").
		WhereEq("active", true).
		Or(func(q *Table) {
			q.WhereEq("first", "Billy").WhereEq("first", "Bob")
		}).
		And(func(*Table) {})

	conds := tbl.Conditions()
	require.Len(t, conds, 2)
	assert.Equal(t, clause.Filter{"_or": []any{
		map[string]any{"first": map[string]any{"_eq": "Billy"}},
		map[string]any{"first": map[string]any{"_eq": "Bob"}},
	}}, conds[1].Condition())
}

func TestWhere_IgnoresEmptyFilter(t *testing.T) {
	tbl := New("users").Where(nil).Where(clause.Filter{})
	assert.Empty(t, tbl.Conditions())
}

func TestMutationSetters_ChangeKind(t *testing.T) {
	assert.Equal(t, KindInsert, New("users").Insert(map[string]any{"a": 1}).Kind())
	assert.Equal(t, KindUpdate, New("users").Update(map[string]any{"a": 1}).Kind())
	assert.Equal(t, KindUpdate, New("users").Increment(map[string]any{"a": 1}).Kind())
	assert.Equal(t, KindDelete, New("users").Delete().Kind())
	assert.True(t, KindDelete.Mutating())
	assert.False(t, KindSelect.Mutating())
}

func TestCursor_SetsBatchSize(t *testing.T) {
	tbl := New("messages").Cursor(10, "id", 1, clause.CursorAsc)
	assert.NotNil(t, render(t, tbl, clause.KindCursor))
	assert.Equal(t, 10, render(t, tbl, clause.KindBatchSize).Values["batch_size_0"])
}

func TestClone_Isolation(t *testing.T) {
	nested := New("posts").Select("id")
	base := New("users", "u").
		Select("id").
		SelectNested(nested).
		WhereEq("first", "Billy").
		Limit(10, 0).
		Field(func(result.Row) error { return nil })

	clone := base.Clone()
	clone.Offset(10).Select("email").WhereEq("last", "Bob")
	clone.Selections()[1].Nested.Limit(3)

	assert.Equal(t, 0, render(t, base, clause.KindOffset).Values["offset_0"])
	assert.Equal(t, 10, render(t, clone, clause.KindOffset).Values["offset_0"])
	assert.Len(t, base.Selections(), 2)
	assert.Len(t, base.Conditions(), 1)
	assert.Nil(t, render(t, nested, clause.KindLimit))
	assert.Len(t, clone.RowFuncs(), 1)

	l1, _ := base.Clause(clause.KindLimit)
	l2, _ := clone.Clause(clause.KindLimit)
	assert.NotSame(t, l1, l2)
}

func TestClone_Rename(t *testing.T) {
	tbl := New("users", "u").Limit(5)
	agg := tbl.Clone("users_aggregate", "")
	assert.Equal(t, "users_aggregate", agg.Name())
	assert.Equal(t, "", agg.Alias())
	assert.Equal(t, "users", tbl.Name())
	assert.Equal(t, "u", tbl.Alias())
}

func TestWithout(t *testing.T) {
	tbl := New("users").WhereEq("a", 1).Limit(1, 2).Without(clause.KindWhere, clause.KindLimit)
	assert.Empty(t, tbl.Conditions())
	_, hasLimit := tbl.Clause(clause.KindLimit)
	_, hasOffset := tbl.Clause(clause.KindOffset)
	assert.False(t, hasLimit)
	assert.True(t, hasOffset)
}
