package clause

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferType(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    string
		wantErr bool
	}{
		{name: "string", value: "x", want: "String!"},
		{name: "int", value: 3, want: "Int!"},
		{name: "int64", value: int64(3), want: "Int!"},
		{name: "float", value: 3.5, want: "Float!"},
		{name: "bool", value: true, want: "Boolean!"},
		{name: "json integer", value: json.Number("12"), want: "Int!"},
		{name: "json decimal", value: json.Number("1.2"), want: "Float!"},
		{name: "string list", value: []string{"a", "b"}, want: "[String!]!"},
		{name: "int list", value: []int{1, 2}, want: "[Int!]!"},
		{name: "float list", value: []float64{1.5}, want: "[Float!]!"},
		{name: "homogeneous any list", value: []any{"a", "b"}, want: "[String!]!"},
		{name: "nil", value: nil, wantErr: true},
		{name: "object", value: map[string]any{"a": 1}, wantErr: true},
		{name: "empty list", value: []string{}, wantErr: true},
		{name: "mixed list", value: []any{"a", 1}, wantErr: true},
		{name: "nested list", value: []any{[]int{1}}, wantErr: true},
		{name: "struct", value: struct{}{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InferType(tt.value)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedParamType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTableParams_Render(t *testing.T) {
	p := NewTableParams(map[string]any{"search": "bob", "max_age": 40, "tags": []string{"a"}})

	r, err := p.Render(Target{Name: "search_users"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "max_age:$param_max_age_1,search:$param_search_1,tags:$param_tags_1", r.Fragment)
	assert.Equal(t, []Param{
		{Name: "param_max_age_1", Type: "Int!"},
		{Name: "param_search_1", Type: "String!"},
		{Name: "param_tags_1", Type: "[String!]!"},
	}, r.Params)
	assert.Equal(t, map[string]any{"param_max_age_1": 40, "param_search_1": "bob", "param_tags_1": []string{"a"}}, r.Values)
}

func TestTableParams_RejectsUntypedValue(t *testing.T) {
	_, err := NewTableParams(map[string]any{"filter": map[string]any{"a": 1}}).Render(Target{Name: "fn"}, 0)
	require.ErrorIs(t, err, ErrUnsupportedParamType)
	assert.Contains(t, err.Error(), `parameter "filter"`)
}

func TestRaw_Render(t *testing.T) {
	raw := NewRaw("args:{q:$q}", []Param{{Name: "q", Type: "String!"}}, map[string]any{"q": "x"})
	r, err := raw.Render(Target{Name: "fn"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "args:{q:$q}", r.Fragment)
	assert.Equal(t, "$q:String!", r.Params[0].Declaration())
	assert.Equal(t, map[string]any{"q": "x"}, r.Values)
}
