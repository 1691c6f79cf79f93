package clause

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ErrUnsupportedParamType is returned when a table parameter's GraphQL type
// cannot be inferred from its Go value.
var ErrUnsupportedParamType = errors.New("cannot infer GraphQL type for table parameter")

// TableParams passes named arguments to function-backed tables. Keys render
// in sorted order so repeated compilation is byte-identical. Variables are
// named param_<key>_<idx> to stay clear of the clause variables.
type TableParams struct {
	keys   []string
	values map[string]any
}

func NewTableParams(params map[string]any) *TableParams {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &TableParams{keys: keys, values: copyMap(params)}
}

func (p *TableParams) Kind() Kind { return KindTableParams }

func (p *TableParams) Render(_ Target, idx int) (*Rendered, error) {
	if len(p.keys) == 0 {
		return nil, nil
	}
	r := &Rendered{Kind: KindTableParams, Values: make(map[string]any, len(p.keys))}
	parts := make([]string, len(p.keys))
	for i, key := range p.keys {
		value := p.values[key]
		typ, err := InferType(value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		name := varName("param_"+key, idx)
		parts[i] = key + ":$" + name
		r.Params = append(r.Params, Param{Name: name, Type: typ})
		r.Values[name] = DeepCopy(value)
	}
	r.Fragment = strings.Join(parts, ",")
	return r, nil
}

func (p *TableParams) Clone() Clause { return NewTableParams(p.values) }

// InferType maps a Go value onto a non-null GraphQL scalar or list type.
// nil, maps, empty slices and mixed-type slices are rejected.
func InferType(v any) (string, error) {
	if scalar, ok := scalarType(v); ok {
		return scalar + "!", nil
	}
	if v == nil {
		return "", fmt.Errorf("%w: null value", ErrUnsupportedParamType)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return "", fmt.Errorf("%w: %T", ErrUnsupportedParamType, v)
	}
	if rv.Len() == 0 {
		return "", fmt.Errorf("%w: empty list", ErrUnsupportedParamType)
	}
	elem := ""
	for i := 0; i < rv.Len(); i++ {
		t, ok := scalarType(rv.Index(i).Interface())
		if !ok {
			return "", fmt.Errorf("%w: list element %T", ErrUnsupportedParamType, rv.Index(i).Interface())
		}
		if elem != "" && t != elem {
			return "", fmt.Errorf("%w: mixed list of %s and %s", ErrUnsupportedParamType, elem, t)
		}
		elem = t
	}
	return "[" + elem + "!]!", nil
}

func scalarType(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return "String", true
	case bool:
		return "Boolean", true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "Int", true
	case float32, float64:
		return "Float", true
	case json.Number:
		if strings.ContainsAny(val.String(), ".eE") {
			return "Float", true
		}
		return "Int", true
	}
	return "", false
}

// Raw appends a verbatim argument fragment along with the variables it
// references.
type Raw struct {
	fragment string
	params   []Param
	values   map[string]any
}

func NewRaw(fragment string, params []Param, values map[string]any) *Raw {
	return &Raw{fragment: fragment, params: append([]Param(nil), params...), values: copyMap(values)}
}

func (r *Raw) Kind() Kind { return KindRaw }

func (r *Raw) Render(_ Target, _ int) (*Rendered, error) {
	if strings.TrimSpace(r.fragment) == "" {
		return nil, nil
	}
	return &Rendered{
		Kind:     KindRaw,
		Fragment: r.fragment,
		Params:   append([]Param(nil), r.params...),
		Values:   copyMap(r.values),
	}, nil
}

func (r *Raw) Clone() Clause { return NewRaw(r.fragment, r.params, r.values) }
