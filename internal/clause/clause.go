// Package clause holds the value objects that render individual Hasura
// GraphQL arguments (where, order_by, limit, objects, on_conflict, ...).
package clause

import (
	"fmt"
	"strings"
)

// Kind identifies which argument slot a clause occupies on a table.
type Kind int

const (
	KindWhere Kind = iota
	KindPrimary
	KindLimit
	KindOffset
	KindOrder
	KindDistinct
	KindInsert
	KindSet
	KindIncrement
	KindConflict
	KindCursor
	KindBatchSize
	KindTableParams
	KindRaw
)

var kindNames = map[Kind]string{
	KindWhere:       "where",
	KindPrimary:     "primary",
	KindLimit:       "limit",
	KindOffset:      "offset",
	KindOrder:       "order_by",
	KindDistinct:    "distinct_on",
	KindInsert:      "objects",
	KindSet:         "_set",
	KindIncrement:   "_inc",
	KindConflict:    "on_conflict",
	KindCursor:      "cursor",
	KindBatchSize:   "batch_size",
	KindTableParams: "table_params",
	KindRaw:         "raw",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Param is a single variable declaration in the operation header.
type Param struct {
	Name string
	Type string
}

// Declaration returns the header form "$name:Type".
func (p Param) Declaration() string {
	return "$" + p.Name + ":" + p.Type
}

// Rendered is the output of one clause for one table.
type Rendered struct {
	Kind     Kind
	Fragment string
	Params   []Param
	Values   map[string]any
}

// Target is the table information a clause needs while rendering.
type Target struct {
	// Name is the descriptor's table name, before any root-field suffix.
	Name string
}

// TypeBase returns the name used to derive Hasura input type names.
// Aggregate clones share the input types of their base table.
func (t Target) TypeBase() string {
	return strings.TrimSuffix(t.Name, "_aggregate")
}

// Clause renders one GraphQL argument.
//
// Render returns nil when the clause has nothing to contribute; that is a
// silent omission, not an error.
type Clause interface {
	Kind() Kind
	Render(target Target, idx int) (*Rendered, error)
	Clone() Clause
}

func varName(key string, idx int) string {
	return fmt.Sprintf("%s_%d", key, idx)
}

// single renders the common "arg:$var" shape with one variable.
func single(kind Kind, arg, key string, idx int, typ string, value any) *Rendered {
	name := varName(key, idx)
	return &Rendered{
		Kind:     kind,
		Fragment: arg + ":$" + name,
		Params:   []Param{{Name: name, Type: typ}},
		Values:   map[string]any{name: value},
	}
}

// DeepCopy copies JSON-like values (maps, slices and scalars) so that no
// mutable container is shared with the source.
func DeepCopy(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Filter:
		return Filter(copyMap(val))
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = copyMap(item)
		}
		return out
	case []Filter:
		out := make([]Filter, len(val))
		for i, item := range val {
			out[i] = Filter(copyMap(item))
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []int:
		return append([]int(nil), val...)
	case []int64:
		return append([]int64(nil), val...)
	case []float64:
		return append([]float64(nil), val...)
	case []bool:
		return append([]bool(nil), val...)
	default:
		return v
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = DeepCopy(v)
	}
	return out
}
