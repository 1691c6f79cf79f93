package clause

import (
	"reflect"
	"strings"
)

// Filter is a Hasura boolean expression, e.g. {"name": {"_eq": "Bob"}}.
type Filter map[string]any

// Eq builds {field: {_eq: value}}.
func Eq(field string, value any) Filter {
	return Op(field, "_eq", value)
}

// Op builds {field: {op: value}}.
func Op(field, op string, value any) Filter {
	return Filter{field: map[string]any{op: value}}
}

// Truthy builds a filter matching rows where field is present.
func Truthy(field string) Filter {
	return Filter{field: map[string]any{}}
}

// Falsy builds a filter matching rows where field is absent.
func Falsy(field string) Filter {
	return Filter{"_not": map[string]any{field: map[string]any{}}}
}

// Condition is anything that contributes to a table's where argument.
type Condition interface {
	Condition() Filter
	CloneCondition() Condition
}

// Where is one independently attached filter.
type Where struct {
	filter Filter
}

// NewWhere copies f into a new where condition.
func NewWhere(f Filter) *Where {
	return &Where{filter: Filter(copyMap(f))}
}

func (w *Where) Condition() Filter { return Filter(copyMap(w.filter)) }

func (w *Where) CloneCondition() Condition { return NewWhere(w.filter) }

// Group nests a set of filters under _or or _and.
type Group struct {
	op      string
	members []Filter
}

// NewOr groups members under _or.
func NewOr(members ...Filter) *Group { return newGroup("_or", members) }

// NewAnd groups members under _and.
func NewAnd(members ...Filter) *Group { return newGroup("_and", members) }

func newGroup(op string, members []Filter) *Group {
	g := &Group{op: op, members: make([]Filter, len(members))}
	for i, m := range members {
		g.members[i] = Filter(copyMap(m))
	}
	return g
}

func (g *Group) Condition() Filter {
	list := make([]any, len(g.members))
	for i, m := range g.members {
		list[i] = map[string]any(copyMap(m))
	}
	return Filter{g.op: list}
}

func (g *Group) CloneCondition() Condition { return newGroup(g.op, g.members) }

// RenderWhere collapses every condition of one table into a single where
// variable. It returns nil when there are no conditions.
func RenderWhere(target Target, idx int, conds []Condition) *Rendered {
	if len(conds) == 0 {
		return nil
	}
	filters := make([]Filter, len(conds))
	for i, c := range conds {
		filters[i] = c.Condition()
	}
	merged := MergeFilters(filters...)
	return single(KindWhere, "where", "where", idx, target.TypeBase()+"_bool_exp!", map[string]any(merged))
}

// MergeFilters combines filters under implicit AND. Disjoint keys are
// unioned and disjoint operators on the same column are merged in place.
// _and lists are concatenated. Any other shared key (_not, _or, a
// relationship, or a clashing operator) sends the whole filter to _and.
func MergeFilters(filters ...Filter) Filter {
	out := map[string]any{}
	var overflow []any
	for _, f := range filters {
		if len(f) == 0 {
			continue
		}
		if conflicts(out, f) {
			overflow = append(overflow, copyMap(f))
			continue
		}
		mergeInto(out, copyMap(f))
	}
	if len(overflow) > 0 {
		existing, _ := out["_and"].([]any)
		out["_and"] = append(existing, overflow...)
	}
	return Filter(out)
}

func conflicts(dst map[string]any, src map[string]any) bool {
	for k, sv := range src {
		dv, ok := dst[k]
		if !ok || reflect.DeepEqual(dv, sv) {
			continue
		}
		if k == "_and" {
			_, srcList := asList(sv)
			_, dstList := asList(dv)
			if srcList && dstList {
				continue
			}
			return true
		}
		dm, dOps := operatorMap(k, dv)
		sm, sOps := operatorMap(k, sv)
		if !dOps || !sOps {
			return true
		}
		for op, v := range sm {
			if existing, ok := dm[op]; ok && !reflect.DeepEqual(existing, v) {
				return true
			}
		}
	}
	return false
}

func mergeInto(dst map[string]any, src map[string]any) {
	for k, sv := range src {
		dv, ok := dst[k]
		if !ok {
			dst[k] = sv
			continue
		}
		if k == "_and" {
			dl, _ := asList(dv)
			sl, _ := asList(sv)
			dst[k] = append(dl, sl...)
			continue
		}
		dm, dOps := operatorMap(k, dv)
		sm, sOps := operatorMap(k, sv)
		if dOps && sOps {
			for op, v := range sm {
				dm[op] = v
			}
			dst[k] = dm
		}
	}
}

// operatorMap reports whether v is a column comparison such as
// {"_gt": 1, "_lt": 9}. Logical keys and relationships never qualify.
func operatorMap(key string, v any) (map[string]any, bool) {
	switch key {
	case "_not", "_or", "_and":
		return nil, false
	}
	m, ok := asMap(v)
	if !ok {
		return nil, false
	}
	for op := range m {
		if !strings.HasPrefix(op, "_") {
			return nil, false
		}
	}
	return m, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Filter:
		return map[string]any(m), true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, item := range l {
			out[i] = item
		}
		return out, true
	case []Filter:
		out := make([]any, len(l))
		for i, item := range l {
			out[i] = map[string]any(item)
		}
		return out, true
	}
	return nil, false
}
