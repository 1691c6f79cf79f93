// Package result reshapes Hasura response payloads into rows.
package result

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// ErrMissingField is returned when a response does not contain the root
// field that was requested.
var ErrMissingField = errors.New("response is missing field")

// Row is one object returned by the server.
type Row map[string]any

// FieldFunc is a per-row callback registered on a table descriptor. It may
// add or rewrite keys in place.
type FieldFunc func(Row) error

// Attribute is a computed field merged into every row after the row
// callbacks have run.
type Attribute struct {
	Name    string
	Compute func(Row) (any, error)
}

// Rows normalizes data[key] into a slice of rows. An object payload (for
// example a _by_pk lookup) becomes a single row and null becomes no rows.
func Rows(data map[string]any, key string) ([]Row, error) {
	raw, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingField, key)
	}
	return toRows(raw, key)
}

// Returning extracts the returning rows of an insert, update or delete
// mutation. by_pk mutations return the row itself.
func Returning(data map[string]any, key string) ([]Row, error) {
	raw, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingField, key)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return toRows(raw, key)
	}
	if ret, ok := obj["returning"]; ok {
		return toRows(ret, key+".returning")
	}
	if _, ok := obj["affected_rows"]; ok {
		return nil, nil
	}
	return []Row{Row(obj)}, nil
}

// AffectedRows reads affected_rows from a mutation payload.
func AffectedRows(data map[string]any, key string) (int, error) {
	obj, ok := data[key].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrMissingField, key)
	}
	return cast.ToIntE(obj["affected_rows"])
}

func toRows(raw any, key string) ([]Row, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []Row{Row(v)}, nil
	case []any:
		rows := make([]Row, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected object, got %T", key, i, item)
			}
			rows = append(rows, Row(obj))
		}
		return rows, nil
	case []map[string]any:
		rows := make([]Row, len(v))
		for i, obj := range v {
			rows[i] = Row(obj)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("%s: expected object or list, got %T", key, raw)
}

// Apply runs funcs on every row, then computes attrs in order. Attributes
// see the values written by earlier attributes.
func Apply(rows []Row, funcs []FieldFunc, attrs []Attribute) error {
	for i, row := range rows {
		for _, fn := range funcs {
			if err := fn(row); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		for _, attr := range attrs {
			value, err := attr.Compute(row)
			if err != nil {
				return fmt.Errorf("row %d: attribute %q: %w", i, attr.Name, err)
			}
			row[attr.Name] = value
		}
	}
	return nil
}

// Pluck returns the value of column in every row.
func Pluck(rows []Row, column string) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row[column]
	}
	return out
}

// Decode copies rows into out, which must be a pointer to a struct or a
// slice. Struct fields are matched by their json tag.
func Decode(input any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05.999999Z07:00"),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

// Count reads aggregate.count from a <table>_aggregate payload.
func Count(data map[string]any, key string) (int, error) {
	agg, err := aggregate(data, key)
	if err != nil {
		return 0, err
	}
	count, err := cast.ToIntE(agg["count"])
	if err != nil {
		return 0, fmt.Errorf("%s.aggregate.count: %w", key, err)
	}
	return count, nil
}

// AggregateValue reads aggregate.<fn>.<column>. Hasura returns numeric
// aggregates as numbers or, for big numerics, as strings; both are accepted.
// A null aggregate over no rows is reported as ok=false.
func AggregateValue(data map[string]any, key, fn, column string) (value float64, ok bool, err error) {
	agg, err := aggregate(data, key)
	if err != nil {
		return 0, false, err
	}
	group, isMap := agg[fn].(map[string]any)
	if !isMap {
		return 0, false, fmt.Errorf("%s.aggregate.%s: expected object, got %T", key, fn, agg[fn])
	}
	raw := group[column]
	if raw == nil {
		return 0, false, nil
	}
	value, err = cast.ToFloat64E(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s.aggregate.%s.%s: %w", key, fn, column, err)
	}
	return value, true, nil
}

func aggregate(data map[string]any, key string) (map[string]any, error) {
	obj, ok := data[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingField, key)
	}
	agg, ok := obj["aggregate"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingField, key+".aggregate")
	}
	return agg, nil
}

// Keys returns the sorted column names present across rows.
func Keys(rows []Row) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
