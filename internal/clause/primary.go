package clause

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedKeyType is returned for primary key values that are neither
// strings nor integers.
var ErrUnsupportedKeyType = errors.New("unsupported primary key value type")

// KeyValue is one column of a (possibly compound) primary key.
type KeyValue struct {
	Column string
	Value  any
}

// Primary targets a single row by its primary key columns.
type Primary struct {
	keys []KeyValue
}

// NewPrimary keeps keys in the order given; that order fixes the variable
// suffixes primary_{idx}_0, primary_{idx}_1, ...
func NewPrimary(keys ...KeyValue) *Primary {
	return &Primary{keys: append([]KeyValue(nil), keys...)}
}

// Keys returns a copy of the key columns.
func (p *Primary) Keys() []KeyValue {
	return append([]KeyValue(nil), p.keys...)
}

func (p *Primary) Kind() Kind { return KindPrimary }

func (p *Primary) Render(_ Target, idx int) (*Rendered, error) {
	if len(p.keys) == 0 {
		return nil, nil
	}
	r := &Rendered{Kind: KindPrimary, Values: make(map[string]any, len(p.keys))}
	parts := make([]string, len(p.keys))
	for i, kv := range p.keys {
		typ, err := keyType(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", kv.Column, err)
		}
		name := fmt.Sprintf("primary_%d_%d", idx, i)
		parts[i] = kv.Column + ":$" + name
		r.Params = append(r.Params, Param{Name: name, Type: typ})
		r.Values[name] = keyValue(kv.Value)
	}
	r.Fragment = strings.Join(parts, ",")
	return r, nil
}

func (p *Primary) Clone() Clause { return NewPrimary(p.keys...) }

func keyType(v any) (string, error) {
	switch v.(type) {
	case string, uuid.UUID:
		return "String!", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "Int!", nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedKeyType, v)
}

func keyValue(v any) any {
	if id, ok := v.(uuid.UUID); ok {
		return id.String()
	}
	return v
}
