// Package compiler turns table descriptors into GraphQL documents and
// their variable maps.
package compiler

import (
	"fmt"
	"strings"

	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/table"
)

// Compile renders tables into one operation. Root descriptors take table
// indices 0..n-1 in order; nested descriptors are numbered after them in
// depth-first order and their variables are declared in the root header.
func Compile(tables []*table.Table, opts Options) (*QueryBody, error) {
	if len(tables) == 0 {
		return nil, &ConfigError{Err: ErrNoTables}
	}

	op := opts.Operation
	if op == "" {
		op = OpTransaction
		if len(tables) == 1 {
			op = Operation(tables[0].Kind())
		}
	}
	typ, err := operationType(tables, op, opts.Type)
	if err != nil {
		return nil, err
	}

	c := &compilation{
		opType:   typ,
		override: opts.Table,
		vars:     map[string]any{},
		declared: map[string]string{},
		next:     len(tables),
	}

	fields := make([]string, len(tables))
	keys := make([]string, len(tables))
	for i, t := range tables {
		if t == nil {
			return nil, &ConfigError{Err: fmt.Errorf("table %d is nil", i)}
		}
		kind := t.Kind()
		if op != OpTransaction {
			kind = table.Kind(op)
		}
		f, key, err := c.rootField(t, i, kind)
		if err != nil {
			return nil, err
		}
		fields[i] = f
		keys[i] = key
	}

	var doc string
	if opts.Nested {
		doc = strings.Join(fields, ",")
	} else {
		doc = c.header(opts.Name) + "{" + strings.Join(fields, ",") + "}"
	}
	if !opts.Expanded {
		doc = compact(doc)
	}
	if opts.Validate && !opts.Nested {
		if err := validate(doc); err != nil {
			return nil, err
		}
	}
	if opts.Pretty && !opts.Nested {
		if doc, err = pretty(doc); err != nil {
			return nil, err
		}
	}

	return &QueryBody{
		Query:         doc,
		OperationName: opts.Name,
		Variables:     c.vars,
		Options:       opts.QueryOptions,
		RootKeys:      keys,
	}, nil
}

func operationType(tables []*table.Table, op Operation, requested OperationType) (OperationType, error) {
	switch op {
	case OpSelect:
		if requested == "" {
			return TypeQuery, nil
		}
		return requested, nil
	case OpInsert, OpUpdate, OpDelete:
		return TypeMutation, nil
	case OpTransaction:
		reads, writes := 0, 0
		for _, t := range tables {
			if t != nil && t.Kind().Mutating() {
				writes++
			} else {
				reads++
			}
		}
		if reads > 0 && writes > 0 {
			return "", &ConfigError{Err: fmt.Errorf("%w: %d select and %d mutating", ErrMixedTransaction, reads, writes)}
		}
		if writes > 0 {
			return TypeMutation, nil
		}
		if requested == TypeSubscription {
			return TypeSubscription, nil
		}
		return TypeQuery, nil
	}
	return "", &ConfigError{Err: fmt.Errorf("%w %q", ErrUnknownOperation, op)}
}

type compilation struct {
	opType   OperationType
	override table.BuildOptions
	params   []clause.Param
	declared map[string]string
	vars     map[string]any
	next     int
}

func (c *compilation) header(name string) string {
	var b strings.Builder
	b.WriteString(string(c.opType))
	if name != "" {
		b.WriteString(" ")
		b.WriteString(name)
	}
	if len(c.params) > 0 {
		decls := make([]string, len(c.params))
		for i, p := range c.params {
			decls[i] = p.Declaration()
		}
		b.WriteString("(")
		b.WriteString(strings.Join(decls, ","))
		b.WriteString(")")
	}
	return b.String()
}

func (c *compilation) declare(tableName string, r *clause.Rendered) error {
	for _, p := range r.Params {
		if typ, ok := c.declared[p.Name]; ok {
			if typ != p.Type {
				return &ValidationError{Table: tableName, Err: fmt.Errorf("%w: $%s is %s and %s", ErrDuplicateVariable, p.Name, typ, p.Type)}
			}
			continue
		}
		c.declared[p.Name] = p.Type
		c.params = append(c.params, p)
	}
	for k, v := range r.Values {
		c.vars[k] = v
	}
	return nil
}

func (c *compilation) nextIndex() int {
	idx := c.next
	c.next++
	return idx
}
