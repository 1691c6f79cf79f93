// Package model maps declarative table models onto descriptors with
// default selections and mutation payloads.
package model

import (
	"errors"
	"fmt"

	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/naming"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
	"github.com/TheColorRed/hasura-query-builder/internal/table"
)

var (
	ErrMissingPrimary       = errors.New("model has no primary key")
	ErrPrimaryCountMismatch = errors.New("primary key value count does not match key columns")
	ErrCyclicModel          = errors.New("model references itself through its default selection")
)

type fieldKind int

const (
	fieldColumn fieldKind = iota
	fieldQuery
	fieldModel
	fieldTable
)

// Field is one entry of a model's field list.
type Field struct {
	Name  string
	kind  fieldKind
	query *Query
	model *Model
	table *table.Table
}

// Column is a scalar column.
func Column(name string) Field { return Field{Name: name, kind: fieldColumn} }

// Columns is Column for several names.
func Columns(names ...string) []Field {
	out := make([]Field, len(names))
	for i, n := range names {
		out[i] = Column(n)
	}
	return out
}

// HasQuery embeds an already configured query of another model under the
// relation name. Its own selection is used, or its model's defaults when it
// has none.
func HasQuery(name string, q *Query) Field { return Field{Name: name, kind: fieldQuery, query: q} }

// HasModel embeds another model by reference. It renders as the relation
// name with that model's default selection.
func HasModel(name string, m *Model) Field { return Field{Name: name, kind: fieldModel, model: m} }

// HasTable embeds a plain nested descriptor.
func HasTable(name string, t *table.Table) Field { return Field{Name: name, kind: fieldTable, table: t} }

// Model describes a table: its columns, relations and computed attributes.
type Model struct {
	// Name is used to derive the table when Table is empty.
	Name       string
	Table      string
	Primary    []string
	Fields     []Field
	Attributes []result.Attribute
	Connection string
	// Namer derives table names; nil uses naming.Default.
	Namer *naming.Namer
}

// TableName returns Table, or the plural snake_case form of Name. A
// derived name ending in a generated root field suffix is logged.
func (m *Model) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	namer := m.Namer
	if namer == nil {
		namer = naming.Default()
	}
	name := namer.TableName(m.Name)
	namer.Check(name)
	return name
}

// DefaultSelection resolves the model's field list into selections.
func (m *Model) DefaultSelection() ([]table.Selection, error) {
	return m.resolve(map[*Model]bool{})
}

func (m *Model) resolve(visiting map[*Model]bool) ([]table.Selection, error) {
	if visiting[m] {
		return nil, &compiler.ConfigError{Table: m.TableName(), Err: ErrCyclicModel}
	}
	visiting[m] = true
	defer delete(visiting, m)

	out := make([]table.Selection, 0, len(m.Fields))
	for _, f := range m.Fields {
		switch f.kind {
		case fieldColumn:
			out = append(out, table.Field(f.Name))
		case fieldTable:
			if f.table != nil {
				out = append(out, table.Nest(f.table.Clone()))
			}
		case fieldQuery:
			if f.query == nil {
				continue
			}
			nested := f.query.table.Clone()
			if opts := nested.BuildOptions(); opts.Name == "" {
				opts.Nested = true
				opts.Name = f.Name
				nested.SetBuildOptions(opts)
			}
			if err := resolveInto(nested, f.query.model, visiting); err != nil {
				return nil, err
			}
			out = append(out, table.Nest(nested))
		case fieldModel:
			if f.model == nil {
				continue
			}
			nested := f.model.All().table
			nested.SetBuildOptions(table.BuildOptions{Nested: true, Name: f.Name, Alias: f.Name})
			if err := resolveInto(nested, f.model, visiting); err != nil {
				return nil, err
			}
			out = append(out, table.Nest(nested))
		}
	}
	return out, nil
}

// resolveInto fills an empty selection with the model defaults so the
// compiler never has to recurse through models itself.
func resolveInto(t *table.Table, m *Model, visiting map[*Model]bool) error {
	if t.HasSelection() || m == nil {
		return nil
	}
	defaults, err := m.resolve(visiting)
	if err != nil {
		return err
	}
	t.SelectAll(defaults...)
	t.SetSource(nil)
	return nil
}

func (m *Model) newTable() *table.Table {
	t := table.New(m.TableName()).SetSource(m)
	if m.Connection != "" {
		t.Connection(m.Connection)
	}
	return t
}

// All starts a select over every row.
func (m *Model) All() *Query {
	return &Query{model: m, table: m.newTable()}
}

// Wrap binds a prebuilt descriptor to an anonymous model, for callers that
// build tables directly. opts supplies the role, headers and cache flag.
func Wrap(t *table.Table, opts compiler.QueryOptions) *Query {
	q := &Query{model: &Model{Table: t.Name()}, table: t}
	q.options.Role = opts.Role
	q.options.Cache = opts.Cache
	for k, v := range opts.Headers {
		q.Header(k, v)
	}
	if opts.Connection != "" && t.ConnectionName() == "" {
		t.Connection(opts.Connection)
	}
	return q
}

// Find targets one row by primary key values given in Primary's order.
func (m *Model) Find(values ...any) (*Query, error) {
	if len(m.Primary) == 0 {
		return nil, &compiler.ConfigError{Table: m.TableName(), Err: ErrMissingPrimary}
	}
	if len(values) != len(m.Primary) {
		return nil, &compiler.ConfigError{
			Table: m.TableName(),
			Err:   fmt.Errorf("%w: want %d, got %d", ErrPrimaryCountMismatch, len(m.Primary), len(values)),
		}
	}
	keys := make([]clause.KeyValue, len(values))
	for i, v := range values {
		keys[i] = clause.KeyValue{Column: m.Primary[i], Value: v}
	}
	q := m.All()
	q.table.Primary(keys...)
	return q, nil
}

// FirstWhere selects the first row whose field equals value.
func (m *Model) FirstWhere(field string, value any) *Query {
	q := m.All()
	q.table.WhereEq(field, value).Limit(1)
	return q
}

// Conflict describes an upsert.
type Conflict struct {
	Constraint string
	Fields     []string
	Where      clause.Filter
}

// Insert builds an insert of records, turned into an upsert when a
// conflict is given.
func (m *Model) Insert(records []map[string]any, conflict ...Conflict) *Query {
	q := m.All()
	q.table.Insert(records...)
	if len(conflict) > 0 {
		c := conflict[0]
		q.table.OnConflict(c.Constraint, c.Fields, c.Where)
	}
	return q
}

// Update builds an update that sets values on matching rows.
func (m *Model) Update(values map[string]any) *Query {
	q := m.All()
	q.table.Update(values)
	return q
}

// Delete builds a delete of matching rows.
func (m *Model) Delete() *Query {
	q := m.All()
	q.table.Delete()
	return q
}
