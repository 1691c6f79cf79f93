// Package table provides the mutable descriptor for one GraphQL root or
// nested field and the clauses attached to it.
package table

import (
	"strings"

	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
)

// Reset passed to Limit or Offset removes the clause instead of setting a
// value. Zero is a valid limit and is rendered.
const Reset = -1

// Kind classifies what a descriptor does when it is the root of an
// operation.
type Kind string

const (
	KindSelect Kind = "select"
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Mutating reports whether k belongs in a mutation document.
func (k Kind) Mutating() bool {
	return k == KindInsert || k == KindUpdate || k == KindDelete
}

// Selection is one entry of a selection set: either a scalar field (which
// may carry a raw sub-selection such as "aggregate{count}") or a nested
// descriptor.
type Selection struct {
	Scalar string
	Nested *Table
}

// Field selects a scalar field.
func Field(name string) Selection { return Selection{Scalar: name} }

// Nest selects a nested descriptor.
func Nest(t *Table) Selection { return Selection{Nested: t} }

func (s Selection) clone() Selection {
	if s.Nested != nil {
		return Selection{Nested: s.Nested.Clone()}
	}
	return s
}

// Source supplies the default selection of a descriptor that has no
// explicit selection. Models implement it.
type Source interface {
	DefaultSelection() ([]Selection, error)
}

// BuildOptions override how a descriptor renders when it is compiled.
type BuildOptions struct {
	// Nested marks a descriptor that is only ever spliced into a parent
	// selection set.
	Nested bool
	// Name and Alias replace the rendered field name and alias without
	// changing the name input types are derived from.
	Name  string
	Alias string
}

// Table describes one GraphQL field and its arguments.
type Table struct {
	name       string
	alias      string
	connection string
	kind       Kind

	selections []Selection
	filters    []clause.Condition
	clauses    map[clause.Kind]clause.Clause

	rowFuncs []result.FieldFunc
	options  BuildOptions
	source   Source
}

// New returns an empty select descriptor for name.
func New(name string, alias ...string) *Table {
	t := &Table{
		name:    name,
		kind:    KindSelect,
		clauses: map[clause.Kind]clause.Clause{},
	}
	if len(alias) > 0 {
		t.alias = alias[0]
	}
	return t
}

func (t *Table) Name() string  { return t.name }
func (t *Table) Alias() string { return t.alias }
func (t *Table) Kind() Kind    { return t.kind }

// ConnectionName is the registry entry the descriptor is sent to. Empty
// means the default connection.
func (t *Table) ConnectionName() string { return t.connection }

func (t *Table) Source() Source { return t.source }

func (t *Table) BuildOptions() BuildOptions { return t.options }

// SetKind changes what the descriptor does as an operation root.
func (t *Table) SetKind(k Kind) *Table {
	t.kind = k
	return t
}

// As sets the field alias.
func (t *Table) As(alias string) *Table {
	t.alias = alias
	return t
}

func (t *Table) Connection(name string) *Table {
	t.connection = name
	return t
}

func (t *Table) SetSource(src Source) *Table {
	t.source = src
	return t
}

func (t *Table) SetBuildOptions(opts BuildOptions) *Table {
	t.options = opts
	return t
}

// Select appends fields. Each argument may hold several fields separated
// by commas or newlines; separators inside braces are kept so raw
// sub-selections survive.
func (t *Table) Select(fields ...string) *Table {
	for _, f := range fields {
		for _, name := range splitFields(f) {
			t.selections = append(t.selections, Field(name))
		}
	}
	return t
}

// SelectNested appends nested descriptors.
func (t *Table) SelectNested(tables ...*Table) *Table {
	for _, nested := range tables {
		if nested != nil {
			t.selections = append(t.selections, Nest(nested))
		}
	}
	return t
}

// SelectAll appends already resolved selections.
func (t *Table) SelectAll(selections ...Selection) *Table {
	t.selections = append(t.selections, selections...)
	return t
}

// ClearSelect drops every selection so defaults apply again.
func (t *Table) ClearSelect() *Table {
	t.selections = nil
	return t
}

// Selections returns the explicit selection set.
func (t *Table) Selections() []Selection {
	return append([]Selection(nil), t.selections...)
}

func (t *Table) HasSelection() bool { return len(t.selections) > 0 }

// Where attaches a filter. Every call is an independent top-level AND.
func (t *Table) Where(f clause.Filter) *Table {
	if len(f) > 0 {
		t.filters = append(t.filters, clause.NewWhere(f))
	}
	return t
}

func (t *Table) WhereEq(field string, value any) *Table {
	return t.Where(clause.Eq(field, value))
}

func (t *Table) WhereOp(field, op string, value any) *Table {
	return t.Where(clause.Op(field, op, value))
}

func (t *Table) WhereTruthy(field string) *Table {
	return t.Where(clause.Truthy(field))
}

func (t *Table) WhereFalsy(field string) *Table {
	return t.Where(clause.Falsy(field))
}

// Or collects the filters attached inside fn into a single _or group.
func (t *Table) Or(fn func(*Table)) *Table {
	return t.group(fn, clause.NewOr)
}

// And collects the filters attached inside fn into a single _and group.
func (t *Table) And(fn func(*Table)) *Table {
	return t.group(fn, clause.NewAnd)
}

func (t *Table) group(fn func(*Table), build func(...clause.Filter) *clause.Group) *Table {
	scratch := New(t.name)
	fn(scratch)
	if len(scratch.filters) == 0 {
		return t
	}
	members := make([]clause.Filter, len(scratch.filters))
	for i, c := range scratch.filters {
		members[i] = c.Condition()
	}
	t.filters = append(t.filters, build(members...))
	return t
}

// Conditions returns the attached filters in attachment order.
func (t *Table) Conditions() []clause.Condition {
	return append([]clause.Condition(nil), t.filters...)
}

// Limit sets the limit and optionally the offset. Reset removes the
// corresponding clause. Limit(n) alone keeps an offset set earlier; use
// Limit(n, 0) to start from the first row again.
func (t *Table) Limit(limit int, offset ...int) *Table {
	if limit == Reset {
		delete(t.clauses, clause.KindLimit)
	} else {
		t.clauses[clause.KindLimit] = clause.NewLimit(limit)
	}
	if len(offset) > 0 {
		t.Offset(offset[0])
	}
	return t
}

// Offset sets the offset, or removes it when n is Reset.
func (t *Table) Offset(n int) *Table {
	if n == Reset {
		delete(t.clauses, clause.KindOffset)
		return t
	}
	t.clauses[clause.KindOffset] = clause.NewOffset(n)
	return t
}

// Primary targets one row by its key columns, in the order given.
func (t *Table) Primary(keys ...clause.KeyValue) *Table {
	if len(keys) == 0 {
		delete(t.clauses, clause.KindPrimary)
		return t
	}
	t.clauses[clause.KindPrimary] = clause.NewPrimary(keys...)
	return t
}

// PrimaryKey is Primary for a single column key.
func (t *Table) PrimaryKey(column string, value any) *Table {
	return t.Primary(clause.KeyValue{Column: column, Value: value})
}

// Order sorts by one grouping of fields.
func (t *Table) Order(fields clause.SortFields) *Table {
	t.clauses[clause.KindOrder] = clause.NewOrder(fields)
	return t
}

// OrderBy sorts by each entry in turn.
func (t *Table) OrderBy(fields ...clause.SortFields) *Table {
	t.clauses[clause.KindOrder] = clause.NewOrderList(fields...)
	return t
}

func (t *Table) Distinct(columns ...string) *Table {
	t.clauses[clause.KindDistinct] = clause.NewDistinct(columns...)
	return t
}

// Cursor turns a select into a stream starting after value of field,
// delivered in batches of size.
func (t *Table) Cursor(size int, field string, value any, ordering ...clause.CursorOrdering) *Table {
	var o clause.CursorOrdering
	if len(ordering) > 0 {
		o = ordering[0]
	}
	t.clauses[clause.KindCursor] = clause.NewCursor(field, value, o)
	t.clauses[clause.KindBatchSize] = clause.NewBatchSize(size)
	return t
}

func (t *Table) BatchSize(size int) *Table {
	t.clauses[clause.KindBatchSize] = clause.NewBatchSize(size)
	return t
}

// Params passes named arguments to a function-backed table.
func (t *Table) Params(params map[string]any) *Table {
	t.clauses[clause.KindTableParams] = clause.NewTableParams(params)
	return t
}

// Raw appends a verbatim argument fragment with the variables it uses.
func (t *Table) Raw(fragment string, params []clause.Param, values map[string]any) *Table {
	t.clauses[clause.KindRaw] = clause.NewRaw(fragment, params, values)
	return t
}

// Insert makes the descriptor an insert of records.
func (t *Table) Insert(records ...map[string]any) *Table {
	t.kind = KindInsert
	t.clauses[clause.KindInsert] = clause.NewInsertObjects(records...)
	return t
}

// Update makes the descriptor an update that sets values.
func (t *Table) Update(values map[string]any) *Table {
	t.kind = KindUpdate
	t.clauses[clause.KindSet] = clause.NewUpdateSet(values)
	return t
}

// Increment makes the descriptor an update that adds to numeric columns.
func (t *Table) Increment(values map[string]any) *Table {
	t.kind = KindUpdate
	t.clauses[clause.KindIncrement] = clause.NewIncrement(values)
	return t
}

// Delete makes the descriptor a delete.
func (t *Table) Delete() *Table {
	t.kind = KindDelete
	return t
}

// OnConflict turns an insert into an upsert on constraint.
func (t *Table) OnConflict(constraint string, updateColumns []string, where clause.Filter) *Table {
	t.clauses[clause.KindConflict] = clause.NewOnConflict(constraint, updateColumns, where)
	return t
}

// Clause returns the clause attached for k.
func (t *Table) Clause(k clause.Kind) (clause.Clause, bool) {
	c, ok := t.clauses[k]
	return c, ok
}

// Without removes the clauses of the given kinds.
func (t *Table) Without(kinds ...clause.Kind) *Table {
	for _, k := range kinds {
		if k == clause.KindWhere {
			t.filters = nil
			continue
		}
		delete(t.clauses, k)
	}
	return t
}

// Field registers a callback run on every returned row.
func (t *Table) Field(fn result.FieldFunc) *Table {
	if fn != nil {
		t.rowFuncs = append(t.rowFuncs, fn)
	}
	return t
}

func (t *Table) RowFuncs() []result.FieldFunc {
	return append([]result.FieldFunc(nil), t.rowFuncs...)
}

// Clone returns an independent copy. The optional arguments replace the
// name and alias of the copy. The source is shared; it is read only.
func (t *Table) Clone(nameAlias ...string) *Table {
	c := &Table{
		name:       t.name,
		alias:      t.alias,
		connection: t.connection,
		kind:       t.kind,
		clauses:    make(map[clause.Kind]clause.Clause, len(t.clauses)),
		rowFuncs:   append([]result.FieldFunc(nil), t.rowFuncs...),
		options:    t.options,
		source:     t.source,
	}
	if len(nameAlias) > 0 {
		c.name = nameAlias[0]
	}
	if len(nameAlias) > 1 {
		c.alias = nameAlias[1]
	}
	if t.selections != nil {
		c.selections = make([]Selection, len(t.selections))
		for i, s := range t.selections {
			c.selections[i] = s.clone()
		}
	}
	if t.filters != nil {
		c.filters = make([]clause.Condition, len(t.filters))
		for i, f := range t.filters {
			c.filters[i] = f.CloneCondition()
		}
	}
	for k, cl := range t.clauses {
		c.clauses[k] = cl.Clone()
	}
	return c
}

// splitFields splits on commas and newlines outside braces and parentheses.
func splitFields(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	flush := func(end int) {
		if f := strings.TrimSpace(s[start:end]); f != "" {
			out = append(out, f)
		}
	}
	for i, r := range s {
		switch r {
		case '{', '(':
			depth++
		case '}', ')':
			if depth > 0 {
				depth--
			}
		case ',', '\n':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(s))
	return out
}
