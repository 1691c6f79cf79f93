package compiler

import (
	"fmt"
	"strings"

	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/table"
)

// Variables are declared in this order within one table.
var headerOrder = []clause.Kind{
	clause.KindWhere,
	clause.KindPrimary,
	clause.KindLimit,
	clause.KindOffset,
	clause.KindOrder,
	clause.KindDistinct,
	clause.KindInsert,
	clause.KindSet,
	clause.KindIncrement,
	clause.KindConflict,
	clause.KindCursor,
	clause.KindBatchSize,
	clause.KindTableParams,
	clause.KindRaw,
}

// Arguments are written in this order; KindWhere stands for the
// primary-key-or-where slot.
var argumentOrder = []clause.Kind{
	clause.KindInsert,
	clause.KindSet,
	clause.KindIncrement,
	clause.KindConflict,
	clause.KindLimit,
	clause.KindOffset,
	clause.KindDistinct,
	clause.KindWhere,
	clause.KindOrder,
	clause.KindCursor,
	clause.KindBatchSize,
	clause.KindTableParams,
	clause.KindRaw,
}

// Clauses each kind of root field accepts. Anything else attached to the
// descriptor is ignored for that kind.
var accepted = map[table.Kind][]clause.Kind{
	table.KindSelect: {
		clause.KindPrimary, clause.KindLimit, clause.KindOffset, clause.KindOrder, clause.KindDistinct,
		clause.KindCursor, clause.KindBatchSize, clause.KindTableParams, clause.KindRaw,
	},
	table.KindInsert: {clause.KindInsert, clause.KindConflict, clause.KindRaw},
	table.KindUpdate: {clause.KindPrimary, clause.KindSet, clause.KindIncrement, clause.KindRaw},
	table.KindDelete: {clause.KindPrimary, clause.KindRaw},
}

// Paging and ordering arguments that <table>_stream fields do not take.
var streamDropped = []clause.Kind{clause.KindLimit, clause.KindOffset, clause.KindDistinct, clause.KindOrder}

var nestedRejected = []clause.Kind{clause.KindPrimary, clause.KindCursor}

// rootField renders one root descriptor and returns it along with its
// response key.
func (c *compilation) rootField(t *table.Table, idx int, kind table.Kind) (string, string, error) {
	rendered, err := c.renderClauses(t, idx, kind)
	if err != nil {
		return "", "", err
	}
	_, byPK := rendered[clause.KindPrimary]
	_, streaming := rendered[clause.KindCursor]

	if kind == table.KindSelect && streaming {
		switch {
		case byPK:
			return "", "", &ConfigError{Table: t.Name(), Err: ErrCursorWithPrimary}
		case rendered[clause.KindBatchSize] == nil:
			return "", "", &ConfigError{Table: t.Name(), Err: ErrCursorWithoutBatch}
		case c.opType != TypeSubscription:
			return "", "", &ConfigError{Table: t.Name(), Err: ErrStreamOutsideSubscription}
		}
		for _, k := range streamDropped {
			delete(rendered, k)
		}
	}

	if err := c.declareAll(t.Name(), rendered); err != nil {
		return "", "", err
	}
	args := arguments(rendered, kind == table.KindUpdate && byPK)

	var generated string
	switch kind {
	case table.KindSelect:
		generated = t.Name()
		if byPK {
			generated += "_by_pk"
		} else if streaming {
			generated += "_stream"
		}
	case table.KindInsert:
		generated = "insert_" + t.Name()
	case table.KindUpdate, table.KindDelete:
		generated = string(kind) + "_" + t.Name()
		if byPK {
			generated += "_by_pk"
		}
	default:
		return "", "", &ConfigError{Table: t.Name(), Err: fmt.Errorf("%w %q", ErrUnknownOperation, kind)}
	}

	opts := c.override
	if opts.Name == "" && opts.Alias == "" {
		opts = t.BuildOptions()
	}
	name := fieldName(generated, t.Alias(), opts)
	key := name
	if i := strings.IndexByte(name, ':'); i >= 0 {
		key = name[:i]
	}

	selection, err := c.selection(t)
	if err != nil {
		return "", "", err
	}

	switch {
	case kind == table.KindSelect:
		if selection == "" {
			return "", "", &ConfigError{Table: t.Name(), Err: ErrNoSelection}
		}
		return name + args + "{" + selection + "}", key, nil
	case kind == table.KindInsert:
		if selection == "" {
			return "", "", &ConfigError{Table: t.Name(), Err: ErrNoSelection}
		}
		return name + args + "{affected_rows,returning{" + selection + "}}", key, nil
	case byPK:
		if selection == "" {
			selection = primaryColumns(t)
		}
		return name + args + "{" + selection + "}", key, nil
	case selection == "":
		return name + args + "{affected_rows}", key, nil
	default:
		return name + args + "{affected_rows,returning{" + selection + "}}", key, nil
	}
}

func (c *compilation) nestedField(t *table.Table) (string, error) {
	for _, k := range nestedRejected {
		if _, ok := t.Clause(k); ok {
			return "", &ConfigError{Table: t.Name(), Err: fmt.Errorf("%w: %s", ErrNestedArgument, k)}
		}
	}
	idx := c.nextIndex()
	rendered, err := c.renderClauses(t, idx, table.KindSelect)
	if err != nil {
		return "", err
	}
	if err := c.declareAll(t.Name(), rendered); err != nil {
		return "", err
	}
	selection, err := c.selection(t)
	if err != nil {
		return "", err
	}
	if selection == "" {
		return "", &ConfigError{Table: t.Name(), Err: ErrNoSelection}
	}
	name := fieldName(t.Name(), t.Alias(), t.BuildOptions())
	return name + arguments(rendered, false) + "{" + selection + "}", nil
}

// renderClauses renders every clause the kind accepts. The where slot is
// filled from the attached filters only when no primary key is set.
func (c *compilation) renderClauses(t *table.Table, idx int, kind table.Kind) (map[clause.Kind]*clause.Rendered, error) {
	target := clause.Target{Name: t.Name()}
	out := map[clause.Kind]*clause.Rendered{}
	for _, k := range accepted[kind] {
		cl, ok := t.Clause(k)
		if !ok {
			continue
		}
		r, err := cl.Render(target, idx)
		if err != nil {
			return nil, &ValidationError{Table: t.Name(), Err: fmt.Errorf("%s: %w", k, err)}
		}
		if r != nil {
			out[k] = r
		}
	}
	if kind != table.KindInsert && out[clause.KindPrimary] == nil {
		if r := clause.RenderWhere(target, idx, t.Conditions()); r != nil {
			out[clause.KindWhere] = r
		}
	}
	return out, nil
}

func (c *compilation) declareAll(tableName string, rendered map[clause.Kind]*clause.Rendered) error {
	for _, k := range headerOrder {
		if r, ok := rendered[k]; ok {
			if err := c.declare(tableName, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func arguments(rendered map[clause.Kind]*clause.Rendered, pkColumns bool) string {
	parts := make([]string, 0, len(rendered))
	for _, k := range argumentOrder {
		r := rendered[k]
		if k == clause.KindWhere {
			if pk := rendered[clause.KindPrimary]; pk != nil {
				if pkColumns {
					parts = append(parts, "pk_columns:{"+pk.Fragment+"}")
				} else {
					parts = append(parts, pk.Fragment)
				}
				continue
			}
		}
		if r != nil && r.Fragment != "" {
			parts = append(parts, r.Fragment)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// selection renders the explicit selection, or the source's defaults when
// nothing was selected.
func (c *compilation) selection(t *table.Table) (string, error) {
	selections := t.Selections()
	if len(selections) == 0 && t.Source() != nil {
		defaults, err := t.Source().DefaultSelection()
		if err != nil {
			return "", configErr(t.Name(), err)
		}
		selections = defaults
	}
	parts := make([]string, 0, len(selections))
	for _, s := range selections {
		if s.Nested != nil {
			f, err := c.nestedField(s.Nested)
			if err != nil {
				return "", err
			}
			parts = append(parts, f)
			continue
		}
		if s.Scalar != "" {
			parts = append(parts, s.Scalar)
		}
	}
	return strings.Join(parts, ","), nil
}

// fieldName applies an alias and any name override. An override name
// replaces the generated one including its suffix.
func fieldName(generated, alias string, opts table.BuildOptions) string {
	name := generated
	if opts.Name != "" {
		name = opts.Name
	}
	if opts.Alias != "" {
		alias = opts.Alias
	}
	if alias == "" || alias == name {
		return name
	}
	return alias + ":" + name
}

func primaryColumns(t *table.Table) string {
	cl, ok := t.Clause(clause.KindPrimary)
	if !ok {
		return ""
	}
	pk, ok := cl.(*clause.Primary)
	if !ok {
		return ""
	}
	keys := pk.Keys()
	cols := make([]string, len(keys))
	for i, k := range keys {
		cols[i] = k.Column
	}
	return strings.Join(cols, ",")
}
