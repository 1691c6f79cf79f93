package clause

// InsertObjects is the objects payload of an insert mutation.
type InsertObjects struct {
	records []map[string]any
}

func NewInsertObjects(records ...map[string]any) *InsertObjects {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = copyMap(r)
	}
	return &InsertObjects{records: out}
}

func (o *InsertObjects) Kind() Kind { return KindInsert }

func (o *InsertObjects) Render(target Target, idx int) (*Rendered, error) {
	value := make([]any, len(o.records))
	for i, r := range o.records {
		value[i] = copyMap(r)
	}
	typ := "[" + target.TypeBase() + "_insert_input!]!"
	return single(KindInsert, "objects", "insert_object", idx, typ, value), nil
}

func (o *InsertObjects) Clone() Clause { return NewInsertObjects(o.records...) }

// UpdateSet is the _set payload of an update mutation.
type UpdateSet struct {
	values map[string]any
}

func NewUpdateSet(values map[string]any) *UpdateSet {
	return &UpdateSet{values: copyMap(values)}
}

func (s *UpdateSet) Kind() Kind { return KindSet }

func (s *UpdateSet) Render(target Target, idx int) (*Rendered, error) {
	if len(s.values) == 0 {
		return nil, nil
	}
	return single(KindSet, "_set", "update_object", idx, target.TypeBase()+"_set_input", copyMap(s.values)), nil
}

func (s *UpdateSet) Clone() Clause { return NewUpdateSet(s.values) }

// Increment is the _inc payload of an update mutation.
type Increment struct {
	values map[string]any
}

func NewIncrement(values map[string]any) *Increment {
	return &Increment{values: copyMap(values)}
}

func (i *Increment) Kind() Kind { return KindIncrement }

func (i *Increment) Render(target Target, idx int) (*Rendered, error) {
	if len(i.values) == 0 {
		return nil, nil
	}
	return single(KindIncrement, "_inc", "inc_object", idx, target.TypeBase()+"_inc_input", copyMap(i.values)), nil
}

func (i *Increment) Clone() Clause { return NewIncrement(i.values) }

// OnConflict turns an insert into an upsert.
type OnConflict struct {
	constraint    string
	updateColumns []string
	where         Filter
}

func NewOnConflict(constraint string, updateColumns []string, where Filter) *OnConflict {
	return &OnConflict{
		constraint:    constraint,
		updateColumns: append([]string{}, updateColumns...),
		where:         Filter(copyMap(where)),
	}
}

func (c *OnConflict) Kind() Kind { return KindConflict }

func (c *OnConflict) Render(target Target, idx int) (*Rendered, error) {
	value := map[string]any{
		"update_columns": append([]string{}, c.updateColumns...),
		"constraint":     c.constraint,
	}
	if len(c.where) > 0 {
		value["where"] = copyMap(c.where)
	}
	return single(KindConflict, "on_conflict", "on_conflict", idx, target.TypeBase()+"_on_conflict!", value), nil
}

func (c *OnConflict) Clone() Clause { return NewOnConflict(c.constraint, c.updateColumns, c.where) }
