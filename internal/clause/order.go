package clause

// Direction is a Hasura order_by direction.
type Direction string

const (
	Asc            Direction = "asc"
	Desc           Direction = "desc"
	AscNullsFirst  Direction = "asc_nulls_first"
	AscNullsLast   Direction = "asc_nulls_last"
	DescNullsFirst Direction = "desc_nulls_first"
	DescNullsLast  Direction = "desc_nulls_last"
)

// Valid reports whether d is one of the directions Hasura accepts.
func (d Direction) Valid() bool {
	switch d {
	case Asc, Desc, AscNullsFirst, AscNullsLast, DescNullsFirst, DescNullsLast:
		return true
	}
	return false
}

// SortFields maps a column to its direction.
type SortFields map[string]Direction

// Order renders order_by either as one object (all fields applied as one
// group) or as a list of objects (tie-break order as written).
type Order struct {
	object SortFields
	list   []SortFields
}

// NewOrder orders by a single grouping of fields.
func NewOrder(fields SortFields) *Order {
	return &Order{object: copySort(fields)}
}

// NewOrderList orders by each entry in turn.
func NewOrderList(fields ...SortFields) *Order {
	o := &Order{list: make([]SortFields, 0, len(fields))}
	for _, f := range fields {
		if len(f) > 0 {
			o.list = append(o.list, copySort(f))
		}
	}
	return o
}

func (o *Order) Kind() Kind { return KindOrder }

func (o *Order) Render(target Target, idx int) (*Rendered, error) {
	typ := "[" + target.TypeBase() + "_order_by!]"
	switch {
	case len(o.list) > 0:
		value := make([]any, len(o.list))
		for i, f := range o.list {
			value[i] = sortValue(f)
		}
		return single(KindOrder, "order_by", "order_by", idx, typ, value), nil
	case len(o.object) > 0:
		return single(KindOrder, "order_by", "order_by", idx, typ, sortValue(o.object)), nil
	}
	return nil, nil
}

func (o *Order) Clone() Clause {
	c := &Order{object: copySort(o.object)}
	if o.list != nil {
		c.list = make([]SortFields, len(o.list))
		for i, f := range o.list {
			c.list[i] = copySort(f)
		}
	}
	return c
}

func sortValue(f SortFields) map[string]any {
	out := make(map[string]any, len(f))
	for k, d := range f {
		out[k] = string(d)
	}
	return out
}

func copySort(f SortFields) SortFields {
	if f == nil {
		return nil
	}
	out := make(SortFields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
