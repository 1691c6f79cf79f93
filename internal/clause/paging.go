package clause

// Limit caps the number of returned rows.
type Limit struct {
	n int
}

func NewLimit(n int) *Limit { return &Limit{n: n} }

func (l *Limit) Value() int { return l.n }

func (l *Limit) Kind() Kind { return KindLimit }

func (l *Limit) Render(_ Target, idx int) (*Rendered, error) {
	return single(KindLimit, "limit", "limit", idx, "Int", l.n), nil
}

func (l *Limit) Clone() Clause { return &Limit{n: l.n} }

// Offset skips rows before the first returned one.
type Offset struct {
	n int
}

func NewOffset(n int) *Offset { return &Offset{n: n} }

func (o *Offset) Value() int { return o.n }

func (o *Offset) Kind() Kind { return KindOffset }

func (o *Offset) Render(_ Target, idx int) (*Rendered, error) {
	return single(KindOffset, "offset", "offset", idx, "Int", o.n), nil
}

func (o *Offset) Clone() Clause { return &Offset{n: o.n} }

// Distinct renders distinct_on.
type Distinct struct {
	columns []string
}

func NewDistinct(columns ...string) *Distinct {
	return &Distinct{columns: append([]string(nil), columns...)}
}

func (d *Distinct) Kind() Kind { return KindDistinct }

func (d *Distinct) Render(target Target, idx int) (*Rendered, error) {
	if len(d.columns) == 0 {
		return nil, nil
	}
	typ := "[" + target.TypeBase() + "_select_column!]"
	return single(KindDistinct, "distinct_on", "distinct_on", idx, typ, append([]string(nil), d.columns...)), nil
}

func (d *Distinct) Clone() Clause { return NewDistinct(d.columns...) }
