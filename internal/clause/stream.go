package clause

// CursorOrdering is the direction a stream advances in.
type CursorOrdering string

const (
	CursorAsc  CursorOrdering = "ASC"
	CursorDesc CursorOrdering = "DESC"
)

// Cursor is the starting point of a streaming subscription.
type Cursor struct {
	field    string
	value    any
	ordering CursorOrdering
}

// NewCursor starts streaming from rows whose field is past value. An empty
// ordering leaves the server default in place.
func NewCursor(field string, value any, ordering CursorOrdering) *Cursor {
	return &Cursor{field: field, value: DeepCopy(value), ordering: ordering}
}

func (c *Cursor) Kind() Kind { return KindCursor }

func (c *Cursor) Render(target Target, idx int) (*Rendered, error) {
	value := map[string]any{
		"initial_value": map[string]any{c.field: DeepCopy(c.value)},
	}
	if c.ordering != "" {
		value["ordering"] = string(c.ordering)
	}
	typ := "[" + target.TypeBase() + "_stream_cursor_input]!"
	return single(KindCursor, "cursor", "cursor", idx, typ, value), nil
}

func (c *Cursor) Clone() Clause { return NewCursor(c.field, c.value, c.ordering) }

// BatchSize is the number of rows per streamed batch.
type BatchSize struct {
	size int
}

func NewBatchSize(size int) *BatchSize { return &BatchSize{size: size} }

func (b *BatchSize) Kind() Kind { return KindBatchSize }

func (b *BatchSize) Render(_ Target, idx int) (*Rendered, error) {
	return single(KindBatchSize, "batch_size", "batch_size", idx, "Int!", b.size), nil
}

func (b *BatchSize) Clone() Clause { return &BatchSize{size: b.size} }
