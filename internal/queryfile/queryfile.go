// Package queryfile loads query descriptions from YAML or JSON files so
// they can be compiled and run without writing Go.
//
//	name: ActiveUsers
//	tables:
//	  - table: users
//	    select: [id, name]
//	    where: {active: {_eq: true}}
//	    order_by: [{created_at: desc}]
//	    limit: 10
//	    nested:
//	      - table: posts
//	        select: [id, title]
package queryfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/TheColorRed/hasura-query-builder/internal/clause"
	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/cursor"
	"github.com/TheColorRed/hasura-query-builder/internal/model"
	"github.com/TheColorRed/hasura-query-builder/internal/naming"
	"github.com/TheColorRed/hasura-query-builder/internal/table"
)

var (
	ErrNoTables      = errors.New("query file defines no tables")
	ErrMissingTable  = errors.New("table name is required")
	ErrTableAndModel = errors.New("table and model are mutually exclusive")
	ErrConflictingOp = errors.New("table mixes insert, update and delete")
	ErrNotStreaming  = errors.New("query file has no streaming cursor")
)

// File is one query document.
type File struct {
	Name       string            `yaml:"name" json:"name"`
	Operation  string            `yaml:"operation" json:"operation"`
	Type       string            `yaml:"type" json:"type"`
	Connection string            `yaml:"connection" json:"connection"`
	Role       string            `yaml:"role" json:"role"`
	Cache      bool              `yaml:"cache" json:"cache"`
	Headers    map[string]string `yaml:"headers" json:"headers"`
	Tables     []Table           `yaml:"tables" json:"tables"`
}

// Table describes one root or nested field. Model derives the table name
// from a model name with the configured naming rules.
type Table struct {
	Name     string              `yaml:"table" json:"table"`
	Model    string              `yaml:"model" json:"model"`
	Alias    string              `yaml:"alias" json:"alias"`
	Select   []string            `yaml:"select" json:"select"`
	Nested   []Table             `yaml:"nested" json:"nested"`
	Where    map[string]any      `yaml:"where" json:"where"`
	OrderBy  []map[string]string `yaml:"order_by" json:"order_by"`
	Distinct []string            `yaml:"distinct_on" json:"distinct_on"`
	Limit    *int                `yaml:"limit" json:"limit"`
	Offset   *int                `yaml:"offset" json:"offset"`
	Primary  []Key               `yaml:"primary" json:"primary"`
	Cursor   *Cursor             `yaml:"cursor" json:"cursor"`
	Params   map[string]any      `yaml:"params" json:"params"`
	Objects  []map[string]any    `yaml:"objects" json:"objects"`
	Conflict *Conflict           `yaml:"on_conflict" json:"on_conflict"`
	Set      map[string]any      `yaml:"set" json:"set"`
	Inc      map[string]any      `yaml:"inc" json:"inc"`
	Delete   bool                `yaml:"delete" json:"delete"`
}

// Key is one primary key column.
type Key struct {
	Column string `yaml:"column" json:"column"`
	Value  any    `yaml:"value" json:"value"`
}

// Cursor starts a streaming subscription.
type Cursor struct {
	Field     string `yaml:"field" json:"field"`
	Value     any    `yaml:"value" json:"value"`
	Ordering  string `yaml:"ordering" json:"ordering"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

// Conflict turns an insert into an upsert.
type Conflict struct {
	Constraint    string         `yaml:"constraint" json:"constraint"`
	UpdateColumns []string       `yaml:"update_columns" json:"update_columns"`
	Where         map[string]any `yaml:"where" json:"where"`
}

// Load reads path, expanding a leading ~. The format follows the
// extension: .yaml and .yml are YAML, anything else JSON.
func Load(path string) (*File, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}
	f, err := Parse(data, filepath.Ext(expanded))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes data in the format named by ext.
func Parse(data []byte, ext string) (*File, error) {
	data = bytes.TrimSpace(data)
	f := &File{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		if err := dec.Decode(f); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
		f.normalize()
	}
	if len(f.Tables) == 0 {
		return nil, ErrNoTables
	}
	return f, nil
}

// Options returns the compile options the file asks for.
func (f *File) Options() (compiler.Options, error) {
	opts := compiler.Options{Name: f.Name, QueryOptions: f.requestOptions()}
	switch op := compiler.Operation(strings.ToLower(f.Operation)); op {
	case "":
	case compiler.OpSelect, compiler.OpInsert, compiler.OpUpdate, compiler.OpDelete, compiler.OpTransaction:
		opts.Operation = op
	default:
		return opts, fmt.Errorf("%w %q", compiler.ErrUnknownOperation, f.Operation)
	}
	switch typ := compiler.OperationType(strings.ToLower(f.Type)); typ {
	case "":
	case compiler.TypeQuery, compiler.TypeMutation, compiler.TypeSubscription:
		opts.Type = typ
	default:
		return opts, fmt.Errorf("unknown operation type %q", f.Type)
	}
	if len(f.Tables) > 1 && opts.Operation == "" {
		opts.Operation = compiler.OpTransaction
	}
	return opts, nil
}

// Descriptors builds one table descriptor per root table.
func (f *File) Descriptors() ([]*table.Table, error) {
	out := make([]*table.Table, len(f.Tables))
	for i, def := range f.Tables {
		t, err := def.descriptor()
		if err != nil {
			return nil, err
		}
		if f.Connection != "" {
			t.Connection(f.Connection)
		}
		out[i] = t
	}
	return out, nil
}

// Compile builds the file into a request body.
func (f *File) Compile() (*compiler.QueryBody, error) {
	tables, err := f.Descriptors()
	if err != nil {
		return nil, err
	}
	opts, err := f.Options()
	if err != nil {
		return nil, err
	}
	return compiler.Compile(tables, opts)
}

// Queries wraps every root descriptor in a query carrying the file's
// request options.
func (f *File) Queries() ([]*model.Query, error) {
	tables, err := f.Descriptors()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Query, len(tables))
	for i, t := range tables {
		out[i] = model.Wrap(t, f.requestOptions())
	}
	return out, nil
}

// Resume moves the cursor of the streaming table to the position in tok.
func (f *File) Resume(tok cursor.StreamToken) error {
	for i := range f.Tables {
		c := f.Tables[i].Cursor
		if c == nil {
			continue
		}
		name, err := f.Tables[i].tableName()
		if err != nil {
			return err
		}
		if err := cursor.ValidateStream(name, c.Field, tok); err != nil {
			return err
		}
		c.Value = tok.Value
		c.Ordering = tok.Ordering
		return nil
	}
	return ErrNotStreaming
}

func (f *File) requestOptions() compiler.QueryOptions {
	return compiler.QueryOptions{
		Cache:      f.Cache,
		Headers:    f.Headers,
		Connection: f.Connection,
		Role:       f.Role,
	}
}

// Streaming reports whether any root table has a cursor.
func (f *File) Streaming() bool {
	for _, t := range f.Tables {
		if t.Cursor != nil {
			return true
		}
	}
	return false
}

func (d Table) tableName() (string, error) {
	switch {
	case d.Name != "" && d.Model != "":
		return "", fmt.Errorf("%s: %w", d.Name, ErrTableAndModel)
	case d.Model != "":
		namer := naming.Default()
		name := namer.TableName(d.Model)
		namer.Check(name)
		return name, nil
	case d.Name == "":
		return "", ErrMissingTable
	}
	return d.Name, nil
}

func (d Table) descriptor() (*table.Table, error) {
	name, err := d.tableName()
	if err != nil {
		return nil, err
	}
	t := table.New(name)
	if d.Alias != "" {
		t.As(d.Alias)
	}
	t.Select(d.Select...)
	for _, n := range d.Nested {
		nested, err := n.descriptor()
		if err != nil {
			return nil, fmt.Errorf("%s.%w", name, err)
		}
		t.SelectNested(nested)
	}
	if len(d.Where) > 0 {
		t.Where(clause.Filter(d.Where))
	}
	if len(d.OrderBy) > 0 {
		fields := make([]clause.SortFields, len(d.OrderBy))
		for i, group := range d.OrderBy {
			fields[i] = clause.SortFields{}
			for col, dir := range group {
				direction := clause.Direction(strings.ToLower(dir))
				if !direction.Valid() {
					return nil, fmt.Errorf("%s: invalid order direction %q for %s", name, dir, col)
				}
				fields[i][col] = direction
			}
		}
		t.OrderBy(fields...)
	}
	if len(d.Distinct) > 0 {
		t.Distinct(d.Distinct...)
	}
	if d.Limit != nil {
		t.Limit(*d.Limit)
	}
	if d.Offset != nil {
		t.Offset(*d.Offset)
	}
	if len(d.Primary) > 0 {
		keys := make([]clause.KeyValue, len(d.Primary))
		for i, k := range d.Primary {
			keys[i] = clause.KeyValue{Column: k.Column, Value: k.Value}
		}
		t.Primary(keys...)
	}
	if d.Cursor != nil {
		t.Cursor(d.Cursor.BatchSize, d.Cursor.Field, d.Cursor.Value, clause.CursorOrdering(strings.ToUpper(d.Cursor.Ordering)))
	}
	if len(d.Params) > 0 {
		t.Params(d.Params)
	}

	mutations := 0
	if len(d.Objects) > 0 {
		mutations++
		t.Insert(d.Objects...)
		if d.Conflict != nil {
			var where clause.Filter
			if len(d.Conflict.Where) > 0 {
				where = clause.Filter(d.Conflict.Where)
			}
			t.OnConflict(d.Conflict.Constraint, d.Conflict.UpdateColumns, where)
		}
	}
	if len(d.Set) > 0 || len(d.Inc) > 0 {
		mutations++
		if len(d.Set) > 0 {
			t.Update(d.Set)
		}
		if len(d.Inc) > 0 {
			t.Increment(d.Inc)
		}
	}
	if d.Delete {
		mutations++
		t.Delete()
	}
	if mutations > 1 {
		return nil, fmt.Errorf("%s: %w", name, ErrConflictingOp)
	}
	return t, nil
}

// normalize turns json.Number values into int64 or float64 so primary keys
// and inferred params get integer types.
func (f *File) normalize() {
	for i := range f.Tables {
		f.Tables[i].normalize()
	}
}

func (d *Table) normalize() {
	d.Where = numbers(d.Where).(map[string]any)
	d.Params = numbers(d.Params).(map[string]any)
	d.Set = numbers(d.Set).(map[string]any)
	d.Inc = numbers(d.Inc).(map[string]any)
	for i := range d.Objects {
		d.Objects[i] = numbers(d.Objects[i]).(map[string]any)
	}
	for i := range d.Primary {
		d.Primary[i].Value = numbers(d.Primary[i].Value)
	}
	if d.Cursor != nil {
		d.Cursor.Value = numbers(d.Cursor.Value)
	}
	if d.Conflict != nil {
		d.Conflict.Where = numbers(d.Conflict.Where).(map[string]any)
	}
	for i := range d.Nested {
		d.Nested[i].normalize()
	}
}

func numbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return val
		}
		for k, item := range val {
			val[k] = numbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = numbers(item)
		}
		return val
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n)
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	}
	return v
}
