// Package cursor encodes opaque resume tokens: page tokens for classic
// pagination and stream tokens that restart a cursor subscription after the
// last row seen. Tokens are base64-encoded JSON. Values are stored as
// strings with a type tag so large integers survive the round trip.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const version = 1

// Value type tags.
const (
	tagString = "s"
	tagInt    = "i"
	tagFloat  = "f"
	tagBool   = "b"
	tagTime   = "t"
)

// PageToken marks a page of a paginated read.
type PageToken struct {
	Table   string
	Page    int
	PerPage int
}

// StreamToken marks the last row delivered by a cursor subscription.
type StreamToken struct {
	Table    string
	Field    string
	Ordering string
	Value    any
}

type pagePayload struct {
	Version int    `json:"v"`
	Table   string `json:"t"`
	Page    int    `json:"p"`
	PerPage int    `json:"n"`
}

type streamPayload struct {
	Version  int    `json:"v"`
	Table    string `json:"t"`
	Field    string `json:"f"`
	Ordering string `json:"o,omitempty"`
	Tag      string `json:"k"`
	Value    string `json:"val"`
}

// EncodePage builds an opaque page token.
func EncodePage(tok PageToken) string {
	return encode(pagePayload{Version: version, Table: tok.Table, Page: tok.Page, PerPage: tok.PerPage})
}

// DecodePage parses a page token and checks it belongs to table.
func DecodePage(raw, table string) (PageToken, error) {
	var p pagePayload
	if err := decode(raw, &p); err != nil {
		return PageToken{}, err
	}
	if p.Version != version {
		return PageToken{}, fmt.Errorf("invalid page token: unsupported version %d", p.Version)
	}
	if p.Table != table {
		return PageToken{}, fmt.Errorf("page token table mismatch: expected %s, got %s", table, p.Table)
	}
	if p.Page < 1 || p.PerPage < 1 {
		return PageToken{}, fmt.Errorf("invalid page token: page and page size must be positive")
	}
	return PageToken{Table: p.Table, Page: p.Page, PerPage: p.PerPage}, nil
}

// EncodeStream builds an opaque stream token.
func EncodeStream(tok StreamToken) string {
	tag, value := tagged(tok.Value)
	return encode(streamPayload{
		Version:  version,
		Table:    tok.Table,
		Field:    tok.Field,
		Ordering: strings.ToUpper(tok.Ordering),
		Tag:      tag,
		Value:    value,
	})
}

// DecodeStream parses a stream token, restoring the value's type.
func DecodeStream(raw string) (StreamToken, error) {
	var p streamPayload
	if err := decode(raw, &p); err != nil {
		return StreamToken{}, err
	}
	if p.Version != version {
		return StreamToken{}, fmt.Errorf("invalid stream token: unsupported version %d", p.Version)
	}
	if p.Table == "" || p.Field == "" {
		return StreamToken{}, fmt.Errorf("invalid stream token: missing table or field")
	}
	if p.Ordering != "" && p.Ordering != "ASC" && p.Ordering != "DESC" {
		return StreamToken{}, fmt.Errorf("invalid stream token: ordering must be ASC or DESC")
	}
	value, err := untag(p.Tag, p.Value)
	if err != nil {
		return StreamToken{}, fmt.Errorf("invalid stream token value: %w", err)
	}
	return StreamToken{Table: p.Table, Field: p.Field, Ordering: p.Ordering, Value: value}, nil
}

// ValidateStream confirms tok resumes a stream over table ordered by field.
func ValidateStream(table, field string, tok StreamToken) error {
	if tok.Table != table {
		return fmt.Errorf("stream token table mismatch: expected %s, got %s", table, tok.Table)
	}
	if tok.Field != field {
		return fmt.Errorf("stream token field mismatch: expected %s, got %s", field, tok.Field)
	}
	return nil
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func decode(raw string, v any) error {
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid token format: %w", err)
	}
	return nil
}

// tagged string-coerces v. JSON numbers that decode as float64 but hold an
// integer are tagged as integers.
func tagged(v any) (string, string) {
	switch val := v.(type) {
	case string:
		return tagString, val
	case time.Time:
		return tagTime, val.Format(time.RFC3339Nano)
	case bool:
		return tagBool, strconv.FormatBool(val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return tagInt, cast.ToString(val)
	case float32, float64:
		f := cast.ToFloat64(val)
		if f == float64(int64(f)) {
			return tagInt, strconv.FormatInt(int64(f), 10)
		}
		return tagFloat, strconv.FormatFloat(f, 'g', -1, 64)
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return tagInt, val.String()
		}
		return tagFloat, val.String()
	default:
		return tagString, cast.ToString(val)
	}
}

func untag(tag, value string) (any, error) {
	switch tag {
	case tagString:
		return value, nil
	case tagInt:
		return strconv.ParseInt(value, 10, 64)
	case tagFloat:
		return strconv.ParseFloat(value, 64)
	case tagBool:
		return strconv.ParseBool(value)
	case tagTime:
		// Hasura compares timestamps as strings; keep the text form.
		if _, err := time.Parse(time.RFC3339Nano, value); err != nil {
			return nil, err
		}
		return value, nil
	}
	return nil, fmt.Errorf("unknown type tag %q", tag)
}
