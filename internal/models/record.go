package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	// ColumnHora is the time-of-day column shared by source and destination tables
	ColumnHora = "HORA"
	// ColumnID is the optional identity column of a source row
	ColumnID = "ID"
)

// Field is one column of a Record
type Field struct {
	Name  string
	Value any
}

// Record is a row with a dynamic schema. Column order is the order in which the
// columns were returned by the source query and is preserved by every operation.
// Values are limited to string, int64, float64 and nil.
type Record struct {
	fields []Field
	index  map[string]int
}

// NewRecord builds a Record from ordered fields. A repeated column keeps its first position
// and takes the last value.
func NewRecord(fields ...Field) Record {
	var r Record
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// Set assigns a column value, appending the column if it is new
func (r *Record) Set(name string, value any) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	value = NormalizeValue(value)
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: value})
}

// Get returns the value of a column and whether it exists
func (r Record) Get(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.fields[i].Value, true
}

func (r Record) Len() int { return len(r.fields) }

// Columns returns the column names in record order
func (r Record) Columns() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Name
	}
	return out
}

// Values returns the column values in record order
func (r Record) Values() []any {
	out := make([]any, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Value
	}
	return out
}

// Fields returns a copy of the ordered fields
func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Project keeps only the columns present in allowed, preserving the record's own order
func (r Record) Project(allowed []string) Record {
	set := make(map[string]struct{}, len(allowed))
	for _, c := range allowed {
		set[c] = struct{}{}
	}
	var out Record
	for _, f := range r.fields {
		if _, ok := set[f.Name]; ok {
			out.Set(f.Name, f.Value)
		}
	}
	return out
}

// StringValue renders a column as text. Missing and NULL columns render as "".
func (r Record) StringValue(name string) string {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// MarshalJSON encodes the record as a JSON object in column order
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order of the document
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record must be a JSON object")
	}

	*r = Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected record key %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		r.Set(name, v)
	}
	_, err = dec.Token()
	return err
}

// NormalizeValue folds driver values into the closed set of record scalars
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return val
	case []byte:
		return string(val)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint:
		return normalizeUint(uint64(val))
	case uint64:
		return normalizeUint(val)
	case float32:
		return float64(val)
	case float64:
		return val
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case time.Time:
		// TIME columns come back anchored to a zero date
		if val.Year() <= 1 {
			return val.Format(time.TimeOnly)
		}
		return val.Format(time.DateTime)
	default:
		return fmt.Sprint(val)
	}
}

// normalizeUint keeps BIGINT UNSIGNED values above MaxInt64 exact as decimal text
func normalizeUint(v uint64) any {
	if v > math.MaxInt64 {
		return strconv.FormatUint(v, 10)
	}
	return int64(v)
}
