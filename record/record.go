// Package record implements the document model that flows from the telemetry converters
// through the ingest rules into Elasticsearch.
package record

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotAnObject is returned by Record.Set when a path crosses a value which is not an object.
var ErrNotAnObject = errors.New("path crosses a non-object value")

// Record is a single log or metric document before ingestion.
// Values are strings, numbers, bools, slices or nested map[string]any objects, as produced by encoding/json.
type Record map[string]any

// Field is a path to a value inside a Record, e.g. awscloudwatch.log_group.
type Field []string

// ParseField splits a dotted path into a Field.
func ParseField(path string) Field {
	if path == "" {
		return nil
	}

	return strings.Split(path, ".")
}

func (f Field) String() string {
	return strings.Join(f, ".")
}

// UnmarshalText allows fields in YAML and JSON configuration to be written as dotted strings.
func (f *Field) UnmarshalText(b []byte) error {
	*f = ParseField(string(b))

	return nil
}

func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Get returns the value at the field and whether it exists.
// Nested objects are walked first. When that fails the whole dotted path is looked up
// as a literal top-level key, the way Elasticsearch accepts dotted keys in _source.
func (r Record) Get(f Field) (any, bool) {
	if len(f) == 0 {
		return nil, false
	}
	if v, ok := r.nested(f); ok {
		return v, true
	}
	if len(f) > 1 {
		v, ok := r[f.String()]

		return v, ok
	}

	return nil, false
}

func (r Record) nested(f Field) (any, bool) {
	var cur any = map[string]any(r)
	for _, key := range f {
		m, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

// GetString returns the value at the field if it exists and is a string.
func (r Record) GetString(f Field) (string, bool) {
	v, ok := r.Get(f)
	if !ok {
		return "", false
	}
	s, ok := v.(string)

	return s, ok
}

// Has reports whether a non-null value exists at the field.
// A null value counts as absent, as in Elasticsearch ingest conditions.
func (r Record) Has(f Field) bool {
	v, ok := r.Get(f)

	return ok && v != nil
}

// Set writes the value at the field, creating intermediate objects as needed.
// Set overwrites an existing leaf value. It fails with ErrNotAnObject, leaving the record untouched,
// when an intermediate value already exists and is not an object.
func (r Record) Set(f Field, value any) error {
	if len(f) == 0 {
		return errors.New("could not set value at an empty field")
	}
	if r == nil {
		return errors.New("could not set value on a nil record")
	}

	// validate the whole path before the first write
	var cur any = map[string]any(r)
	for i, key := range f[:len(f)-1] {
		m, _ := asObject(cur)
		next, ok := m[key]
		if !ok {
			break
		}
		if _, ok := asObject(next); !ok {
			return fmt.Errorf("could not set %s: %s: %w", f, f[:i+1], ErrNotAnObject)
		}
		cur = next
	}

	m := map[string]any(r)
	for _, key := range f[:len(f)-1] {
		next, ok := m[key]
		if !ok {
			child := map[string]any{}
			m[key] = child
			m = child

			continue
		}
		m, _ = asObject(next)
	}
	m[f[len(f)-1]] = value

	return nil
}

// Clone returns a deep copy of the record's objects and slices.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}

	return Record(cloneObject(r))
}

func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneObject(v)
	case Record:
		return Record(cloneObject(v))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}

func asObject(v any) (map[string]any, bool) {
	switch v := v.(type) {
	case map[string]any:
		return v, true
	case Record:
		return v, true
	default:
		return nil, false
	}
}
