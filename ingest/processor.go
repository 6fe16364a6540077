package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zakharovvi/aws-lambda-elastic-telemetry/record"
)

var (
	// ErrFieldMissing means the source field of a processor is absent (ignore_missing).
	ErrFieldMissing = errors.New("source field is missing")
	// ErrFieldMismatch means the source field exists but could not be used: wrong type,
	// empty value or pattern mismatch (ignore_failure).
	ErrFieldMismatch = errors.New("source field does not match")
	// ErrTargetExists means the target field has already been set and is left as is.
	ErrTargetExists = errors.New("target field is already set")
)

// Processor is a single field transformation of an ingest pipeline.
// Apply must leave the record unchanged when it returns an error.
type Processor interface {
	Apply(rec record.Record) error
	// Source is the field the processor reads.
	Source() record.Field
	// Targets are the fields the processor writes.
	Targets() []record.Field
	// Definition renders the processor in Elasticsearch ingest pipeline syntax.
	Definition() map[string]any
}

// Copy copies a non-empty string field verbatim into another field.
// It is the equivalent of the Elasticsearch set processor with copy_from and override disabled.
type Copy struct {
	From          record.Field
	To            record.Field
	IgnoreFailure bool
}

func (c Copy) Apply(rec record.Record) error {
	v, ok := rec.Get(c.From)
	if !ok {
		return fmt.Errorf("%s: %w", c.From, ErrFieldMissing)
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%s has type %T, want string: %w", c.From, v, ErrFieldMismatch)
	}
	if s == "" {
		return fmt.Errorf("%s is empty: %w", c.From, ErrFieldMismatch)
	}
	if rec.Has(c.To) {
		return fmt.Errorf("%s: %w", c.To, ErrTargetExists)
	}
	if err := rec.Set(c.To, s); err != nil {
		return fmt.Errorf("%w: %w", ErrFieldMismatch, err)
	}

	return nil
}

func (c Copy) Source() record.Field {
	return c.From
}

func (c Copy) Targets() []record.Field {
	return []record.Field{c.To}
}

func (c Copy) Definition() map[string]any {
	return map[string]any{
		"set": map[string]any{
			"field":              c.To.String(),
			"copy_from":          c.From.String(),
			"override":           false,
			"ignore_empty_value": true,
			"ignore_failure":     c.IgnoreFailure,
		},
	}
}

// Dissect splits a string field with a dissect pattern and writes the named captures.
type Dissect struct {
	Field         record.Field
	Pattern       *DissectPattern
	IgnoreMissing bool
	IgnoreFailure bool
}

// NewDissect parses the pattern and creates Dissect processor.
func NewDissect(field record.Field, pattern string) (Dissect, error) {
	p, err := ParseDissectPattern(pattern)
	if err != nil {
		return Dissect{}, err
	}

	return Dissect{Field: field, Pattern: p, IgnoreMissing: true, IgnoreFailure: true}, nil
}

func (d Dissect) Apply(rec record.Record) error {
	v, ok := rec.Get(d.Field)
	if !ok {
		return fmt.Errorf("%s: %w", d.Field, ErrFieldMissing)
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%s has type %T, want string: %w", d.Field, v, ErrFieldMismatch)
	}
	captures, ok := d.Pattern.Match(s)
	if !ok {
		return fmt.Errorf("%s value %q does not match pattern %q: %w", d.Field, s, d.Pattern, ErrFieldMismatch)
	}
	for _, c := range captures {
		if rec.Has(c.Target) {
			return fmt.Errorf("%s: %w", c.Target, ErrTargetExists)
		}
	}

	if len(captures) == 1 {
		if err := rec.Set(captures[0].Target, captures[0].Value); err != nil {
			return fmt.Errorf("%w: %w", ErrFieldMismatch, err)
		}

		return nil
	}

	// write into a copy first, so a failing capture does not leave the record half-written
	out := rec.Clone()
	for _, c := range captures {
		if err := out.Set(c.Target, c.Value); err != nil {
			return fmt.Errorf("%w: %w", ErrFieldMismatch, err)
		}
	}
	for k, v := range out {
		rec[k] = v
	}

	return nil
}

func (d Dissect) Source() record.Field {
	return d.Field
}

func (d Dissect) Targets() []record.Field {
	return d.Pattern.Targets()
}

func (d Dissect) Definition() map[string]any {
	conds := make([]string, 0, len(d.Pattern.Targets()))
	for _, target := range d.Pattern.Targets() {
		conds = append(conds, painlessPath(target)+" == null")
	}

	return map[string]any{
		"dissect": map[string]any{
			"field":          d.Field.String(),
			"pattern":        d.Pattern.String(),
			"ignore_missing": d.IgnoreMissing,
			"ignore_failure": d.IgnoreFailure,
			"if":             strings.Join(conds, " && "),
		},
	}
}

// painlessPath renders a null-safe access to the field, e.g. ctx.service?.name.
func painlessPath(f record.Field) string {
	var b strings.Builder
	b.WriteString("ctx")
	for i, key := range f {
		if i == 0 {
			b.WriteString(".")
		} else {
			b.WriteString("?.")
		}
		b.WriteString(key)
	}

	return b.String()
}
