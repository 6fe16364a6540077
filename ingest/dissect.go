package ingest

import (
	"fmt"
	"strings"

	"github.com/zakharovvi/aws-lambda-elastic-telemetry/record"
)

// DissectPattern is a parsed dissect pattern such as "/aws/lambda/%{service.name}".
//
// Supported syntax is a subset of the Elasticsearch dissect processor: literal text and %{key} captures,
// with %{} and %{?key} captures matched but not written. Modifiers (->, +, *, &) are not supported.
// Literals are matched exactly and case-sensitively. A capture ends at the first occurrence of the
// following literal; the last capture consumes the rest of the value.
type DissectPattern struct {
	raw    string
	tokens []dissectToken
}

type dissectToken struct {
	literal string
	key     string
	capture bool
	skip    bool
}

// Capture is a single named value extracted by DissectPattern.Match.
type Capture struct {
	Target record.Field
	Value  string
}

// ParseDissectPattern parses the pattern and validates that every capture is separated by a literal.
func ParseDissectPattern(pattern string) (*DissectPattern, error) {
	p := &DissectPattern{raw: pattern}
	rest := pattern
	named := 0
	for rest != "" {
		start := strings.Index(rest, "%{")
		if start < 0 {
			p.tokens = append(p.tokens, dissectToken{literal: rest})

			break
		}
		if start > 0 {
			p.tokens = append(p.tokens, dissectToken{literal: rest[:start]})
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return nil, fmt.Errorf("dissect pattern %q: unterminated key at offset %d", pattern, len(pattern)-len(rest)+start)
		}
		key := rest[start+2 : start+end]
		rest = rest[start+end+1:]

		if strings.ContainsAny(key, "+&*") || strings.HasPrefix(key, "->") || strings.HasSuffix(key, "->") {
			return nil, fmt.Errorf("dissect pattern %q: modifiers are not supported in key %q", pattern, key)
		}
		if len(p.tokens) > 0 && p.tokens[len(p.tokens)-1].capture {
			return nil, fmt.Errorf("dissect pattern %q: keys %%{%s} must be separated by a delimiter", pattern, key)
		}

		tok := dissectToken{capture: true, key: key}
		if key == "" || strings.HasPrefix(key, "?") {
			tok.skip = true
		} else {
			named++
		}
		p.tokens = append(p.tokens, tok)
	}
	if named == 0 {
		return nil, fmt.Errorf("dissect pattern %q has no named keys", pattern)
	}

	return p, nil
}

// MustParseDissectPattern is like ParseDissectPattern but panics if the pattern cannot be parsed.
func MustParseDissectPattern(pattern string) *DissectPattern {
	p, err := ParseDissectPattern(pattern)
	if err != nil {
		panic(err)
	}

	return p
}

func (p *DissectPattern) String() string {
	return p.raw
}

// Targets returns the fields written by the pattern in pattern order.
func (p *DissectPattern) Targets() []record.Field {
	var targets []record.Field
	for _, tok := range p.tokens {
		if tok.capture && !tok.skip {
			targets = append(targets, record.ParseField(tok.key))
		}
	}

	return targets
}

// Match applies the pattern to the value.
// It reports false if any literal does not match or any named capture is empty.
func (p *DissectPattern) Match(value string) ([]Capture, bool) {
	var captures []Capture
	pos := 0
	for i, tok := range p.tokens {
		if !tok.capture {
			if !strings.HasPrefix(value[pos:], tok.literal) {
				return nil, false
			}
			pos += len(tok.literal)

			continue
		}

		end := len(value)
		if i+1 < len(p.tokens) {
			idx := strings.Index(value[pos:], p.tokens[i+1].literal)
			if idx < 0 {
				return nil, false
			}
			end = pos + idx
		}
		if !tok.skip {
			if end == pos {
				return nil, false
			}
			captures = append(captures, Capture{Target: record.ParseField(tok.key), Value: value[pos:end]})
		}
		pos = end
	}
	if pos != len(value) {
		return nil, false
	}

	return captures, true
}
