// Package criteria implements the field-match predicate engine used by
// substitution rules and part-mapping rules: exact-match and regex-match
// criteria over (field_name, field_value) tuples, grouped into criteria
// sets that must all match.
//
// Criterion is a tagged struct rather than a trait-object/interface
// hierarchy (spec §9's redesign note): this keeps equality plain structural
// equality, which is what deterministic tests need, without reflection.
package criteria

import (
	"regexp"
	"strings"
)

// Kind distinguishes the two built-in criterion forms.
type Kind int

const (
	KindExact Kind = iota
	KindRegex
)

// Criterion matches a field by name against a pattern, either exactly or
// via regular expression. A CSV-supplied value is interpreted as a regex
// iff it begins and ends with "/"; ParsePattern performs that detection.
type Criterion struct {
	Kind    Kind
	Field   string
	Pattern string
}

// Fields is the set of named values exposed by a single placement, e.g.
// {"name": "...", "value": "..."} for DipTrace or {"package": "...", "val":
// "..."} for KiCad.
type Fields map[string]string

// ParsePattern builds a Criterion for field, treating pattern as a regex if
// it begins and ends with "/", otherwise as an exact-match pattern.
func ParsePattern(field, pattern string) Criterion {
	if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		return Criterion{Kind: KindRegex, Field: field, Pattern: pattern[1 : len(pattern)-1]}
	}
	return Criterion{Kind: KindExact, Field: field, Pattern: pattern}
}

// Matches reports whether the named field of fields satisfies c.
func (c Criterion) Matches(fields Fields) bool {
	value, ok := fields[c.Field]
	if !ok {
		return false
	}

	switch c.Kind {
	case KindExact:
		return value == c.Pattern
	case KindRegex:
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	default:
		return false
	}
}

// Set is a generic criteria set: it matches fields iff every contained
// criterion matches at least one of the fields (spec §4.2 — for a single
// named field this degenerates to "that field's value matches").
type Set []Criterion

// Matches reports whether every criterion in s matches fields.
func (s Set) Matches(fields Fields) bool {
	for _, c := range s {
		if !c.Matches(fields) {
			return false
		}
	}
	return true
}
