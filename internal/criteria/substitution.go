package criteria

import "github.com/makerpnp/planner/internal/perr"

// Transform sets field_name to field_value on a matching placement.
type Transform struct {
	Field string
	Value string
}

// Rule is a substitution rule: a criteria set plus the field transforms to
// apply when every criterion matches.
type Rule struct {
	Criteria   Set
	Transforms []Transform
}

// Matches reports whether the rule's criteria set matches fields.
func (r Rule) Matches(fields Fields) bool {
	return r.Criteria.Matches(fields)
}

// Apply returns a copy of fields with every transform's field set to its
// value. A transform whose field is absent from fields is ignored; no new
// field is added.
func (r Rule) Apply(fields Fields) Fields {
	result := make(Fields, len(fields))
	for k, v := range fields {
		result[k] = v
	}
	for _, t := range r.Transforms {
		if _, ok := result[t.Field]; ok {
			result[t.Field] = t.Value
		}
	}
	return result
}

// ChainEntry records one rule application in a substitution chain.
type ChainEntry struct {
	RuleIndex int
}

// maxPassMultiplier bounds the number of substitution passes at
// maxPassMultiplier * len(rules) before giving up with a Domain error
// (spec §9's "belt-and-braces" guidance on top of fixed-point-per-pass
// detection).
const maxPassMultiplier = 50

// Substitute applies rules to fields repeatedly until a full pass applies
// no rule (fixed-point-per-pass), returning the resulting fields and the
// ordered chain of rule applications. If the pass count exceeds
// maxPassMultiplier*len(rules) without reaching a fixed point, it returns a
// Domain error rather than looping forever.
func Substitute(fields Fields, rules []Rule) (Fields, []ChainEntry, error) {
	current := fields
	var chain []ChainEntry

	if len(rules) == 0 {
		return current, chain, nil
	}

	maxPasses := maxPassMultiplier * len(rules)

	for pass := 0; ; pass++ {
		if pass >= maxPasses {
			return current, chain, perr.Domain("substitution", "substitution rules did not reach a fixed point")
		}

		appliedThisPass := 0
		for i, rule := range rules {
			if rule.Matches(current) {
				applied := rule.Apply(current)
				current = applied
				chain = append(chain, ChainEntry{RuleIndex: i})
				appliedThisPass++
			}
		}

		if appliedThisPass == 0 {
			break
		}
	}

	return current, chain, nil
}
