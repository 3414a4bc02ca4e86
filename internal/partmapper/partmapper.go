// Package partmapper resolves ingested EDA placements to catalogue parts
// (C4, spec §4.4): substitution, criteria matching, load-out preference and
// assembly-rule pinning.
package partmapper

import (
	"github.com/makerpnp/planner/internal/criteria"
	"github.com/makerpnp/planner/internal/eda"
	"github.com/makerpnp/planner/internal/planning"
)

// Mapping is one part-mapping rule: a catalogue part plus the criteria set
// that selects it.
type Mapping struct {
	Part     planning.Part
	Criteria criteria.Set
}

// Outcome classifies how (or whether) a placement's part was resolved.
type Outcome string

const (
	// OutcomeAutoSelected: exactly one mapping's criteria matched.
	OutcomeAutoSelected Outcome = "auto_selected"
	// OutcomeFoundInLoadOut: multiple mappings matched; exactly one of
	// them named a part already present in the supplied load-out items.
	OutcomeFoundInLoadOut Outcome = "found_in_load_out"
	// OutcomeAssemblyRuleForced: an assembly rule pinned this ref-des to
	// one of the matching mappings' parts.
	OutcomeAssemblyRuleForced Outcome = "assembly_rule_forced"
	// OutcomeConflictingRules: more than one mapping matched and neither
	// load-out preference nor an assembly rule narrowed it to one.
	OutcomeConflictingRules Outcome = "conflicting_rules"
	// OutcomeNoRulesApplied: mappings exist, but none of their criteria
	// matched this placement.
	OutcomeNoRulesApplied Outcome = "no_rules_applied"
	// OutcomeNoMappings: there are no part-mapping rules at all.
	OutcomeNoMappings Outcome = "no_mappings"
)

// Resolved reports whether outcome represents a successfully resolved
// part.
func (o Outcome) Resolved() bool {
	switch o {
	case OutcomeAutoSelected, OutcomeFoundInLoadOut, OutcomeAssemblyRuleForced:
		return true
	default:
		return false
	}
}

// Candidate is one mapping whose criteria matched a placement.
type Candidate struct {
	Part planning.Part
}

// Result is the per-placement outcome of resolution.
type Result struct {
	RefDes     string
	Place      bool
	PCBSide    planning.PCBSide
	X          string
	Y          string
	Rotation   string
	Fields     criteria.Fields
	Chain      []criteria.ChainEntry
	Candidates []Candidate
	Outcome    Outcome
	Part       *planning.Part
}

// Resolve runs substitution then criteria matching then the resolution
// ladder for one ingested placement (spec §4.4 steps 1-4).
func Resolve(
	placement eda.Placement,
	mappings []Mapping,
	substitutionRules []criteria.Rule,
	loadOut []planning.LoadOutItem,
	assemblyRule *eda.AssemblyRule,
) (Result, error) {
	effectiveFields, chain, err := criteria.Substitute(placement.Fields, substitutionRules)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		RefDes:   placement.RefDes,
		Place:    placement.Place,
		PCBSide:  placement.PCBSide,
		X:        placement.X,
		Y:        placement.Y,
		Rotation: placement.Rotation,
		Fields:   effectiveFields,
		Chain:    chain,
	}

	if len(mappings) == 0 {
		result.Outcome = OutcomeNoMappings
		return result, nil
	}

	var candidates []Mapping
	for _, m := range mappings {
		if m.Criteria.Matches(effectiveFields) {
			candidates = append(candidates, m)
			result.Candidates = append(result.Candidates, Candidate{Part: m.Part})
		}
	}

	switch len(candidates) {
	case 0:
		result.Outcome = OutcomeNoRulesApplied
		return result, nil
	case 1:
		part := candidates[0].Part
		result.Outcome = OutcomeAutoSelected
		result.Part = &part
		return result, nil
	}

	if found, ok := preferFromLoadOut(candidates, loadOut); ok {
		result.Outcome = OutcomeFoundInLoadOut
		result.Part = &found
		return result, nil
	}

	if assemblyRule != nil {
		if found, ok := forceFromAssemblyRule(candidates, *assemblyRule); ok {
			result.Outcome = OutcomeAssemblyRuleForced
			result.Part = &found
			return result, nil
		}
	}

	result.Outcome = OutcomeConflictingRules
	return result, nil
}

// preferFromLoadOut returns the single candidate whose part is present in
// the load-out, if exactly one such candidate exists.
func preferFromLoadOut(candidates []Mapping, loadOut []planning.LoadOutItem) (planning.Part, bool) {
	var found *planning.Part
	count := 0
	for _, c := range candidates {
		for _, item := range loadOut {
			if item.Manufacturer == c.Part.Manufacturer && item.MPN == c.Part.MPN {
				part := c.Part
				found = &part
				count++
				break
			}
		}
	}
	if count == 1 {
		return *found, true
	}
	return planning.Part{}, false
}

// forceFromAssemblyRule returns the candidate whose part is pinned by an
// assembly rule for this ref-des, if any.
func forceFromAssemblyRule(candidates []Mapping, rule eda.AssemblyRule) (planning.Part, bool) {
	for _, c := range candidates {
		if c.Part.Manufacturer == rule.Manufacturer && c.Part.MPN == rule.MPN {
			return c.Part, true
		}
	}
	return planning.Part{}, false
}

// ResolveAll runs Resolve for every placement, looking up each one's
// assembly rule (if any) by ref-des.
func ResolveAll(
	placements []eda.Placement,
	mappings []Mapping,
	substitutionRules []criteria.Rule,
	loadOut []planning.LoadOutItem,
	assemblyRules []eda.AssemblyRule,
) ([]Result, error) {
	results := make([]Result, 0, len(placements))
	for _, p := range placements {
		var rule *eda.AssemblyRule
		if r, ok := eda.ForRefDes(assemblyRules, p.RefDes); ok {
			rule = &r
		}

		result, err := Resolve(p, mappings, substitutionRules, loadOut, rule)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
