package partmapper_test

import (
	"testing"

	"github.com/makerpnp/planner/internal/criteria"
	"github.com/makerpnp/planner/internal/eda"
	"github.com/makerpnp/planner/internal/partmapper"
	"github.com/makerpnp/planner/internal/planning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldsPlacement(refDes, name, value string) eda.Placement {
	return eda.Placement{
		RefDes:  refDes,
		Place:   true,
		PCBSide: planning.PCBSideTop,
		Fields:  criteria.Fields{"name": name, "value": value},
	}
}

func TestResolveAutoSelectsUniqueMatch(t *testing.T) {
	part1 := planning.Part{Manufacturer: "MFR1", MPN: "PART1"}
	part2 := planning.Part{Manufacturer: "MFR2", MPN: "PART2"}

	mappings := []partmapper.Mapping{
		{Part: part1, Criteria: criteria.Set{criteria.ParsePattern("name", "NAME1"), criteria.ParsePattern("value", "VALUE1")}},
		{Part: part2, Criteria: criteria.Set{criteria.ParsePattern("name", "NAME2"), criteria.ParsePattern("value", "VALUE2")}},
	}

	result, err := partmapper.Resolve(fieldsPlacement("R1", "NAME1", "VALUE1"), mappings, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, partmapper.OutcomeAutoSelected, result.Outcome)
	require.NotNil(t, result.Part)
	assert.Equal(t, part1, *result.Part)
}

func TestResolveNoRulesAppliedWhenNoneMatch(t *testing.T) {
	mappings := []partmapper.Mapping{
		{Part: planning.Part{Manufacturer: "MFR1", MPN: "PART1"}, Criteria: criteria.Set{criteria.ParsePattern("name", "OTHER")}},
	}

	result, err := partmapper.Resolve(fieldsPlacement("R1", "NAME1", "VALUE1"), mappings, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, partmapper.OutcomeNoRulesApplied, result.Outcome)
	assert.Nil(t, result.Part)
}

func TestResolveNoMappingsAtAll(t *testing.T) {
	result, err := partmapper.Resolve(fieldsPlacement("R1", "NAME1", "VALUE1"), nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, partmapper.OutcomeNoMappings, result.Outcome)
}

func TestResolveConflictingRulesWhenMultipleMatchAndNoTiebreak(t *testing.T) {
	part1 := planning.Part{Manufacturer: "MFR1", MPN: "PART1"}
	part2 := planning.Part{Manufacturer: "MFR2", MPN: "PART2"}

	mappings := []partmapper.Mapping{
		{Part: part1, Criteria: criteria.Set{criteria.ParsePattern("name", "NAME1")}},
		{Part: part2, Criteria: criteria.Set{criteria.ParsePattern("name", "NAME1")}},
	}

	result, err := partmapper.Resolve(fieldsPlacement("R1", "NAME1", "VALUE1"), mappings, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, partmapper.OutcomeConflictingRules, result.Outcome)
	assert.Nil(t, result.Part)
	assert.Len(t, result.Candidates, 2)
}

func TestResolvePrefersLoadOutMatchAmongMultiple(t *testing.T) {
	part1 := planning.Part{Manufacturer: "MFR1", MPN: "PART1"}
	part2 := planning.Part{Manufacturer: "MFR2", MPN: "PART2"}

	mappings := []partmapper.Mapping{
		{Part: part1, Criteria: criteria.Set{criteria.ParsePattern("name", "NAME1")}},
		{Part: part2, Criteria: criteria.Set{criteria.ParsePattern("name", "NAME1")}},
	}

	loadOut := []planning.LoadOutItem{
		{FeederReference: "FEEDER1", Manufacturer: "MFR2", MPN: "PART2"},
	}

	result, err := partmapper.Resolve(fieldsPlacement("R1", "NAME1", "VALUE1"), mappings, nil, loadOut, nil)
	require.NoError(t, err)
	assert.Equal(t, partmapper.OutcomeFoundInLoadOut, result.Outcome)
	require.NotNil(t, result.Part)
	assert.Equal(t, part2, *result.Part)
}

func TestResolveAssemblyRuleForcesPinnedPart(t *testing.T) {
	part1 := planning.Part{Manufacturer: "MFR1", MPN: "PART1"}
	part2 := planning.Part{Manufacturer: "MFR2", MPN: "PART2"}

	mappings := []partmapper.Mapping{
		{Part: part1, Criteria: criteria.Set{criteria.ParsePattern("name", "NAME1")}},
		{Part: part2, Criteria: criteria.Set{criteria.ParsePattern("name", "NAME1")}},
	}

	rule := eda.AssemblyRule{RefDes: "R1", Manufacturer: "MFR2", MPN: "PART2"}

	result, err := partmapper.Resolve(fieldsPlacement("R1", "NAME1", "VALUE1"), mappings, nil, nil, &rule)
	require.NoError(t, err)
	assert.Equal(t, partmapper.OutcomeAssemblyRuleForced, result.Outcome)
	require.NotNil(t, result.Part)
	assert.Equal(t, part2, *result.Part)
}

func TestResolveAppliesSubstitutionBeforeMatching(t *testing.T) {
	part1 := planning.Part{Manufacturer: "MFR1", MPN: "PART1"}

	mappings := []partmapper.Mapping{
		{Part: part1, Criteria: criteria.Set{criteria.ParsePattern("name", "SUBSTITUTED_NAME1")}},
	}

	rules := []criteria.Rule{
		{
			Criteria:   criteria.Set{criteria.ParsePattern("name", "NAME1")},
			Transforms: []criteria.Transform{{Field: "name", Value: "SUBSTITUTED_NAME1"}},
		},
	}

	result, err := partmapper.Resolve(fieldsPlacement("R1", "NAME1", "VALUE1"), mappings, rules, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, partmapper.OutcomeAutoSelected, result.Outcome)
	require.Len(t, result.Chain, 1)
}

func TestResolveAllLooksUpAssemblyRuleByRefDes(t *testing.T) {
	placements := []eda.Placement{
		fieldsPlacement("R1", "NAME1", "VALUE1"),
		fieldsPlacement("R2", "NAME1", "VALUE1"),
	}

	part1 := planning.Part{Manufacturer: "MFR1", MPN: "PART1"}
	part2 := planning.Part{Manufacturer: "MFR2", MPN: "PART2"}

	mappings := []partmapper.Mapping{
		{Part: part1, Criteria: criteria.Set{criteria.ParsePattern("name", "NAME1")}},
		{Part: part2, Criteria: criteria.Set{criteria.ParsePattern("name", "NAME1")}},
	}

	rules := []eda.AssemblyRule{{RefDes: "R1", Manufacturer: "MFR2", MPN: "PART2"}}

	results, err := partmapper.ResolveAll(placements, mappings, nil, nil, rules)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, partmapper.OutcomeAssemblyRuleForced, results[0].Outcome)
	assert.Equal(t, partmapper.OutcomeConflictingRules, results[1].Outcome)
}
