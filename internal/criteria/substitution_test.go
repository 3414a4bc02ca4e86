package criteria_test

import (
	"testing"

	"github.com/makerpnp/planner/internal/criteria"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteChain(t *testing.T) {
	fields := criteria.Fields{"name": "NAME1", "value": "VALUE1"}

	// Rules supplied out of order; the first rule to actually match must
	// apply first regardless of list position (mirrors the Rust source's
	// "out-of-order" substitution chain test).
	second := criteria.Rule{
		Criteria: criteria.Set{
			criteria.ParsePattern("name", "INTERMEDIATE_NAME1"),
			criteria.ParsePattern("value", "INTERMEDIATE_VALUE1"),
		},
		Transforms: []criteria.Transform{
			{Field: "name", Value: "SUBSTITUTED_NAME1"},
			{Field: "value", Value: "SUBSTITUTED_VALUE1"},
		},
	}
	first := criteria.Rule{
		Criteria: criteria.Set{
			criteria.ParsePattern("name", "NAME1"),
			criteria.ParsePattern("value", "VALUE1"),
		},
		Transforms: []criteria.Transform{
			{Field: "name", Value: "INTERMEDIATE_NAME1"},
			{Field: "value", Value: "INTERMEDIATE_VALUE1"},
		},
	}

	rules := []criteria.Rule{second, first}

	result, chain, err := criteria.Substitute(fields, rules)
	require.NoError(t, err)
	assert.Equal(t, "SUBSTITUTED_NAME1", result["name"])
	assert.Equal(t, "SUBSTITUTED_VALUE1", result["value"])
	require.Len(t, chain, 2)
	assert.Equal(t, 1, chain[0].RuleIndex) // "first" applied before "second"
	assert.Equal(t, 0, chain[1].RuleIndex)
}

func TestSubstituteNoRulesMatch(t *testing.T) {
	fields := criteria.Fields{"name": "NAME1"}
	result, chain, err := criteria.Substitute(fields, []criteria.Rule{
		{
			Criteria:   criteria.Set{criteria.ParsePattern("name", "OTHER")},
			Transforms: []criteria.Transform{{Field: "name", Value: "CHANGED"}},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, fields, result)
	assert.Empty(t, chain)
}

func TestSubstituteNonTerminatingRuleReportsDomainError(t *testing.T) {
	fields := criteria.Fields{"name": "NAME1"}

	// This rule matches forever because its transform doesn't change the
	// matched field, so fixed-point-per-pass never reaches zero
	// applications; the iteration cap must still terminate it.
	rules := []criteria.Rule{
		{
			Criteria:   criteria.Set{criteria.ParsePattern("name", "NAME1")},
			Transforms: []criteria.Transform{{Field: "other", Value: "X"}},
		},
	}

	_, _, err := criteria.Substitute(fields, rules)
	require.Error(t, err)
}
