package partmapper_test

import (
	"strings"
	"testing"

	"github.com/makerpnp/planner/internal/criteria"
	"github.com/makerpnp/planner/internal/eda"
	"github.com/makerpnp/planner/internal/partmapper"
	"github.com/makerpnp/planner/internal/planning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMappingsParsesCriteriaAndTargetPart(t *testing.T) {
	csv := "Manufacturer,Mpn,TargetManufacturer,TargetMpn\n" +
		"ACME,/^R.*/,RES_MFR,RES1\n"

	mappings, err := partmapper.ReadMappings(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, mappings, 1)

	assert.Equal(t, planning.Part{Manufacturer: "RES_MFR", MPN: "RES1"}, mappings[0].Part)
	assert.True(t, mappings[0].Criteria.Matches(criteria.Fields{"manufacturer": "ACME", "mpn": "R100"}))
	assert.False(t, mappings[0].Criteria.Matches(criteria.Fields{"manufacturer": "ACME", "mpn": "C100"}))
}

func TestReadMappingsResolvesDipTraceAndKiCadPlacementsIdentically(t *testing.T) {
	csv := "Manufacturer,Mpn,TargetManufacturer,TargetMpn\n" +
		"ACME,PART1,RES_MFR,RES1\n"

	mappings, err := partmapper.ReadMappings(strings.NewReader(csv))
	require.NoError(t, err)

	diptrace := eda.Placement{RefDes: "R1", Place: true, PCBSide: planning.PCBSideTop, Fields: criteria.Fields{
		"manufacturer": "ACME", "mpn": "PART1", "name": "ACME", "value": "PART1",
	}}
	kicad := eda.Placement{RefDes: "R1", Place: true, PCBSide: planning.PCBSideTop, Fields: criteria.Fields{
		"manufacturer": "ACME", "mpn": "PART1", "package": "ACME", "val": "PART1",
	}}

	diptraceResult, err := partmapper.Resolve(diptrace, mappings, nil, nil, nil)
	require.NoError(t, err)
	kicadResult, err := partmapper.Resolve(kicad, mappings, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, partmapper.OutcomeAutoSelected, diptraceResult.Outcome)
	assert.Equal(t, partmapper.OutcomeAutoSelected, kicadResult.Outcome)
	assert.Equal(t, *diptraceResult.Part, *kicadResult.Part)
}

func TestReadMappingsRejectsMissingColumn(t *testing.T) {
	csv := "Manufacturer,Mpn,TargetManufacturer\nACME,PART1,RES_MFR\n"
	_, err := partmapper.ReadMappings(strings.NewReader(csv))
	assert.Error(t, err)
}

func TestReadSubstitutionRulesParsesCriteriaAndTransforms(t *testing.T) {
	csv := "MatchManufacturer,MatchMpn,Manufacturer,Mpn\n" +
		"OLD_MFR,OLD_PART,NEW_MFR,NEW_PART\n"

	rules, err := partmapper.ReadSubstitutionRules(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rules, 1)

	fields := criteria.Fields{"manufacturer": "OLD_MFR", "mpn": "OLD_PART"}
	require.True(t, rules[0].Matches(fields))

	applied := rules[0].Apply(fields)
	assert.Equal(t, "NEW_MFR", applied["manufacturer"])
	assert.Equal(t, "NEW_PART", applied["mpn"])
}

func TestReadSubstitutionRulesAllowsPartialTransform(t *testing.T) {
	csv := "MatchManufacturer,MatchMpn,Manufacturer,Mpn\n" +
		"OLD_MFR,,NEW_MFR,\n"

	rules, err := partmapper.ReadSubstitutionRules(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Len(t, rules[0].Criteria, 1)
	assert.Len(t, rules[0].Transforms, 1)

	fields := criteria.Fields{"manufacturer": "OLD_MFR", "mpn": "ANYTHING"}
	applied := rules[0].Apply(fields)
	assert.Equal(t, "NEW_MFR", applied["manufacturer"])
	assert.Equal(t, "ANYTHING", applied["mpn"])
}

func TestReadSubstitutionRulesIntegratesWithSubstitute(t *testing.T) {
	csv := "MatchManufacturer,MatchMpn,Manufacturer,Mpn\n" +
		"OLD_MFR,OLD_PART,NEW_MFR,NEW_PART\n"

	rules, err := partmapper.ReadSubstitutionRules(strings.NewReader(csv))
	require.NoError(t, err)

	result, chain, err := criteria.Substitute(criteria.Fields{"manufacturer": "OLD_MFR", "mpn": "OLD_PART"}, rules)
	require.NoError(t, err)
	assert.Equal(t, "NEW_MFR", result["manufacturer"])
	assert.Equal(t, "NEW_PART", result["mpn"])
	assert.Len(t, chain, 1)
}

func TestFileNameHelpers(t *testing.T) {
	assert.Equal(t, "design_a_variant_a_part_mappings.csv", partmapper.MappingsFileName("design_a", "variant_a"))
	assert.Equal(t, "design_a_variant_a_substitutions.csv", partmapper.SubstitutionRulesFileName("design_a", "variant_a"))
}
