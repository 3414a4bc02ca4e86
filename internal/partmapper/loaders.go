package partmapper

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/makerpnp/planner/internal/criteria"
	"github.com/makerpnp/planner/internal/perr"
	"github.com/makerpnp/planner/internal/planning"
)

// Mapping rules and substitution rules are read from CSVs keyed on
// "manufacturer"/"mpn" rather than an EDA-tool-specific field pair (the
// original source's loaders/part_mappings.rs and loaders/substitutions.rs
// carry an Eda column and switch between DipTrace's name/value and KiCad's
// package/val field names). eda.ReadDipTracePlacements and
// eda.ReadKiCadPlacements both seed "manufacturer"/"mpn" into every
// placement's Fields regardless of source tool, so a rule written against
// those two field names resolves identically no matter which EDA tool
// produced the placement, making the Eda column unnecessary here.

func readRulesCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, perr.Parse("rules-csv", fmt.Errorf("empty csv: missing header row"))
		}
		return nil, nil, perr.Parse("rules-csv", err)
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, perr.Parse("rules-csv", err)
	}

	return header, rows, nil
}

func rulesColumnIndex(header []string, name string) (int, error) {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return -1, perr.Parse("rules-csv", fmt.Errorf("missing column %q", name))
}

// ReadMappings parses a part-mapping-rules CSV with headers `Manufacturer,
// Mpn, TargetManufacturer, TargetMpn`. Manufacturer/Mpn are criteria
// patterns (see criteria.ParsePattern) matched against a placement's
// "manufacturer"/"mpn" fields; TargetManufacturer/TargetMpn name the
// catalogue part to resolve to when both match (spec §4.4; grounded on the
// original source's CSVPartMappingRecord/build_part_mapping).
func ReadMappings(r io.Reader) ([]Mapping, error) {
	header, rows, err := readRulesCSV(r)
	if err != nil {
		return nil, err
	}

	cols := map[string]int{}
	for _, name := range []string{"Manufacturer", "Mpn", "TargetManufacturer", "TargetMpn"} {
		idx, err := rulesColumnIndex(header, name)
		if err != nil {
			return nil, err
		}
		cols[name] = idx
	}

	mappings := make([]Mapping, 0, len(rows))
	for _, row := range rows {
		var set criteria.Set
		if v := row[cols["Manufacturer"]]; v != "" {
			set = append(set, criteria.ParsePattern("manufacturer", v))
		}
		if v := row[cols["Mpn"]]; v != "" {
			set = append(set, criteria.ParsePattern("mpn", v))
		}

		mappings = append(mappings, Mapping{
			Part: planning.Part{
				Manufacturer: row[cols["TargetManufacturer"]],
				MPN:          row[cols["TargetMpn"]],
			},
			Criteria: set,
		})
	}

	return mappings, nil
}

// ReadSubstitutionRules parses a substitution-rules CSV with headers
// `MatchManufacturer, MatchMpn, Manufacturer, Mpn`. MatchManufacturer/
// MatchMpn are criteria patterns matched against a placement's
// "manufacturer"/"mpn" fields; a non-empty Manufacturer/Mpn column
// transforms that field to the given value when the rule matches (spec
// §4.3; grounded on the original source's SubstitutionRecord/
// build_eda_substitution, minus its per-tool field-name branching).
func ReadSubstitutionRules(r io.Reader) ([]criteria.Rule, error) {
	header, rows, err := readRulesCSV(r)
	if err != nil {
		return nil, err
	}

	cols := map[string]int{}
	for _, name := range []string{"MatchManufacturer", "MatchMpn", "Manufacturer", "Mpn"} {
		idx, err := rulesColumnIndex(header, name)
		if err != nil {
			return nil, err
		}
		cols[name] = idx
	}

	rules := make([]criteria.Rule, 0, len(rows))
	for _, row := range rows {
		var set criteria.Set
		if v := row[cols["MatchManufacturer"]]; v != "" {
			set = append(set, criteria.ParsePattern("manufacturer", v))
		}
		if v := row[cols["MatchMpn"]]; v != "" {
			set = append(set, criteria.ParsePattern("mpn", v))
		}

		var transforms []criteria.Transform
		if v := row[cols["Manufacturer"]]; v != "" {
			transforms = append(transforms, criteria.Transform{Field: "manufacturer", Value: v})
		}
		if v := row[cols["Mpn"]]; v != "" {
			transforms = append(transforms, criteria.Transform{Field: "mpn", Value: v})
		}

		rules = append(rules, criteria.Rule{Criteria: set, Transforms: transforms})
	}

	return rules, nil
}

// MappingsFileName returns the conventional per-design-variant part-mapping
// rules CSV file name (spec §4.4, §6).
func MappingsFileName(design, variant string) string {
	return fmt.Sprintf("%s_%s_part_mappings.csv", design, variant)
}

// SubstitutionRulesFileName returns the conventional per-design-variant
// substitution rules CSV file name (spec §4.3, §6).
func SubstitutionRulesFileName(design, variant string) string {
	return fmt.Sprintf("%s_%s_substitutions.csv", design, variant)
}
