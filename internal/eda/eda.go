// Package eda ingests per-design-variant placement CSVs produced by EDA
// tools (DipTrace, KiCad) and canonicalizes them into pre-mapping
// placements, carrying a generic field set that the part-mapper's
// substitution and criteria engine operate on (spec §4.2, §4.3).
package eda

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/makerpnp/planner/internal/criteria"
	"github.com/makerpnp/planner/internal/perr"
	"github.com/makerpnp/planner/internal/planning"
)

// Variant identifies the EDA tool a placement CSV originated from. The
// variant only changes header shape and the generic field names exposed to
// the criteria engine; the canonical Placement shape is identical either
// way.
type Variant string

const (
	VariantDipTrace Variant = "diptrace"
	VariantKiCad    Variant = "kicad"
)

// Placement is one ingested, not-yet-mapped row: it has not had
// substitution rules applied and carries no resolved catalogue part, only
// the generic fields a part-mapping criteria set can match against.
type Placement struct {
	RefDes   string
	Place    bool
	Fields   criteria.Fields
	PCBSide  planning.PCBSide
	X        string
	Y        string
	Rotation string
}

func parseBool(field, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1", "place":
		return true, nil
	case "false", "no", "0", "do not place", "dnp":
		return false, nil
	default:
		return false, perr.Parse("placement-csv", fmt.Errorf("field %s: unrecognized boolean value %q", field, value))
	}
}

func readCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, perr.Parse("placement-csv", fmt.Errorf("empty csv: missing header row"))
		}
		return nil, nil, perr.Parse("placement-csv", err)
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, perr.Parse("placement-csv", err)
	}

	return header, rows, nil
}

func columnIndex(header []string, name string) (int, error) {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return -1, perr.Parse("placement-csv", fmt.Errorf("missing column %q", name))
}

// ReadDipTracePlacements parses a DipTrace-variant placement CSV with
// headers `RefDes, Manufacturer, Mpn, Place, PcbSide, X, Y, Rotation`
// (spec §6). The raw Manufacturer/Mpn text is exposed to the criteria
// engine both under their own names and under DipTrace's "name"/"value"
// component-field convention, so substitution and mapping rules authored
// either way resolve against the same row.
func ReadDipTracePlacements(r io.Reader) ([]Placement, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	cols := map[string]int{}
	for _, name := range []string{"RefDes", "Manufacturer", "Mpn", "Place", "PcbSide", "X", "Y", "Rotation"} {
		idx, err := columnIndex(header, name)
		if err != nil {
			return nil, err
		}
		cols[name] = idx
	}

	placements := make([]Placement, 0, len(rows))
	for _, row := range rows {
		manufacturer := row[cols["Manufacturer"]]
		mpn := row[cols["Mpn"]]

		place, err := parseBool("Place", row[cols["Place"]])
		if err != nil {
			return nil, err
		}

		side, ok := planning.ParsePCBSide(row[cols["PcbSide"]])
		if !ok {
			return nil, perr.Parse("placement-csv", fmt.Errorf("unrecognized PcbSide value %q", row[cols["PcbSide"]]))
		}

		placements = append(placements, Placement{
			RefDes: row[cols["RefDes"]],
			Place:  place,
			Fields: criteria.Fields{
				"manufacturer": manufacturer,
				"mpn":          mpn,
				"name":         manufacturer,
				"value":        mpn,
			},
			PCBSide:  side,
			X:        row[cols["X"]],
			Y:        row[cols["Y"]],
			Rotation: row[cols["Rotation"]],
		})
	}

	return placements, nil
}

// ReadKiCadPlacements parses a KiCad-variant placement CSV with headers
// `Ref, Package, Val, Side, X, Y, Rotation` (spec §6); KiCad position files
// carry no per-row place/no-place column, so every row defaults to
// place=true, and side is matched lowercase.
func ReadKiCadPlacements(r io.Reader) ([]Placement, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	cols := map[string]int{}
	for _, name := range []string{"Ref", "Package", "Val", "Side", "X", "Y", "Rotation"} {
		idx, err := columnIndex(header, name)
		if err != nil {
			return nil, err
		}
		cols[name] = idx
	}

	placements := make([]Placement, 0, len(rows))
	for _, row := range rows {
		pkg := row[cols["Package"]]
		val := row[cols["Val"]]

		side, ok := planning.ParsePCBSide(row[cols["Side"]])
		if !ok {
			return nil, perr.Parse("placement-csv", fmt.Errorf("unrecognized Side value %q", row[cols["Side"]]))
		}

		placements = append(placements, Placement{
			RefDes: row[cols["Ref"]],
			Place:  true,
			Fields: criteria.Fields{
				"manufacturer": pkg,
				"mpn":          val,
				"package":      pkg,
				"val":          val,
			},
			PCBSide:  side,
			X:        row[cols["X"]],
			Y:        row[cols["Y"]],
			Rotation: row[cols["Rotation"]],
		})
	}

	return placements, nil
}

// DetectVariant identifies which EDA tool produced a placement CSV from its
// header row alone (spec §6: DipTrace's `RefDes, Manufacturer, Mpn, Place,
// PcbSide, X, Y, Rotation` vs KiCad's `Ref, Package, Val, Side, X, Y,
// Rotation`), so a caller holding only a design/variant pair need not be
// separately told which tool produced the file.
func DetectVariant(header []string) (Variant, bool) {
	if _, err := columnIndex(header, "RefDes"); err == nil {
		return VariantDipTrace, true
	}
	if _, err := columnIndex(header, "Ref"); err == nil {
		return VariantKiCad, true
	}
	return "", false
}

// Read dispatches to ReadDipTracePlacements or ReadKiCadPlacements
// according to variant.
func Read(variant Variant, r io.Reader) ([]Placement, error) {
	switch variant {
	case VariantDipTrace:
		return ReadDipTracePlacements(r)
	case VariantKiCad:
		return ReadKiCadPlacements(r)
	default:
		return nil, perr.Domain("placement-csv", fmt.Sprintf("unknown eda variant %q", variant))
	}
}

// PlacementsFileName returns the conventional per-design-variant placement
// CSV file name (spec §4.3, §6).
func PlacementsFileName(design, variant string) string {
	return fmt.Sprintf("%s_%s_placements.csv", design, variant)
}

// AssemblyRulesFileName returns the conventional per-design-variant
// assembly-rules CSV file name (supplemented feature, grounded on
// assembly_rules loader/store in the original source).
func AssemblyRulesFileName(design, variant string) string {
	return fmt.Sprintf("%s_%s_assembly_rules.csv", design, variant)
}
