package eda

import (
	"io"
)

// AssemblyRule pins a specific catalogue part to a ref-des, overriding
// whatever the part-mapping rules would otherwise resolve (spec §4.4 step
// 3; supplemented feature, grounded on the original assembly-rules
// store/loader which reads a `ref_des, manufacturer, mpn` CSV).
type AssemblyRule struct {
	RefDes       string
	Manufacturer string
	MPN          string
}

// ReadAssemblyRules parses an assembly-rules CSV with headers `RefDes,
// Manufacturer, Mpn`.
func ReadAssemblyRules(r io.Reader) ([]AssemblyRule, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	cols := map[string]int{}
	for _, name := range []string{"RefDes", "Manufacturer", "Mpn"} {
		idx, err := columnIndex(header, name)
		if err != nil {
			return nil, err
		}
		cols[name] = idx
	}

	rules := make([]AssemblyRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, AssemblyRule{
			RefDes:       row[cols["RefDes"]],
			Manufacturer: row[cols["Manufacturer"]],
			MPN:          row[cols["Mpn"]],
		})
	}

	return rules, nil
}

// ForRefDes returns the assembly rule pinning refDes, if any.
func ForRefDes(rules []AssemblyRule, refDes string) (AssemblyRule, bool) {
	for _, r := range rules {
		if r.RefDes == refDes {
			return r, true
		}
	}
	return AssemblyRule{}, false
}
