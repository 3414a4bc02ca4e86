// Package loadout implements the per-phase feeder/part table (C5, spec
// §4.5): a CSV file of `{feeder reference, manufacturer, mpn}` rows, loaded
// and stored as a whole on every mutating operation.
package loadout

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/makerpnp/planner/internal/perr"
	"github.com/makerpnp/planner/internal/planning"
)

// EnsureExists creates an empty load-out file at path if one does not
// already exist.
func EnsureExists(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return perr.IO(path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return perr.IO(path, err)
	}
	return f.Close()
}

// Load reads the load-out items at path. A missing or empty file yields an
// empty list rather than an error.
func Load(path string) ([]planning.LoadOutItem, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.IO(path, err)
	}
	defer f.Close()

	return decode(f)
}

func decode(r io.Reader) ([]planning.LoadOutItem, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, perr.Parse("load-out-csv", err)
	}

	cols := map[string]int{}
	for _, name := range []string{"Reference", "Manufacturer", "Mpn"} {
		found := -1
		for i, h := range header {
			if h == name {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, perr.Parse("load-out-csv", fmt.Errorf("missing column %q", name))
		}
		cols[name] = found
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, perr.Parse("load-out-csv", err)
	}

	items := make([]planning.LoadOutItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, planning.LoadOutItem{
			FeederReference: row[cols["Reference"]],
			Manufacturer:    row[cols["Manufacturer"]],
			MPN:             row[cols["Mpn"]],
		})
	}
	return items, nil
}

// Store writes items to path as a CSV with header `Reference,
// Manufacturer, Mpn`. Fields are quoted only where encoding/csv requires
// it; other values are written unquoted.
func Store(path string, items []planning.LoadOutItem) error {
	f, err := os.Create(path)
	if err != nil {
		return perr.IO(path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Reference", "Manufacturer", "Mpn"}); err != nil {
		return perr.IO(path, err)
	}
	for _, item := range items {
		if err := w.Write([]string{item.FeederReference, item.Manufacturer, item.MPN}); err != nil {
			return perr.IO(path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return perr.IO(path, err)
	}
	return nil
}

// PerformOperation loads the items at path, runs f against the in-memory
// slice, then stores the (possibly mutated) result back — an atomic
// load-mutate-store cycle at the in-memory level (file atomicity is not
// required, spec §4.5).
func PerformOperation(path string, f func(items []planning.LoadOutItem) ([]planning.LoadOutItem, error)) error {
	items, err := Load(path)
	if err != nil {
		return err
	}

	result, err := f(items)
	if err != nil {
		return err
	}

	return Store(path, result)
}

func findByPart(items []planning.LoadOutItem, manufacturer, mpn string) (int, bool) {
	for i, item := range items {
		if item.Manufacturer == manufacturer && item.MPN == mpn {
			return i, true
		}
	}
	return -1, false
}

// AddParts inserts a load-out item (with an empty feeder reference) for
// every part in parts not already present.
func AddParts(path string, parts []planning.Part) error {
	return PerformOperation(path, func(items []planning.LoadOutItem) ([]planning.LoadOutItem, error) {
		for _, part := range parts {
			if _, ok := findByPart(items, part.Manufacturer, part.MPN); ok {
				continue
			}
			items = append(items, planning.LoadOutItem{
				FeederReference: "",
				Manufacturer:    part.Manufacturer,
				MPN:             part.MPN,
			})
		}
		return items, nil
	})
}

// AssignFeeder sets the feeder reference of every item whose manufacturer
// and mpn match the given regular expressions. It fails if zero items
// match, and fails if the phase's process includes AutomatedPnp and more
// than one item matches (automated pick-and-place requires a unique feeder
// per part).
func AssignFeeder(path string, process planning.Process, feederReference, manufacturerPattern, mpnPattern string) ([]planning.Part, error) {
	manufacturerRe, err := regexp.Compile(manufacturerPattern)
	if err != nil {
		return nil, perr.Domain("assign-feeder", fmt.Sprintf("invalid manufacturer pattern %q: %v", manufacturerPattern, err))
	}
	mpnRe, err := regexp.Compile(mpnPattern)
	if err != nil {
		return nil, perr.Domain("assign-feeder", fmt.Sprintf("invalid mpn pattern %q: %v", mpnPattern, err))
	}

	var matchedParts []planning.Part

	err = PerformOperation(path, func(items []planning.LoadOutItem) ([]planning.LoadOutItem, error) {
		var matchedIdx []int
		for i, item := range items {
			if manufacturerRe.MatchString(item.Manufacturer) && mpnRe.MatchString(item.MPN) {
				matchedIdx = append(matchedIdx, i)
			}
		}

		if len(matchedIdx) == 0 {
			return items, perr.Domain("assign-feeder", fmt.Sprintf("no matching part: manufacturer=%q mpn=%q", manufacturerPattern, mpnPattern))
		}

		if process.HasOperation(planning.OpAutomatedPnp) && len(matchedIdx) > 1 {
			return items, perr.Domain("assign-feeder", fmt.Sprintf("multiple matching parts for process %q requiring a unique feeder: manufacturer=%q mpn=%q", process.Name, manufacturerPattern, mpnPattern))
		}

		for _, i := range matchedIdx {
			items[i].FeederReference = feederReference
			matchedParts = append(matchedParts, planning.Part{Manufacturer: items[i].Manufacturer, MPN: items[i].MPN})
		}

		return items, nil
	})
	if err != nil {
		return nil, err
	}

	return matchedParts, nil
}

// FeederReferenceFor looks up the feeder reference assigned to (manufacturer,
// mpn), returning "" if the part is not present in the load-out (spec
// §4.9 step 3's FeederReference sort mode).
func FeederReferenceFor(items []planning.LoadOutItem, manufacturer, mpn string) string {
	if i, ok := findByPart(items, manufacturer, mpn); ok {
		return items[i].FeederReference
	}
	return ""
}
