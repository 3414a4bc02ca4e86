// Package artifacts generates the per-phase placement CSV and the project
// report JSON (C9, spec §4.9), grounded on
// _examples/original_source/src/planning/project.rs's generate_artifacts /
// generate_phase_artifacts / store_phase_placements_as_csv and
// src/planning/report.rs's project_generate_report.
package artifacts

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/makerpnp/planner/internal/loadout"
	"github.com/makerpnp/planner/internal/perr"
	"github.com/makerpnp/planner/internal/planning"
)

// phasePlacement pairs a placement's full object path with its state, the
// unit this artifacts package sorts and writes.
type phasePlacement struct {
	path  string
	state *planning.PlacementState
}

// GeneratePhasePlacements collects every Known placement assigned to phase,
// sorts it per the phase's placement_orderings, writes
// "<phase>_placements.csv" into dir, and returns the sorted placements
// (for quantity aggregation by the report) plus any UnassignedPartFeeder
// issues discovered along the way (spec §4.9 steps 1-5).
func GeneratePhasePlacements(project *planning.Project, phase *planning.Phase, loadOutItems []planning.LoadOutItem, dir string) ([]phasePlacement, []ProjectReportIssue, error) {
	var placements []phasePlacement
	for _, key := range project.SortedPlacementKeys() {
		state := project.Placements[key]
		if state.Phase == nil || *state.Phase != phase.Reference || state.Status != planning.StatusKnown {
			continue
		}
		placements = append(placements, phasePlacement{path: key, state: state})
	}

	sortPhasePlacements(placements, phase.PlacementOrderings, loadOutItems)

	var issues []ProjectReportIssue
	for _, pl := range placements {
		feeder := loadout.FeederReferenceFor(loadOutItems, pl.state.Placement.Part.Manufacturer, pl.state.Placement.Part.MPN)
		if feeder == "" {
			issues = append(issues, ProjectReportIssue{
				Message:  "A part has not been assigned to a feeder",
				Severity: IssueWarning,
				Kind:     IssueUnassignedPartFeeder,
				Part:     &pl.state.Placement.Part,
			})
		}
	}

	outPath := filepath.Join(dir, fmt.Sprintf("%s_placements.csv", phase.Reference))
	if err := writePhasePlacementsCSV(outPath, placements, loadOutItems); err != nil {
		return nil, nil, err
	}

	return placements, issues, nil
}

// sortPhasePlacements applies each placement_orderings item in turn, first
// match wins, reversing the comparison under SortDesc (spec §4.9 step 3).
func sortPhasePlacements(placements []phasePlacement, orderings []planning.PlacementSorting, loadOutItems []planning.LoadOutItem) {
	sort.SliceStable(placements, func(i, j int) bool {
		a, b := placements[i], placements[j]
		for _, ordering := range orderings {
			cmp := 0
			switch ordering.Mode {
			case planning.SortModeFeederReference:
				fa := loadout.FeederReferenceFor(loadOutItems, a.state.Placement.Part.Manufacturer, a.state.Placement.Part.MPN)
				fb := loadout.FeederReferenceFor(loadOutItems, b.state.Placement.Part.Manufacturer, b.state.Placement.Part.MPN)
				cmp = compareStrings(fa, fb)
			case planning.SortModePcbUnit:
				cmp = compareStrings(a.state.UnitPath.PCBUnit().String(), b.state.UnitPath.PCBUnit().String())
			}
			if ordering.Order == planning.SortDesc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return a.path < b.path
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// writePhasePlacementsCSV writes placements as a CSV with header
// "ObjectPath, FeederReference, Manufacturer, Mpn, X, Y, Rotation"
// (spec §4.9 step 4). Fields are quoted only where encoding/csv requires
// it; other values are written unquoted.
func writePhasePlacementsCSV(path string, placements []phasePlacement, loadOutItems []planning.LoadOutItem) error {
	f, err := os.Create(path)
	if err != nil {
		return perr.IO(path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ObjectPath", "FeederReference", "Manufacturer", "Mpn", "X", "Y", "Rotation"}); err != nil {
		return perr.IO(path, err)
	}
	for _, pl := range placements {
		feeder := loadout.FeederReferenceFor(loadOutItems, pl.state.Placement.Part.Manufacturer, pl.state.Placement.Part.MPN)
		row := []string{
			pl.path,
			feeder,
			pl.state.Placement.Part.Manufacturer,
			pl.state.Placement.Part.MPN,
			pl.state.Placement.X,
			pl.state.Placement.Y,
			pl.state.Placement.Rotation,
		}
		if err := w.Write(row); err != nil {
			return perr.IO(path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return perr.IO(path, err)
	}
	return nil
}
