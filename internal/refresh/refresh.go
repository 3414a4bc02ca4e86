// Package refresh re-derives placements, parts and phase-operation states
// from external design-variant inputs after every project mutation (C7,
// spec §4.7), grounded on
// _examples/original_source/src/planning/project.rs's
// refresh_from_design_variants/refresh_parts/refresh_placements and
// src/planning/placement.rs's build_unique_parts.
package refresh

import (
	"strings"

	"github.com/makerpnp/planner/internal/objectpath"
	"github.com/makerpnp/planner/internal/opstate"
	"github.com/makerpnp/planner/internal/planning"
)

// ByDesignVariant is the set of ingested, part-resolved placements
// produced for each referenced design-variant, keyed by design-variant.
type ByDesignVariant map[planning.DesignVariant][]planning.Placement

// UniqueParts returns the distinct parts across every variant's placement
// list, in first-seen order (grounded on build_unique_parts).
func UniqueParts(placementsByVariant ByDesignVariant, variants []planning.DesignVariant) []planning.Part {
	var parts []planning.Part
	seen := map[planning.Part]bool{}
	for _, dv := range variants {
		for _, placement := range placementsByVariant[dv] {
			if !seen[placement.Part] {
				seen[placement.Part] = true
				parts = append(parts, placement.Part)
			}
		}
	}
	return parts
}

// Refresh runs the full project-refresh algorithm: part delta, placement
// delta, then phase-operation-state recomputation (spec §4.7 steps 1-5).
func Refresh(project *planning.Project, placementsByVariant ByDesignVariant) {
	variants := project.UniqueDesignVariants()
	parts := UniqueParts(placementsByVariant, variants)

	refreshParts(project, parts)
	refreshPlacements(project, placementsByVariant)
	refreshPhaseOperationStates(project)
}

// refreshParts classifies each current part as New (seed an empty
// part-state) or Unused (remove its state); parts already tracked are
// left untouched (spec §4.7 step 3).
func refreshParts(project *planning.Project, parts []planning.Part) {
	wanted := map[planning.Part]bool{}
	for _, part := range parts {
		wanted[part] = true
		if _, ok := project.PartStates[part]; !ok {
			project.PartStates[part] = &planning.PartState{}
		}
	}
	for part := range project.PartStates {
		if !wanted[part] {
			delete(project.PartStates, part)
		}
	}
}

// refreshPlacements applies the placement delta (spec §4.7 step 4),
// grounded on find_placement_changes/refresh_placements: new placements
// are inserted fresh; existing ones are updated in place only if their
// fields differ; placements that are no longer produced by any matching
// design-variant input, for a unit still present in unit_assignments, are
// marked Unknown rather than deleted (preserving placed/phase history).
func refreshPlacements(project *planning.Project, placementsByVariant ByDesignVariant) {
	for _, unitPathStr := range project.SortedUnitPaths() {
		dv := project.UnitAssignments[unitPathStr]
		placements := placementsByVariant[dv]

		produced := map[string]bool{}
		for _, placement := range placements {
			key := unitPathStr + "::ref_des=" + placement.RefDes
			produced[key] = true

			existing, ok := project.Placements[key]
			if !ok {
				unitPath, err := objectpath.Parse(unitPathStr)
				if err != nil {
					continue
				}
				project.Placements[key] = &planning.PlacementState{
					UnitPath:  unitPath,
					Placement: placement,
					Placed:    false,
					Status:    planning.StatusKnown,
				}
				continue
			}

			if existing.Placement != placement {
				existing.Placement = placement
			}
			existing.Status = planning.StatusKnown
		}

		for key, state := range project.Placements {
			if !strings.HasPrefix(key, unitPathStr+"::") {
				continue
			}
			if !produced[key] && state.Status == planning.StatusKnown {
				state.Status = planning.StatusUnknown
			}
		}
	}
}

// refreshPhaseOperationStates recomputes each phase's per-operation
// placed/total counts and, for placement-class operations without a
// manual override, derives Complete/Pending from them (spec §4.7 step 5).
func refreshPhaseOperationStates(project *planning.Project) {
	for ref, phase := range project.Phases {
		phaseState, ok := project.PhaseStates[ref]
		if !ok {
			continue
		}

		priorComplete := true
		for _, op := range phaseState.Operations {
			state := phaseState.ByOperation[op]

			if op.IsPlacementClass() {
				total, placed := countPlacements(project, ref, phase.PCBSide, op)
				if state.Extra == nil {
					state.Extra = &planning.OperationExtra{}
				}
				state.Extra.Total = total
				state.Extra.Placed = placed

				if !state.ManualOverride {
					eligible := total > 0 && placed == total && priorComplete
					m := opstate.New(state.Status)
					event := opstate.EventNotEligible
					if eligible {
						event = opstate.EventEligible
					}
					if status, err := m.Fire(event); err == nil {
						state.Status = status
					}
				}
			}

			if state.Status != planning.OperationComplete {
				priorComplete = false
			}
		}
	}
}

func countPlacements(project *planning.Project, phaseRef planning.Reference, side planning.PCBSide, op planning.OperationKind) (total, placed uint) {
	for _, state := range project.Placements {
		if state.Status != planning.StatusKnown {
			continue
		}
		if state.Phase == nil || *state.Phase != phaseRef {
			continue
		}
		if state.Placement.PCBSide != side || !state.Placement.Place {
			continue
		}
		total++
		if state.Placed {
			placed++
		}
	}
	return total, placed
}

