package planning

import (
	"fmt"
	"sort"

	"github.com/makerpnp/planner/internal/objectpath"
	"github.com/makerpnp/planner/internal/perr"
)

// Project is the aggregate root: the persisted project document (spec §3,
// §4.6). Maps use plain Go maps with comparable keys and are serialized in
// sorted-key order by the store package, mirroring the BTreeMap ordering
// the original document format relies on for determinism; phase_orderings
// is an explicit insertion-ordered sequence (the one collection whose
// order is semantically significant).
type Project struct {
	Name string

	Processes []Process

	PCBs []PCB

	// UnitAssignments is keyed by the unit object path's canonical string.
	UnitAssignments map[string]DesignVariant

	PartStates map[Part]*PartState

	Phases map[Reference]*Phase

	PhaseOrderings []Reference

	// Placements is keyed by the full object path's canonical string
	// (unit path + ref_des chunk).
	Placements map[string]*PlacementState

	PhaseStates map[Reference]*PhaseState
}

// New creates a project seeded with the built-in processes (spec §3).
func New(name string) *Project {
	return &Project{
		Name:            name,
		Processes:       BuiltinProcesses(),
		UnitAssignments: map[string]DesignVariant{},
		PartStates:      map[Part]*PartState{},
		Phases:          map[Reference]*Phase{},
		Placements:      map[string]*PlacementState{},
		PhaseStates:     map[Reference]*PhaseState{},
	}
}

// Process looks up a process by name.
func (p *Project) Process(name string) (Process, bool) {
	for _, proc := range p.Processes {
		if proc.Name == name {
			return proc, true
		}
	}
	return Process{}, false
}

// EnsureProcess appends process if not already present by name.
func (p *Project) EnsureProcess(process Process) {
	if _, ok := p.Process(process.Name); !ok {
		p.Processes = append(p.Processes, process)
	}
}

// AddPCB appends a PCB to the ordered pcbs list.
func (p *Project) AddPCB(kind PCBKind, name string) {
	p.PCBs = append(p.PCBs, PCB{Kind: kind, Name: name})
}

// PCBAt returns the PCB at the given 1-based index.
func (p *Project) PCBAt(index uint64) (PCB, bool) {
	if index < 1 || index > uint64(len(p.PCBs)) {
		return PCB{}, false
	}
	return p.PCBs[index-1], true
}

// AssignVariantToUnit upserts a unit's design-variant assignment.
func (p *Project) AssignVariantToUnit(unit objectpath.Path, dv DesignVariant) {
	p.UnitAssignments[unit.String()] = dv
}

// CreatePhase adds or replaces a phase and, if new, appends its reference
// to phase_orderings (spec §4.8 CreatePhase). Ensuring the load-out file
// exists on disk is the dispatcher's responsibility, not the project's.
func (p *Project) CreatePhase(phase Phase) {
	_, existed := p.Phases[phase.Reference]
	stored := phase
	p.Phases[phase.Reference] = &stored

	if !existed {
		p.PhaseOrderings = append(p.PhaseOrderings, phase.Reference)
		p.PhaseStates[phase.Reference] = p.freshPhaseState(phase)
	}
}

func (p *Project) freshPhaseState(phase Phase) *PhaseState {
	proc, _ := p.Process(phase.Process)
	byOp := make(map[OperationKind]*OperationState, len(proc.Operations))
	for _, op := range proc.Operations {
		state := &OperationState{Status: OperationPending}
		if op.IsPlacementClass() {
			state.Extra = &OperationExtra{}
		}
		byOp[op] = state
	}
	return &PhaseState{Operations: proc.Operations, ByOperation: byOp}
}

// AssignProcessToParts adds process to the ApplicableProcesses of every
// part whose (manufacturer, mpn) match the given predicates (spec §4.8
// AssignProcessToParts).
func (p *Project) AssignProcessToParts(process string, matches func(Part) bool) {
	for part, state := range p.PartStates {
		if matches(part) {
			state.AddProcess(process)
		}
	}
}

// AssignPlacementsToPhase assigns phase to every placement state whose
// canonical path matches pathMatches and whose pcb_side equals the
// phase's, and which is currently unassigned or assigned elsewhere (spec
// §4.4 AssignPlacementsToPhase / original's assign_placements_to_phase).
// It returns the set of distinct parts now required in the phase's
// load-out.
func (p *Project) AssignPlacementsToPhase(phase Phase, pathMatches func(string) bool) []Part {
	seen := map[Part]struct{}{}
	var required []Part

	keys := p.SortedPlacementKeys()
	for _, key := range keys {
		state := p.Placements[key]
		if !pathMatches(key) || state.Placement.PCBSide != phase.PCBSide {
			continue
		}

		shouldAssign := state.Phase == nil || *state.Phase != phase.Reference
		if shouldAssign {
			ref := phase.Reference
			state.Phase = &ref
		}

		if _, ok := seen[state.Placement.Part]; !ok {
			seen[state.Placement.Part] = struct{}{}
			required = append(required, state.Placement.Part)
		}
	}

	return required
}

// SetPlacementOrdering replaces a phase's placement_orderings.
func (p *Project) SetPlacementOrdering(ref Reference, orderings []PlacementSorting) error {
	phase, ok := p.Phases[ref]
	if !ok {
		return perr.Domain("set-placement-ordering", fmt.Sprintf("no such phase: %s", ref))
	}
	phase.PlacementOrderings = orderings
	return nil
}

// SortedPlacementKeys returns Placements' keys sorted for deterministic
// iteration.
func (p *Project) SortedPlacementKeys() []string {
	keys := make([]string, 0, len(p.Placements))
	for k := range p.Placements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedParts returns PartStates' keys in the part total order.
func (p *Project) SortedParts() []Part {
	parts := make([]Part, 0, len(p.PartStates))
	for part := range p.PartStates {
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Less(parts[j]) })
	return parts
}

// SortedUnitPaths returns UnitAssignments' keys sorted lexicographically.
func (p *Project) SortedUnitPaths() []string {
	keys := make([]string, 0, len(p.UnitAssignments))
	for k := range p.UnitAssignments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UniqueDesignVariants returns the distinct design-variants referenced by
// unit_assignments, in first-seen order over the sorted unit paths
// (grounded on the original's build_unique_design_variants).
func (p *Project) UniqueDesignVariants() []DesignVariant {
	var result []DesignVariant
	seen := map[DesignVariant]bool{}
	for _, path := range p.SortedUnitPaths() {
		dv := p.UnitAssignments[path]
		if !seen[dv] {
			seen[dv] = true
			result = append(result, dv)
		}
	}
	return result
}

// CheckInvariants validates the project against spec §4.6 (i)-(v),
// returning every violation found rather than stopping at the first.
func (p *Project) CheckInvariants() []error {
	var errs []error

	// (i) every placement state's unit_path corresponds to an existing
	// unit assignment.
	for key, state := range p.Placements {
		if _, ok := p.UnitAssignments[state.UnitPath.String()]; !ok {
			errs = append(errs, fmt.Errorf("placement %q: unit_path %q has no unit assignment", key, state.UnitPath.String()))
		}
	}

	// (ii) every part_state key appears as some placement's part iff
	// status == Known; unused parts are pruned.
	referenced := map[Part]bool{}
	for _, state := range p.Placements {
		if state.Status == StatusKnown {
			referenced[state.Placement.Part] = true
		}
	}
	for part := range p.PartStates {
		if !referenced[part] {
			errs = append(errs, fmt.Errorf("part_state %v: not referenced by any known placement", part))
		}
	}

	// (iii) every phase referenced in phase_orderings exists in phases,
	// and vice versa.
	orderingSet := map[Reference]bool{}
	for _, ref := range p.PhaseOrderings {
		orderingSet[ref] = true
		if _, ok := p.Phases[ref]; !ok {
			errs = append(errs, fmt.Errorf("phase_orderings references unknown phase %q", ref))
		}
	}
	for ref := range p.Phases {
		if !orderingSet[ref] {
			errs = append(errs, fmt.Errorf("phase %q missing from phase_orderings", ref))
		}
	}

	// (iv) a placement's phase (if set) refers to a phase whose pcb_side
	// equals the placement's pcb_side.
	for key, state := range p.Placements {
		if state.Phase == nil {
			continue
		}
		phase, ok := p.Phases[*state.Phase]
		if !ok {
			errs = append(errs, fmt.Errorf("placement %q: assigned to unknown phase %q", key, *state.Phase))
			continue
		}
		if phase.PCBSide != state.Placement.PCBSide {
			errs = append(errs, fmt.Errorf("placement %q: pcb_side %q does not match phase %q's pcb_side %q", key, state.Placement.PCBSide, *state.Phase, phase.PCBSide))
		}
	}

	// (v) phase_states has exactly one entry per phase, whose operation
	// map is keyed by the phase's process's operations.
	for ref, phase := range p.Phases {
		ps, ok := p.PhaseStates[ref]
		if !ok {
			errs = append(errs, fmt.Errorf("phase %q: missing phase_state", ref))
			continue
		}
		proc, ok := p.Process(phase.Process)
		if !ok {
			errs = append(errs, fmt.Errorf("phase %q: references unknown process %q", ref, phase.Process))
			continue
		}
		if len(ps.ByOperation) != len(proc.Operations) {
			errs = append(errs, fmt.Errorf("phase %q: phase_state operation count %d does not match process operation count %d", ref, len(ps.ByOperation), len(proc.Operations)))
			continue
		}
		for _, op := range proc.Operations {
			if _, ok := ps.ByOperation[op]; !ok {
				errs = append(errs, fmt.Errorf("phase %q: phase_state missing operation %q", ref, op))
			}
		}
	}
	for ref := range p.PhaseStates {
		if _, ok := p.Phases[ref]; !ok {
			errs = append(errs, fmt.Errorf("phase_state %q: no corresponding phase", ref))
		}
	}

	return errs
}
