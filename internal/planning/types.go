// Package planning implements the project aggregate (C6): pcbs,
// unit-assignments, parts, placements, phases and their derived states, as
// described in spec §3 and §4.6.
package planning

import (
	"strings"

	"github.com/makerpnp/planner/internal/objectpath"
)

// PCBKind distinguishes a panel (multiple units arrayed on one piece) from
// a single (one board per piece).
type PCBKind string

const (
	PCBKindPanel  PCBKind = "panel"
	PCBKindSingle PCBKind = "single"
)

// PCB is one entry in the project's ordered PCB list.
type PCB struct {
	Kind PCBKind `json:"kind"`
	Name string  `json:"name"`
}

// DesignVariant identifies a design and one of its populated configurations.
type DesignVariant struct {
	DesignName  string `json:"design_name"`
	VariantName string `json:"variant_name"`
}

// Part is a catalogued physical SKU, total-ordered by (Manufacturer, MPN).
type Part struct {
	Manufacturer string `json:"manufacturer"`
	MPN          string `json:"mpn"`
}

// Less implements the (manufacturer, mpn) total order used for all
// deterministic part sorting.
func (p Part) Less(other Part) bool {
	if p.Manufacturer != other.Manufacturer {
		return p.Manufacturer < other.Manufacturer
	}
	return p.MPN < other.MPN
}

// PartState tracks which processes a part is applicable to. Created lazily
// when a part first appears; destroyed when no Known placement references
// it (spec §3, §4.7 step 3).
type PartState struct {
	ApplicableProcesses []string `json:"applicable_processes,omitempty"`
}

// HasProcess reports whether process is already in ApplicableProcesses.
func (ps *PartState) HasProcess(process string) bool {
	for _, p := range ps.ApplicableProcesses {
		if p == process {
			return true
		}
	}
	return false
}

// AddProcess appends process to ApplicableProcesses if not already present.
func (ps *PartState) AddProcess(process string) {
	if !ps.HasProcess(process) {
		ps.ApplicableProcesses = append(ps.ApplicableProcesses, process)
	}
}

// PCBSide is the side of the PCB a placement is on.
type PCBSide string

const (
	PCBSideTop    PCBSide = "top"
	PCBSideBottom PCBSide = "bottom"
)

// ParsePCBSide parses a side value case-insensitively, accepting both the
// DipTrace ("Top"/"Bottom") and KiCad ("top"/"bottom") conventions.
func ParsePCBSide(value string) (PCBSide, bool) {
	switch strings.ToLower(value) {
	case "top":
		return PCBSideTop, true
	case "bottom":
		return PCBSideBottom, true
	default:
		return "", false
	}
}

// Placement is one component-placement operation at given coordinates on a
// given side of a unit, produced from a per-design-variant CSV input.
// Coordinates and rotation are preserved exactly as decimal strings; no
// normalization is performed (spec §3, §9).
type Placement struct {
	RefDes   string  `json:"ref_des"`
	Part     Part    `json:"part"`
	Place    bool    `json:"place"`
	PCBSide  PCBSide `json:"pcb_side"`
	X        string  `json:"x"`
	Y        string  `json:"y"`
	Rotation string  `json:"rotation"`
}

// Equal reports whether two placements have identical field values.
func (p Placement) Equal(other Placement) bool {
	return p == other
}

// PlacementStatus tracks whether a placement is still produced by the
// current design-variant inputs.
//
// "Rolled-back" is a planned-but-unused extension point (spec §9) and is
// deliberately not added as a third member here.
type PlacementStatus string

const (
	StatusKnown   PlacementStatus = "known"
	StatusUnknown PlacementStatus = "unknown"
)

// PlacementState is the internal, persisted record for one placement,
// keyed by its full object path (unit + ref_des).
type PlacementState struct {
	UnitPath  objectpath.Path `json:"-"`
	Placement Placement       `json:"placement"`
	Placed    bool            `json:"placed"`
	Status    PlacementStatus `json:"status"`
	Phase     *Reference      `json:"phase,omitempty"`
}

// Reference is an opaque identifier for a phase.
type Reference string

// OperationKind is one step of a process.
type OperationKind string

const (
	OpLoadPcbs                 OperationKind = "load_pcbs"
	OpAutomatedPnp              OperationKind = "automated_pnp"
	OpReflowComponents          OperationKind = "reflow_components"
	OpManuallySolderComponents OperationKind = "manually_solder_components"
)

// IsPlacementClass reports whether an operation kind tracks a
// placed/total count (AutomatedPnp, ManuallySolderComponents).
func (k OperationKind) IsPlacementClass() bool {
	return k == OpAutomatedPnp || k == OpManuallySolderComponents
}

// Process is a named ordered list of operations.
type Process struct {
	Name       string          `json:"name"`
	Operations []OperationKind `json:"operations"`
}

// HasOperation reports whether op is one of the process's operations.
func (p Process) HasOperation(op OperationKind) bool {
	for _, o := range p.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// BuiltinProcesses returns the two built-in processes every new project is
// seeded with (spec §3).
func BuiltinProcesses() []Process {
	return []Process{
		{Name: "pnp", Operations: []OperationKind{OpLoadPcbs, OpAutomatedPnp, OpReflowComponents}},
		{Name: "manual", Operations: []OperationKind{OpLoadPcbs, OpManuallySolderComponents}},
	}
}

// SortMode is a placement-sorting item's comparison mode.
type SortMode string

const (
	SortModeFeederReference SortMode = "feeder_reference"
	SortModePcbUnit         SortMode = "pcb_unit"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// PlacementSorting is one item of a phase's placement_orderings list.
type PlacementSorting struct {
	Mode  SortMode  `json:"mode"`
	Order SortOrder `json:"order"`
}

// Phase is one segment of the assembly plan bound to one process and one
// PCB side.
type Phase struct {
	Reference        Reference          `json:"reference"`
	Process          string             `json:"process"`
	LoadOutSource    string             `json:"load_out_source"`
	PCBSide          PCBSide            `json:"pcb_side"`
	PlacementOrderings []PlacementSorting `json:"placement_orderings,omitempty"`
}

// OperationStatus is the lifecycle status of one phase operation.
type OperationStatus string

const (
	OperationPending    OperationStatus = "pending"
	OperationIncomplete OperationStatus = "incomplete"
	OperationComplete   OperationStatus = "complete"
)

// OperationExtra carries placed/total counts for placement-class
// operations (AutomatedPnp, ManuallySolderComponents). nil for operations
// without placement totals (LoadPcbs, ReflowComponents).
type OperationExtra struct {
	Placed uint `json:"placed"`
	Total  uint `json:"total"`
}

// OperationState is one phase operation's recorded state.
//
// ManualOverride is set by an explicit record-phase-operation command and
// suppresses refresh's automatic placed/total-driven status recomputation
// for placement-class operations (spec §4.7 step 5); it is cleared by
// ResetOperations.
type OperationState struct {
	Status         OperationStatus `json:"status"`
	Extra          *OperationExtra `json:"extra,omitempty"`
	ManualOverride bool            `json:"manual_override,omitempty"`
}

// PhaseState is the full per-operation state for one phase, keyed in the
// order of its process's operations (invariant: keys == process operations,
// spec §4.6(v)).
type PhaseState struct {
	Operations []OperationKind            `json:"-"`
	ByOperation map[OperationKind]*OperationState `json:"operations"`
}

// LoadOutItem is one feeder→part row of a phase's load-out.
type LoadOutItem struct {
	FeederReference string `json:"reference"`
	Manufacturer    string `json:"manufacturer"`
	MPN             string `json:"mpn"`
}
