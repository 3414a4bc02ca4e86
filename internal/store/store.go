// Package store implements project persistence (C11, spec §4.11):
// deterministic pretty-printed JSON load/save of the project document at
// "<path>/project-<name>.mpnp.json", grounded on
// _examples/original_source/src/planning/project.rs's Project struct
// (serde_as field annotations: map-valued fields as Vec<(key, value)>
// pairs, DisplayFromStr for object-path and reference keys,
// skip_serializing_if on empty collections) plus the teacher's
// cli/internal/sdks/project/state/validate.go CUE structural-validation
// pattern, reused here against the project document shape instead of
// project-type metadata.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/makerpnp/planner/internal/objectpath"
	"github.com/makerpnp/planner/internal/perr"
	"github.com/makerpnp/planner/internal/planning"
)

// kv is one [key, value] pair, marshaled as a two-element JSON array
// (grounded on project.rs's "Vec<(_, _)>"/"Vec<(DisplayFromStr, _)>" field
// annotations, the idiomatic Go stand-in for serde_with's pair-sequence
// map encoding).
type kv[K any, V any] struct {
	Key K
	Val V
}

func (p kv[K, V]) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Key, p.Val})
}

func (p *kv[K, V]) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := decodeStrict(raw[0], &p.Key); err != nil {
		return err
	}
	return decodeStrict(raw[1], &p.Val)
}

// decodeStrict unmarshals data with unknown-field rejection, re-asserting
// the strictness a custom UnmarshalJSON method would otherwise opt out of
// for the decoder that reaches it.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// placementDoc mirrors placement.rs's PlacementState wire shape: unit_path
// is stored explicitly (not derived) even though it is also embedded in
// the placements map's own key, matching the source exactly.
type placementDoc struct {
	UnitPath  string                    `json:"unit_path"`
	Placement planning.Placement        `json:"placement"`
	Placed    bool                      `json:"placed"`
	Status    planning.PlacementStatus  `json:"status"`
	Phase     *planning.Reference       `json:"phase,omitempty"`
}

// operationStateDoc mirrors planning.OperationState for use inside the
// phase_states pair array.
type operationStateDoc struct {
	Status         planning.OperationStatus `json:"status"`
	Extra          *planning.OperationExtra `json:"extra,omitempty"`
	ManualOverride bool                     `json:"manual_override,omitempty"`
}

// phaseStateDoc mirrors planning.PhaseState. The stored pair keys are not
// trusted as the operations list: on load, Operations is rebuilt from the
// phase's process (it is a pure function of phase.process, spec §4.6(v)).
type phaseStateDoc struct {
	Operations []kv[planning.OperationKind, operationStateDoc] `json:"operations"`
}

// document is the on-disk project shape (spec §4.11, §6): a fixed set of
// named top-level keys in declaration order, map-valued fields as
// skip-if-empty pair arrays, ordered collections (pcbs, phase_orderings)
// as plain arrays in insertion order.
//
// phase_states is not named in spec §6's key enumeration, but spec §4.6
// invariant (v) treats it as part of the project's persisted state (its
// per-operation ManualOverride flag, set by RecordPhaseOperation, has no
// other durable home) — see the Open Question resolution in DESIGN.md.
type document struct {
	Name            string                                       `json:"name"`
	Processes       []planning.Process                           `json:"processes"`
	PCBs            []planning.PCB                                `json:"pcbs,omitempty"`
	UnitAssignments []kv[string, planning.DesignVariant]          `json:"unit_assignments,omitempty"`
	PartStates      []kv[planning.Part, planning.PartState]       `json:"part_states,omitempty"`
	Phases          []kv[planning.Reference, planning.Phase]      `json:"phases,omitempty"`
	PhaseOrderings  []planning.Reference                          `json:"phase_orderings,omitempty"`
	Placements      []kv[string, placementDoc]                    `json:"placements,omitempty"`
	PhaseStates     []kv[planning.Reference, phaseStateDoc]       `json:"phase_states,omitempty"`
}

// ProjectFilePath returns the canonical project document path for name
// under dir (spec §4.11).
func ProjectFilePath(dir, name string) string {
	return filepath.Join(dir, fmt.Sprintf("project-%s.mpnp.json", name))
}

// Save writes project to "<dir>/project-<name>.mpnp.json": four-space
// indent, trailing newline (spec §4.11).
func Save(project *planning.Project, dir string) error {
	doc := toDocument(project)

	buf, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return perr.Wrap(perr.KindIO, project.Name, err)
	}

	var generic any
	if err := json.Unmarshal(buf, &generic); err != nil {
		return perr.Wrap(perr.KindSchema, project.Name, err)
	}
	if err := validateStructure(generic); err != nil {
		return err
	}

	buf = append(buf, '\n')

	path := ProjectFilePath(dir, project.Name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return perr.IO(path, err)
	}
	return nil
}

// Load reads and strictly decodes "<dir>/project-<name>.mpnp.json" (spec
// §4.11: "unknown fields and type mismatches are errors"), validating the
// decoded document's structure against a CUE schema before converting it
// to a *planning.Project.
func Load(dir, name string) (*planning.Project, error) {
	path := ProjectFilePath(dir, name)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.IO(path, err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, perr.Parse(path, err)
	}
	if err := validateStructure(generic); err != nil {
		return nil, err
	}

	var doc document
	if err := decodeStrict(raw, &doc); err != nil {
		return nil, perr.Schema(path, err.Error())
	}

	return fromDocument(doc), nil
}

func toDocument(project *planning.Project) document {
	doc := document{
		Name:           project.Name,
		Processes:      project.Processes,
		PCBs:           project.PCBs,
		PhaseOrderings: project.PhaseOrderings,
	}

	for _, path := range project.SortedUnitPaths() {
		doc.UnitAssignments = append(doc.UnitAssignments, kv[string, planning.DesignVariant]{
			Key: path, Val: project.UnitAssignments[path],
		})
	}

	for _, part := range project.SortedParts() {
		doc.PartStates = append(doc.PartStates, kv[planning.Part, planning.PartState]{
			Key: part, Val: *project.PartStates[part],
		})
	}

	for _, ref := range sortedPhaseReferences(project.Phases) {
		doc.Phases = append(doc.Phases, kv[planning.Reference, planning.Phase]{
			Key: ref, Val: *project.Phases[ref],
		})
	}

	for _, key := range project.SortedPlacementKeys() {
		state := project.Placements[key]
		doc.Placements = append(doc.Placements, kv[string, placementDoc]{
			Key: key,
			Val: placementDoc{
				UnitPath:  state.UnitPath.String(),
				Placement: state.Placement,
				Placed:    state.Placed,
				Status:    state.Status,
				Phase:     state.Phase,
			},
		})
	}

	for _, ref := range sortedPhaseStateReferences(project.PhaseStates) {
		ps := project.PhaseStates[ref]
		var ops []kv[planning.OperationKind, operationStateDoc]
		for _, op := range ps.Operations {
			state := ps.ByOperation[op]
			ops = append(ops, kv[planning.OperationKind, operationStateDoc]{
				Key: op,
				Val: operationStateDoc{Status: state.Status, Extra: state.Extra, ManualOverride: state.ManualOverride},
			})
		}
		doc.PhaseStates = append(doc.PhaseStates, kv[planning.Reference, phaseStateDoc]{
			Key: ref, Val: phaseStateDoc{Operations: ops},
		})
	}

	return doc
}

func fromDocument(doc document) *planning.Project {
	project := planning.New(doc.Name)
	project.Processes = doc.Processes
	project.PCBs = doc.PCBs
	project.PhaseOrderings = doc.PhaseOrderings

	for _, e := range doc.UnitAssignments {
		project.UnitAssignments[e.Key] = e.Val
	}

	for _, e := range doc.PartStates {
		val := e.Val
		project.PartStates[e.Key] = &val
	}

	for _, e := range doc.Phases {
		val := e.Val
		project.Phases[e.Key] = &val
	}

	for _, e := range doc.Placements {
		unitPath, err := objectpath.Parse(e.Val.UnitPath)
		if err != nil {
			continue
		}
		project.Placements[e.Key] = &planning.PlacementState{
			UnitPath:  unitPath,
			Placement: e.Val.Placement,
			Placed:    e.Val.Placed,
			Status:    e.Val.Status,
			Phase:     e.Val.Phase,
		}
	}

	for _, e := range doc.PhaseStates {
		byOp := make(map[planning.OperationKind]*planning.OperationState, len(e.Val.Operations))
		var ops []planning.OperationKind
		for _, opEntry := range e.Val.Operations {
			ops = append(ops, opEntry.Key)
			byOp[opEntry.Key] = &planning.OperationState{
				Status:         opEntry.Val.Status,
				Extra:          opEntry.Val.Extra,
				ManualOverride: opEntry.Val.ManualOverride,
			}
		}
		project.PhaseStates[e.Key] = &planning.PhaseState{Operations: ops, ByOperation: byOp}
	}

	rebuildPhaseStateOperations(project)

	return project
}

// rebuildPhaseStateOperations ensures every phase has a phase_state whose
// operation keys are exactly its process's operations (spec §4.6(v)),
// seeding a fresh Pending entry for any operation missing from a loaded
// (or absent) phase_states document — mirroring planning.Project's own
// freshPhaseState seeding, duplicated here since that helper is
// unexported.
func rebuildPhaseStateOperations(project *planning.Project) {
	for ref, phase := range project.Phases {
		proc, _ := project.Process(phase.Process)

		ps, ok := project.PhaseStates[ref]
		if !ok {
			ps = &planning.PhaseState{ByOperation: map[planning.OperationKind]*planning.OperationState{}}
			project.PhaseStates[ref] = ps
		}
		ps.Operations = proc.Operations

		for op := range ps.ByOperation {
			if !proc.HasOperation(op) {
				delete(ps.ByOperation, op)
			}
		}

		for _, op := range proc.Operations {
			if _, ok := ps.ByOperation[op]; ok {
				continue
			}
			state := &planning.OperationState{Status: planning.OperationPending}
			if op.IsPlacementClass() {
				state.Extra = &planning.OperationExtra{}
			}
			ps.ByOperation[op] = state
		}
	}
}

func sortedPhaseReferences(phases map[planning.Reference]*planning.Phase) []planning.Reference {
	refs := make([]planning.Reference, 0, len(phases))
	for ref := range phases {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

func sortedPhaseStateReferences(states map[planning.Reference]*planning.PhaseState) []planning.Reference {
	refs := make([]planning.Reference, 0, len(states))
	for ref := range states {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

// projectSchema is the CUE structural schema for the project document,
// compiled once. It catches enum-domain violations (pcb_side, kind,
// status) that json.Decoder.DisallowUnknownFields alone cannot, grounded
// on the teacher's validate.go validateStructure/validateMetadata
// cuecontext.New/CompileString/Encode/Unify/Validate pipeline.
var projectSchema = compileProjectSchema()

func compileProjectSchema() cue.Value {
	ctx := cuecontext.New()
	return ctx.CompileString(projectSchemaCUE)
}

const projectSchemaCUE = `
#OperationKind: "load_pcbs" | "automated_pnp" | "reflow_components" | "manually_solder_components"

#Process: {
	name:       string
	operations: [...#OperationKind]
}

#Pcb: {
	kind: "panel" | "single"
	name: string
}

#DesignVariant: {
	design_name:  string
	variant_name: string
}

#Part: {
	manufacturer: string
	mpn:          string
}

#PartState: {
	applicable_processes?: [...string]
}

#PlacementSorting: {
	mode:  "feeder_reference" | "pcb_unit"
	order: "asc" | "desc"
}

#Phase: {
	reference:           string
	process:             string
	load_out_source:     string
	pcb_side:            "top" | "bottom"
	placement_orderings?: [...#PlacementSorting]
}

#Placement: {
	ref_des:  string
	part:     #Part
	place:    bool
	pcb_side: "top" | "bottom"
	x:        string
	y:        string
	rotation: string
}

#PlacementState: {
	unit_path: string
	placement: #Placement
	placed:    bool
	status:    "known" | "unknown"
	phase?:    string
}

#OperationExtra: {
	placed: int
	total:  int
}

#OperationState: {
	status:           "pending" | "incomplete" | "complete"
	extra?:           #OperationExtra
	manual_override?: bool
}

#PhaseState: {
	operations: [...[string, #OperationState]]
}

#Project: {
	name:             string
	processes:        [...#Process]
	pcbs?:             [...#Pcb]
	unit_assignments?: [...[string, #DesignVariant]]
	part_states?:      [...[#Part, #PartState]]
	phases?:           [...[string, #Phase]]
	phase_orderings?:  [...string]
	placements?:       [...[string, #PlacementState]]
	phase_states?:     [...[string, #PhaseState]]
}
`

func validateStructure(doc any) error {
	if projectSchema.Err() != nil {
		return perr.Schema("project-schema", projectSchema.Err().Error())
	}

	ctx := cuecontext.New()
	value := ctx.Encode(doc)
	if value.Err() != nil {
		return perr.Schema("project", value.Err().Error())
	}

	schema := projectSchema.LookupPath(cue.ParsePath("#Project"))
	result := schema.Unify(value)
	if err := result.Validate(cue.Concrete(true)); err != nil {
		return perr.Schema("project", err.Error())
	}
	return nil
}
