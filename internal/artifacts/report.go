package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/makerpnp/planner/internal/objectpath"
	"github.com/makerpnp/planner/internal/perr"
	"github.com/makerpnp/planner/internal/planning"
)

// IssueSeverity is the severity of one reported issue.
type IssueSeverity string

const (
	IssueSevere  IssueSeverity = "severe"
	IssueWarning IssueSeverity = "warning"
)

// severityOrdinal gives Severe priority over Warning under the report's
// severity-descending sort, grounded on report.rs's severity_ordinal (a
// ranking distinct from, and opposite to, the enum's own declaration order).
func severityOrdinal(s IssueSeverity) int {
	if s == IssueWarning {
		return 0
	}
	return 1
}

// IssueKind identifies the shape of one reported issue (spec §4.9).
type IssueKind string

const (
	IssueNoPcbsAssigned        IssueKind = "no_pcbs_assigned"
	IssueNoPhasesCreated       IssueKind = "no_phases_created"
	IssueInvalidUnitAssignment IssueKind = "invalid_unit_assignment"
	IssueUnassignedPlacement  IssueKind = "unassigned_placement"
	IssueUnassignedPartFeeder IssueKind = "unassigned_part_feeder"
)

func kindOrdinal(k IssueKind) int {
	switch k {
	case IssueNoPcbsAssigned:
		return 0
	case IssueNoPhasesCreated:
		return 1
	case IssueInvalidUnitAssignment:
		return 2
	case IssueUnassignedPlacement:
		return 3
	case IssueUnassignedPartFeeder:
		return 4
	default:
		return 5
	}
}

// ProjectReportIssue is one entry of the report's issue list. ObjectPath and
// Part are populated only for the kinds that carry them.
type ProjectReportIssue struct {
	Message    string         `json:"message"`
	Severity   IssueSeverity  `json:"severity"`
	Kind       IssueKind      `json:"kind"`
	ObjectPath string         `json:"object_path,omitempty"`
	Part       *planning.Part `json:"part,omitempty"`
}

// key returns a canonical string identifying this issue's full value, for
// set-style deduplication (spec §4.9 "De-duplication").
func (i ProjectReportIssue) key() string {
	part := ""
	if i.Part != nil {
		part = i.Part.Manufacturer + "/" + i.Part.MPN
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", i.Kind, i.Severity, i.Message, i.ObjectPath, part)
}

// issueSet is the working, duplicate-free issue collection (grounded on
// report.rs's BTreeSet<ProjectReportIssue>).
type issueSet struct {
	byKey map[string]ProjectReportIssue
}

func newIssueSet() *issueSet {
	return &issueSet{byKey: map[string]ProjectReportIssue{}}
}

func (s *issueSet) add(issue ProjectReportIssue) {
	s.byKey[issue.key()] = issue
}

func (s *issueSet) addAll(issues []ProjectReportIssue) {
	for _, issue := range issues {
		s.add(issue)
	}
}

// sorted returns the issues ordered severity Desc, kind Asc, message Asc,
// with kind-specific tie-breaks on the embedded path or part (spec §4.9,
// grounded on report.rs's project_report_sort_issues).
func (s *issueSet) sorted() []ProjectReportIssue {
	issues := make([]ProjectReportIssue, 0, len(s.byKey))
	for _, issue := range s.byKey {
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]

		if sv := severityOrdinal(b.Severity) - severityOrdinal(a.Severity); sv != 0 {
			return sv < 0
		}

		if ko := kindOrdinal(a.Kind) - kindOrdinal(b.Kind); ko != 0 {
			return ko < 0
		}
		switch a.Kind {
		case IssueInvalidUnitAssignment, IssueUnassignedPlacement:
			if a.ObjectPath != b.ObjectPath {
				return a.ObjectPath < b.ObjectPath
			}
		case IssueUnassignedPartFeeder:
			if a.Part != nil && b.Part != nil && *a.Part != *b.Part {
				return a.Part.Less(*b.Part)
			}
		}

		return a.Message < b.Message
	})
	return issues
}

// PhaseStatus is the overall status of a phase's operations.
type PhaseStatus string

const (
	PhaseComplete   PhaseStatus = "complete"
	PhaseIncomplete PhaseStatus = "incomplete"
	PhasePending    PhaseStatus = "pending"
)

// OperationOverview is one phase operation's status with a human-readable
// summary (supplementing report.rs's bare PhaseOverview, SPEC_FULL.md's
// richer phase overview wording).
type OperationOverview struct {
	Operation planning.OperationKind `json:"operation"`
	Status    planning.OperationStatus `json:"status"`
	Summary   string                 `json:"summary"`
}

// PhaseOverview is one phase's status line in the report (spec §4.9,
// grounded on report.rs's PhaseOverview, enriched with status and an
// operation-overview list per SPEC_FULL.md).
type PhaseOverview struct {
	PhaseName  string               `json:"phase_name"`
	Process    string               `json:"process"`
	Status     PhaseStatus          `json:"status"`
	Operations []OperationOverview  `json:"operations"`
}

// PcbUnitAssignmentItem names one unit's design-variant assignment, used in
// PcbReportItem (grounded on report.rs's PcbUnitAssignmentItem).
type PcbUnitAssignmentItem struct {
	UnitPath    string `json:"unit_path"`
	DesignName  string `json:"design_name"`
	VariantName string `json:"variant_name"`
}

// PcbReportItem names one PCB referenced by a phase's placements, tagged by
// kind (grounded on report.rs's PcbReportItem Panel/Single variants).
type PcbReportItem struct {
	Kind            planning.PCBKind        `json:"kind"`
	Name            string                  `json:"name"`
	UnitAssignments []PcbUnitAssignmentItem `json:"unit_assignments,omitempty"`
}

// PhaseOperation is one step of a phase's specification (grounded on
// report.rs's PhaseOperation::PreparePcbs; the source's enum has only this
// one variant).
type PhaseOperation struct {
	Kind string          `json:"kind"`
	Pcbs []PcbReportItem `json:"pcbs"`
}

// PhaseLoadOutAssignmentItem is one feeder's aggregated placement quantity
// within a phase (grounded on report.rs's PhaseLoadOutAssignmentItem).
type PhaseLoadOutAssignmentItem struct {
	FeederReference string `json:"feeder_reference"`
	Manufacturer    string `json:"manufacturer"`
	MPN             string `json:"mpn"`
	Quantity        uint32 `json:"quantity"`
}

// PhaseSpecification is one phase's full artifact plan (grounded on
// report.rs's PhaseSpecification).
type PhaseSpecification struct {
	PhaseName        string                       `json:"phase_name"`
	Operations       []PhaseOperation             `json:"operations"`
	LoadOutAssignments []PhaseLoadOutAssignmentItem `json:"load_out_assignments"`
}

// ProjectReport is the full artifact written to "<name>_report.json"
// (grounded on report.rs's ProjectReport, with a top-level Status field
// added per SPEC_FULL.md's richer overview).
type ProjectReport struct {
	Name                string                `json:"name"`
	Status              PhaseStatus           `json:"status"`
	PhaseOverviews      []PhaseOverview       `json:"phase_overviews"`
	PhaseSpecifications []PhaseSpecification  `json:"phase_specifications"`
	Issues              []ProjectReportIssue  `json:"issues"`
}

// GenerateReport builds and writes the project report given every phase's
// already-sorted placements and load-out items (spec §4.9).
func GenerateReport(
	project *planning.Project,
	dir, name string,
	phaseLoadOuts map[planning.Reference][]planning.LoadOutItem,
	phasePlacementsByRef map[planning.Reference][]phasePlacement,
	issues *issueSet,
) error {
	report := ProjectReport{Name: project.Name}

	if len(project.PCBs) == 0 {
		issues.add(ProjectReportIssue{
			Message:  "No PCBs have been assigned to the project.",
			Severity: IssueSevere,
			Kind:     IssueNoPcbsAssigned,
		})
	}

	if len(project.Phases) == 0 {
		issues.add(ProjectReportIssue{
			Message:  "No phases have been created.",
			Severity: IssueSevere,
			Kind:     IssueNoPhasesCreated,
		})
	}

	addInvalidUnitAssignmentIssues(project, issues)
	addUnassignedPlacementIssues(project, issues)

	allComplete := len(project.PhaseOrderings) > 0
	for _, ref := range project.PhaseOrderings {
		phase := project.Phases[ref]
		overview := buildPhaseOverview(project, phase)
		if overview.Status != PhaseComplete {
			allComplete = false
		}
		report.PhaseOverviews = append(report.PhaseOverviews, overview)

		report.PhaseSpecifications = append(report.PhaseSpecifications, buildPhaseSpecification(project, phase, phaseLoadOuts[ref], phasePlacementsByRef[ref]))
	}
	if allComplete {
		report.Status = PhaseComplete
	} else {
		report.Status = PhaseIncomplete
	}

	report.Issues = issues.sorted()

	return writeReportJSON(filepath.Join(dir, fmt.Sprintf("%s_report.json", name)), report)
}

// addInvalidUnitAssignmentIssues flags every unit assignment whose pcb
// kind/index has no matching pcb, or whose 1-based index exceeds the count
// of pcbs of that kind (grounded on report.rs's unit-assignment loop; the
// index-vs-count comparison is NOT off-by-one adjusted here, matching the
// source exactly).
func addInvalidUnitAssignmentIssues(project *planning.Project, issues *issueSet) {
	counts := map[planning.PCBKind]int{}
	for _, pcb := range project.PCBs {
		counts[pcb.Kind]++
	}

	for unitPathStr := range project.UnitAssignments {
		unitPath, err := objectpath.Parse(unitPathStr)
		if err != nil {
			continue
		}
		kind, index, ok := unitPath.PCBKindAndIndex()
		if !ok {
			continue
		}

		count, known := counts[planning.PCBKind(kind)]
		invalid := !known || index > uint64(count)
		if invalid {
			issues.add(ProjectReportIssue{
				Message:    invalidUnitAssignmentMessage(known),
				Severity:   IssueSevere,
				Kind:       IssueInvalidUnitAssignment,
				ObjectPath: unitPathStr,
			})
		}
	}
}

func invalidUnitAssignmentMessage(kindKnown bool) string {
	if kindKnown {
		return "Invalid unit assignment, index out of range."
	}
	return "Invalid unit assignment, no pcbs match the assignment."
}

// addUnassignedPlacementIssues flags every Known placement with no phase,
// regardless of its place flag (grounded on report.rs's
// project_report_add_placement_issues, which applies no place filter).
func addUnassignedPlacementIssues(project *planning.Project, issues *issueSet) {
	for path, state := range project.Placements {
		if state.Phase == nil && state.Status == planning.StatusKnown {
			issues.add(ProjectReportIssue{
				Message:    "A placement has not been assigned to a phase",
				Severity:   IssueWarning,
				Kind:       IssueUnassignedPlacement,
				ObjectPath: path,
			})
		}
	}
}

func buildPhaseOverview(project *planning.Project, phase *planning.Phase) PhaseOverview {
	phaseState := project.PhaseStates[phase.Reference]

	overview := PhaseOverview{
		PhaseName: string(phase.Reference),
		Process:   phase.Process,
	}

	completeCount, total := 0, 0
	for _, op := range phaseState.Operations {
		state := phaseState.ByOperation[op]
		total++
		if state.Status == planning.OperationComplete {
			completeCount++
		}
		overview.Operations = append(overview.Operations, OperationOverview{
			Operation: op,
			Status:    state.Status,
			Summary:   operationSummary(op, state),
		})
	}

	switch {
	case total > 0 && completeCount == total:
		overview.Status = PhaseComplete
	case completeCount == 0:
		overview.Status = PhasePending
	default:
		overview.Status = PhaseIncomplete
	}

	return overview
}

func operationSummary(op planning.OperationKind, state *planning.OperationState) string {
	if state.Extra != nil {
		return fmt.Sprintf("%s: %s (%d/%d placed)", op, state.Status, state.Extra.Placed, state.Extra.Total)
	}
	return fmt.Sprintf("%s: %s", op, state.Status)
}

// buildPhaseSpecification builds one phase's operations (a PreparePcbs
// entry whenever the phase has any Known placements assigned to it) and load-out
// assignment quantities (grounded on report.rs's phase_specifications
// fold). Unlike the source, whose find_map over all project placements
// (not filtered to this phase) caps the pcbs list at one entry, this lists
// every distinct pcb unit actually backing this phase's own placements —
// see the Open Question decision in the grounding ledger.
func buildPhaseSpecification(project *planning.Project, phase *planning.Phase, loadOutItems []planning.LoadOutItem, placements []phasePlacement) PhaseSpecification {
	spec := PhaseSpecification{PhaseName: string(phase.Reference)}

	pcbUnits := map[string]bool{}
	var orderedUnits []string
	for _, pl := range placements {
		unit := pl.state.UnitPath.PCBUnit().String()
		if !pcbUnits[unit] {
			pcbUnits[unit] = true
			orderedUnits = append(orderedUnits, unit)
		}
	}

	if len(orderedUnits) > 0 {
		var pcbs []PcbReportItem
		for _, unitStr := range orderedUnits {
			unitPath, err := objectpath.Parse(unitStr)
			if err != nil {
				continue
			}
			kind, index, ok := unitPath.PCBKindAndIndex()
			if !ok {
				continue
			}
			pcb, ok := project.PCBAt(index)
			if !ok {
				continue
			}
			pcbs = append(pcbs, PcbReportItem{
				Kind:            planning.PCBKind(kind),
				Name:            pcb.Name,
				UnitAssignments: findUnitAssignments(project, unitStr),
			})
		}
		spec.Operations = append(spec.Operations, PhaseOperation{Kind: "prepare_pcbs", Pcbs: pcbs})
	}

	for _, item := range loadOutItems {
		quantity := uint32(0)
		for _, state := range project.Placements {
			if state.Phase == nil || *state.Phase != phase.Reference {
				continue
			}
			if !state.Placement.Place {
				continue
			}
			if state.Placement.Part.Manufacturer == item.Manufacturer && state.Placement.Part.MPN == item.MPN {
				quantity++
			}
		}
		spec.LoadOutAssignments = append(spec.LoadOutAssignments, PhaseLoadOutAssignmentItem{
			FeederReference: item.FeederReference,
			Manufacturer:    item.Manufacturer,
			MPN:             item.MPN,
			Quantity:        quantity,
		})
	}

	return spec
}

func findUnitAssignments(project *planning.Project, unitPathStr string) []PcbUnitAssignmentItem {
	dv, ok := project.UnitAssignments[unitPathStr]
	if !ok {
		return nil
	}
	return []PcbUnitAssignmentItem{{
		UnitPath:    unitPathStr,
		DesignName:  dv.DesignName,
		VariantName: dv.VariantName,
	}}
}

func writeReportJSON(path string, report ProjectReport) error {
	f, err := os.Create(path)
	if err != nil {
		return perr.IO(path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "    ")
	if err := enc.Encode(report); err != nil {
		return perr.IO(path, err)
	}
	return nil
}
