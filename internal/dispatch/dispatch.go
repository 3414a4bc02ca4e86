// Package dispatch implements the command dispatcher (C8, spec §4.8): one
// method per CLI command, each loading the project (CreateProject aside),
// applying the command's effect, and persisting exactly once at
// end-of-command on success. Grounded on
// _examples/original_source/src/bin/planner.rs's match-on-Command block
// (load → mutate → save sequencing, one command at a time, no partial
// writes on error) and the teacher's cli/internal/cmdutil load-then-mutate
// convenience-wrapper pattern, with structured zap logging and a uuid
// command_id replacing the teacher's plain sentinel-error reporting.
package dispatch

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makerpnp/planner/internal/artifacts"
	"github.com/makerpnp/planner/internal/criteria"
	"github.com/makerpnp/planner/internal/eda"
	"github.com/makerpnp/planner/internal/history"
	"github.com/makerpnp/planner/internal/loadout"
	"github.com/makerpnp/planner/internal/objectpath"
	"github.com/makerpnp/planner/internal/opstate"
	"github.com/makerpnp/planner/internal/partmapper"
	"github.com/makerpnp/planner/internal/perr"
	"github.com/makerpnp/planner/internal/planning"
	"github.com/makerpnp/planner/internal/refresh"
	"github.com/makerpnp/planner/internal/store"
)

// Dispatcher applies commands against the on-disk project at Dir, logging a
// command.start/command.success/command.error event per invocation.
type Dispatcher struct {
	Dir    string
	Logger *zap.Logger
}

// New builds a Dispatcher rooted at dir, logging through logger.
func New(dir string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{Dir: dir, Logger: logger}
}

// run assigns a command_id, logs start/success/error, and invokes fn.
func (d *Dispatcher) run(command string, fields []zap.Field, fn func() error) error {
	id := uuid.NewString()
	logger := d.Logger.With(zap.String("command_id", id), zap.String("command", command))

	logger.Info("command.start", fields...)
	if err := fn(); err != nil {
		logger.Error("command.error", zap.Error(err))
		return err
	}
	logger.Info("command.success")
	return nil
}

// CreateProject initializes a project seeded with the built-in processes
// and persists it (spec §4.8 CreateProject).
func (d *Dispatcher) CreateProject(name string) error {
	return d.run("create_project", []zap.Field{zap.String("project", name)}, func() error {
		project := planning.New(name)
		return store.Save(project, d.Dir)
	})
}

// AddPcb appends a PCB to the project (spec §4.8 AddPcb).
func (d *Dispatcher) AddPcb(name string, kind planning.PCBKind, pcbName string) error {
	return d.run("add_pcb", []zap.Field{zap.String("project", name), zap.String("kind", string(kind)), zap.String("pcb", pcbName)}, func() error {
		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}
		project.AddPCB(kind, pcbName)
		return store.Save(project, d.Dir)
	})
}

// AssignVariantToUnit upserts the unit's design-variant assignment, then
// ingests every referenced design-variant's placement CSV (auto-detecting
// DipTrace vs KiCad from its header), resolves each to a catalogue part via
// part-mapping, substitution and assembly rules (spec §4.3, §4.4), and
// refreshes the project from the result (spec §4.7). Mapping, substitution
// and assembly-rule files are optional; a missing placements file is not
// (spec §4.8 AssignVariantToUnit).
func (d *Dispatcher) AssignVariantToUnit(name, design, variant string, unit objectpath.Path) error {
	fields := []zap.Field{
		zap.String("project", name), zap.String("design", design), zap.String("variant", variant),
		zap.String("unit", unit.String()),
	}
	return d.run("assign_variant_to_unit", fields, func() error {
		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}

		dv := planning.DesignVariant{DesignName: design, VariantName: variant}
		project.AssignVariantToUnit(unit, dv)

		placementsByVariant, err := d.resolveAllVariants(project)
		if err != nil {
			return err
		}

		refresh.Refresh(project, placementsByVariant)
		return store.Save(project, d.Dir)
	})
}

// resolveAllVariants re-ingests and re-resolves placements for every
// design-variant currently referenced by unit_assignments (not just the one
// just assigned), since refresh.Refresh recomputes project-wide state from
// the full placement set every time (spec §4.7 step 1).
func (d *Dispatcher) resolveAllVariants(project *planning.Project) (refresh.ByDesignVariant, error) {
	result := refresh.ByDesignVariant{}

	for _, dv := range project.UniqueDesignVariants() {
		placements, err := d.resolveVariant(project, dv)
		if err != nil {
			return nil, err
		}
		result[dv] = placements
	}

	return result, nil
}

func (d *Dispatcher) resolveVariant(project *planning.Project, dv planning.DesignVariant) ([]planning.Placement, error) {
	placementsPath := filepath.Join(d.Dir, eda.PlacementsFileName(dv.DesignName, dv.VariantName))
	raw, err := os.ReadFile(placementsPath)
	if err != nil {
		return nil, perr.IO(placementsPath, err)
	}

	headerRow, err := csv.NewReader(bytes.NewReader(raw)).Read()
	if err != nil {
		return nil, perr.Parse(placementsPath, err)
	}
	variant, ok := eda.DetectVariant(headerRow)
	if !ok {
		return nil, perr.Parse(placementsPath, fmt.Errorf("unrecognized header shape: %v", headerRow))
	}

	edaPlacements, err := eda.Read(variant, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	mappings, err := readMappingsIfPresent(filepath.Join(d.Dir, partmapper.MappingsFileName(dv.DesignName, dv.VariantName)))
	if err != nil {
		return nil, err
	}

	substitutionRules, err := readSubstitutionsIfPresent(filepath.Join(d.Dir, partmapper.SubstitutionRulesFileName(dv.DesignName, dv.VariantName)))
	if err != nil {
		return nil, err
	}

	assemblyRules, err := readAssemblyRulesIfPresent(filepath.Join(d.Dir, eda.AssemblyRulesFileName(dv.DesignName, dv.VariantName)))
	if err != nil {
		return nil, err
	}

	loadOutItems, err := d.collectLoadOut(project)
	if err != nil {
		return nil, err
	}

	results, err := partmapper.ResolveAll(edaPlacements, mappings, substitutionRules, loadOutItems, assemblyRules)
	if err != nil {
		return nil, err
	}

	placements := make([]planning.Placement, 0, len(results))
	for _, result := range results {
		if !result.Outcome.Resolved() {
			return nil, perr.Domain("part-mapper", fmt.Sprintf("ref_des %s: unresolved (%s)", result.RefDes, result.Outcome))
		}
		placements = append(placements, planning.Placement{
			RefDes:   result.RefDes,
			Part:     *result.Part,
			Place:    result.Place,
			PCBSide:  result.PCBSide,
			X:        result.X,
			Y:        result.Y,
			Rotation: result.Rotation,
		})
	}

	return placements, nil
}

// collectLoadOut aggregates every existing phase's load-out items, giving
// part-mapping's load-out preference step (spec §4.4 step 3) visibility
// into feeders assigned so far. Phase.LoadOutSource is stored as a full
// path (set by CreatePhase), so it is used as-is here.
func (d *Dispatcher) collectLoadOut(project *planning.Project) ([]planning.LoadOutItem, error) {
	var all []planning.LoadOutItem
	for _, ref := range project.PhaseOrderings {
		phase := project.Phases[ref]
		items, err := loadout.Load(phase.LoadOutSource)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

func openIfPresent(path string) (*os.File, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, perr.IO(path, err)
	}
	return f, true, nil
}

func readMappingsIfPresent(path string) ([]partmapper.Mapping, error) {
	f, ok, err := openIfPresent(path)
	if err != nil || !ok {
		return nil, err
	}
	defer f.Close()
	return partmapper.ReadMappings(f)
}

func readSubstitutionsIfPresent(path string) ([]criteria.Rule, error) {
	f, ok, err := openIfPresent(path)
	if err != nil || !ok {
		return nil, err
	}
	defer f.Close()
	return partmapper.ReadSubstitutionRules(f)
}

func readAssemblyRulesIfPresent(path string) ([]eda.AssemblyRule, error) {
	f, ok, err := openIfPresent(path)
	if err != nil || !ok {
		return nil, err
	}
	defer f.Close()
	return eda.ReadAssemblyRules(f)
}

// AssignProcessToParts adds process to ApplicableProcesses for every part
// whose manufacturer and mpn both match the given regexes (spec §4.8
// AssignProcessToParts). The project is refreshed first so the match runs
// against the current part set.
func (d *Dispatcher) AssignProcessToParts(name, process, manufacturerPattern, mpnPattern string) error {
	fields := []zap.Field{zap.String("project", name), zap.String("process", process), zap.String("manufacturer", manufacturerPattern), zap.String("mpn", mpnPattern)}
	return d.run("assign_process_to_parts", fields, func() error {
		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}

		placementsByVariant, err := d.resolveAllVariants(project)
		if err != nil {
			return err
		}
		refresh.Refresh(project, placementsByVariant)

		manufacturerRe, err := compileRegex("assign-process-to-parts", manufacturerPattern)
		if err != nil {
			return err
		}
		mpnRe, err := compileRegex("assign-process-to-parts", mpnPattern)
		if err != nil {
			return err
		}

		if _, ok := project.Process(process); !ok {
			return perr.Domain("assign-process-to-parts", fmt.Sprintf("unknown process: %s", process))
		}

		project.AssignProcessToParts(process, func(part planning.Part) bool {
			return manufacturerRe.MatchString(part.Manufacturer) && mpnRe.MatchString(part.MPN)
		})

		return store.Save(project, d.Dir)
	})
}

// CreatePhase ensures the load-out file exists, then adds or replaces the
// phase, appending its reference to phase_orderings if new (spec §4.8
// CreatePhase). loadOutFileName names the load-out file relative to the
// project directory; the phase stores its resolved absolute path.
func (d *Dispatcher) CreatePhase(name, process string, reference planning.Reference, loadOutFileName string, side planning.PCBSide) error {
	fields := []zap.Field{zap.String("project", name), zap.String("process", process), zap.String("phase", string(reference)), zap.String("pcb_side", string(side))}
	return d.run("create_phase", fields, func() error {
		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}

		if _, ok := project.Process(process); !ok {
			return perr.Domain("create-phase", fmt.Sprintf("unknown process: %s", process))
		}

		loadOutPath := filepath.Join(d.Dir, loadOutFileName)
		if err := loadout.EnsureExists(loadOutPath); err != nil {
			return err
		}

		project.CreatePhase(planning.Phase{
			Reference:     reference,
			Process:       process,
			LoadOutSource: loadOutPath,
			PCBSide:       side,
		})

		return store.Save(project, d.Dir)
	})
}

// AssignPlacementsToPhase assigns matching placements to phase, adds the
// required parts to its load-out, and marks those parts applicable to the
// phase's process (spec §4.8 AssignPlacementsToPhase).
func (d *Dispatcher) AssignPlacementsToPhase(name string, reference planning.Reference, placementsPattern string) error {
	fields := []zap.Field{zap.String("project", name), zap.String("phase", string(reference)), zap.String("placements", placementsPattern)}
	return d.run("assign_placements_to_phase", fields, func() error {
		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}

		placementsByVariant, err := d.resolveAllVariants(project)
		if err != nil {
			return err
		}
		refresh.Refresh(project, placementsByVariant)

		phase, ok := project.Phases[reference]
		if !ok {
			return perr.Domain("assign-placements-to-phase", fmt.Sprintf("no such phase: %s", reference))
		}

		re, err := compileRegex("assign-placements-to-phase", placementsPattern)
		if err != nil {
			return err
		}

		requiredParts := project.AssignPlacementsToPhase(*phase, func(path string) bool { return re.MatchString(path) })

		for _, part := range requiredParts {
			if state, ok := project.PartStates[part]; ok {
				state.AddProcess(phase.Process)
			}
		}

		if err := loadout.AddParts(phase.LoadOutSource, requiredParts); err != nil {
			return err
		}

		refresh.Refresh(project, placementsByVariant)
		return store.Save(project, d.Dir)
	})
}

// AssignFeederToLoadOutItem delegates to the load-out store (spec §4.5,
// §4.8 AssignFeederToLoadOutItem). It mutates only the phase's load-out
// file; the project document itself is untouched and is not re-persisted,
// matching the original's AssignFeederToLoadOutItem handler.
func (d *Dispatcher) AssignFeederToLoadOutItem(name string, reference planning.Reference, feederReference, manufacturerPattern, mpnPattern string) error {
	fields := []zap.Field{zap.String("project", name), zap.String("phase", string(reference)), zap.String("feeder_reference", feederReference)}
	return d.run("assign_feeder_to_load_out_item", fields, func() error {
		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}

		phase, ok := project.Phases[reference]
		if !ok {
			return perr.Domain("assign-feeder-to-load-out-item", fmt.Sprintf("no such phase: %s", reference))
		}

		process, ok := project.Process(phase.Process)
		if !ok {
			return perr.Domain("assign-feeder-to-load-out-item", fmt.Sprintf("unknown process: %s", phase.Process))
		}

		_, err = loadout.AssignFeeder(phase.LoadOutSource, process, feederReference, manufacturerPattern, mpnPattern)
		return err
	})
}

// SetPlacementOrdering replaces a phase's placement_orderings (spec §4.8
// SetPlacementOrdering). The project is refreshed first, matching the
// original's refresh-before-mutate sequencing for every command that reads
// placement state.
func (d *Dispatcher) SetPlacementOrdering(name string, reference planning.Reference, orderings []planning.PlacementSorting) error {
	fields := []zap.Field{zap.String("project", name), zap.String("phase", string(reference))}
	return d.run("set_placement_ordering", fields, func() error {
		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}

		placementsByVariant, err := d.resolveAllVariants(project)
		if err != nil {
			return err
		}
		refresh.Refresh(project, placementsByVariant)

		if err := project.SetPlacementOrdering(reference, orderings); err != nil {
			return err
		}

		return store.Save(project, d.Dir)
	})
}

// GenerateArtifacts writes every phase's placements CSV and the project
// report (spec §4.9, §4.8 GenerateArtifacts). Partial artifacts may remain
// on failure; generate-artifacts is idempotent and safe to re-run. The
// project itself is read-only for this command and is not re-persisted.
func (d *Dispatcher) GenerateArtifacts(name string) error {
	return d.run("generate_artifacts", []zap.Field{zap.String("project", name)}, func() error {
		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}
		return artifacts.GenerateArtifacts(project, d.Dir, name)
	})
}

// ProcessOperationSet is the value a RecordPhaseOperation command assigns
// to an operation's status. Completed is its only member today (spec §4.8
// RecordPhaseOperation), kept as a named type rather than a bare bool as an
// extension point for a future Incomplete value.
type ProcessOperationSet string

const ProcessOperationSetCompleted ProcessOperationSet = "completed"

// RecordPhaseOperation marks a phase's operation Complete, sets its manual
// override flag so refresh no longer overwrites the status automatically,
// and appends a history entry (spec §4.8 RecordPhaseOperation, §4.10).
func (d *Dispatcher) RecordPhaseOperation(name string, reference planning.Reference, operation planning.OperationKind, set ProcessOperationSet) error {
	fields := []zap.Field{zap.String("project", name), zap.String("phase", string(reference)), zap.String("operation", string(operation))}
	return d.run("record_phase_operation", fields, func() error {
		if set != ProcessOperationSetCompleted {
			return perr.Domain("record-phase-operation", fmt.Sprintf("unsupported set value: %s", set))
		}

		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}

		phase, ok := project.Phases[reference]
		if !ok {
			return perr.Domain("record-phase-operation", fmt.Sprintf("no such phase: %s", reference))
		}
		phaseState, ok := project.PhaseStates[reference]
		if !ok {
			return perr.Domain("record-phase-operation", fmt.Sprintf("no phase_state for phase: %s", reference))
		}
		opState, ok := phaseState.ByOperation[operation]
		if !ok {
			return perr.Domain("record-phase-operation", fmt.Sprintf("phase %s has no operation %s", reference, operation))
		}

		status, err := opstate.New(opState.Status).Fire(opstate.EventManualComplete)
		if err != nil {
			return err
		}
		opState.Status = status
		opState.ManualOverride = true

		now := time.Now().UTC()
		created, err := history.Append(filepath.Join(d.Dir, string(phase.Reference)+"_log.json"), history.OperationEntry(phase.Reference, operation, now))
		if err != nil {
			return err
		}
		d.logHistoryEvent(created, reference)

		return store.Save(project, d.Dir)
	})
}

// RecordPlacementsOperation sets placed=true on the first placement state
// matching each object-path regex (unmatched patterns, and patterns
// matching an already-placed placement, are logged as warnings, not
// errors), and appends one history entry per successful update of a
// placement that is assigned to a phase; updates of unassigned placements
// are not logged (spec §4.8 RecordPlacementsOperation). The project is
// refreshed and saved only if at least one placement was newly marked
// placed, mirroring the original's update_placements_operation "modified"
// guard.
func (d *Dispatcher) RecordPlacementsOperation(name string, objectPathPatterns []string, operation history.PlacementOperation) error {
	fields := []zap.Field{zap.String("project", name), zap.Strings("object_path_patterns", objectPathPatterns)}
	return d.run("record_placements_operation", fields, func() error {
		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}

		modified := false
		now := time.Now().UTC()

		for _, pattern := range objectPathPatterns {
			re, err := compileRegex("record-placements-operation", pattern)
			if err != nil {
				return err
			}

			matchedKey := ""
			for _, key := range project.SortedPlacementKeys() {
				if re.MatchString(key) {
					matchedKey = key
					break
				}
			}

			if matchedKey == "" {
				d.Logger.Warn("record_placements_operation.unmatched_pattern", zap.String("pattern", pattern))
				continue
			}

			state := project.Placements[matchedKey]
			if state.Placed {
				d.Logger.Warn("record_placements_operation.already_placed", zap.String("object_path", matchedKey))
				continue
			}

			state.Placed = true
			modified = true

			if state.Phase != nil {
				if _, err := history.Append(filepath.Join(d.Dir, string(*state.Phase)+"_log.json"), history.PlacementEntry(*state.Phase, matchedKey, history.PlacementOperationPlaced, now)); err != nil {
					return err
				}
			}
		}

		if !modified {
			return nil
		}

		placementsByVariant, err := d.resolveAllVariants(project)
		if err != nil {
			return err
		}
		refresh.Refresh(project, placementsByVariant)
		return store.Save(project, d.Dir)
	})
}

// ResetOperations clears placed on every placement and resets every
// phase-operation's manual override so refresh recomputes all statuses from
// scratch (spec §4.8 ResetOperations).
func (d *Dispatcher) ResetOperations(name string) error {
	return d.run("reset_operations", []zap.Field{zap.String("project", name)}, func() error {
		project, err := store.Load(d.Dir, name)
		if err != nil {
			return err
		}

		for _, state := range project.Placements {
			state.Placed = false
		}
		for _, phaseState := range project.PhaseStates {
			for _, opState := range phaseState.ByOperation {
				status, err := opstate.New(opState.Status).Fire(opstate.EventReset)
				if err != nil {
					return err
				}
				opState.ManualOverride = false
				opState.Status = status
			}
		}

		placementsByVariant, err := d.resolveAllVariants(project)
		if err != nil {
			return err
		}
		refresh.Refresh(project, placementsByVariant)
		return store.Save(project, d.Dir)
	})
}

func (d *Dispatcher) logHistoryEvent(created bool, reference planning.Reference) {
	if created {
		d.Logger.Info("history.created", zap.String("phase", string(reference)))
	} else {
		d.Logger.Info("history.updated", zap.String("phase", string(reference)))
	}
}

func compileRegex(ident, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, perr.Domain(ident, fmt.Sprintf("invalid pattern %q: %v", pattern, err))
	}
	return re, nil
}
