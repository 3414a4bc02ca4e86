package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/makerpnp/planner/internal/dispatch"
	"github.com/makerpnp/planner/internal/history"
	"github.com/makerpnp/planner/internal/objectpath"
	"github.com/makerpnp/planner/internal/planning"
)

func parsePCBKind(value string) (planning.PCBKind, error) {
	switch value {
	case "panel":
		return planning.PCBKindPanel, nil
	case "single":
		return planning.PCBKindSingle, nil
	default:
		return "", fmt.Errorf("invalid kind %q: must be panel or single", value)
	}
}

func parsePCBSide(value string) (planning.PCBSide, error) {
	switch value {
	case "top":
		return planning.PCBSideTop, nil
	case "bottom":
		return planning.PCBSideBottom, nil
	default:
		return "", fmt.Errorf("invalid pcb-side %q: must be top or bottom", value)
	}
}

func parseOperationKind(value string) (planning.OperationKind, error) {
	switch planning.OperationKind(value) {
	case planning.OpLoadPcbs, planning.OpAutomatedPnp, planning.OpReflowComponents, planning.OpManuallySolderComponents:
		return planning.OperationKind(value), nil
	default:
		return "", fmt.Errorf("invalid operation %q", value)
	}
}

// parseOrdering parses a "MODE:ORDER" token (spec §6: sort orders in
// SCREAMING_SNAKE_CASE, e.g. "FEEDER_REFERENCE:ASC").
func parseOrdering(value string) (planning.PlacementSorting, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return planning.PlacementSorting{}, fmt.Errorf("invalid ordering %q: expected MODE:ORDER", value)
	}

	var mode planning.SortMode
	switch parts[0] {
	case "FEEDER_REFERENCE":
		mode = planning.SortModeFeederReference
	case "PCB_UNIT":
		mode = planning.SortModePcbUnit
	default:
		return planning.PlacementSorting{}, fmt.Errorf("invalid ordering mode %q", parts[0])
	}

	var order planning.SortOrder
	switch parts[1] {
	case "ASC":
		order = planning.SortAsc
	case "DESC":
		order = planning.SortDesc
	default:
		return planning.PlacementSorting{}, fmt.Errorf("invalid ordering direction %q", parts[1])
	}

	return planning.PlacementSorting{Mode: mode, Order: order}, nil
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, name, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			return d.CreateProject(name)
		},
	}
}

func newAddPcbCmd() *cobra.Command {
	var kind, name string
	cmd := &cobra.Command{
		Use:   "add-pcb",
		Short: "Add a PCB to the project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			k, err := parsePCBKind(kind)
			if err != nil {
				return err
			}
			return d.AddPcb(projectName, k, name)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "pcb kind (panel|single)")
	cmd.Flags().StringVar(&name, "name", "", "pcb name")
	return cmd
}

func newAssignVariantToUnitCmd() *cobra.Command {
	var design, variant, unit string
	cmd := &cobra.Command{
		Use:   "assign-variant-to-unit",
		Short: "Assign a design variant to a unit and refresh the project from its placements",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			unitPath, err := objectpath.Parse(unit)
			if err != nil {
				return err
			}
			return d.AssignVariantToUnit(projectName, design, variant, unitPath)
		},
	}
	cmd.Flags().StringVar(&design, "design", "", "design name")
	cmd.Flags().StringVar(&variant, "variant", "", "variant name")
	cmd.Flags().StringVar(&unit, "unit", "", "unit object path")
	return cmd
}

func newAssignProcessToPartsCmd() *cobra.Command {
	var process, manufacturer, mpn string
	cmd := &cobra.Command{
		Use:   "assign-process-to-parts",
		Short: "Mark a process applicable to every part matching the given patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			return d.AssignProcessToParts(projectName, process, manufacturer, mpn)
		},
	}
	cmd.Flags().StringVar(&process, "process", "", "process name")
	cmd.Flags().StringVar(&manufacturer, "manufacturer", ".*", "manufacturer regex")
	cmd.Flags().StringVar(&mpn, "mpn", ".*", "mpn regex")
	return cmd
}

func newCreatePhaseCmd() *cobra.Command {
	var process, reference, loadOut, side string
	cmd := &cobra.Command{
		Use:   "create-phase",
		Short: "Create or update a phase",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			s, err := parsePCBSide(side)
			if err != nil {
				return err
			}
			return d.CreatePhase(projectName, process, planning.Reference(reference), loadOut, s)
		},
	}
	cmd.Flags().StringVar(&process, "process", "", "process name")
	cmd.Flags().StringVar(&reference, "reference", "", "phase reference")
	cmd.Flags().StringVar(&loadOut, "load-out", "", "load-out file name")
	cmd.Flags().StringVar(&side, "pcb-side", "", "pcb side (top|bottom)")
	return cmd
}

func newAssignPlacementsToPhaseCmd() *cobra.Command {
	var phase, placements string
	cmd := &cobra.Command{
		Use:   "assign-placements-to-phase",
		Short: "Assign matching placements to a phase",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			return d.AssignPlacementsToPhase(projectName, planning.Reference(phase), placements)
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "phase reference")
	cmd.Flags().StringVar(&placements, "placements", ".*", "object-path regex selecting placements")
	return cmd
}

func newAssignFeederToLoadOutItemCmd() *cobra.Command {
	var phase, feederReference, manufacturer, mpn string
	cmd := &cobra.Command{
		Use:   "assign-feeder-to-load-out-item",
		Short: "Assign a feeder reference to a load-out item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			return d.AssignFeederToLoadOutItem(projectName, planning.Reference(phase), feederReference, manufacturer, mpn)
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "phase reference")
	cmd.Flags().StringVar(&feederReference, "feeder-reference", "", "feeder reference")
	cmd.Flags().StringVar(&manufacturer, "manufacturer", "", "manufacturer regex")
	cmd.Flags().StringVar(&mpn, "mpn", "", "mpn regex")
	return cmd
}

func newSetPlacementOrderingCmd() *cobra.Command {
	var phase string
	var orderings []string
	cmd := &cobra.Command{
		Use:   "set-placement-ordering",
		Short: "Replace a phase's placement ordering",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}

			parsed := make([]planning.PlacementSorting, 0, len(orderings))
			for _, o := range orderings {
				sorting, err := parseOrdering(o)
				if err != nil {
					return err
				}
				parsed = append(parsed, sorting)
			}

			return d.SetPlacementOrdering(projectName, planning.Reference(phase), parsed)
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "phase reference")
	cmd.Flags().StringSliceVar(&orderings, "ordering", nil, "MODE:ORDER pair, repeatable (e.g. FEEDER_REFERENCE:ASC)")
	return cmd
}

func newGenerateArtifactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-artifacts",
		Short: "Generate phase placement CSVs and the project report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			return d.GenerateArtifacts(projectName)
		},
	}
}

func newRecordPhaseOperationCmd() *cobra.Command {
	var phase, operation, set string
	cmd := &cobra.Command{
		Use:   "record-phase-operation",
		Short: "Record a phase operation's status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			op, err := parseOperationKind(operation)
			if err != nil {
				return err
			}
			return d.RecordPhaseOperation(projectName, planning.Reference(phase), op, dispatch.ProcessOperationSet(set))
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "phase reference")
	cmd.Flags().StringVar(&operation, "operation", "", "operation kind (load_pcbs|automated_pnp|reflow_components|manually_solder_components)")
	cmd.Flags().StringVar(&set, "set", "completed", "value to set (completed)")
	return cmd
}

func newRecordPlacementsOperationCmd() *cobra.Command {
	var objectPaths []string
	var operation string
	cmd := &cobra.Command{
		Use:   "record-placements-operation",
		Short: "Mark matching placements as operated on",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			return d.RecordPlacementsOperation(projectName, objectPaths, history.PlacementOperation(operation))
		},
	}
	cmd.Flags().StringSliceVar(&objectPaths, "object-path", nil, "object-path regex, repeatable")
	cmd.Flags().StringVar(&operation, "operation", string(history.PlacementOperationPlaced), "placement operation")
	return cmd
}

func newResetOperationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-operations",
		Short: "Clear all recorded placement and phase-operation state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, projectName, err := dispatcherFromCommand(cmd)
			if err != nil {
				return err
			}
			return d.ResetOperations(projectName)
		},
	}
}
