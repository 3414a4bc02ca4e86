// Package cli wires spec §6's command surface onto cobra, grounded on the
// teacher's cli/cmd/root.go NewRootCmd/Execute pattern: Version/SilenceUsage/
// SilenceErrors, a PersistentPreRunE that builds ambient state and injects it
// into the command's context, and a flat AddCommand list of constructors.
// Unlike the teacher's git-repo-root-finding PersistentPreRunE, this root
// command's ambient state is just the global flags and a logger (this module
// has no repository concept), carried via cliconfig.WithConfig.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/makerpnp/planner/internal/cliconfig"
	"github.com/makerpnp/planner/internal/dispatch"
	"github.com/makerpnp/planner/internal/telemetry"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cfg := &cliconfig.Config{}

	cmd := &cobra.Command{
		Use:           "planner",
		Short:         "PCB assembly planning tool",
		Long:          "planner manages PCB assembly jobs: unit-to-design-variant assignment, part mapping, phase and load-out management, and artifact generation.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := telemetry.New(cfg.Verbose, cfg.TraceFile)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}

			ctx := cliconfig.WithConfig(cmd.Context(), cfg)
			ctx = withLogger(ctx, logger)
			cmd.SetContext(ctx)

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfg.Project, "project", "", "project name (required)")
	cmd.PersistentFlags().StringVar(&cfg.Path, "path", ".", "project directory")
	cmd.PersistentFlags().StringVar(&cfg.TraceFile, "trace", "", "additionally write trace-level events to this file")
	cmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable development-mode logging")

	cmd.AddCommand(
		newCreateCmd(),
		newAddPcbCmd(),
		newAssignVariantToUnitCmd(),
		newAssignProcessToPartsCmd(),
		newCreatePhaseCmd(),
		newAssignPlacementsToPhaseCmd(),
		newAssignFeederToLoadOutItemCmd(),
		newSetPlacementOrderingCmd(),
		newGenerateArtifactsCmd(),
		newRecordPhaseOperationCmd(),
		newRecordPlacementsOperationCmd(),
		newResetOperationsCmd(),
	)

	return cmd
}

// Execute runs the root command, printing any error to stderr and setting a
// non-zero exit code (spec §6: "non-zero on any error").
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dispatcherFromCommand builds a Dispatcher from the command's injected
// config and logger, requiring --project to be set (spec §6: "--project
// <name> (required)").
func dispatcherFromCommand(cmd *cobra.Command) (*dispatch.Dispatcher, string, error) {
	cfg := cliconfig.FromContext(cmd.Context())
	if cfg.Project == "" {
		return nil, "", fmt.Errorf("--project is required")
	}
	logger := loggerFromContext(cmd.Context())
	return dispatch.New(cfg.Path, logger), cfg.Project, nil
}
