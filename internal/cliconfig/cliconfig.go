// Package cliconfig carries the CLI's global flags through a command's
// context, grounded on the teacher's cli/internal/cmdutil/context.go
// WithContext/GetContext context-injection convention (spec §6 global
// flags: --project, --path, --trace, -v/--verbose).
package cliconfig

import "context"

// Config holds the CLI's global flags, parsed once by the root command
// and threaded down to every subcommand via its context.
type Config struct {
	// Project is the required project name (--project).
	Project string
	// Path is the project directory (--path, default ".").
	Path string
	// TraceFile is an optional file to additionally write trace-level log
	// events to (--trace).
	TraceFile string
	// Verbose enables development-mode (debug-level, human-readable)
	// logging instead of the default production JSON logging (-v/--verbose).
	Verbose bool
}

type contextKey string

const configKey contextKey = "cliconfig"

// WithConfig returns a context carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves the Config stored by WithConfig. Panics if absent,
// since every command is expected to run under the root command's
// PersistentPreRunE, which always sets it.
func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configKey).(*Config)
	if !ok {
		panic("cliconfig: no Config in context")
	}
	return cfg
}
