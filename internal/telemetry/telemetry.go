// Package telemetry builds the structured logger every dispatcher
// invocation logs through (spec SPEC_FULL.md Ambient Stack / Logging),
// grounded on go.uber.org/zap's NewProduction/NewDevelopment constructors
// as used directly by _examples/jordigilh-kubernaut and
// _examples/AKJUS-bsc-erigon.
package telemetry

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger: Development (console-encoded, debug level)
// when verbose is set, otherwise Production (JSON-encoded, info level).
// When traceFile is non-empty, every event is additionally written there
// regardless of level, so --trace always captures the full command.start/
// command.success/command.error sequence.
func New(verbose bool, traceFile string) (*zap.Logger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	if traceFile == "" {
		return logger, nil
	}

	f, err := os.OpenFile(traceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	traceEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	traceCore := zapcore.NewCore(traceEncoder, zapcore.AddSync(f), zapcore.DebugLevel)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, traceCore)
	})), nil
}
