// Package logging builds the zap loggers used across the indexing and
// retrieval pipeline. Loggers are constructed once at a process
// entrypoint and threaded explicitly into every component constructor —
// there is no package-level global logger, matching the injected-state
// discipline the rest of the pipeline's middleware follows.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap logger, or a debug-level logger when
// verbose is set. Mirrors the teacher's cmd/nerd/main.go entrypoint
// wiring: production config by default, DebugLevel under --verbose.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// Component returns a child logger tagged with a component field,
// standing in for the teacher's per-category logging concept without a
// separate file-per-category subsystem.
func Component(base *zap.Logger, name string) *zap.Logger {
	return base.With(zap.String("component", name))
}

// Nop returns a logger that discards everything, for tests that don't
// care about log output.
func Nop() *zap.Logger {
	return zap.NewNop()
}
