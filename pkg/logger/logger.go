// Package logger builds the structured loggers used throughout Embercask.
// embercask.Open builds one *zap.SugaredLogger tagged with the database
// name derived from the path it is given; the engine and its file manager
// each derive a logger named after themselves from it, so log lines can be
// attributed back to both the database and the component that emitted them.
package logger

import (
	"go.uber.org/zap"
)

// New builds a production-configured, sugared zap logger for service. It is
// the logger embercask.Open hands to the engine before any subsystem loggers
// are derived from it.
func New(service string) *zap.SugaredLogger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Sugar().With("service", service)
}

// Named derives a subsystem-scoped logger from log, e.g. Named(log,
// "filemanager") for the segment file manager. Kept as a thin helper rather
// than scattering `log.Named(...).With(...)` across every constructor.
func Named(log *zap.SugaredLogger, subsystem string) *zap.SugaredLogger {
	return log.Named(subsystem)
}

// Nop returns a logger that discards everything, for use in tests that
// construct internal components directly without going through
// embercask.Open.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
