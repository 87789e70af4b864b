// Package logging provides the engine's ambient Logger implementation:
// a thin wrapper over the standard log package, used for drop/error
// reporting on the data-channel fast path. It does not rate-limit.
package logging

import "log"

// StdLogger implements engine.Logger by forwarding to the standard
// library's log package.
type StdLogger struct{}

// NewStdLogger returns the default Logger.
func NewStdLogger() *StdLogger {
	return &StdLogger{}
}

func (l *StdLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}
