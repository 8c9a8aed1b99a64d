// Package observability builds the logger and tracer used by a validation run.
package observability

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger returns a logger writing to w with the "dllcheck" prefix. Verbose
// enables debug output. A nil writer means stderr.
func NewLogger(w io.Writer, verbose bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}

	return log.NewWithOptions(w, log.Options{
		Prefix: "dllcheck",
		Level:  level,
	})
}

// Discard is a logger that drops everything, for callers that pass none
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard returns logger, or a discarding logger when it is nil
func OrDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}
