// Package logger provides a lightweight, centralized logging facility
// with configurable verbosity levels.
//
// Verbosity levels (in increasing order):
//
//	Error < Info < Debug < Trace
//
// Output goes through a single logrus logger writing text lines with full
// timestamps to stderr, so pricing output on stdout stays clean.
//
// Example usage:
//
//	logger.SetVerbosity(2) // Debug
//	logger.Infof("starting engine")
//	logger.Debugf("spot=%f vol=%f", spot, vol)
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Level represents a logging verbosity level.
// Higher values mean more verbose logging.
type Level int

const (
	Error Level = iota // Error logs only critical failures.
	Info               // Info logs high-level application progress.
	Debug              // Debug logs detailed diagnostic information.
	Trace              // Trace logs very fine-grained execution details.
)

// Fields is an alias so callers do not need to import logrus directly.
type Fields = logrus.Fields

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	l.SetLevel(toLogrus(Info))
	return l
}

func toLogrus(l Level) logrus.Level {
	switch {
	case l <= Error:
		return logrus.ErrorLevel
	case l == Info:
		return logrus.InfoLevel
	case l == Debug:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// SetVerbosity sets the global logging verbosity.
// Typically called once during application startup
// (e.g. after parsing CLI flags or loading config).
func SetVerbosity(v int) {
	base.SetLevel(toLogrus(Level(v)))
}

// Verbosity reports the active level.
func Verbosity() Level {
	switch base.GetLevel() {
	case logrus.InfoLevel:
		return Info
	case logrus.DebugLevel:
		return Debug
	case logrus.TraceLevel:
		return Trace
	default:
		return Error
	}
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// WithFields returns an entry carrying structured fields.
func WithFields(f Fields) *logrus.Entry {
	return base.WithFields(f)
}

// Errorf logs an error-level message.
// Use this for failures that require attention.
func Errorf(format string, args ...any) {
	base.Errorf(format, args...)
}

// Infof logs an informational message.
// Use this for major lifecycle events.
func Infof(format string, args ...any) {
	base.Infof(format, args...)
}

// Debugf logs debugging information.
func Debugf(format string, args ...any) {
	base.Debugf(format, args...)
}

// Tracef logs very detailed execution traces.
// Use this sparingly due to high volume.
func Tracef(format string, args ...any) {
	base.Tracef(format, args...)
}
