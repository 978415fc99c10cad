package nipc

import (
	"log"

	"github.com/sirupsen/logrus"
)

// Logger defines the interface for logging.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

var _ Logger = (*noopLogger)(nil)
var _ Logger = (*StandardLogger)(nil)
var _ Logger = (*LogrusLogger)(nil)

type noopLogger struct{}

// Info implements the Logger interface
func (n noopLogger) Info(...interface{}) {}

// Infof implements the Logger interface.
func (n noopLogger) Infof(string, ...interface{}) {}

// Error implements the Logger interface.
func (n noopLogger) Error(...interface{}) {}

// Errorf implements the Logger interface.
func (n noopLogger) Errorf(string, ...interface{}) {}

// StandardLogger implements the Logger interface using the standard library logger.
type StandardLogger struct{}

// Info implements the Logger interface
func (d StandardLogger) Info(args ...interface{}) {
	log.Println(args...)
}

// Infof implements the Logger interface.
func (d StandardLogger) Infof(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// Error implements the Logger interface.
func (d StandardLogger) Error(args ...interface{}) {
	d.Info(args...)
}

// Errorf implements the Logger interface.
func (d StandardLogger) Errorf(format string, args ...interface{}) {
	d.Infof(format, args...)
}

// NewLogrusLogger wraps a logrus logger into the Logger interface.
func NewLogrusLogger(log *logrus.Logger) LogrusLogger {
	return LogrusLogger{entry: logrus.NewEntry(log)}
}

// NewLogrusEntry wraps a logrus entry into the Logger interface, keeping
// the fields attached to the entry.
func NewLogrusEntry(entry *logrus.Entry) LogrusLogger {
	return LogrusLogger{entry: entry}
}

// LogrusLogger implements the Logger interface using logrus.
type LogrusLogger struct {
	entry *logrus.Entry
}

// Info implements the Logger interface.
func (l LogrusLogger) Info(args ...interface{}) {
	l.entry.Info(args...)
}

// Infof implements the Logger interface.
func (l LogrusLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Error implements the Logger interface.
func (l LogrusLogger) Error(args ...interface{}) {
	l.entry.Error(args...)
}

// Errorf implements the Logger interface.
func (l LogrusLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}
