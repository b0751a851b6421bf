// Package logger provides the logging abstraction used across go-mdb, so the
// transport driver, the cashless state machine and the example daemons can be
// plugged into whichever logging framework the host application prefers.
//
// Two backends ship with the package: a log/slog backend (JSON in production,
// console-slog when ENV=development) and a glog backend for deployments that
// already standardize on glog flags.
//
// Log Levels:
//
//   - DebugLevel:  Frame-level detail, typically disabled in production.
//   - InfoLevel:  Session and authorization milestones.
//   - WarnLevel:  Recoverable protocol anomalies (NAK, unexpected ACK byte).
//   - ErrorLevel:  Failures that need attention (authorization backend down).
//   - FatalLevel:  Critical errors that cause program termination.
package logger

// LogLevel indicates the logging severity level.
type LogLevel = int8

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel LogLevel = iota - 1
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual
	// human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If the peripheral is running smoothly,
	// it shouldn't generate any error-level logs.
	ErrorLevel
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel
)

// Logger defines the logging interface used throughout go-mdb.
type Logger interface {
	// Debug logs a message at DebugLevel with optional key/value pairs.
	Debug(msg string, keysAndValues ...any)
	// Info logs a message at InfoLevel with optional key/value pairs.
	Info(msg string, keysAndValues ...any)
	// Warn logs a message at WarnLevel with optional key/value pairs.
	Warn(msg string, keysAndValues ...any)
	// Error logs a message at ErrorLevel with optional key/value pairs.
	Error(msg string, keysAndValues ...any)
	// Fatal logs a message at FatalLevel, then calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
	// With creates a child logger carrying the given key/value pairs.
	// Fields added to the child don't affect the parent, and vice versa.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level for this logger.
	Level() LogLevel
	// SetLevel sets the minimum enabled level for this logger.
	SetLevel(level LogLevel)
}
