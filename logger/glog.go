package logger

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/golang/glog"
)

// glogDebugVerbosity is the -v value that enables Debug output regardless of SetLevel.
const glogDebugVerbosity = 2

// GlogLogger is a Logger backed by github.com/golang/glog.
//
// Key/value pairs are rendered as "key=value" after the message. Debug records
// are written when the logger level is DebugLevel or glog runs with -v=2 or higher.
type GlogLogger struct {
	fields string
	level  *atomic.Int32
}

var _ Logger = (*GlogLogger)(nil)

// NewGlog creates a glog backed logger. The glog flags (-logtostderr, -v, ...)
// must be parsed by the caller.
func NewGlog(level LogLevel) *GlogLogger {
	lv := &atomic.Int32{}
	lv.Store(int32(level))

	return &GlogLogger{level: lv}
}

func (l *GlogLogger) Debug(msg string, keysAndValues ...any) {
	if l.Level() > DebugLevel && !bool(glog.V(glogDebugVerbosity)) {
		return
	}
	glog.InfoDepth(1, l.format(msg, keysAndValues))
}

func (l *GlogLogger) Info(msg string, keysAndValues ...any) {
	if l.Level() > InfoLevel {
		return
	}
	glog.InfoDepth(1, l.format(msg, keysAndValues))
}

func (l *GlogLogger) Warn(msg string, keysAndValues ...any) {
	if l.Level() > WarnLevel {
		return
	}
	glog.WarningDepth(1, l.format(msg, keysAndValues))
}

func (l *GlogLogger) Error(msg string, keysAndValues ...any) {
	glog.ErrorDepth(1, l.format(msg, keysAndValues))
}

func (l *GlogLogger) Fatal(msg string, keysAndValues ...any) {
	glog.FatalDepth(1, l.format(msg, keysAndValues))
}

func (l *GlogLogger) With(keyValues ...any) Logger {
	return &GlogLogger{
		fields: l.fields + renderPairs(keyValues),
		level:  l.level,
	}
}

func (l *GlogLogger) Level() LogLevel {
	return LogLevel(l.level.Load())
}

func (l *GlogLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

func (l *GlogLogger) format(msg string, keysAndValues []any) string {
	return msg + l.fields + renderPairs(keysAndValues)
}

func renderPairs(keysAndValues []any) string {
	if len(keysAndValues) == 0 {
		return ""
	}

	var sb strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		sb.WriteByte(' ')
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&sb, "%v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&sb, "!BADKEY=%v", keysAndValues[i])
		}
	}

	return sb.String()
}
