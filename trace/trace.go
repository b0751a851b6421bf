// Package trace carries the structured trace events emitted by the CP driver
// and the cashless state machine.
//
// Producers only see the Observer interface. Sinks (the logger, an MQTT
// broker, a test recorder) subscribe to a Hub, each with its own flag mask.
package trace

import (
	"strings"
	"time"

	"github.com/arloliu/go-mdb/logger"
)

// Flag classifies a trace event. Flags combine into masks.
type Flag uint8

const (
	// FlagHighLevel marks session and authorization milestones.
	FlagHighLevel Flag = 1 << iota
	// FlagMDB marks named MDB commands and replies.
	FlagMDB
	// FlagMDBDetail marks raw frames, handshake bytes and timeouts.
	FlagMDBDetail
	// FlagStateMachine marks link and vend state transitions.
	FlagStateMachine

	// FlagAll enables every category.
	FlagAll = FlagHighLevel | FlagMDB | FlagMDBDetail | FlagStateMachine
	// FlagDefault is the mask used when none is configured.
	FlagDefault = FlagHighLevel | FlagMDB | FlagStateMachine
)

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}

	names := make([]string, 0, 4)
	if f&FlagHighLevel != 0 {
		names = append(names, "high")
	}
	if f&FlagMDB != 0 {
		names = append(names, "mdb")
	}
	if f&FlagMDBDetail != 0 {
		names = append(names, "detail")
	}
	if f&FlagStateMachine != 0 {
		names = append(names, "state")
	}

	return strings.Join(names, "|")
}

// ParseFlags parses a "|" or "," separated list of flag names as produced by Flag.String.
// Unknown names are ignored. "all" selects FlagAll.
func ParseFlags(s string) Flag {
	var f Flag
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "high":
			f |= FlagHighLevel
		case "mdb":
			f |= FlagMDB
		case "detail":
			f |= FlagMDBDetail
		case "state":
			f |= FlagStateMachine
		case "all":
			f |= FlagAll
		}
	}

	return f
}

// Event is a single trace record.
type Event struct {
	Time    time.Time `json:"ts"`
	Flag    Flag      `json:"flag"`
	Source  string    `json:"source"`
	Message string    `json:"msg"`
	Payload []byte    `json:"payload,omitempty"`
}

// Observer receives trace events. Implementations must not block for long,
// they run on the goroutine that emitted the event.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

type discard struct{}

func (discard) Observe(Event) {}

// Discard drops every event.
var Discard Observer = discard{}

// Emit builds an event stamped with the current time and hands it to obs.
func Emit(obs Observer, flag Flag, source string, msg string, payload []byte) {
	if obs == nil {
		return
	}

	obs.Observe(Event{
		Time:    time.Now(),
		Flag:    flag,
		Source:  source,
		Message: msg,
		Payload: payload,
	})
}

// LogObserver writes events to a logger. Detail events go to Debug, the rest to Info.
func LogObserver(l logger.Logger) Observer {
	return ObserverFunc(func(ev Event) {
		kv := []any{"source", ev.Source, "flag", ev.Flag.String()}
		if ev.Flag&FlagMDBDetail != 0 {
			l.Debug(ev.Message, kv...)
			return
		}
		l.Info(ev.Message, kv...)
	})
}
