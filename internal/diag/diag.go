// Package diag provides the injectable structured-logging hook shared by
// every container in this module. The pattern — a package-level Logger
// interface, an RWMutex-guarded global, a no-op default — is adapted from
// github.com/joeycumines/go-utilpkg/eventloop's logging.go, which exists
// for exactly the same reason: letting a library log through whatever
// framework (zerolog, logrus, or nothing) its caller already uses, without
// forcing a dependency.
//
// Unlike eventloop, which logs routine lifecycle events, this package is
// invoked only for spec section 7's Invariant condition ("internal
// inconsistency detected (should not occur)"), through lockfree.Invariant —
// never on an ordinary CAS-retry path, so that every container stays
// lock-free regardless of what the caller wires in. No help/stabilise
// routine logs through it.
package diag

import (
	"fmt"
	"sync"
	"time"
)

// Level is the severity of an Entry.
type Level int32

const (
	// LevelDebug is the lowest severity; no package in this module logs at it.
	LevelDebug Level = iota
	// LevelWarn is the middle severity; no package in this module logs at it.
	LevelWarn
	// LevelFatal reports spec section 7's Invariant condition.
	LevelFatal
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// Entry is one structured log line.
type Entry struct {
	Level     Level
	Component string // "list", "hashset", "deque", "mcas", "elimination", "bst"
	Message   string
	Err       error
	Timestamp time.Time
}

// Logger is the structured logging interface implementations plug into.
type Logger interface {
	Log(e Entry)
	IsEnabled(l Level) bool
}

type noopLogger struct{}

func (noopLogger) Log(Entry) {}

func (noopLogger) IsEnabled(Level) bool { return false }

var global struct {
	sync.RWMutex
	logger Logger
}

// SetLogger installs the package-wide Logger. Passing nil restores the
// no-op default.
func SetLogger(l Logger) {
	global.Lock()
	defer global.Unlock()
	global.logger = l
}

func current() Logger {
	global.RLock()
	defer global.RUnlock()
	if global.logger != nil {
		return global.logger
	}
	return noopLogger{}
}

// Log emits e.Timestamp (defaulted to now) via the installed Logger, if the
// logger is enabled for e.Level. Cheap to call even when disabled: the
// IsEnabled check happens before any caller-side formatting work, so hot
// paths should guard expensive field construction behind it themselves.
func Log(e Entry) {
	l := current()
	if !l.IsEnabled(e.Level) {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.Log(e)
}

// Enabled reports whether the installed Logger would accept level l,
// letting callers skip constructing an Entry's fields entirely.
func Enabled(l Level) bool {
	return current().IsEnabled(l)
}
