package testutil

import (
	"fmt"
	"sync"

	"github.com/edtools/edcore/core"
)

// LogEntry is one call recorded by Logger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger is a core.Logger that records every call.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) record(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.record("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.record("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.record("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.record("error", msg, args) }

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.record("fatal", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

// Find returns the entries logged at level with msg.
func (l *Logger) Find(level, msg string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var found []LogEntry
	for _, e := range l.Entries {
		if e.Level == level && e.Msg == msg {
			found = append(found, e)
		}
	}
	return found
}

// Has reports whether anything was logged at level with msg.
func (l *Logger) Has(level, msg string) bool {
	return len(l.Find(level, msg)) > 0
}
