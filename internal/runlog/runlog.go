// Package runlog holds the human-readable progress lines of automation runs.
package runlog

import (
	"fmt"
	"log/slog"
	"sync"
)

// Sink receives progress lines.
type Sink interface {
	Append(msg string)
}

// Log is a readable, resettable Sink.
type Log interface {
	Sink
	Entries() []string
	Reset()
}

const entryPrefix = "> "

// MemoryLog is a process-local Log. A positive max keeps only the newest
// max entries.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []string
	max     int
}

func NewMemoryLog(max int) *MemoryLog {
	return &MemoryLog{max: max}
}

func (l *MemoryLog) Append(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entryPrefix+msg)
	if l.max > 0 && len(l.entries) > l.max {
		l.entries = append([]string(nil), l.entries[len(l.entries)-l.max:]...)
	}
}

func (l *MemoryLog) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *MemoryLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
}

// Logger writes every line to a Sink and to structured logs.
type Logger struct {
	sink   Sink
	logger *slog.Logger
}

func NewLogger(sink Sink, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{sink: sink, logger: logger}
}

func (l *Logger) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.sink != nil {
		l.sink.Append(msg)
	}
	l.logger.Info(msg)
}

func (l *Logger) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.sink != nil {
		l.sink.Append("ERROR: " + msg)
	}
	l.logger.Error(msg)
}

// Discard drops every line.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(string) {}
