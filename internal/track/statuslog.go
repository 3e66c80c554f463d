package track

import (
	"sync"
	"time"
)

// LogEntry is one line of the human-readable status history.
type LogEntry struct {
	Time    time.Time
	Message string
}

// StatusLog is an append-only history of status messages with adjacent
// deduplication: a message equal to the most recent entry is not appended
// again, so a job stuck on "Computing similarities..." produces one line, not
// one per poll. Older duplicates may reappear once a different message has
// been logged in between.
type StatusLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewStatusLog returns an empty log.
func NewStatusLog() *StatusLog {
	return &StatusLog{}
}

// Append records msg unless it equals the latest entry. Empty messages are
// ignored. It reports whether an entry was added.
func (l *StatusLog) Append(now time.Time, msg string) bool {
	if msg == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.entries); n > 0 && l.entries[n-1].Message == msg {
		return false
	}
	l.entries = append(l.entries, LogEntry{Time: now, Message: msg})
	return true
}

// Entries returns a copy of the log in append order.
func (l *StatusLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns the most recent entry, if any.
func (l *StatusLog) Last() (LogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return LogEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Len returns the number of entries.
func (l *StatusLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
