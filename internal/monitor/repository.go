package monitor

import (
	"sync"

	"livewatch/internal/livestate"
)

// DefaultLogCap is the number of entries retained per account.
const DefaultLogCap = 10000

// EventLog is a concurrency-safe, per-account, append-only log capped at a
// fixed length. The oldest entries are evicted first. Logs live for the
// lifetime of the EventLog and are not persisted.
type EventLog struct {
	mu    sync.RWMutex
	limit int
	logs  map[string][]LogEntry
}

// NewEventLog returns an empty EventLog retaining at most limit entries per
// account. If limit <= 0, DefaultLogCap is used.
func NewEventLog(limit int) *EventLog {
	if limit <= 0 {
		limit = DefaultLogCap
	}
	return &EventLog{limit: limit, logs: make(map[string][]LogEntry)}
}

// Append adds e to the end of account's log, evicting from the front while
// the log is over capacity. Append and eviction happen under one lock.
func (l *EventLog) Append(account string, e LogEntry) {
	key := livestate.Normalize(account)
	if key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := append(l.logs[key], e)
	if over := len(entries) - l.limit; over > 0 {
		entries = entries[over:]
	}
	l.logs[key] = entries
}

// Read returns a copy of account's retained entries, most recent last. It
// returns an empty, non-nil slice when nothing was logged.
func (l *EventLog) Read(account string) []LogEntry {
	key := livestate.Normalize(account)
	l.mu.RLock()
	defer l.mu.RUnlock()

	src := l.logs[key]
	out := make([]LogEntry, len(src))
	copy(out, src)
	return out
}

// Accounts returns the number of accounts with a log.
func (l *EventLog) Accounts() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.logs)
}
