package subscription

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// AppendLog appends a now-stamped entry to the communication log. Storage
// order is insertion order; entries are never edited or removed.
func (s *Subscription) AppendLog(message string, actor Actor) *LogEntry {
	entry := LogEntry{
		ID:      uuid.New().String(),
		Date:    time.Now().UTC(),
		Message: message,
		Actor:   actor,
	}
	s.CommunicationLog = append(s.CommunicationLog, entry)
	s.UpdatedAt = entry.Date
	return &s.CommunicationLog[len(s.CommunicationLog)-1]
}

// DisplayOrder returns the log entries sorted newest-first for
// presentation. The sort is stable, so entries sharing a timestamp keep
// their insertion order. The stored log is left untouched.
func DisplayOrder(entries []LogEntry) []LogEntry {
	out := make([]LogEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}
