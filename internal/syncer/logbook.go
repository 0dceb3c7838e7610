package syncer

import (
	"slices"
	"time"

	"github.com/doctrans/doctrans/internal/model"
)

// LogBook is the append-only log of one run.
type LogBook struct {
	now     func() time.Time
	entries []model.LogEntry
}

func NewLogBook() *LogBook {
	return &LogBook{now: time.Now}
}

// WithClock replaces the time source, used by tests.
func (l *LogBook) WithClock(now func() time.Time) *LogBook {
	l.now = now
	return l
}

// Append stores a new entry stamped with the current time and returns it.
func (l *LogBook) Append(text string) model.LogEntry {
	return l.add(model.LogEntry{Text: text})
}

// AppendMalformed is Append for entries about unparseable stream lines.
func (l *LogBook) AppendMalformed(text string) model.LogEntry {
	return l.add(model.LogEntry{Text: text, Malformed: true})
}

func (l *LogBook) add(e model.LogEntry) model.LogEntry {
	e.Time = l.now().UTC()
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of the log in arrival order.
func (l *LogBook) Entries() []model.LogEntry {
	return slices.Clone(l.entries)
}

func (l *LogBook) Len() int {
	return len(l.entries)
}

// Reset clears the log at the start of a run.
func (l *LogBook) Reset() {
	l.entries = nil
}
