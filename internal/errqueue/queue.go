// Package errqueue keeps the ordered list of failures reported to the user.
package errqueue

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Entry is a reported failure. ID doubles as the report timestamp in
// milliseconds and is unique within a Queue.
type Entry struct {
	ID           int64     `json:"id"`
	Message      string    `json:"message"`
	ResponseText string    `json:"responseText,omitempty"`
	StatusCode   int       `json:"statusCode,omitempty"`
	Stack        string    `json:"stack,omitempty"`
	ReportedAt   time.Time `json:"reportedAt"`
}

type statusCoder interface{ StatusCode() int }

type responseTexter interface{ ResponseText() string }

type stackTracer interface{ StackTrace() string }

// NewEntry builds the Entry for err. Every failure path goes through here so
// reported entries share one shape.
func NewEntry(err error) Entry {
	if err == nil {
		return Entry{Message: "unknown error"}
	}
	entry := Entry{Message: strings.TrimSpace(err.Error())}

	var sc statusCoder
	if errors.As(err, &sc) {
		entry.StatusCode = sc.StatusCode()
	}
	var rt responseTexter
	if errors.As(err, &rt) {
		entry.ResponseText = rt.ResponseText()
	}
	var st stackTracer
	if errors.As(err, &st) {
		entry.Stack = st.StackTrace()
	}
	return entry
}

// Queue is an append-only list with removal by ID. The zero value is not
// usable; call New.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	lastID  int64
	now     func() time.Time
	notify  func()
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source used for identifiers.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithNotify registers fn to run after every mutation, outside the lock.
func WithNotify(fn func()) Option {
	return func(q *Queue) { q.notify = fn }
}

// New returns an empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Report appends entry with a fresh identifier and returns the stored copy.
// Identifiers follow the wall clock in milliseconds but never repeat or go
// backwards: a report in the same millisecond as the previous one gets
// previous+1.
func (q *Queue) Report(entry Entry) Entry {
	q.mu.Lock()
	now := q.now()
	id := now.UnixMilli()
	if id <= q.lastID {
		id = q.lastID + 1
	}
	q.lastID = id
	entry.ID = id
	entry.ReportedAt = now
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	q.changed()
	return entry
}

// ReportError is Report(NewEntry(err)); nil errors are ignored.
func (q *Queue) ReportError(err error) {
	if err == nil {
		return
	}
	q.Report(NewEntry(err))
}

// Dismiss removes the entry with id. Unknown ids are ignored.
func (q *Queue) Dismiss(id int64) {
	q.mu.Lock()
	idx := -1
	for i, e := range q.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return
	}
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	q.mu.Unlock()

	q.changed()
}

// Clear removes every entry. Identifiers keep increasing afterwards.
func (q *Queue) Clear() {
	q.mu.Lock()
	hadEntries := len(q.entries) > 0
	q.entries = nil
	q.mu.Unlock()

	if hadEntries {
		q.changed()
	}
}

// Entries returns a copy of the queue in insertion order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) changed() {
	if q.notify != nil {
		q.notify()
	}
}
