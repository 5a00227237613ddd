package jobengine

import (
	"encoding/json"
	"sync"
	"time"
)

// EventKind identifies the type of transcript event.
type EventKind string

const (
	EventAssistantText     EventKind = "assistant_text"
	EventToolCallRequested EventKind = "tool_call_requested"
	EventToolResult        EventKind = "tool_result"
	EventToolError         EventKind = "tool_error"
	EventJobCompleted      EventKind = "job_completed"
	EventJobFailed         EventKind = "job_failed"
	EventJobCancelled      EventKind = "job_cancelled"
)

// Terminal reports whether the kind marks the end of a job's transcript.
func (k EventKind) Terminal() bool {
	switch k {
	case EventJobCompleted, EventJobFailed, EventJobCancelled:
		return true
	}
	return false
}

// Event is one immutable record in a job's transcript. Sequence numbers
// start at 1 and are gap-free within a job. Which payload fields are set
// depends on Kind.
type Event struct {
	Sequence  int64           `json:"sequence"`
	Kind      EventKind       `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Text      string          `json:"text,omitempty"`         // assistant_text chunk
	ToolName  string          `json:"tool_name,omitempty"`    // tool_* events
	CallID    string          `json:"call_id,omitempty"`      // tool_* events
	Arguments json.RawMessage `json:"arguments,omitempty"`    // tool_call_requested
	Output    string          `json:"output,omitempty"`       // tool_result (untruncated)
	Error     string          `json:"error,omitempty"`        // tool_error, job_failed
	Reason    FailureReason   `json:"reason,omitempty"`       // job_failed classification
}

// Log is the append-only event sequence for one job. The engine is the
// only writer; any number of readers replay and tail it concurrently.
// Appends never block on readers.
type Log struct {
	mu     sync.Mutex
	events []Event
	done   bool
	notify chan struct{} // closed and replaced on every append
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{notify: make(chan struct{})}
}

// Append assigns the next sequence number and timestamp, stores the event,
// and wakes all waiting readers. Appending an event with a terminal kind
// closes the log; further appends panic, since a terminal transcript must
// never grow.
func (l *Log) Append(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		panic("jobengine: append to a terminated log")
	}
	e.Sequence = int64(len(l.events) + 1)
	e.Timestamp = time.Now()
	l.events = append(l.events, e)
	if e.Kind.Terminal() {
		l.done = true
	}
	close(l.notify)
	l.notify = make(chan struct{})
	return e
}

// ReadFrom returns a copy of all events with sequence >= seq, whether the
// log is terminated, and a channel that is closed at the next append. A
// reader that has drained the returned slice waits on the channel before
// calling ReadFrom again.
func (l *Log) ReadFrom(seq int64) (events []Event, done bool, next <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq < 1 {
		seq = 1
	}
	if idx := int(seq - 1); idx < len(l.events) {
		events = make([]Event, len(l.events)-idx)
		copy(events, l.events[idx:])
	}
	return events, l.done, l.notify
}

// Snapshot returns a copy of the full transcript so far.
func (l *Log) Snapshot() []Event {
	events, _, _ := l.ReadFrom(1)
	return events
}

// Len returns the number of appended events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
