// Package optd is the daemon surface of the optimizer: the operator-facing
// progress log, the HTTP control API, and the completion webhook.
package optd

import (
	"sync"
	"time"
)

const defaultProgressCapacity = 1000

// ProgressEntry is one line of operator-facing progress output.
type ProgressEntry struct {
	Seq  int64     `json:"seq"`
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// ProgressLog is an append-only, bounded log of status lines with live
// subscribers. It accepts both driver status messages and raw simulator
// output lines, preserving arrival order.
type ProgressLog struct {
	mu      sync.Mutex
	cap     int
	entries []ProgressEntry
	seq     int64
	subs    map[int]chan ProgressEntry
	nextSub int
}

// NewProgressLog creates a log retaining up to capacity entries. A
// non-positive capacity selects the default.
func NewProgressLog(capacity int) *ProgressLog {
	if capacity <= 0 {
		capacity = defaultProgressCapacity
	}
	return &ProgressLog{
		cap:  capacity,
		subs: make(map[int]chan ProgressEntry),
	}
}

// Message records a driver status line.
func (l *ProgressLog) Message(text string) {
	l.append(text)
}

// Line records a raw simulator output line.
func (l *ProgressLog) Line(text string) {
	l.append(text)
}

func (l *ProgressLog) append(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	entry := ProgressEntry{Seq: l.seq, At: time.Now().UTC(), Text: text}
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}

	// Slow subscribers drop entries rather than blocking the run.
	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Entries returns a copy of the retained log.
func (l *ProgressLog) Entries() []ProgressEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ProgressEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Subscribe registers a live listener. The returned cancel function must
// be called to release the subscription.
func (l *ProgressLog) Subscribe() (<-chan ProgressEntry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan ProgressEntry, 64)
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
