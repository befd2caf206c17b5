package pydevd

import (
	"sync"
	"time"
)

// DefaultOutputLines bounds the console history kept per session.
const DefaultOutputLines = 1000

// OutputEntry is one chunk of console text.
type OutputEntry struct {
	Seq  int64      `json:"seq"`
	Time time.Time  `json:"time"`
	Kind OutputKind `json:"kind"`
	Text string     `json:"text"`
}

// OutputBuffer is a bounded ring of console output. Entries are numbered so a
// reader can resume after the last entry it saw.
type OutputBuffer struct {
	mu      sync.Mutex
	entries []OutputEntry
	start   int
	size    int
	next    int64
}

// NewOutputBuffer creates a ring holding at most capacity entries.
func NewOutputBuffer(capacity int) *OutputBuffer {
	if capacity <= 0 {
		capacity = DefaultOutputLines
	}
	return &OutputBuffer{entries: make([]OutputEntry, capacity)}
}

// Append records text, evicting the oldest entry when full.
func (b *OutputBuffer) Append(kind OutputKind, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	entry := OutputEntry{Seq: b.next, Time: time.Now(), Kind: kind, Text: text}
	idx := (b.start + b.size) % len(b.entries)
	b.entries[idx] = entry
	if b.size < len(b.entries) {
		b.size++
	} else {
		b.start = (b.start + 1) % len(b.entries)
	}
}

// Since returns the entries with Seq greater than after, oldest first.
func (b *OutputBuffer) Since(after int64) []OutputEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []OutputEntry
	for i := 0; i < b.size; i++ {
		e := b.entries[(b.start+i)%len(b.entries)]
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the seq of the newest entry, 0 when empty.
func (b *OutputBuffer) Last() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}
