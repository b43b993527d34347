package signal

import "sync"

// Buffer holds the most recent events, newest-first, up to a fixed capacity.
// Pushing into a full buffer evicts the oldest entry. Duplicate ids from the
// wire are kept as separate entries; this is a display log, not a ledger.
type Buffer struct {
	mu     sync.RWMutex
	events []Event
	cap    int
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{cap: capacity}
}

func (b *Buffer) Push(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append([]Event{ev}, b.events...)
	if len(b.events) > b.cap {
		b.events = b.events[:b.cap]
	}
}

// Snapshot returns a copy of the buffered events, newest-first.
func (b *Buffer) Snapshot() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

func (b *Buffer) Cap() int { return b.cap }
