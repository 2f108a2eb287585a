package buffer

import (
	"sync"

	"github.com/venuewire/xapi/internal/wire"
)

// DefaultCapacity is the record limit per subscription unless configured
// otherwise.
const DefaultCapacity = 1000

// Ring is a mutex-guarded circular buffer of records. Length never exceeds
// capacity; appending to a full ring evicts the oldest record first.
type Ring struct {
	mu      sync.Mutex
	buf     []wire.Record
	head    int // oldest record
	count   int
	dropped int64
}

// New creates a ring with the given capacity. Non-positive capacities fall
// back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]wire.Record, capacity)}
}

// Append adds rec as the newest record, evicting the oldest when full.
func (r *Ring) Append(rec wire.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == len(r.buf) {
		// Full: overwrite the oldest slot.
		r.buf[r.head] = rec
		r.head = (r.head + 1) % len(r.buf)
		r.dropped++
		return
	}

	r.buf[(r.head+r.count)%len(r.buf)] = rec
	r.count++
}

// Drain removes and returns all buffered records, oldest first.
func (r *Ring) Drain() []wire.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.snapshot()
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.head, r.count = 0, 0
	return out
}

// Peek returns a copy of all buffered records, oldest first, without
// removing them.
func (r *Ring) Peek() []wire.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Reset discards all buffered records.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.buf {
		r.buf[i] = nil
	}
	r.head, r.count = 0, 0
}

// Len returns the number of buffered records.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Dropped returns how many records were evicted unread.
func (r *Ring) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// snapshot copies the live window in arrival order. Caller holds r.mu.
func (r *Ring) snapshot() []wire.Record {
	if r.count == 0 {
		return nil
	}
	out := make([]wire.Record, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
