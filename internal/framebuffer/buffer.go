// Package framebuffer hands the latest sensor frame from the device callback
// context to the monitor loop.
//
// Each Buffer is a single guarded slot. The producer overwrites the slot in
// place and marks it fresh; the consumer swaps its own frame with the slot
// when it is fresh. Because ownership moves by swap, the producer never
// writes into memory the consumer holds and the consumer never reads memory
// the producer is filling. Frames that are overwritten before the consumer
// polls are dropped: this is a last-value mailbox, not a queue.
package framebuffer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/bedside/internal/timeutil"
)

// Frame is an opaque payload moved between producer and consumer.
type Frame struct {
	Data []byte
	// Seq is the per-channel publish sequence number (starting at 1).
	Seq uint64
	// PublishedAt is the time the producer finished writing Data.
	PublishedAt time.Time
}

// Stats is a point-in-time snapshot of the buffer counters.
type Stats struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Dropped   uint64 `json:"dropped"`
}

// Buffer is a mutex-guarded single-slot double buffer. The zero value is not
// usable; create one with New.
type Buffer struct {
	name  string
	clock timeutil.Clock

	mu    sync.Mutex // guards frame, fresh, seq
	frame Frame
	fresh bool
	seq   uint64

	// counters are read by Stats without taking mu
	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a buffer whose slot is pre-sized to capacity bytes so that
// steady-state publishes do not allocate.
func New(name string, capacity int, clock timeutil.Clock) *Buffer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Buffer{
		name:  name,
		clock: clock,
		frame: Frame{Data: make([]byte, 0, capacity)},
	}
}

// Name returns the channel name given at construction.
func (b *Buffer) Name() string { return b.name }

// Publish copies payload into the slot and marks it fresh. It never waits on
// the consumer; the only contention is the short copy under the guard.
func (b *Buffer) Publish(payload []byte) {
	b.PublishFunc(len(payload), func(dst []byte) {
		copy(dst, payload)
	})
}

// PublishFunc resizes the slot to size bytes and lets fill write the payload
// in place while the guard is held. fill must not retain dst and must not
// block.
func (b *Buffer) PublishFunc(size int, fill func(dst []byte)) {
	now := b.clock.Now()

	b.mu.Lock()
	if b.fresh {
		b.dropped.Add(1)
	}
	b.frame.Data = resize(b.frame.Data, size)
	fill(b.frame.Data)
	b.seq++
	b.frame.Seq = b.seq
	b.frame.PublishedAt = now
	b.fresh = true
	b.mu.Unlock()

	b.published.Add(1)
}

// Consume swaps dst with the buffered frame if a fresh frame is available
// and reports whether it did. When no fresh frame exists dst is left
// untouched. After a successful swap the caller owns the fresh payload and
// the buffer owns the caller's old storage for the next publish.
func (b *Buffer) Consume(dst *Frame) bool {
	b.mu.Lock()
	if !b.fresh {
		b.mu.Unlock()
		return false
	}
	b.frame, *dst = *dst, b.frame
	b.fresh = false
	b.mu.Unlock()

	b.consumed.Add(1)
	return true
}

// Fresh reports whether a frame has been published since the last
// successful Consume.
func (b *Buffer) Fresh() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fresh
}

// Stats returns the current counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Consumed:  b.consumed.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// resize returns buf with length n, reusing its backing array when large
// enough.
func resize(buf []byte, n int) []byte {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]byte, n)
}
