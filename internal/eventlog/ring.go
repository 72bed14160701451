package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

// ErrClosed is returned by a tailer after Close.
var ErrClosed = domain.ErrTailClosed

// Ring is an in-process bounded event log. Appends beyond the capacity evict
// the oldest entry. Readers block on a broadcast channel rather than polling.
type Ring struct {
	mu       sync.Mutex
	buf      []domain.Event
	first    uint64 // sequence of the oldest retained entry
	next     uint64 // sequence the next append will get
	notify   chan struct{}
	block    time.Duration
	capacity int
}

var _ domain.EventLog = (*Ring)(nil)

// NewRing creates a ring holding at most capacity events. Tail reads wait up
// to block before reporting domain.ErrTailExhausted.
func NewRing(capacity int, block time.Duration) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		buf:      make([]domain.Event, capacity),
		notify:   make(chan struct{}),
		block:    block,
		capacity: capacity,
	}
}

// Reset drops every retained entry. Sequences keep increasing, so open
// tailers only observe entries appended after the reset.
func (r *Ring) Reset(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.first = r.next
	clear(r.buf)
	return nil
}

// Append stores the event, evicting the oldest entry when full, and wakes
// every waiting reader.
func (r *Ring) Append(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	r.buf[r.next%uint64(r.capacity)] = event
	r.next++
	if r.next-r.first > uint64(r.capacity) {
		r.first = r.next - uint64(r.capacity)
	}
	close(r.notify)
	r.notify = make(chan struct{})
	r.mu.Unlock()
	return nil
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.next - r.first)
}

// Tail opens a reader positioned at the current end of the ring.
func (r *Ring) Tail(_ context.Context) (domain.Tailer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &ringTailer{ring: r, pos: r.next}, nil
}

type ringTailer struct {
	ring   *Ring
	pos    uint64
	closed bool
}

// Next returns the entry at the reader's position, waiting for one to be
// appended if needed. A reader that fell behind the retained window skips
// to the oldest retained entry.
func (t *ringTailer) Next(ctx context.Context) (domain.Event, error) {
	r := t.ring
	timer := time.NewTimer(r.block)
	defer timer.Stop()

	for {
		r.mu.Lock()
		if t.closed {
			r.mu.Unlock()
			return domain.Event{}, ErrClosed
		}
		if t.pos < r.first {
			t.pos = r.first
		}
		if t.pos < r.next {
			ev := r.buf[t.pos%uint64(r.capacity)]
			t.pos++
			r.mu.Unlock()
			return ev, nil
		}
		wait := r.notify
		r.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return domain.Event{}, domain.ErrTailExhausted
		case <-ctx.Done():
			return domain.Event{}, ctx.Err()
		}
	}
}

func (t *ringTailer) Close() error {
	t.ring.mu.Lock()
	t.closed = true
	t.ring.mu.Unlock()
	return nil
}
