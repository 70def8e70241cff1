package sim

import "container/heap"

// clockEntry wraps a payload with a sequence ID for deterministic FIFO
// tie-breaking when timestamps are equal.
type clockEntry[T any] struct {
	at      float64
	seqID   uint64
	payload T
}

// clockHeap is a min-heap ordered by (at, seqID).
// Implements heap.Interface.
type clockHeap[T any] []clockEntry[T]

func (h clockHeap[T]) Len() int { return len(h) }

func (h clockHeap[T]) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seqID < h[j].seqID
}

func (h clockHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *clockHeap[T]) Push(x any) {
	*h = append(*h, x.(clockEntry[T]))
}

func (h *clockHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	var zero clockEntry[T]
	old[n-1] = zero
	*h = old[:n-1]
	return item
}

// EventClock is a priority queue of timestamped payloads.
// Entries with equal timestamps pop in push order.
type EventClock[T any] struct {
	entries clockHeap[T]
	nextSeq uint64
}

// NewEventClock creates an empty event clock.
func NewEventClock[T any]() *EventClock[T] {
	c := &EventClock[T]{entries: make(clockHeap[T], 0)}
	heap.Init(&c.entries)
	return c
}

// Len returns the number of pending entries.
func (c *EventClock[T]) Len() int {
	return c.entries.Len()
}

// Push schedules payload at the given date.
func (c *EventClock[T]) Push(at float64, payload T) {
	c.nextSeq++
	heap.Push(&c.entries, clockEntry[T]{at: at, seqID: c.nextSeq, payload: payload})
}

// PopMin removes and returns the earliest payload.
// Popping an empty clock is a programming error and panics; check Len first.
func (c *EventClock[T]) PopMin() T {
	if c.entries.Len() == 0 {
		panic("EventClock: PopMin on empty clock")
	}
	return heap.Pop(&c.entries).(clockEntry[T]).payload
}

// PeekMinTime returns the date of the earliest entry, or false when empty.
func (c *EventClock[T]) PeekMinTime() (float64, bool) {
	if c.entries.Len() == 0 {
		return 0, false
	}
	return c.entries[0].at, true
}

// PeekMin returns the earliest payload without removing it.
func (c *EventClock[T]) PeekMin() (T, bool) {
	if c.entries.Len() == 0 {
		var zero T
		return zero, false
	}
	return c.entries[0].payload, true
}
