// Package fanout implements the per-event-kind bounded queues that sit
// between the producer ingress adapter (or the account coalescer) and each
// stream's serializer goroutine.
//
// Each Queue is single-producer, single-consumer in practice: the ingress
// adapter (serialized by the host) is the only writer, and one serializer
// goroutine per stream is the only reader. Overflow uses a drop-oldest
// policy, since a live event feed values freshness over completeness.
package fanout

import (
	"github.com/ample-labs/geyser-gateway/metrics"
	"github.com/ample-labs/geyser-gateway/types"
)

// DefaultCapacity returns the default queue depth for kind, per the
// kind-specific defaults: accounts see the highest write volume, slot
// status and block metadata the lowest.
func DefaultCapacity(kind types.EventKind) int {
	switch kind {
	case types.EventKindAccount:
		return 65536
	case types.EventKindTransaction:
		return 16384
	case types.EventKindEntry:
		return 4096
	case types.EventKindBlock:
		return 256
	case types.EventKindSlotStatus:
		return 256
	default:
		return 1024
	}
}

// Queue is a bounded, drop-oldest FIFO of event envelopes for one kind.
// Capacity is fixed at construction. Queue is safe for exactly one
// concurrent producer and one concurrent consumer; it is not safe for
// multiple producers.
type Queue struct {
	kind     types.EventKind
	capacity int
	items    chan *types.EventEnvelope
	metrics  *metrics.Collector
}

// NewQueue returns a Queue for kind with room for capacity pending envelopes.
func NewQueue(kind types.EventKind, capacity int, m *metrics.Collector) *Queue {
	return &Queue{
		kind:     kind,
		capacity: capacity,
		items:    make(chan *types.EventEnvelope, capacity),
		metrics:  m,
	}
}

// Push enqueues env, never blocking. If the queue is full, the oldest
// pending envelope is dropped to make room, and dropped[kind] is
// incremented.
func (q *Queue) Push(env *types.EventEnvelope) {
	for {
		select {
		case q.items <- env:
			return
		default:
		}
		// Full: drop the oldest pending item and retry. A concurrent
		// consumer may have drained one between the select above and this
		// receive, in which case the retried send above succeeds instead.
		select {
		case <-q.items:
			q.metrics.IncDropped(q.kind)
		default:
			// Consumer raced us and drained everything; loop to retry the send.
		}
	}
}

// Pop blocks until an envelope is available or done is closed, returning
// ok=false in the latter case.
func (q *Queue) Pop(done <-chan struct{}) (env *types.EventEnvelope, ok bool) {
	select {
	case env, ok = <-q.items:
		return env, ok
	case <-done:
		return nil, false
	}
}

// Len returns the number of envelopes currently queued.
func (q *Queue) Len() int {
	return len(q.items)
}

// Capacity returns the queue's fixed capacity.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Kind returns the event kind this queue carries.
func (q *Queue) Kind() types.EventKind {
	return q.kind
}

// Drain removes and returns every envelope currently queued without
// blocking, for use when a connection is draining and its serializer
// goroutines have already exited.
func (q *Queue) Drain() []*types.EventEnvelope {
	var out []*types.EventEnvelope
	for {
		select {
		case env := <-q.items:
			out = append(out, env)
		default:
			return out
		}
	}
}

// Set is one Queue per event kind, indexed by kind.
type Set struct {
	queues [5]*Queue
}

// NewSet constructs a Queue for every known kind using DefaultCapacity,
// reporting drops to m.
func NewSet(m *metrics.Collector) *Set {
	s := &Set{}
	for _, k := range types.AllEventKinds() {
		s.queues[k] = NewQueue(k, DefaultCapacity(k), m)
	}
	return s
}

// For returns the queue for kind.
func (s *Set) For(kind types.EventKind) *Queue {
	return s.queues[kind]
}
