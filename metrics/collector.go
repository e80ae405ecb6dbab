// Package metrics provides process-wide metrics collection for a producer
// or consumer process.
//
// The Collector accumulates counters for the lifetime of the process. It is
// a leaf package depending only on types, so transport, fanout, and
// coalescer can all report into it without an import cycle.
package metrics

import (
	"sync"

	"github.com/ample-labs/geyser-gateway/types"
)

const numKinds = 5

// Snapshot is an immutable point-in-time view of all counters. Returned by
// Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	FramesOut   [numKinds]int64
	BytesOut    [numKinds]int64
	DroppedKind [numKinds]int64

	ConnectionsAccepted int64
	ConnectionsActive   int64
	ReconnectsTotal     int64
	HandshakeFailures   int64
	DecodeErrors        int64
	CoalesceMerges      int64
	CoalesceFlushes     int64
}

// FramesOutFor returns the frames-sent counter for kind.
func (s Snapshot) FramesOutFor(k types.EventKind) int64 { return s.FramesOut[k] }

// BytesOutFor returns the bytes-sent counter for kind.
func (s Snapshot) BytesOutFor(k types.EventKind) int64 { return s.BytesOut[k] }

// DroppedFor returns the dropped-event counter for kind.
func (s Snapshot) DroppedFor(k types.EventKind) int64 { return s.DroppedKind[k] }

// Collector accumulates metrics for a producer or consumer process.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe so
// a component can be constructed with a nil *Collector in tests without
// guarding every call site.
type Collector struct {
	mu sync.Mutex

	framesOut   [numKinds]int64
	bytesOut    [numKinds]int64
	droppedKind [numKinds]int64

	connectionsAccepted int64
	connectionsActive   int64
	reconnectsTotal     int64
	handshakeFailures   int64
	decodeErrors        int64
	coalesceMerges      int64
	coalesceFlushes     int64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// IncFramesOut records n frames and totalBytes sent for kind.
func (c *Collector) IncFramesOut(k types.EventKind, n int64, totalBytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesOut[k] += n
	c.bytesOut[k] += totalBytes
	c.mu.Unlock()
}

// IncDropped records a fan-out queue drop for kind.
func (c *Collector) IncDropped(k types.EventKind) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.droppedKind[k]++
	c.mu.Unlock()
}

// IncConnectionAccepted records a newly accepted or established connection.
func (c *Collector) IncConnectionAccepted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.connectionsAccepted++
	c.connectionsActive++
	c.mu.Unlock()
}

// DecConnectionActive records an accepted connection's handler returning,
// whatever phase the connection reached.
func (c *Collector) DecConnectionActive() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.connectionsActive > 0 {
		c.connectionsActive--
	}
	c.mu.Unlock()
}

// IncReconnect records a consumer's reconnection attempt.
func (c *Collector) IncReconnect() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.reconnectsTotal++
	c.mu.Unlock()
}

// IncHandshakeFailure records a rejected or malformed HandshakeDescriptor.
func (c *Collector) IncHandshakeFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.handshakeFailures++
	c.mu.Unlock()
}

// IncDecodeError records a frame decode failure (FrameTooLarge,
// TruncatedFrame, or InvalidStreamOp).
func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decodeErrors++
	c.mu.Unlock()
}

// IncCoalesceMerge records the coalescer merging a new account update into
// an already-pending one for the same pubkey.
func (c *Collector) IncCoalesceMerge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.coalesceMerges++
	c.mu.Unlock()
}

// IncCoalesceFlush records the coalescer flushing a pending update downstream.
func (c *Collector) IncCoalesceFlush() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.coalesceFlushes++
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		FramesOut:   c.framesOut,
		BytesOut:    c.bytesOut,
		DroppedKind: c.droppedKind,

		ConnectionsAccepted: c.connectionsAccepted,
		ConnectionsActive:   c.connectionsActive,
		ReconnectsTotal:     c.reconnectsTotal,
		HandshakeFailures:   c.handshakeFailures,
		DecodeErrors:        c.decodeErrors,
		CoalesceMerges:      c.coalesceMerges,
		CoalesceFlushes:     c.coalesceFlushes,
	}
}
