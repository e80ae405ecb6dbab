package types

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnectionPhase is a connection's position in its lifecycle. Transitions
// are strictly forward: Handshaking -> Running -> Draining -> Closed.
type ConnectionPhase uint8

const (
	PhaseHandshaking ConnectionPhase = iota
	PhaseRunning
	PhaseDraining
	PhaseClosed
)

// String renders the phase name for logs.
func (p ConnectionPhase) String() string {
	switch p {
	case PhaseHandshaking:
		return "handshaking"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionState tracks one producer<->consumer QUIC connection's
// lifecycle and per-kind wire counters. The producer side owns one
// ConnectionState per accepted consumer; the consumer-side client does not
// keep one.
type ConnectionState struct {
	mu sync.Mutex

	ConnectionID uuid.UUID
	PeerAddr     net.Addr
	Phase        ConnectionPhase
	HandshakeOK  bool
	LastActivity time.Time

	bytesPerKind   [numEventKinds]uint64
	framesPerKind  [numEventKinds]uint64
	droppedPerKind [numEventKinds]uint64
}

// NewConnectionState starts a connection in PhaseHandshaking.
func NewConnectionState(id uuid.UUID, peer net.Addr) *ConnectionState {
	return &ConnectionState{
		ConnectionID: id,
		PeerAddr:     peer,
		Phase:        PhaseHandshaking,
		LastActivity: time.Now(),
	}
}

// Transition moves the connection to phase next. It is a no-op, not an
// error, if next does not strictly follow the current phase, since shutdown
// races (e.g. Draining while a read loop is also closing on EOF) are
// expected rather than exceptional.
func (c *ConnectionState) Transition(next ConnectionPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next > c.Phase {
		c.Phase = next
	}
}

// CurrentPhase returns the connection's current lifecycle phase.
func (c *ConnectionState) CurrentPhase() ConnectionPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Phase
}

// RecordFrame records an outgoing or incoming frame of n bytes for kind,
// advancing LastActivity.
func (c *ConnectionState) RecordFrame(kind EventKind, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytesPerKind[kind] += uint64(n)
	c.framesPerKind[kind]++
	c.LastActivity = time.Now()
}

// RecordDrop increments the dropped-frame counter for kind.
func (c *ConnectionState) RecordDrop(kind EventKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.droppedPerKind[kind]++
}

// CountersSnapshot is an immutable copy of a connection's per-kind counters,
// safe to read without holding the connection's lock.
type CountersSnapshot struct {
	BytesPerKind   [numEventKinds]uint64
	FramesPerKind  [numEventKinds]uint64
	DroppedPerKind [numEventKinds]uint64
}

// Snapshot copies the connection's current counters.
func (c *ConnectionState) Snapshot() CountersSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CountersSnapshot{
		BytesPerKind:   c.bytesPerKind,
		FramesPerKind:  c.framesPerKind,
		DroppedPerKind: c.droppedPerKind,
	}
}
