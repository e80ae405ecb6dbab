// Package types defines the core domain types shared across the gateway:
// event kinds and envelopes, the transport handshake descriptor,
// per-connection state, and the gateway's error taxonomy.
package types

import "fmt"

// EventKind is the closed set of Geyser event kinds the transport carries.
// Each kind maps to exactly one QUIC data stream, at a fixed index.
type EventKind uint8

// Event kind constants. The numeric value is also the wire kind_tag (§3)
// and the bit position in a HandshakeDescriptor's enabled_kinds bitset.
const (
	EventKindAccount EventKind = iota
	EventKindTransaction
	EventKindEntry
	EventKindBlock
	EventKindSlotStatus

	// numEventKinds is the size of the closed event-kind set.
	numEventKinds
)

// String renders the kind name for logs and metrics labels.
func (k EventKind) String() string {
	switch k {
	case EventKindAccount:
		return "account"
	case EventKindTransaction:
		return "transaction"
	case EventKindEntry:
		return "entry"
	case EventKindBlock:
		return "block"
	case EventKindSlotStatus:
		return "slot_status"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the five known event kinds.
func (k EventKind) Valid() bool {
	return k < numEventKinds
}

// AllEventKinds returns the closed set of event kinds in stream-index order.
func AllEventKinds() []EventKind {
	return []EventKind{
		EventKindAccount,
		EventKindTransaction,
		EventKindEntry,
		EventKindBlock,
		EventKindSlotStatus,
	}
}

// KindBit returns the bitset bit for k, used in HandshakeDescriptor.EnabledKinds.
func (k EventKind) KindBit() uint32 {
	return 1 << uint32(k)
}

// EventEnvelope wraps an opaque, host-plugin-defined payload with the
// metadata the transport and coalescer need without understanding the
// payload's own byte layout.
//
// AccountPubkey and AccountWriteVersion are populated only for
// Kind == EventKindAccount; they are extracted once by the ingress adapter
// so that downstream stages (coalescer, metrics) never need to parse Payload.
type EventEnvelope struct {
	Kind                EventKind `msgpack:"kind"`
	Slot                uint64    `msgpack:"slot"`
	MonotonicSeq        uint64    `msgpack:"seq"`
	AccountPubkey       [32]byte  `msgpack:"pubkey,omitempty"`
	AccountWriteVersion uint64    `msgpack:"write_version,omitempty"`
	Payload             []byte    `msgpack:"payload"`
}

// ProgressKey is the (slot, write_version) pair the coalescer uses to order
// two envelopes for the same account. Only meaningful for EventKindAccount.
type ProgressKey struct {
	Slot         uint64
	WriteVersion uint64
}

// Less reports whether p precedes other lexicographically on (slot, write_version).
func (p ProgressKey) Less(other ProgressKey) bool {
	if p.Slot != other.Slot {
		return p.Slot < other.Slot
	}
	return p.WriteVersion < other.WriteVersion
}

// Progress returns the envelope's progress key. Valid for any kind, but only
// load-bearing for EventKindAccount per the coalescer's non-regression guarantee.
func (e *EventEnvelope) Progress() ProgressKey {
	return ProgressKey{Slot: e.Slot, WriteVersion: e.AccountWriteVersion}
}
