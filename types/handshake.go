package types

import "github.com/google/uuid"

// CompressionKind is the set of compressors a HandshakeDescriptor may
// advertise. The advertised choice is advisory only: the per-frame
// compression_tag on the wire (§3) is always authoritative at decode time.
type CompressionKind uint8

const (
	CompressionNone CompressionKind = iota
	CompressionZstd
	CompressionLZ4
)

// String renders the compression kind for logs.
func (c CompressionKind) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// HandshakeDescriptor is the only message written on the control stream,
// msgpack-encoded as the whole stream body rather than wrapped in a codec
// frame. The server sends it unconditionally right after opening the control
// stream and before opening the data streams; the client decides acceptance
// per §4.3 startup rules.
type HandshakeDescriptor struct {
	ProtocolVersion       uint16          `msgpack:"protocol_version"`
	ALPNExpected          string          `msgpack:"alpn_expected"`
	EnabledKinds          uint32          `msgpack:"enabled_kinds"`
	AdvertisedCompression CompressionKind `msgpack:"advertised_compression"`
	ProducerID            uuid.UUID       `msgpack:"producer_id"`
}

// NewHandshakeDescriptor builds a descriptor advertising every event kind
// and the gateway's current protocol version.
func NewHandshakeDescriptor(producerID uuid.UUID, compression CompressionKind) HandshakeDescriptor {
	var enabled uint32
	for _, k := range AllEventKinds() {
		enabled |= k.KindBit()
	}
	return HandshakeDescriptor{
		ProtocolVersion:       ProtocolVersion,
		ALPNExpected:          ALPNProtocol,
		EnabledKinds:          enabled,
		AdvertisedCompression: compression,
		ProducerID:            producerID,
	}
}

// HasKind reports whether bit k is set in EnabledKinds.
func (h HandshakeDescriptor) HasKind(k EventKind) bool {
	return h.EnabledKinds&k.KindBit() != 0
}

// SupportsAll reports whether every kind in wanted is present in EnabledKinds,
// i.e. EnabledKinds is a superset of the client's required kinds (§4.3).
func (h HandshakeDescriptor) SupportsAll(wanted []EventKind) bool {
	for _, k := range wanted {
		if !h.HasKind(k) {
			return false
		}
	}
	return true
}
