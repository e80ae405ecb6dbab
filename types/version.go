package types

// Version is the canonical gateway build version.
const Version = "0.1.0"

// ProtocolVersion is the wire protocol version exchanged in the
// HandshakeDescriptor. A client rejects a connection whose advertised
// ProtocolVersion does not match this value exactly.
const ProtocolVersion uint16 = 1

// ALPNProtocol is the ALPN identifier negotiated over QUIC/TLS.
const ALPNProtocol = "ample/0.1"
