package types

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the gateway's error taxonomy. Every error that
// crosses a package boundary is wrapped in a GatewayError so callers can
// branch on Kind instead of matching error strings.
type ErrorKind uint8

const (
	// ErrConfiguration covers malformed or missing configuration: bad JSON,
	// a missing required field, mutually exclusive options both set, a bind
	// address the QUIC listener cannot bind.
	ErrConfiguration ErrorKind = iota

	// ErrTlsLoad covers failure to load or parse a certificate/key pair.
	ErrTlsLoad

	// ErrTlsVerify covers failure to verify a peer certificate, including
	// FQDN mismatch against a pinned cert.
	ErrTlsVerify

	// ErrIncompatibleHandshake covers a HandshakeDescriptor whose
	// protocol_version, alpn_expected, or enabled_kinds the client rejects.
	ErrIncompatibleHandshake

	// ErrFrameTooLarge covers a decoded frame whose length prefix exceeds
	// MaxFrameBytes.
	ErrFrameTooLarge

	// ErrTruncatedFrame covers a stream that closed mid-frame.
	ErrTruncatedFrame

	// ErrInvalidStreamOp covers a kind_tag or compression_tag byte outside
	// its known range.
	ErrInvalidStreamOp

	// ErrQueueOverflow covers a fan-out queue that dropped an event because
	// its consumer fell behind. Not necessarily fatal; drops are counted per
	// kind in metrics.Snapshot.DroppedKind.
	ErrQueueOverflow

	// ErrPluginError covers a panic or error surfaced from a host plugin
	// callback (producer ingress or consumer dispatch).
	ErrPluginError

	// ErrTransportTransient covers a retryable network failure: dial
	// timeout, idle timeout, connection reset.
	ErrTransportTransient
)

// String renders the error kind for logs and metrics labels.
func (k ErrorKind) String() string {
	switch k {
	case ErrConfiguration:
		return "configuration"
	case ErrTlsLoad:
		return "tls_load"
	case ErrTlsVerify:
		return "tls_verify"
	case ErrIncompatibleHandshake:
		return "incompatible_handshake"
	case ErrFrameTooLarge:
		return "frame_too_large"
	case ErrTruncatedFrame:
		return "truncated_frame"
	case ErrInvalidStreamOp:
		return "invalid_stream_op"
	case ErrQueueOverflow:
		return "queue_overflow"
	case ErrPluginError:
		return "plugin_error"
	case ErrTransportTransient:
		return "transport_transient"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// GatewayError is the gateway's unified error type. Every exported function
// that can fail for a reason a caller should branch on returns one.
type GatewayError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// NewGatewayError constructs a GatewayError, wrapping err when non-nil.
func NewGatewayError(kind ErrorKind, msg string, err error) *GatewayError {
	return &GatewayError{Kind: kind, Msg: msg, Err: err}
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error should terminate the connection or
// process it occurred on, rather than simply being logged and counted.
// Transient transport errors and queue overflows are not fatal; everything
// else is.
func (e *GatewayError) Fatal() bool {
	switch e.Kind {
	case ErrTransportTransient, ErrQueueOverflow:
		return false
	default:
		return true
	}
}

// IsGatewayError reports whether err is (or wraps) a *GatewayError of kind k.
func IsGatewayError(err error, k ErrorKind) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == k
}
