// Package frame implements the gateway's wire framing: a length-prefixed,
// per-stream, optionally-compressed frame format carrying msgpack-encoded
// event envelopes.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ample-labs/geyser-gateway/types"
)

// Frame size constants. A frame on the wire is
// u32 length | u8 compression_tag | u8 kind_tag | payload, where length
// covers everything after itself.
const (
	// MaxFrameBytes is the maximum frame size post-compression, including
	// the compression_tag and kind_tag bytes but not the length prefix.
	MaxFrameBytes = 16 * 1024 * 1024
	// LengthPrefixSize is the size of the leading length field.
	LengthPrefixSize = 4
	// TagBytes is the size of the compression_tag + kind_tag header.
	TagBytes = 2
	// MaxPayloadBytes is the largest payload that fits in MaxFrameBytes once
	// the tag bytes are accounted for.
	MaxPayloadBytes = MaxFrameBytes - TagBytes
	// CompressionMinBytes is the smallest payload the encoder will attempt
	// to compress; anything smaller is always sent as identity to avoid
	// negative compression on small records.
	CompressionMinBytes = 256
)

// NewFrameError constructs a *types.GatewayError of the given frame-related
// kind, for callers outside this package that need to build one (e.g. tests).
func NewFrameError(kind types.ErrorKind, msg string, err error) *types.GatewayError {
	return types.NewGatewayError(kind, msg, err)
}

// Encoder writes frames to an underlying stream using a fixed compressor
// and kind. One Encoder is created per outgoing data stream.
type Encoder struct {
	w    io.Writer
	kind types.EventKind
	comp Compressor
}

// NewEncoder returns an Encoder that writes frames of kind to w, compressing
// with comp when a payload is large enough to benefit.
func NewEncoder(w io.Writer, kind types.EventKind, comp Compressor) *Encoder {
	return &Encoder{w: w, kind: kind, comp: comp}
}

// EncodeFrame compresses and writes payload as a single frame. It returns
// the total number of bytes written, including the length prefix, for
// metrics accounting.
func (e *Encoder) EncodeFrame(payload []byte) (int, *types.GatewayError) {
	tag := CompressionTagIdentity
	body := payload
	if len(payload) >= CompressionMinBytes && e.comp != nil && e.comp.Tag() != CompressionTagIdentity {
		compressed, applied, err := e.comp.Compress(payload)
		if err != nil {
			return 0, types.NewGatewayError(types.ErrTransportTransient, "compress frame payload", err)
		}
		if applied {
			tag = e.comp.Tag()
			body = compressed
		}
	}

	frameLen := TagBytes + len(body)
	if frameLen > MaxFrameBytes {
		return 0, types.NewGatewayError(types.ErrFrameTooLarge,
			fmt.Sprintf("frame of %d bytes exceeds MaxFrameBytes %d", frameLen, MaxFrameBytes), nil)
	}

	var header [LengthPrefixSize + TagBytes]byte
	binary.BigEndian.PutUint32(header[:LengthPrefixSize], uint32(frameLen))
	header[LengthPrefixSize] = byte(tag)
	header[LengthPrefixSize+1] = byte(e.kind)

	if _, err := e.w.Write(header[:]); err != nil {
		return 0, types.NewGatewayError(types.ErrTransportTransient, "write frame header", err)
	}
	if _, err := e.w.Write(body); err != nil {
		return 0, types.NewGatewayError(types.ErrTransportTransient, "write frame body", err)
	}
	return len(header) + len(body), nil
}

// Decoder reads length-prefixed frames from a stream and decompresses them
// according to each frame's own compression_tag. The decoder is stateless
// across frames: unlike the encoder, it does not assume a fixed compressor,
// since a remote peer's advertised compression is advisory only (§3).
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// DecodedFrame is one frame's header fields plus its decompressed payload.
type DecodedFrame struct {
	Kind    types.EventKind
	Payload []byte
}

// ReadFrame reads, validates, and decompresses a single frame.
//
// Returns io.EOF when the stream closes cleanly between frames.
// Returns a *types.GatewayError of kind ErrTruncatedFrame, ErrFrameTooLarge,
// or ErrInvalidStreamOp for the cases those names describe.
func (d *Decoder) ReadFrame() (*DecodedFrame, error) {
	var header [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, types.NewGatewayError(types.ErrTruncatedFrame, "reading length prefix", err)
	}

	frameLen := binary.BigEndian.Uint32(header[:])
	if int(frameLen) > MaxFrameBytes {
		return nil, types.NewGatewayError(types.ErrFrameTooLarge,
			fmt.Sprintf("declared frame length %d exceeds MaxFrameBytes %d", frameLen, MaxFrameBytes), nil)
	}
	if frameLen < TagBytes {
		return nil, types.NewGatewayError(types.ErrInvalidStreamOp,
			fmt.Sprintf("frame length %d smaller than tag header", frameLen), nil)
	}

	body := make([]byte, frameLen)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, types.NewGatewayError(types.ErrTruncatedFrame, "reading frame body", err)
	}

	compTag := CompressionTag(body[0])
	kindTag := types.EventKind(body[1])
	payload := body[TagBytes:]

	if !kindTag.Valid() {
		return nil, types.NewGatewayError(types.ErrInvalidStreamOp,
			fmt.Sprintf("unknown kind_tag %d", body[1]), nil)
	}

	decompressed, err := Decompress(compTag, payload)
	if err != nil {
		return nil, types.NewGatewayError(types.ErrInvalidStreamOp, "decompress frame payload", err)
	}

	return &DecodedFrame{Kind: kindTag, Payload: decompressed}, nil
}
