package frame

import (
	"bytes"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/ample-labs/geyser-gateway/types"
)

func roundTrip(t *testing.T, comp Compressor, payload []byte) *DecodedFrame {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf, types.EventKindAccount, comp)
	if _, gerr := enc.EncodeFrame(payload); gerr != nil {
		t.Fatalf("EncodeFrame: %v", gerr)
	}
	dec := NewDecoder(&buf)
	got, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return got
}

func TestEncodeDecode_Identity(t *testing.T) {
	payload := []byte("small payload")
	got := roundTrip(t, NewIdentityCompressor(), payload)
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("Payload = %q, want %q", got.Payload, payload)
	}
	if got.Kind != types.EventKindAccount {
		t.Errorf("Kind = %v, want Account", got.Kind)
	}
}

func TestEncodeDecode_Zstd(t *testing.T) {
	comp, err := NewZstdCompressor()
	if err != nil {
		t.Fatalf("NewZstdCompressor: %v", err)
	}
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 50))
	got := roundTrip(t, comp, payload)
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("round trip payload mismatch, got %d bytes want %d", len(got.Payload), len(payload))
	}
}

func TestEncodeDecode_LZ4(t *testing.T) {
	payload := []byte(strings.Repeat("ample geyser gateway frame payload ", 50))
	got := roundTrip(t, NewLZ4Compressor(), payload)
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("round trip payload mismatch, got %d bytes want %d", len(got.Payload), len(payload))
	}
}

func TestEncodeDecode_LZ4_IncompressiblePayloadFallsBackToIdentity(t *testing.T) {
	// Random bytes above CompressionMinBytes don't shrink under LZ4: the
	// block CompressBlock writes is no smaller than the input. The frame
	// must then carry the raw bytes tagged identity, not the LZ4 block.
	payload := make([]byte, 4096)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf, types.EventKindAccount, NewLZ4Compressor())
	if _, gerr := enc.EncodeFrame(payload); gerr != nil {
		t.Fatalf("EncodeFrame: %v", gerr)
	}
	raw := buf.Bytes()
	if CompressionTag(raw[LengthPrefixSize]) != CompressionTagIdentity {
		t.Fatalf("compression_tag = %d, want identity for incompressible payload", raw[LengthPrefixSize])
	}

	dec := NewDecoder(bytes.NewReader(raw))
	got, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Error("round-tripped payload does not match original")
	}
}

func TestEncode_SmallPayloadBypassesCompression(t *testing.T) {
	// Payloads under CompressionMinBytes are always sent identity, even
	// when a real compressor is configured, to avoid negative compression.
	comp, err := NewZstdCompressor()
	if err != nil {
		t.Fatalf("NewZstdCompressor: %v", err)
	}
	payload := []byte("tiny")
	var buf bytes.Buffer
	enc := NewEncoder(&buf, types.EventKindAccount, comp)
	if _, gerr := enc.EncodeFrame(payload); gerr != nil {
		t.Fatalf("EncodeFrame: %v", gerr)
	}
	raw := buf.Bytes()
	if CompressionTag(raw[LengthPrefixSize]) != CompressionTagIdentity {
		t.Errorf("compression_tag = %d, want identity for sub-threshold payload", raw[LengthPrefixSize])
	}
}

func TestDecode_FrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var header [LengthPrefixSize]byte
	header[0] = 0xFF
	header[1] = 0xFF
	header[2] = 0xFF
	header[3] = 0xFF
	buf.Write(header[:])
	dec := NewDecoder(&buf)
	_, err := dec.ReadFrame()
	ge, ok := err.(*types.GatewayError)
	if !ok || ge.Kind != types.ErrFrameTooLarge {
		t.Fatalf("ReadFrame err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecode_TruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, types.EventKindAccount, NewIdentityCompressor())
	if _, gerr := enc.EncodeFrame([]byte("hello world")); gerr != nil {
		t.Fatalf("EncodeFrame: %v", gerr)
	}
	truncated := buf.Bytes()[:buf.Len()-3]
	dec := NewDecoder(bytes.NewReader(truncated))
	_, err := dec.ReadFrame()
	ge, ok := err.(*types.GatewayError)
	if !ok || ge.Kind != types.ErrTruncatedFrame {
		t.Fatalf("ReadFrame err = %v, want ErrTruncatedFrame", err)
	}
}

func TestDecode_InvalidKindTag(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, types.EventKindAccount, NewIdentityCompressor())
	if _, gerr := enc.EncodeFrame([]byte("hello world")); gerr != nil {
		t.Fatalf("EncodeFrame: %v", gerr)
	}
	raw := buf.Bytes()
	raw[LengthPrefixSize+1] = 0xFE // corrupt kind_tag
	dec := NewDecoder(bytes.NewReader(raw))
	_, err := dec.ReadFrame()
	ge, ok := err.(*types.GatewayError)
	if !ok || ge.Kind != types.ErrInvalidStreamOp {
		t.Fatalf("ReadFrame err = %v, want ErrInvalidStreamOp", err)
	}
}

func TestDecode_CleanEOFBetweenFrames(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil))
	_, err := dec.ReadFrame()
	if err != io.EOF {
		t.Fatalf("ReadFrame err = %v, want io.EOF", err)
	}
}
