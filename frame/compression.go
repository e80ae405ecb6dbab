package frame

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag is the wire byte identifying a frame's compressor.
type CompressionTag uint8

const (
	CompressionTagIdentity CompressionTag = iota
	CompressionTagZstd
	CompressionTagLZ4
)

// Compressor compresses outgoing frame payloads with one fixed algorithm.
// Compress reports applied=false when it could not or chose not to produce
// compressed output, in which case the caller must stamp the frame with
// CompressionTagIdentity rather than this Compressor's Tag(), since payload
// holds the raw bytes in that case.
type Compressor interface {
	Tag() CompressionTag
	Compress(payload []byte) (out []byte, applied bool, err error)
}

// identityCompressor never compresses; Compress returns payload unchanged.
type identityCompressor struct{}

func (identityCompressor) Tag() CompressionTag { return CompressionTagIdentity }
func (identityCompressor) Compress(p []byte) ([]byte, bool, error) { return p, false, nil }

// NewIdentityCompressor returns a Compressor that never compresses.
func NewIdentityCompressor() Compressor { return identityCompressor{} }

// zstdCompressor wraps a reusable klauspost/compress/zstd encoder.
type zstdCompressor struct {
	enc *zstd.Encoder
}

// NewZstdCompressor returns a Compressor backed by a single reusable zstd
// encoder, using the library's fastest level (SpeedFastest), since frame payloads
// are already latency-sensitive account/transaction records rather than bulk
// data.
func NewZstdCompressor() (Compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	return &zstdCompressor{enc: enc}, nil
}

func (z *zstdCompressor) Tag() CompressionTag { return CompressionTagZstd }

func (z *zstdCompressor) Compress(payload []byte) ([]byte, bool, error) {
	return z.enc.EncodeAll(payload, make([]byte, 0, len(payload))), true, nil
}

// lz4Compressor wraps a reusable pierrec/lz4 compressor.
type lz4Compressor struct{}

// NewLZ4Compressor returns a Compressor backed by pierrec/lz4/v4.
func NewLZ4Compressor() Compressor { return lz4Compressor{} }

func (lz4Compressor) Tag() CompressionTag { return CompressionTagLZ4 }

func (lz4Compressor) Compress(payload []byte) ([]byte, bool, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(payload)))
	var c lz4.Compressor
	n, err := c.CompressBlock(payload, buf)
	if err != nil {
		return nil, false, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(payload) {
		// Incompressible input. pierrec/lz4 returns n == 0 only when dst is
		// smaller than CompressBlockBound; with the full-bound buffer used
		// here it writes a literal-only block at least as large as the input.
		// Either way the caller falls back to an identity frame.
		return nil, false, nil
	}
	return buf[:n], true, nil
}

// Decompress inverts Compress for tag, returning payload unchanged for
// CompressionTagIdentity.
func Decompress(tag CompressionTag, payload []byte) ([]byte, error) {
	switch tag {
	case CompressionTagIdentity:
		return payload, nil
	case CompressionTagZstd:
		return decompressZstd(payload)
	case CompressionTagLZ4:
		return decompressLZ4(payload)
	default:
		return nil, fmt.Errorf("unknown compression tag %d", tag)
	}
}

func decompressZstd(payload []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// decompressLZ4 decompresses a block produced by lz4Compressor.Compress.
// Since block-mode LZ4 doesn't self-describe its decompressed size, the
// caller grows buf geometrically until UncompressBlock stops reporting
// ErrInvalidSourceShortBuffer.
func decompressLZ4(payload []byte) ([]byte, error) {
	size := len(payload) * 4
	if size < 4096 {
		size = 4096
	}
	for {
		buf := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, buf)
		if err == nil {
			return buf[:n], nil
		}
		if err == lz4.ErrInvalidSourceShortBuffer {
			size *= 2
			continue
		}
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
}
