package ubifs

import (
	"bytes"
	"compress/zlib"

	lzo "github.com/anchore/go-lzo"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Compressor is the capability interface spec.md §9 calls for: an
// abstract compress(in) -> (out, type) dependency, one implementation
// per spec.md §6's compr enum. A build that lacks a backend simply never
// constructs that variant; there is no compile-time feature flag here
// since every backend in this repo is a pure-Go or stdlib dependency
// available unconditionally.
type Compressor interface {
	// Compress returns the compressed bytes and the NodeType-level
	// compression tag to store in the data node header.
	Compress(in []byte) (out []byte, tag uint16, err error)
}

type noneCompressor struct{}

func (noneCompressor) Compress(in []byte) ([]byte, uint16, error) {
	return in, CompressNone, nil
}

type lzoCompressor struct{}

func (lzoCompressor) Compress(in []byte) ([]byte, uint16, error) {
	out, err := lzo.Compress1X(in)
	if err != nil {
		return nil, 0, errors.Wrap(&CompressionFailed{Type: "lzo", Cause: err}, "compressing block")
	}
	return out, CompressLZO, nil
}

type zlibCompressor struct{}

func (zlibCompressor) Compress(in []byte) ([]byte, uint16, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(in); err != nil {
		return nil, 0, errors.Wrap(&CompressionFailed{Type: "zlib", Cause: err}, "compressing block")
	}
	if err := w.Close(); err != nil {
		return nil, 0, errors.Wrap(&CompressionFailed{Type: "zlib", Cause: err}, "compressing block")
	}
	return buf.Bytes(), CompressZlib, nil
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func newZstdCompressor() (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "constructing zstd encoder")
	}
	return &zstdCompressor{enc: enc}, nil
}

func (c *zstdCompressor) Compress(in []byte) ([]byte, uint16, error) {
	out := c.enc.EncodeAll(in, nil)
	return out, CompressZstd, nil
}

// favorLZOCompressor implements spec.md §4.4/§9's favor_lzo policy: try
// both LZO and ZLIB, pick LZO unless ZLIB beats it by more than
// favor_percent, compared with integer arithmetic (spec.md §9's open
// question resolution: zlib_len*100 < (100-favor_percent)*lzo_len) to
// avoid floating-point nondeterminism across platforms.
type favorLZOCompressor struct {
	favorPercent int
}

func (c *favorLZOCompressor) Compress(in []byte) ([]byte, uint16, error) {
	lzoOut, _, err := (lzoCompressor{}).Compress(in)
	if err != nil {
		return nil, 0, err
	}
	zlibOut, _, err := (zlibCompressor{}).Compress(in)
	if err != nil {
		return nil, 0, err
	}
	if len(zlibOut)*100 < (100-c.favorPercent)*len(lzoOut) {
		return zlibOut, CompressZlib, nil
	}
	return lzoOut, CompressLZO, nil
}

// NewCompressor builds the Compressor for the configured compression
// type (spec.md §6's compr enum, plus favor_lzo).
func NewCompressor(typ CompressionType, favorPercent int) (Compressor, error) {
	switch typ {
	case ComprNone:
		return noneCompressor{}, nil
	case ComprLZO:
		return lzoCompressor{}, nil
	case ComprZlib:
		return zlibCompressor{}, nil
	case ComprZstd:
		return newZstdCompressor()
	case ComprFavorLZO:
		return &favorLZOCompressor{favorPercent: favorPercent}, nil
	default:
		return nil, &InvalidOption{Option: "compr", Reason: "unknown compression type"}
	}
}

// compressBlock implements spec.md §4.4's per-block policy: compress
// with the configured backend; if the result is not strictly smaller
// than the input, store uncompressed instead.
func compressBlock(c Compressor, in []byte) (out []byte, tag uint16, err error) {
	out, tag, err = c.Compress(in)
	if err != nil {
		return nil, 0, err
	}
	if len(out) >= len(in) {
		return in, CompressNone, nil
	}
	return out, tag, nil
}
