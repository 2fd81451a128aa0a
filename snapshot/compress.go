package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the body compression algorithm.
type Compression uint8

const (
	// None stores the payload as is.
	None Compression = 0
	// Zstd favours ratio. Default.
	Zstd Compression = 1
	// LZ4 favours speed.
	LZ4 Compression = 2
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps "none", "zstd" or "lz4" to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return None, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// compress returns the body and the algorithm actually used. Payloads that
// do not shrink are stored uncompressed.
func compress(raw []byte, c Compression) ([]byte, Compression, error) {
	if len(raw) == 0 {
		return raw, None, nil
	}

	var out []byte
	switch c {
	case None:
		return raw, None, nil
	case Zstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, 0, err
		}
		out = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, 0, err
		}
		out = buf[:n]
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownCompression, c)
	}

	if len(out) == 0 || len(out) >= len(raw) {
		return raw, None, nil
	}
	return out, c, nil
}

func decompress(body []byte, c Compression, rawSize uint64) ([]byte, error) {
	switch c {
	case None:
		if uint64(len(body)) != rawSize {
			return nil, errSizeMismatch
		}
		return body, nil
	case Zstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(body, make([]byte, 0, rawSize))
		if err != nil {
			return nil, err
		}
		if uint64(len(out)) != rawSize {
			return nil, errSizeMismatch
		}
		return out, nil
	case LZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, err
		}
		if uint64(n) != rawSize {
			return nil, errSizeMismatch
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, c)
	}
}

var errSizeMismatch = errors.New("decompressed size mismatch")
