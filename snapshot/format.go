package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/vecmem/internal/hash"
)

// Version is the current file format version.
const Version = 1

var magic = [4]byte{'V', 'M', 'S', 'N'}

// maxRawSize bounds the allocation made for a decoded payload.
const maxRawSize = 1 << 32

var (
	// ErrBadMagic is returned for data that is not a snapshot.
	ErrBadMagic = errors.New("snapshot: bad magic")
	// ErrUnsupportedVersion is returned for files written by a newer format.
	ErrUnsupportedVersion = errors.New("snapshot: unsupported version")
	// ErrChecksumMismatch is returned when the stored checksum does not match.
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	// ErrTruncated is returned when the data ends early.
	ErrTruncated = errors.New("snapshot: truncated")
	// ErrUnknownCodec is returned when the header names an unregistered codec.
	ErrUnknownCodec = errors.New("snapshot: unknown codec")
	// ErrUnknownCompression is returned for unsupported compression ids or names.
	ErrUnknownCompression = errors.New("snapshot: unknown compression")
)

// Info describes a snapshot without decoding its payload.
type Info struct {
	Version     uint8
	Compression Compression
	Codec       string
	RawSize     uint64
	StoredSize  uint64
	Checksum    uint32
}

// Ratio returns StoredSize / RawSize, or 1 for an empty payload.
func (i Info) Ratio() float64 {
	if i.RawSize == 0 {
		return 1
	}
	return float64(i.StoredSize) / float64(i.RawSize)
}

// header size without the codec name
const fixedHeaderSize = 4 + 1 + 1 + 1 + 8 + 8 + 4

func marshalFrame(info Info, body []byte) []byte {
	out := make([]byte, 0, fixedHeaderSize+len(info.Codec)+len(body))
	out = append(out, magic[:]...)
	out = append(out, info.Version, byte(info.Compression), byte(len(info.Codec)))
	out = append(out, info.Codec...)
	out = binary.LittleEndian.AppendUint64(out, info.RawSize)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(body)))

	// checksum covers everything before it and the body
	h := hash.NewCRC32C()
	_, _ = h.Write(out)
	_, _ = h.Write(body)
	out = binary.LittleEndian.AppendUint32(out, h.Sum32())

	return append(out, body...)
}

// unmarshalFrame validates data and returns its header and body.
func unmarshalFrame(data []byte) (Info, []byte, error) {
	var info Info

	if len(data) < 7 {
		return info, nil, ErrTruncated
	}
	if [4]byte(data[:4]) != magic {
		return info, nil, ErrBadMagic
	}

	info.Version = data[4]
	if info.Version == 0 || info.Version > Version {
		return info, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, info.Version)
	}
	info.Compression = Compression(data[5])
	codecLen := int(data[6])

	if len(data) < fixedHeaderSize+codecLen {
		return info, nil, ErrTruncated
	}
	off := 7
	info.Codec = string(data[off : off+codecLen])
	off += codecLen
	info.RawSize = binary.LittleEndian.Uint64(data[off:])
	off += 8
	info.StoredSize = binary.LittleEndian.Uint64(data[off:])
	off += 8
	info.Checksum = binary.LittleEndian.Uint32(data[off:])
	checked := data[:off]
	off += 4

	if uint64(len(data)-off) < info.StoredSize {
		return info, nil, ErrTruncated
	}
	body := data[off : off+int(info.StoredSize)]

	h := hash.NewCRC32C()
	_, _ = h.Write(checked)
	_, _ = h.Write(body)
	if h.Sum32() != info.Checksum {
		return info, nil, ErrChecksumMismatch
	}

	if info.RawSize > maxRawSize {
		return info, nil, fmt.Errorf("snapshot: payload of %d bytes exceeds limit", info.RawSize)
	}

	return info, body, nil
}
