package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/vecmem/blobstore"
	"github.com/hupe1980/vecmem/codec"
	"github.com/hupe1980/vecmem/resource"
)

// Options contains configuration options for saving and loading snapshots.
type Options struct {
	// Compression applies to Save. Load reads it from the header.
	Compression Compression

	// Codec encodes payloads on Save. Load picks the codec named in the header.
	Codec codec.Codec

	// Resource throttles the bytes moved to and from the store. Nil means unlimited.
	Resource *resource.Controller
}

// DefaultOptions contains the default configuration options for snapshots.
var DefaultOptions = Options{
	Compression: Zstd,
	Codec:       codec.Default,
}

func buildOptions(optFns []func(o *Options)) Options {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	return opts
}

// Encode serializes v into a framed snapshot.
func Encode(v any, optFns ...func(o *Options)) ([]byte, error) {
	opts := buildOptions(optFns)

	if len(opts.Codec.Name()) > 255 {
		return nil, fmt.Errorf("snapshot: codec name %q too long", opts.Codec.Name())
	}

	raw, err := opts.Codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}

	body, used, err := compress(raw, opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("snapshot: compress: %w", err)
	}

	return marshalFrame(Info{
		Version:     Version,
		Compression: used,
		Codec:       opts.Codec.Name(),
		RawSize:     uint64(len(raw)),
	}, body), nil
}

// Decode verifies a framed snapshot and unmarshals its payload into v.
func Decode(data []byte, v any) (Info, error) {
	info, body, err := unmarshalFrame(data)
	if err != nil {
		return info, err
	}

	c, ok := codec.ByName(info.Codec)
	if !ok {
		return info, fmt.Errorf("%w: %q", ErrUnknownCodec, info.Codec)
	}

	raw, err := decompress(body, info.Compression, info.RawSize)
	if err != nil {
		return info, fmt.Errorf("snapshot: decompress: %w", err)
	}

	if err := c.Unmarshal(raw, v); err != nil {
		return info, fmt.Errorf("snapshot: decode: %w", err)
	}
	return info, nil
}

// Save encodes v and writes it to store under name.
func Save(ctx context.Context, store blobstore.Store, name string, v any, optFns ...func(o *Options)) error {
	opts := buildOptions(optFns)

	frame, err := Encode(v, func(o *Options) { *o = opts })
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Grow(len(frame))
	if _, err := resource.NewRateLimitedWriter(ctx, &buf, opts.Resource).Write(frame); err != nil {
		return fmt.Errorf("snapshot: save %s: %w", name, err)
	}

	if err := store.Put(ctx, name, buf.Bytes()); err != nil {
		return fmt.Errorf("snapshot: save %s: %w", name, err)
	}
	return nil
}

// Load reads name from store and decodes it into v.
func Load(ctx context.Context, store blobstore.Store, name string, v any, optFns ...func(o *Options)) (Info, error) {
	opts := buildOptions(optFns)

	data, err := read(ctx, store, name, opts.Resource)
	if err != nil {
		return Info{}, err
	}

	info, err := Decode(data, v)
	if err != nil {
		return info, fmt.Errorf("load %s: %w", name, err)
	}
	return info, nil
}

// Inspect reads and verifies the header of name without decoding the payload.
func Inspect(ctx context.Context, store blobstore.Store, name string) (Info, error) {
	data, err := read(ctx, store, name, nil)
	if err != nil {
		return Info{}, err
	}
	info, _, err := unmarshalFrame(data)
	if err != nil {
		return info, fmt.Errorf("inspect %s: %w", name, err)
	}
	return info, nil
}

func read(ctx context.Context, store blobstore.Store, name string, rc *resource.Controller) ([]byte, error) {
	blob, err := store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load %s: %w", name, err)
	}

	data, err := io.ReadAll(resource.NewRateLimitedReader(ctx, bytes.NewReader(blob), rc))
	if err != nil {
		return nil, fmt.Errorf("snapshot: load %s: %w", name, err)
	}
	return data, nil
}
