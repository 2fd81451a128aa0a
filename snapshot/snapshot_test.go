package snapshot

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmem/backend"
	"github.com/hupe1980/vecmem/blobstore"
	"github.com/hupe1980/vecmem/codec"
	"github.com/hupe1980/vecmem/model"
	"github.com/hupe1980/vecmem/resource"
)

func sampleSnapshot(n int) *backend.Snapshot {
	snap := &backend.Snapshot{
		Type:   "flat",
		Key:    "notes",
		UserID: "u1",
		Config: map[string]any{"metric": "cosine"},
	}
	for i := 0; i < n; i++ {
		snap.Records = append(snap.Records, model.Record{
			ID:       "rec-" + strings.Repeat("x", i%5),
			Vector:   []float32{float32(i), 0.5, -1},
			Text:     "the quick brown fox jumps over the lazy dog",
			Metadata: map[string]any{"topic": "animals", "n": int64(i)},
		})
	}
	return snap
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	local, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	stores := map[string]blobstore.Store{
		"memory": blobstore.NewMemoryStore(),
		"local":  local,
	}

	for storeName, store := range stores {
		for _, c := range []Compression{None, Zstd, LZ4} {
			t.Run(storeName+"/"+c.String(), func(t *testing.T) {
				ctx := context.Background()
				want := sampleSnapshot(50)

				err := Save(ctx, store, "snap-"+c.String(), want, func(o *Options) {
					o.Compression = c
				})
				require.NoError(t, err)

				var got backend.Snapshot
				info, err := Load(ctx, store, "snap-"+c.String(), &got)
				require.NoError(t, err)

				assert.Equal(t, c, info.Compression)
				assert.Equal(t, "json", info.Codec)
				assert.Equal(t, uint8(Version), info.Version)
				assert.Equal(t, want.Key, got.Key)
				assert.Equal(t, want.UserID, got.UserID)
				require.Len(t, got.Records, len(want.Records))
				assert.Equal(t, want.Records[7].Vector, got.Records[7].Vector)
				assert.Equal(t, want.Records[7].Text, got.Records[7].Text)

				if c != None {
					assert.Less(t, info.StoredSize, info.RawSize)
				}
			})
		}
	}
}

func TestEncode_IncompressibleFallsBackToNone(t *testing.T) {
	data, err := Encode("x", func(o *Options) { o.Compression = Zstd })
	require.NoError(t, err)

	var got string
	info, err := Decode(data, &got)
	require.NoError(t, err)
	assert.Equal(t, None, info.Compression)
	assert.Equal(t, "x", got)
	assert.Equal(t, 1.0, info.Ratio())
}

func TestDecode_Corruption(t *testing.T) {
	valid, err := Encode(sampleSnapshot(10))
	require.NoError(t, err)

	t.Run("body", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[len(data)-1] ^= 0xFF
		_, err := Decode(data, &backend.Snapshot{})
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("header", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[5] = byte(LZ4) // compression id is covered by the checksum
		_, err := Decode(data, &backend.Snapshot{})
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("magic", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[0] = 'X'
		_, err := Decode(data, &backend.Snapshot{})
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("version", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[4] = Version + 1
		_, err := Decode(data, &backend.Snapshot{})
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		for _, n := range []int{0, 3, 10, len(valid) - 1} {
			_, err := Decode(valid[:n], &backend.Snapshot{})
			assert.ErrorIs(t, err, ErrTruncated, "length %d", n)
		}
	})
}

type renamedCodec struct{ codec.JSON }

func (renamedCodec) Name() string { return "custom" }

func TestDecode_UnknownCodec(t *testing.T) {
	data, err := Encode(sampleSnapshot(2), func(o *Options) { o.Codec = renamedCodec{} })
	require.NoError(t, err)

	_, err = Decode(data, &backend.Snapshot{})
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(context.Background(), blobstore.NewMemoryStore(), "missing", &backend.Snapshot{})
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, Save(ctx, store, "snap", sampleSnapshot(20), func(o *Options) { o.Compression = LZ4 }))

	info, err := Inspect(ctx, store, "snap")
	require.NoError(t, err)
	assert.Equal(t, LZ4, info.Compression)
	assert.NotZero(t, info.Checksum)
	assert.Less(t, info.Ratio(), 1.0)
}

func TestSaveLoad_ResourceController(t *testing.T) {
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})
	store := blobstore.NewMemoryStore()
	withRC := func(o *Options) { o.Resource = rc }

	require.NoError(t, Save(context.Background(), store, "snap", sampleSnapshot(5), withRC))

	var got backend.Snapshot
	_, err := Load(context.Background(), store, "snap", &got, withRC)
	require.NoError(t, err)
	assert.Len(t, got.Records, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Save(ctx, store, "snap", sampleSnapshot(5), withRC)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{"none": None, "ZSTD": Zstd, "lz4": LZ4, "": None} {
		got, err := ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}
