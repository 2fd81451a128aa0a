// Package snapshot persists exported collections to a blobstore.Store.
//
// A snapshot file is a small self-describing header followed by the encoded
// payload:
//
//	magic "VMSN" | version u8 | compression u8 | codec len u8 | codec name
//	raw size u64 | stored size u64 | CRC32C(stored body) u32 | body
//
// All integers are little endian. The payload is encoded with a codec.Codec
// (JSON by default) and compressed with zstd (default), lz4 or not at all.
// When a codec does not shrink the payload the body is stored uncompressed
// and the header says so.
//
//	snap, _ := coll.Export(ctx)
//	err := snapshot.Save(ctx, store, "notes", snap)
//
//	var back backend.Snapshot
//	err = snapshot.Load(ctx, store, "notes", &back)
package snapshot
