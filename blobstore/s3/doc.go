// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", func(o *s3.Options) {
//	    o.Prefix = "vecmem/"
//	    o.Region = "us-east-1"
//	})
//
// Blobs are written with the multipart uploader from feature/s3/manager, so
// large snapshots are split into parts and uploaded concurrently. Every upload
// carries a CRC32C checksum that S3 validates.
package s3
