// Package blobstore provides durable named blobs for vecmem snapshots.
//
// Store is the interface every backend implements. Implementations must be
// safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests
//   - LocalStore: local filesystem with atomic writes and advisory locking
//   - s3.Store: Amazon S3 with multipart uploads
//   - minio.Store: MinIO and other S3-compatible servers
//   - dynamodb.Store: small blobs as DynamoDB items
//
// # Custom Implementations
//
//	type Store interface {
//	    Put(ctx, name, data) error
//	    Get(ctx, name) ([]byte, error)
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
