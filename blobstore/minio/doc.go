// Package minio provides a blobstore.Store backed by MinIO or any other
// S3-compatible server (Ceph, Garage, SeaweedFS).
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "vecmem/")
//	err = snapshot.Save(ctx, store, "notes", snap)
//
// Dial is a shorthand that builds the client from static credentials and
// creates the bucket when it is missing.
package minio
