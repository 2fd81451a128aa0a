//go:build !unix

package blobstore

import "sync"

var dirLock sync.Mutex

// lockDir only serializes writers of this process on platforms without flock.
func lockDir(string) (func(), error) {
	dirLock.Lock()
	return dirLock.Unlock, nil
}
