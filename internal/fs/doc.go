// Package fs abstracts the file operations of on-disk stores so tests can
// inject I/O failures.
//
// Production code uses Default, which forwards to the os package:
//
//	f, err := fs.Default.CreateTemp(dir, ".tmp-*")
//
// Tests wrap it with Faulty:
//
//	ffs := fs.NewFaulty(nil)
//	ffs.Inject(fs.OpSync, errors.New("disk gone"))
//
// Operations take no context. Local syscalls cannot be interrupted.
package fs
