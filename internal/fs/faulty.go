package fs

import (
	"os"
	"sync"
)

// Op names an operation that can fail on demand.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpSync
	OpClose
	OpRename
	OpRemove
)

// Faulty wraps a FileSystem and fails selected operations.
type Faulty struct {
	FS FileSystem

	mu     sync.Mutex
	faults map[Op]error
}

// NewFaulty wraps fsys, or Default when nil.
func NewFaulty(fsys FileSystem) *Faulty {
	if fsys == nil {
		fsys = Default
	}
	return &Faulty{FS: fsys, faults: make(map[Op]error)}
}

// Inject makes op fail with err. A nil err clears the fault.
func (f *Faulty) Inject(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.faults, op)
		return
	}
	f.faults[op] = err
}

func (f *Faulty) fault(op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faults[op]
}

func (f *Faulty) CreateTemp(dir, pattern string) (File, error) {
	if err := f.fault(OpCreate); err != nil {
		return nil, err
	}
	file, err := f.FS.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f}, nil
}

func (f *Faulty) ReadFile(name string) ([]byte, error) { return f.FS.ReadFile(name) }

func (f *Faulty) Rename(oldpath, newpath string) error {
	if err := f.fault(OpRename); err != nil {
		return err
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *Faulty) Remove(name string) error {
	if err := f.fault(OpRemove); err != nil {
		return err
	}
	return f.FS.Remove(name)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

type faultyFile struct {
	File
	fs *Faulty
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.fs.fault(OpWrite); err != nil {
		return 0, err
	}
	return ff.File.Write(p)
}

func (ff *faultyFile) Sync() error {
	if err := ff.fs.fault(OpSync); err != nil {
		return err
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if err := ff.fs.fault(OpClose); err != nil {
		_ = ff.File.Close()
		return err
	}
	return ff.File.Close()
}
