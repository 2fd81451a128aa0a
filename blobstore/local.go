package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	vfs "github.com/hupe1980/vecmem/internal/fs"
)

const (
	lockName   = ".lock"
	tempPrefix = ".tmp-"
)

// LocalOptions contains configuration options for the local store.
type LocalOptions struct {
	// FileSystem performs the file operations. Defaults to the os package.
	FileSystem vfs.FileSystem
}

// LocalStore implements Store on a local directory. Writes go to a
// temporary file that is synced and renamed into place while an advisory
// lock on the directory is held, so concurrent processes never observe a
// partial blob.
type LocalStore struct {
	root string
	fs   vfs.FileSystem
}

// Compile-time check to ensure LocalStore satisfies the Store interface.
var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a LocalStore rooted at root, creating the directory if needed.
func NewLocalStore(root string, optFns ...func(o *LocalOptions)) (*LocalStore, error) {
	opts := LocalOptions{FileSystem: vfs.Default}

	for _, fn := range optFns {
		fn(&opts)
	}

	if root == "" {
		return nil, errors.New("blobstore: root must not be empty")
	}
	if err := opts.FileSystem.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}

	return &LocalStore{root: root, fs: opts.FileSystem}, nil
}

// Root returns the store directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(name string) (string, error) {
	if name == "" || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("blobstore: invalid blob name %q", name)
	}
	base := filepath.Base(name)
	if base == lockName || strings.HasPrefix(base, tempPrefix) {
		return "", fmt.Errorf("blobstore: reserved blob name %q", name)
	}
	return filepath.Join(s.root, filepath.FromSlash(name)), nil
}

// Put writes a blob atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.path(name)
	if err != nil {
		return err
	}

	unlock, err := lockDir(filepath.Join(s.root, lockName))
	if err != nil {
		return fmt.Errorf("blobstore: lock: %w", err)
	}
	defer unlock()

	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := s.fs.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = s.fs.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return s.fs.Rename(tmp, path)
}

// Get reads a blob.
func (s *LocalStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := s.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return data, nil
}

// Delete removes a blob.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.path(name)
	if err != nil {
		return err
	}

	unlock, err := lockDir(filepath.Join(s.root, lockName))
	if err != nil {
		return fmt.Errorf("blobstore: lock: %w", err)
	}
	defer unlock()

	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns all blob names under the root matching prefix.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var names []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		if base == lockName || strings.HasPrefix(base, tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	sort.Strings(names)
	return names, nil
}
