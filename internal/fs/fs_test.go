package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "a", "b")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	f, err := lfs.CreateTemp(dir, ".tmp-*")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	target := filepath.Join(dir, "hello.txt")
	require.NoError(t, lfs.Rename(f.Name(), target))

	data, err := lfs.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, lfs.Remove(target))
	_, err = lfs.ReadFile(target)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFaulty(t *testing.T) {
	tmp := t.TempDir()
	boom := errors.New("injected")
	ffs := NewFaulty(nil)

	ffs.Inject(OpCreate, boom)
	_, err := ffs.CreateTemp(tmp, "x-*")
	require.ErrorIs(t, err, boom)
	ffs.Inject(OpCreate, nil)

	f, err := ffs.CreateTemp(tmp, "x-*")
	require.NoError(t, err)

	ffs.Inject(OpWrite, boom)
	_, err = f.Write([]byte("data"))
	require.ErrorIs(t, err, boom)
	ffs.Inject(OpWrite, nil)

	_, err = f.Write([]byte("data"))
	require.NoError(t, err)

	ffs.Inject(OpSync, boom)
	require.ErrorIs(t, f.Sync(), boom)

	ffs.Inject(OpClose, boom)
	require.ErrorIs(t, f.Close(), boom)

	ffs.Inject(OpRename, boom)
	require.ErrorIs(t, ffs.Rename(f.Name(), filepath.Join(tmp, "y")), boom)

	ffs.Inject(OpRemove, boom)
	require.ErrorIs(t, ffs.Remove(f.Name()), boom)
	ffs.Inject(OpRemove, nil)
	require.NoError(t, ffs.Remove(f.Name()))
}
