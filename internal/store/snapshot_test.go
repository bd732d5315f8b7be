package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

func TestSnapshot_SaveLoad_KeepsModelName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors", "index.gob")
	src, err := NewFlatL2Index(testVectors())
	require.NoError(t, err)
	src.WithModelName("all-mpnet-base-v2")

	require.NoError(t, SaveSnapshot(path, src))
	got, err := LoadSnapshot(path)
	require.NoError(t, err)

	assert.Equal(t, "all-mpnet-base-v2", got.ModelName())
	assert.Equal(t, src.Dim(), got.Dim())
	assert.Equal(t, src.Vector(3), got.Vector(3))
	_, statErr := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestSnapshot_SaveFailsWhileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")
	holder := NewFileLock(path)
	ok, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer holder.Unlock()

	src, err := NewFlatL2Index(testVectors())
	require.NoError(t, err)

	err = SaveSnapshot(path, src)
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeIndexLocked))
}

func TestLoadSnapshot_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSnapshot(filepath.Join(dir, "missing.gob"))
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeFileNotFound))

	garbage := filepath.Join(dir, "garbage.gob")
	require.NoError(t, os.WriteFile(garbage, []byte("not gob"), 0644))
	_, err = LoadSnapshot(garbage)
	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeCorruptIndex))
}

func TestFileLock_UnlockIsIdempotent(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "a"))
	assert.NoError(t, lock.Unlock())

	require.NoError(t, lock.Lock())
	assert.NoError(t, lock.Unlock())
	assert.NoError(t, lock.Unlock())
	assert.Equal(t, filepath.Join(filepath.Dir(lock.Path()), "a.lock"), lock.Path())
}
