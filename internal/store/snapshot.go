package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

// snapshotVersion is bumped whenever the gob layout changes.
const snapshotVersion = 1

// snapshot is the gob-encoded form of a FlatL2Index.
type snapshot struct {
	Version   int
	ModelName string
	Dim       int
	Rows      []float32
}

// SaveSnapshot writes x to path atomically (temp file + rename) while
// holding the artifact's FileLock. It fails fast if another process holds it.
func SaveSnapshot(path string, x *FlatL2Index) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := NewFileLock(path)
	ok, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return lerrors.New(lerrors.ErrCodeIndexLocked, "vector snapshot is being written by another process", nil).
			WithDetail("path", path)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("snapshot_unlock_failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}()

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}

	w := bufio.NewWriter(file)
	snap := snapshot{Version: snapshotVersion, ModelName: x.modelName, Dim: x.dim, Rows: x.data}
	if err := gob.NewEncoder(w).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads an index written by SaveSnapshot, including its model name.
func LoadSnapshot(path string) (*FlatL2Index, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lerrors.New(lerrors.ErrCodeFileNotFound, "vector snapshot not found: "+path, err)
		}
		return nil, lerrors.New(lerrors.ErrCodeFilePermission, "cannot open vector snapshot: "+path, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("snapshot_close_failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}()

	var snap snapshot
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&snap); err != nil {
		return nil, lerrors.New(lerrors.ErrCodeCorruptIndex, "decode vector snapshot", err).WithDetail("path", path)
	}
	if snap.Version != snapshotVersion {
		return nil, lerrors.New(lerrors.ErrCodeCorruptIndex,
			fmt.Sprintf("unsupported snapshot version %d", snap.Version), nil).WithDetail("path", path)
	}

	idx, err := NewFlatL2IndexFromRows(snap.Dim, snap.Rows)
	if err != nil {
		return nil, err
	}
	return idx.WithModelName(snap.ModelName), nil
}
