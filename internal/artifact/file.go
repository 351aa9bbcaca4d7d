package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps artifacts as files in a single directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewFileStore: create dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file path backing a slot.
func (s *FileStore) Path(slot Slot) string {
	return filepath.Join(s.dir, slot.FileName())
}

func (s *FileStore) Read(ctx context.Context, slot Slot) ([]byte, error) {
	data, err := os.ReadFile(s.Path(slot))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("FileStore.Read: %s: %w", slot, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMissingArtifact, slot)
	}
	return data, nil
}

// Write goes through a temp file in the same directory and a rename, so a
// reader never observes a partially written artifact.
func (s *FileStore) Write(ctx context.Context, slot Slot, content []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+slot.FileName()+".*")
	if err != nil {
		return fmt.Errorf("FileStore.Write: %s: create temp: %w", slot, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("FileStore.Write: %s: write: %w", slot, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("FileStore.Write: %s: sync: %w", slot, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("FileStore.Write: %s: close: %w", slot, err)
	}
	if err := os.Rename(tmpName, s.Path(slot)); err != nil {
		return fmt.Errorf("FileStore.Write: %s: rename: %w", slot, err)
	}
	return nil
}

func (s *FileStore) Exists(ctx context.Context, slot Slot) (bool, error) {
	info, err := os.Stat(s.Path(slot))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("FileStore.Exists: %s: %w", slot, err)
	}
	return info.Size() > 0, nil
}

var _ Store = (*FileStore)(nil)
