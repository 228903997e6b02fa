package retained

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// FileStore keeps the block msgpack-encoded in a single file. Saves go through
// a temporary file and a rename so a crash never leaves a torn block.
type FileStore struct {
	path   string
	closed bool
}

// NewFileStore returns a FileStore backed by path. The parent directory is
// created if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create retained store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Load() (Counters, bool, error) {
	if f.closed {
		return Counters{}, false, ErrClosed
	}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Counters{}, false, nil
	}
	if err != nil {
		return Counters{}, false, fmt.Errorf("read %s: %w", f.path, err)
	}

	var c Counters
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return Counters{}, false, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return c, true, nil
}

func (f *FileStore) Save(c Counters) error {
	if f.closed {
		return ErrClosed
	}

	data, err := msgpack.Marshal(&c)
	if err != nil {
		return fmt.Errorf("encode retained counters: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStore) Reset() error {
	if f.closed {
		return ErrClosed
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStore) Close() error {
	f.closed = true
	return nil
}
