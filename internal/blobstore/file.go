package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File persists each key as a JSON file under a data directory. This is the
// default backend for a single-device deployment.
type File struct {
	dir string
	mu  sync.RWMutex
}

// NewFile creates the data directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	// Keys are internal collection names, but sanitize separators anyway.
	name := strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(f.dir, name+".json")
}

// Get reads the blob for key, or nil when the file does not exist.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// Set writes value atomically via a temp file rename.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dst := f.path(key)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// Delete removes the file for key if present.
func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
