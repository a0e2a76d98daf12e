package credstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File stores the credential as the sole content of a file readable only by
// the owner. Saves go through a temp file and a rename so a crash never
// leaves a truncated credential behind.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a File store at path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Load(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credstore: read %s: %w", f.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *File) Save(_ context.Context, credential string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credstore: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("credstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("credstore: chmod temp file: %w", err)
	}
	if _, err := tmp.WriteString(credential + "\n"); err != nil {
		return fmt.Errorf("credstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("credstore: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("credstore: rename: %w", err)
	}
	return nil
}

var _ Store = (*File)(nil)
