package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps blobs as files under a root directory
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Put writes to a temp file and renames it into place
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	dst := filepath.Join(s.root, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("write blob: got %d bytes, expected %d", written, size)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

// Delete removes the file; a missing file is not an error
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// Path returns the on-disk location of key
func (s *LocalStore) Path(key string) string {
	return filepath.Join(s.root, key)
}
