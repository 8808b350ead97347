package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// BlobInfo describes a stored blob.
type BlobInfo struct {
	Key       string
	SizeBytes int64
	StoredAt  time.Time
}

// LocalBlobStore persists binary blobs on disk keyed by a storage key.
type LocalBlobStore struct {
	baseDir string
}

// NewLocalBlobStore ensures the base directory exists and returns a handle.
func NewLocalBlobStore(baseDir string) (*LocalBlobStore, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalBlobStore{baseDir: baseDir}, nil
}

// Save writes the given bytes under the provided key.
func (s *LocalBlobStore) Save(key string, data []byte) (string, error) {
	path := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return key, nil
}

// SaveStream copies from reader into the blob addressed by key.
func (s *LocalBlobStore) SaveStream(key string, r io.Reader) (string, error) {
	path := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare blob directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write blob stream: %w", err)
	}
	return key, nil
}

// Open returns a read-only handle for the stored blob.
func (s *LocalBlobStore) Open(key string) (*os.File, error) {
	file, err := os.Open(s.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

// Stat reports size and storage time for a blob. os.IsNotExist is preserved
// through the wrapped error so callers can classify missing blobs.
func (s *LocalBlobStore) Stat(key string) (*BlobInfo, error) {
	info, err := os.Stat(s.resolve(key))
	if err != nil {
		return nil, err
	}
	return &BlobInfo{Key: key, SizeBytes: info.Size(), StoredAt: info.ModTime()}, nil
}

// Exists reports whether the blob is present.
func (s *LocalBlobStore) Exists(key string) bool {
	_, err := os.Stat(s.resolve(key))
	return err == nil
}

// Delete removes a stored blob if present.
func (s *LocalBlobStore) Delete(key string) error {
	if err := os.Remove(s.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// List walks the store and returns every blob key. Used by cleanup sweeps
// and tests.
func (s *LocalBlobStore) List() ([]string, error) {
	var keys []string
	err := filepath.Walk(s.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	return keys, nil
}

func (s *LocalBlobStore) resolve(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.baseDir, key)
}
