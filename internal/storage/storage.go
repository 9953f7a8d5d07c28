// Package storage persists frame snapshots, either on the local
// filesystem or in a Google Cloud Storage bucket.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage is the snapshot persistence interface.
type Storage interface {
	// Write stores data under a relative path.
	Write(path string, data []byte) error

	// Read returns the data stored under a relative path.
	Read(path string) ([]byte, error)

	// Exists reports whether a path has been written.
	Exists(path string) (bool, error)

	// List returns the file names directly under a directory.
	List(dir string) ([]string, error)

	// Delete removes a path. Deleting a missing path is not an error.
	Delete(path string) error
}

// contentType maps a snapshot path to its MIME type.
func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// LocalStorage stores snapshots on the local filesystem.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Write writes data to a file, creating parent directories as needed.
func (s *LocalStorage) Write(path string, data []byte) error {
	fullPath := filepath.Join(s.baseDir, path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Read reads data from a file.
func (s *LocalStorage) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Exists checks if a file exists.
func (s *LocalStorage) Exists(path string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.baseDir, path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// List lists files in a directory.
func (s *LocalStorage) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// Delete deletes a file.
func (s *LocalStorage) Delete(path string) error {
	if err := os.Remove(filepath.Join(s.baseDir, path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
