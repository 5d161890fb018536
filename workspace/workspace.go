// Package workspace provides the persistent text store commands operate on:
// a key-to-text interface and a local filesystem implementation jailed to a
// root directory.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store is the persistent file/object surface consumed by commands and front
// ends. Keys are slash-separated relative paths; the store imposes no format
// on values.
type Store interface {
	Read(key string) (string, error)
	Write(key, text string) error
	Append(key, text string) error
	List(scope string) ([]string, error)
	Delete(key string) error
}

// LocalStore is a Store rooted at a directory. Every key resolves inside the
// root; traversal outside it is rejected.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed and returns a store
// jailed to it.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute workspace root directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if path != s.root && !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q resolves outside the workspace", key)
	}
	return path, nil
}

func (s *LocalStore) Read(key string) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *LocalStore) Write(key, text string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func (s *LocalStore) Append(key, text string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(text)
	return err
}

// List returns the keys under scope ("" for the whole workspace), relative to
// the root, in walk order.
func (s *LocalStore) List(scope string) ([]string, error) {
	base := s.root
	if scope != "" {
		path, err := s.resolve(scope)
		if err != nil {
			return nil, err
		}
		base = path
	}

	var keys []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return keys, err
}

func (s *LocalStore) Delete(key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	return os.Remove(path)
}
