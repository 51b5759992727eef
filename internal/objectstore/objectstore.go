package objectstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docbrain/internal/util"
)

// Store is a local-disk object store. Keys are slash-separated paths relative
// to the root, e.g. "documents/<id>/original.pdf". Writes are atomic via
// temp-file rename so readers never observe partial objects.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := util.EnsureDir(root); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "obj-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store object %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("object %s: %w", key, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Delete(key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	// Best-effort cleanup of the per-document directory.
	_ = os.Remove(filepath.Dir(path))
	return nil
}

// Check verifies the store root is still an accessible directory.
func (s *Store) Check() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("object store root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("object store root %s is not a directory", s.root)
	}
	return nil
}

func (s *Store) resolve(key string) (string, error) {
	key = strings.TrimPrefix(filepath.ToSlash(key), "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// ObjectKey builds the canonical storage key for an uploaded document.
func ObjectKey(documentID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	return "documents/" + documentID + "/original" + ext
}
