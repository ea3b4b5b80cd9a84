// Package media persists message attachments outside the structured store
// and resolves them into stable references.
package media

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store persists raw media bytes under a name and returns a retrievable
// reference. The directory-backed implementation below is the default; an
// object store satisfies the same contract.
type Store interface {
	Put(name string, data []byte) (ref string, err error)
}

// DirStore writes blobs into a flat directory; the reference is the
// absolute file path.
type DirStore struct {
	root string
}

// NewDirStore creates the blob directory if needed.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DirStore{root: root}, nil
}

// Put writes data to root/name and returns the resulting path.
func (s *DirStore) Put(name string, data []byte) (string, error) {
	path := filepath.Join(s.root, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write blob %s: %w", name, err)
	}
	return path, nil
}
