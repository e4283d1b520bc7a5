// Package filestorage keeps torrent data in regular files under a directory.
package filestorage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/drizzlebt/drizzle/internal/storage"
)

const (
	dirMode  = 0750
	fileMode = 0640
)

// FileStorage opens files under a destination directory.
type FileStorage struct {
	dest string
}

var _ storage.Storage = (*FileStorage)(nil)

// New returns a FileStorage rooted at dest.
func New(dest string) (*FileStorage, error) {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	return &FileStorage{dest: abs}, nil
}

// Dest is the absolute path of the destination directory.
func (s *FileStorage) Dest() string {
	return s.dest
}

// Open implements storage.Storage.
// The name comes from the torrent, so it is cleaned to stay inside the destination directory.
func (s *FileStorage) Open(name string, size int64) (storage.File, bool, error) {
	path := filepath.Join(s.dest, filepath.Clean("/"+name))
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, false, err
	}

	exists := true
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		exists = false
	} else if err != nil {
		return nil, false, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, fileMode) // nolint: gosec
	if err != nil {
		return nil, false, err
	}
	if err = resize(f, size); err != nil {
		_ = f.Close()
		return nil, false, err
	}
	// Pieces are written and verified out of order.
	if err = adviseRandomAccess(f); err != nil {
		_ = f.Close()
		return nil, false, err
	}
	return f, exists, nil
}

func resize(f *os.File, size int64) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() == size {
		return nil
	}
	return f.Truncate(size)
}
