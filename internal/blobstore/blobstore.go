package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrNotFound is returned when a reference does not resolve, typically
// because the external reaper already deleted the payload. Callers treat
// it like a cache miss, not a fault.
var ErrNotFound = errors.New("blob not found")

// Store is the best-effort storage oversized tool results are offloaded
// to. The gateway degrades to inline truncation when writes fail, and the
// sandboxed code-execution tool reads payloads back through the same
// references.
type Store interface {
	Write(ctx context.Context, data []byte) (ref string, err error)
	Read(ctx context.Context, ref string) ([]byte, error)
}

// FileStore keeps payloads as uuid-named files under one directory. The
// filesystem is abstracted through afero so tests run against a memfs.
type FileStore struct {
	fs  afero.Fs
	dir string
}

// NewFileStore creates a store rooted at dir on the OS filesystem.
func NewFileStore(dir string) (*FileStore, error) {
	return NewFileStoreFS(afero.NewOsFs(), dir)
}

// NewFileStoreFS creates a store rooted at dir on the given filesystem.
func NewFileStoreFS(fs afero.Fs, dir string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create blob directory %s: %w", dir, err)
	}
	return &FileStore{fs: fs, dir: dir}, nil
}

func (s *FileStore) Write(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := uuid.New().String()
	if err := afero.WriteFile(s.fs, s.path(ref), data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	return ref, nil
}

func (s *FileStore) Read(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// References are generated uuids; anything else is rejected before it
	// can traverse the filesystem.
	if _, err := uuid.Parse(ref); err != nil {
		return nil, fmt.Errorf("invalid blob reference %q", ref)
	}
	data, err := afero.ReadFile(s.fs, s.path(ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", ref, err)
	}
	return data, nil
}

func (s *FileStore) path(ref string) string {
	return filepath.Join(s.dir, ref+".blob")
}
