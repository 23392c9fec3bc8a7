package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalBlobs keeps blobs as files under a base directory.
type LocalBlobs struct {
	baseDir string
}

// NewLocalBlobs creates baseDir if needed.
func NewLocalBlobs(baseDir string) (*LocalBlobs, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create base dir: %w", err)
	}
	return &LocalBlobs{baseDir: baseDir}, nil
}

func (b *LocalBlobs) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(key)), nil
}

// Put writes to a temp file in the target directory and renames it into
// place, so readers never see a partial blob.
func (b *LocalBlobs) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	full, err := b.path(key)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("storage: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return 0, fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("storage: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return 0, fmt.Errorf("storage: rename %s: %w", key, err)
	}
	return n, nil
}

func (b *LocalBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	full, err := b.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", key, err)
	}
	return f, nil
}

func (b *LocalBlobs) Delete(_ context.Context, key string) error {
	full, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}
