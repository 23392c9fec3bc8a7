// Package storage holds attachment bytes. Chapters only keep the key.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrBlobNotFound = errors.New("storage: blob not found")
	ErrInvalidKey   = errors.New("storage: invalid key")
)

// Blobs stores opaque byte streams under slash-separated keys.
type Blobs interface {
	// Put writes r under key, replacing any previous blob, and returns the
	// number of bytes stored.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Key builds a storage key from its parts, dropping anything that could
// escape the blob root.
func Key(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ReplaceAll(p, "\\", "/")
		p = path.Base(path.Clean("/" + p))
		if p == "/" || p == "." || p == ".." {
			continue
		}
		clean = append(clean, p)
	}
	return strings.Join(clean, "/")
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
