// Package store provides abstractions for file storage operations.
package store

import (
	"context"
	"io"
)

// Store abstracts read/write file operations on paths relative to a root directory.
type Store interface {
	// Read operations
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)

	// Write operations. Writes replace the whole file: readers never observe partial content.
	Write(ctx context.Context, path string, content []byte) error
	WriteStream(ctx context.Context, path string, reader io.Reader) (int64, error)
	Touch(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string) error
}
