package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// File and directory permissions.
	dirPerm  = 0750 // Directory permissions: rwxr-x---
	filePerm = 0600 // File permissions: rw-------

	tempPattern = ".tmp-*"
)

// LocalStore implements Store on the local filesystem.
type LocalStore struct {
	rootPath string
	logger   *slog.Logger
}

// LocalStoreOption configures LocalStore.
type LocalStoreOption func(*LocalStore)

// WithLogger sets a custom logger for the store.
func WithLogger(l *slog.Logger) LocalStoreOption {
	return func(s *LocalStore) {
		s.logger = l
	}
}

// NewLocalStore creates a new local store at the given path, creating the directory if needed.
func NewLocalStore(path string, opts ...LocalStoreOption) (*LocalStore, error) {
	store := &LocalStore{
		rootPath: path,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(store)
	}

	if err := os.MkdirAll(path, dirPerm); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	return store, nil
}

// Root returns the directory the store is rooted at.
func (s *LocalStore) Root() string {
	return s.rootPath
}

// Read reads a file from the store.
func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	s.logger.DebugContext(ctx, "reading file", "path", path)

	fullPath := filepath.Join(s.rootPath, path)
	data, err := os.ReadFile(fullPath) //nolint:gosec // path is application controlled
	if err != nil {
		s.logger.DebugContext(ctx, "read file failed", "path", path, "error", err)
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	s.logger.DebugContext(ctx, "read file complete", "path", path, "size", len(data))
	return data, nil
}

// Exists checks if a file exists.
func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	fullPath := filepath.Join(s.rootPath, path)
	_, err := os.Stat(fullPath)
	if err == nil {
		s.logger.DebugContext(ctx, "file exists", "path", path)
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	s.logger.DebugContext(ctx, "exists check failed", "path", path, "error", err)
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// Write writes content to a temporary file next to path and renames it into place.
func (s *LocalStore) Write(ctx context.Context, path string, content []byte) error {
	s.logger.DebugContext(ctx, "writing file", "path", path, "size", len(content))

	_, err := s.replace(path, func(f *os.File) (int64, error) {
		n, err := f.Write(content)
		return int64(n), err
	})
	if err != nil {
		s.logger.DebugContext(ctx, "write file failed", "path", path, "error", err)
		return err
	}

	s.logger.DebugContext(ctx, "write file complete", "path", path)
	return nil
}

// WriteStream copies reader into path the same way Write does and returns the bytes written.
// A failed or cancelled copy leaves no file behind.
func (s *LocalStore) WriteStream(ctx context.Context, path string, reader io.Reader) (int64, error) {
	s.logger.DebugContext(ctx, "writing stream", "path", path)

	written, err := s.replace(path, func(f *os.File) (int64, error) {
		return io.Copy(f, &ctxReader{ctx: ctx, r: reader})
	})
	if err != nil {
		s.logger.DebugContext(ctx, "write stream failed", "path", path, "error", err)
		return written, err
	}

	s.logger.DebugContext(ctx, "write stream complete", "path", path, "size", written)
	return written, nil
}

// Touch creates an empty file unless one already exists.
func (s *LocalStore) Touch(ctx context.Context, path string) error {
	fullPath := filepath.Join(s.rootPath, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), dirPerm); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY, filePerm) //nolint:gosec // path is application controlled
	if err != nil {
		return fmt.Errorf("touch %s: %w", path, err)
	}

	s.logger.DebugContext(ctx, "touched file", "path", path)
	return f.Close()
}

// Mkdir creates a directory.
func (s *LocalStore) Mkdir(ctx context.Context, path string) error {
	s.logger.DebugContext(ctx, "creating directory", "path", path)

	fullPath := filepath.Join(s.rootPath, path)
	if err := os.MkdirAll(fullPath, dirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// replace runs fill on a temporary file in path's directory, then renames it over path.
func (s *LocalStore) replace(path string, fill func(f *os.File) (int64, error)) (int64, error) {
	fullPath := filepath.Join(s.rootPath, path)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return 0, fmt.Errorf("create parent dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	written, err := fill(tmp)
	if err != nil {
		return written, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return written, fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		return written, fmt.Errorf("rename %s: %w", path, err)
	}

	committed = true
	return written, nil
}

// ctxReader stops a copy once its context is done.
type ctxReader struct {
	ctx context.Context //nolint:containedctx // scoped to a single copy
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
