package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fclairamb/ntlsync/internal/apperrors"
	"github.com/fclairamb/ntlsync/internal/store"
	"github.com/fclairamb/ntlsync/internal/tree"
)

const (
	// StateDir holds the metadata of a download directory.
	StateDir  = ".ntu_learn_downloader"
	stateFile = "download_dir.json"
)

// StatePath is the location of the persisted tree, relative to the download directory.
var StatePath = filepath.Join(StateDir, stateFile)

// Storage owns the tree persisted by the last run in a download directory.
type Storage struct {
	store   store.Store
	history *store.History
	merger  *tree.Merger
	records []*tree.Record
	logger  *slog.Logger
}

// StorageOption configures Storage.
type StorageOption func(*Storage)

// WithStorageLogger sets a custom logger.
func WithStorageLogger(l *slog.Logger) StorageOption {
	return func(s *Storage) {
		s.logger = l
	}
}

// WithHistory commits the state file to h after every save.
func WithHistory(h *store.History) StorageOption {
	return func(s *Storage) {
		s.history = h
	}
}

// WithMerger sets the merger used to reconcile trees.
func WithMerger(m *tree.Merger) StorageOption {
	return func(s *Storage) {
		s.merger = m
	}
}

// NewStorage creates an empty storage on st. Call Load to read the persisted tree.
func NewStorage(st store.Store, opts ...StorageOption) *Storage {
	s := &Storage{
		store:   st,
		merger:  tree.NewMerger(),
		records: []*tree.Record{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenStorage opens the download directory dir and loads its persisted tree.
func OpenStorage(ctx context.Context, dir string, opts ...StorageOption) (*Storage, error) {
	st, err := store.NewLocalStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open download dir: %w", err)
	}

	s := NewStorage(st, opts...)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the persisted tree. A missing state file loads as an empty tree.
func (s *Storage) Load(ctx context.Context) error {
	if err := s.store.Mkdir(ctx, StateDir); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	exists, err := s.store.Exists(ctx, StatePath)
	if err != nil {
		return fmt.Errorf("check state file: %w", err)
	}
	if !exists {
		s.logger.DebugContext(ctx, "no persisted tree, starting fresh", "path", StatePath)
		s.records = []*tree.Record{}
		return nil
	}

	data, err := s.store.Read(ctx, StatePath)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}

	var records []*tree.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: parse %s: %w", apperrors.ErrCorruptedState, StatePath, err)
	}
	for i, r := range records {
		if r == nil {
			return fmt.Errorf("%w: null record at index %d", apperrors.ErrCorruptedState, i)
		}
	}
	if records == nil {
		records = []*tree.Record{}
	}

	s.records = records
	s.logger.DebugContext(ctx, "loaded persisted tree", "path", StatePath, "roots", len(records))
	return nil
}

// Tree returns the last loaded or saved tree. Callers must not mutate it.
func (s *Storage) Tree() []*tree.Record {
	return s.records
}

// Merge carries resolved attributes from the persisted tree onto incoming.
func (s *Storage) Merge(incoming []*tree.Record) (*tree.MergeStats, error) {
	stats, err := s.merger.Merge(s.records, incoming)
	if err != nil {
		return nil, fmt.Errorf("merge with persisted tree: %w", err)
	}
	return stats, nil
}

// Save recomputes every folder mapping and replaces the state file with records.
// records becomes the persisted tree.
func (s *Storage) Save(ctx context.Context, records []*tree.Record) error {
	if records == nil {
		records = []*tree.Record{}
	}
	s.merger.Index(records)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := s.store.Write(ctx, StatePath, data); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	s.records = records
	s.logger.DebugContext(ctx, "saved tree", "path", StatePath, "roots", len(records), "size", len(data))

	if s.history != nil {
		message := "sync " + time.Now().UTC().Format(time.RFC3339)
		if _, err := s.history.Commit(ctx, message, stateFile); err != nil {
			s.logger.WarnContext(ctx, "failed to record state history", "error", err)
		}
	}

	return nil
}
