package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/fclairamb/ntlsync/internal/apperrors"
)

const (
	defaultAuthorName  = "ntlsync"
	defaultAuthorEmail = "ntlsync@localhost"

	shortHashLength = 8
)

// Revision is one recorded version.
type Revision struct {
	Hash    string
	Message string
	When    time.Time
}

// History keeps the successive versions of files in a local git repository.
type History struct {
	rootPath string
	repo     *git.Repository
	author   string
	email    string
	logger   *slog.Logger
}

// HistoryOption configures History.
type HistoryOption func(*History)

// WithHistoryLogger sets a custom logger.
func WithHistoryLogger(l *slog.Logger) HistoryOption {
	return func(h *History) {
		h.logger = l
	}
}

// WithAuthor sets the commit author.
func WithAuthor(name, email string) HistoryOption {
	return func(h *History) {
		h.author = name
		h.email = email
	}
}

// OpenHistory opens the git repository at path, initializing it if there is none.
func OpenHistory(path string, opts ...HistoryOption) (*History, error) {
	h := newHistory(path, opts)

	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		h.logger.Debug("initializing history repository", "path", path)
		repo, err = git.PlainInit(path, false)
		if err != nil {
			return nil, fmt.Errorf("init git repo: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open git repo: %w", err)
	}

	h.repo = repo
	return h, nil
}

// OpenExistingHistory opens the git repository at path without creating anything.
// It returns apperrors.ErrNoHistory when there is no repository.
func OpenExistingHistory(path string, opts ...HistoryOption) (*History, error) {
	h := newHistory(path, opts)

	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open %s: %w", path, apperrors.ErrNoHistory)
	}
	if err != nil {
		return nil, fmt.Errorf("open git repo: %w", err)
	}

	h.repo = repo
	return h, nil
}

func newHistory(path string, opts []HistoryOption) *History {
	h := &History{
		rootPath: path,
		author:   defaultAuthorName,
		email:    defaultAuthorEmail,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Commit stages paths (relative to the repository root) and commits them.
// It returns false when nothing changed since the last commit.
func (h *History) Commit(ctx context.Context, message string, paths ...string) (bool, error) {
	worktree, err := h.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("get worktree: %w", err)
	}

	for _, p := range paths {
		if _, err := worktree.Add(p); err != nil {
			return false, fmt.Errorf("git add %s: %w", p, err)
		}
	}

	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("get status: %w", err)
	}

	hasChanges := false
	for _, s := range status {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			hasChanges = true
			break
		}
	}
	if !hasChanges {
		h.logger.DebugContext(ctx, "nothing to commit", "path", h.rootPath)
		return false, nil
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  h.author,
			Email: h.email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	h.logger.DebugContext(ctx, "committed history", "hash", hash.String()[:shortHashLength], "message", message)
	return true, nil
}

// Revisions returns up to limit revisions, newest first. A limit of 0 means all.
func (h *History) Revisions(_ context.Context, limit int) ([]Revision, error) {
	iter, err := h.repo.Log(&git.LogOptions{})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}
	defer iter.Close()

	var revisions []Revision
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(revisions) >= limit {
			return errStopIteration
		}
		revisions = append(revisions, Revision{
			Hash:    c.Hash.String()[:shortHashLength],
			Message: c.Message,
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}

	return revisions, nil
}

var errStopIteration = errors.New("stop iteration")
