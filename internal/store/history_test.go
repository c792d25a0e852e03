package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fclairamb/ntlsync/internal/apperrors"
)

func TestHistory_CommitAndRevisions(t *testing.T) {
	t.Parallel()

	store, tmpDir := newTestStore(t)
	ctx := context.Background()

	history, err := OpenHistory(tmpDir)
	if err != nil {
		t.Fatalf("OpenHistory failed: %v", err)
	}

	revisions, err := history.Revisions(ctx, 0)
	if err != nil {
		t.Fatalf("Revisions on empty repo failed: %v", err)
	}
	if len(revisions) != 0 {
		t.Fatalf("expected no revisions, got %d", len(revisions))
	}

	if err := store.Write(ctx, "state.json", []byte(`[]`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	committed, err := history.Commit(ctx, "first", "state.json")
	if err != nil || !committed {
		t.Fatalf("expected first commit, got %v, %v", committed, err)
	}

	committed, err = history.Commit(ctx, "unchanged", "state.json")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if committed {
		t.Error("expected no commit without changes")
	}

	if err := store.Write(ctx, "state.json", []byte(`[{"type":"folder","name":"x","children":[]}]`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := history.Commit(ctx, "second", "state.json"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Reopening must find the existing repository.
	reopened, err := OpenHistory(tmpDir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	revisions, err = reopened.Revisions(ctx, 0)
	if err != nil {
		t.Fatalf("Revisions failed: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revisions))
	}
	if revisions[0].Message != "second" || revisions[1].Message != "first" {
		t.Errorf("unexpected order: %+v", revisions)
	}

	limited, err := reopened.Revisions(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("expected 1 limited revision, got %d, %v", len(limited), err)
	}
}

func TestOpenExistingHistory(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	if _, err := OpenExistingHistory(tmpDir); !errors.Is(err, apperrors.ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".git")); !os.IsNotExist(err) {
		t.Fatalf("expected no repository to be created, got %v", err)
	}

	if _, err := OpenHistory(tmpDir); err != nil {
		t.Fatalf("OpenHistory failed: %v", err)
	}
	history, err := OpenExistingHistory(tmpDir)
	if err != nil {
		t.Fatalf("OpenExistingHistory failed: %v", err)
	}
	revisions, err := history.Revisions(context.Background(), 0)
	if err != nil || len(revisions) != 0 {
		t.Errorf("expected no revisions, got %d, %v", len(revisions), err)
	}
}
