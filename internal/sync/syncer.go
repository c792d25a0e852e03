// Package sync mirrors the courses of the portal into a download directory, reusing the links
// resolved by previous runs.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fclairamb/ntlsync/internal/apperrors"
	"github.com/fclairamb/ntlsync/internal/store"
	"github.com/fclairamb/ntlsync/internal/tree"
)

// Source is the remote portal, authenticated.
type Source interface {
	tree.Lister
	Courses(ctx context.Context) ([]tree.Course, error)
	// CourseTree returns the root folder of a course. Its content areas may be left unloaded.
	CourseTree(ctx context.Context, course tree.Course) (*tree.Folder, error)
	ResolveFileLink(ctx context.Context, predownloadLink string) (string, error)
	ResolveLectureLink(ctx context.Context, predownloadLink string) (string, error)
	// ContentLength returns the size of the resource at link, or -1 when unknown.
	ContentLength(ctx context.Context, link string) (int64, error)
	Download(ctx context.Context, link string) (io.ReadCloser, error)
}

// Prompter asks the user to confirm a download.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Options selects what a sync run downloads.
type Options struct {
	// Semester keeps only the courses whose name starts with it.
	Semester string
	// Ignore drops the courses whose name contains any of its values.
	Ignore []string
	// IgnoreFiles skips documents.
	IgnoreFiles bool
	// DownloadRecordedLectures enables video downloads.
	DownloadRecordedLectures bool
	// Prompt asks before every video download.
	Prompt bool
}

// ParseIgnoreList splits a comma separated list of course codes, upper-casing them.
func ParseIgnoreList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

// Selects reports whether the course named name is synced.
func (o *Options) Selects(name string) bool {
	if o.Semester != "" && !strings.HasPrefix(name, o.Semester) {
		return false
	}
	for _, ignored := range o.Ignore {
		if ignored != "" && strings.Contains(name, ignored) {
			return false
		}
	}
	return true
}

// Result summarizes a sync run.
type Result struct {
	RunID          string
	Courses        int
	CoursesSkipped int
	Merge          *tree.MergeStats
	Downloaded     int
	Skipped        int
	Declined       int
	Failed         int
	Bytes          int64
}

// Syncer mirrors the courses of a Source into a download directory.
type Syncer struct {
	source   Source
	storage  *Storage
	files    store.Store
	prompter Prompter
	baseURL  string
	logger   *slog.Logger
}

// SyncerOption configures the syncer.
type SyncerOption func(*Syncer)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = l
	}
}

// WithPrompter sets the prompter used when Options.Prompt is set.
func WithPrompter(p Prompter) SyncerOption {
	return func(s *Syncer) {
		s.prompter = p
	}
}

// WithBaseURL sets the portal URL relative file links are resolved against.
func WithBaseURL(u string) SyncerOption {
	return func(s *Syncer) {
		s.baseURL = u
	}
}

// NewSyncer creates a syncer downloading into files, with state kept in storage.
func NewSyncer(source Source, storage *Storage, files store.Store, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		source:   source,
		storage:  storage,
		files:    files,
		prompter: acceptAll{},
		baseURL:  tree.DefaultBaseURL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync scrapes the selected courses, merges them with the persisted tree, downloads what is missing
// and saves the result. A merge failure aborts before anything is saved. Progress made before a
// cancellation is saved and the context error is returned.
//
//nolint:funlen // single pass over courses, merge, walk and save
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	logger := s.logger.With("run_id", result.RunID)

	courses, err := s.source.Courses(ctx)
	if err != nil {
		return result, fmt.Errorf("list courses: %w", err)
	}

	persisted := make(map[string]*tree.Record, len(s.storage.Tree()))
	for _, r := range s.storage.Tree() {
		persisted[r.Name] = r
	}

	serializer := &tree.Serializer{Lister: s.source, BaseURL: s.baseURL}
	incoming := make([]*tree.Record, 0, len(courses))
	active := make([]*tree.Record, 0, len(courses))
	for _, course := range courses {
		if !opts.Selects(course.Name) {
			result.CoursesSkipped++
			// Keep the cache of courses filtered out this run.
			if saved, ok := persisted[course.Name]; ok {
				incoming = append(incoming, saved.Clone())
			}
			continue
		}

		logger.InfoContext(ctx, "scanning course", "course", course.Name)
		root, err := s.source.CourseTree(ctx, course)
		if err != nil {
			return result, fmt.Errorf("course %q: %w", course.Name, err)
		}
		rec, err := serializer.Serialize(ctx, root)
		if err != nil {
			return result, fmt.Errorf("course %q: %w", course.Name, err)
		}
		incoming = append(incoming, rec)
		active = append(active, rec)
		result.Courses++
	}

	stats, err := s.storage.Merge(incoming)
	if err != nil {
		return result, err
	}
	result.Merge = stats
	logger.DebugContext(ctx, "merged with persisted tree",
		"matched", stats.Matched, "resolved", stats.Resolved, "unmatched", stats.Unmatched)

	walkErr := s.walk(ctx, logger, active, opts, result)

	// Save what was resolved even when the walk was cancelled.
	if err := s.storage.Save(context.WithoutCancel(ctx), incoming); err != nil {
		return result, fmt.Errorf("save state: %w", err)
	}

	logger.InfoContext(ctx, "sync finished",
		"downloaded", result.Downloaded, "skipped", result.Skipped,
		"declined", result.Declined, "failed", result.Failed, "bytes", result.Bytes)

	return result, walkErr
}

func (s *Syncer) walk(ctx context.Context, logger *slog.Logger, roots []*tree.Record, opts Options, res *Result) error {
	for _, root := range roots {
		if err := s.visit(ctx, logger, root, "", opts, res); err != nil {
			return err
		}
	}
	return nil
}

// visit downloads the leaves below r into dir. Only cancellation stops the walk.
func (s *Syncer) visit(
	ctx context.Context, logger *slog.Logger, r *tree.Record, dir string, opts Options, res *Result,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	switch r.Type {
	case tree.KindFolder:
		dir = filepath.Join(dir, SanitizeFilename(r.Name))
		for _, child := range r.Children {
			if err := s.visit(ctx, logger, child, dir, opts, res); err != nil {
				return err
			}
		}
		return nil
	case tree.KindFile:
		if opts.IgnoreFiles {
			return nil
		}
		err = s.syncFile(ctx, logger, r, dir, res)
	case tree.KindRecordedLecture:
		if !opts.DownloadRecordedLectures {
			return nil
		}
		err = s.syncLecture(ctx, logger, r, dir, opts, res)
	default:
		err = fmt.Errorf("%w: %q", apperrors.ErrUnknownNodeType, r.Type)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		res.Failed++
		logger.WarnContext(ctx, "download failed", "path", filepath.Join(dir, r.Name), "error", err)
	}
	return nil
}

func (s *Syncer) syncFile(ctx context.Context, logger *slog.Logger, r *tree.Record, dir string, res *Result) error {
	if r.DownloadLink == "" {
		link, err := s.source.ResolveFileLink(ctx, r.PredownloadLink)
		if err != nil {
			return fmt.Errorf("resolve file link: %w", err)
		}
		r.DownloadLink = link
	}

	if r.Filename == "" {
		name, ok := tree.FilenameFromURL(r.DownloadLink)
		if !ok || SanitizeFilename(name) == "" {
			return fmt.Errorf("%w: %s", apperrors.ErrNoFilename, r.DownloadLink)
		}
		r.Filename = SanitizeFilename(name)
	}

	target := filepath.Join(dir, r.Filename)
	exists, err := s.files.Exists(ctx, target)
	if err != nil {
		return err
	}
	if exists {
		res.Skipped++
		return nil
	}

	logger.InfoContext(ctx, "downloading file", "path", target)
	return s.download(ctx, r.DownloadLink, target, res)
}

func (s *Syncer) syncLecture(
	ctx context.Context, logger *slog.Logger, r *tree.Record, dir string, opts Options, res *Result,
) error {
	// The name is known without resolving the expensive link.
	r.Filename = lectureFilename(r.Name)
	target := filepath.Join(dir, r.Filename)
	dummy := filepath.Join(dir, dummyName(r.Filename))

	for _, p := range []string{target, dummy} {
		exists, err := s.files.Exists(ctx, p)
		if err != nil {
			return err
		}
		if exists {
			res.Skipped++
			return nil
		}
	}

	if r.DownloadLink == "" {
		link, err := s.source.ResolveLectureLink(ctx, r.PredownloadLink)
		if err != nil {
			return fmt.Errorf("resolve lecture link: %w", err)
		}
		r.DownloadLink = link
	}

	size, err := s.source.ContentLength(ctx, r.DownloadLink)
	if err != nil {
		logger.DebugContext(ctx, "unable to get video size", "url", r.DownloadLink, "error", err)
		size = -1
	}

	if opts.Prompt {
		ok, err := s.prompter.Confirm(ctx, fmt.Sprintf("Download %s, (%s)?", r.Filename, FormatBytes(size)))
		if err != nil {
			return fmt.Errorf("prompt: %w", err)
		}
		if !ok {
			if err := s.files.Touch(ctx, dummy); err != nil {
				return fmt.Errorf("create dummy file: %w", err)
			}
			res.Declined++
			logger.InfoContext(ctx, "created dummy file", "path", dummy)
			return nil
		}
	}

	logger.InfoContext(ctx, "downloading lecture", "path", target, "size", FormatBytes(size))
	return s.download(ctx, r.DownloadLink, target, res)
}

func (s *Syncer) download(ctx context.Context, link, target string, res *Result) error {
	body, err := s.source.Download(ctx, link)
	if err != nil {
		return fmt.Errorf("download %s: %w", link, err)
	}
	defer func() { _ = body.Close() }()

	written, err := s.files.WriteStream(ctx, target, body)
	if err != nil {
		return fmt.Errorf("save %s: %w", target, err)
	}

	res.Downloaded++
	res.Bytes += written
	return nil
}

// acceptAll confirms every download.
type acceptAll struct{}

func (acceptAll) Confirm(context.Context, string) (bool, error) {
	return true, nil
}
