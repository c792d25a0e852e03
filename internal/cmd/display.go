package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fclairamb/ntlsync/internal/store"
	"github.com/fclairamb/ntlsync/internal/sync"
	"github.com/fclairamb/ntlsync/internal/tree"
)

// Tree output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown format, expected text, json or yaml")

// displayCourses prints the enrolled courses.
func displayCourses(w io.Writer, courses []tree.Course) {
	_, _ = fmt.Fprintln(w, "you are taking the following courses:")
	for _, c := range courses {
		_, _ = fmt.Fprintf(w, "- %s\n", c.Name)
	}
}

// displaySyncResult prints the summary of a sync run.
func displaySyncResult(w io.Writer, res *sync.Result) {
	_, _ = fmt.Fprintf(w, "\nSync %s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "  Courses:    %d synced, %d skipped\n", res.Courses, res.CoursesSkipped)
	if res.Merge != nil {
		_, _ = fmt.Fprintf(w, "  Cache:      %d known (%d resolved), %d new\n",
			res.Merge.Matched, res.Merge.Resolved, res.Merge.Unmatched)
	}
	_, _ = fmt.Fprintf(w, "  Downloaded: %d (%s)\n", res.Downloaded, sync.FormatBytes(res.Bytes))
	_, _ = fmt.Fprintf(w, "  Up to date: %d\n", res.Skipped)
	if res.Declined > 0 {
		_, _ = fmt.Fprintf(w, "  Declined:   %d\n", res.Declined)
	}
	if res.Failed > 0 {
		_, _ = fmt.Fprintf(w, "  Failed:     %d (see logs)\n", res.Failed)
	}
}

// displayTree prints records in the given format.
func displayTree(w io.Writer, records []*tree.Record, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2) //nolint:mnd // two-space indentation
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case formatText, "":
		if len(records) == 0 {
			_, _ = fmt.Fprintln(w, "No persisted tree, run sync first.")
			return nil
		}
		for _, r := range records {
			printRecordTree(w, r, "", "")
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// printRecordTree prints a record and its children with box-drawing branches.
func printRecordTree(w io.Writer, r *tree.Record, branch, prefix string) {
	_, _ = fmt.Fprintf(w, "%s%s\n", branch, describeRecord(r))
	for i, child := range r.Children {
		if i == len(r.Children)-1 {
			printRecordTree(w, child, prefix+"└── ", prefix+"    ")
		} else {
			printRecordTree(w, child, prefix+"├── ", prefix+"│   ")
		}
	}
}

func describeRecord(r *tree.Record) string {
	if r.Type == tree.KindFolder {
		return r.Name + "/"
	}

	var sb strings.Builder
	sb.WriteString(r.Name)
	sb.WriteString(" (")
	sb.WriteString(strings.ReplaceAll(string(r.Type), "_", " "))
	switch {
	case r.Filename != "":
		sb.WriteString(", saved as " + r.Filename)
	case r.DownloadLink != "":
		sb.WriteString(", resolved")
	default:
		sb.WriteString(", unresolved")
	}
	sb.WriteString(")")
	return sb.String()
}

// displayRevisions prints the recorded versions of the state file.
func displayRevisions(w io.Writer, revisions []store.Revision) {
	if len(revisions) == 0 {
		_, _ = fmt.Fprintln(w, "No recorded history (set NTL_HISTORY=true).")
		return
	}
	for _, rev := range revisions {
		_, _ = fmt.Fprintf(w, "%s  %s  %s\n", rev.Hash, rev.When.Local().Format(time.DateTime), strings.TrimSpace(rev.Message))
	}
}
