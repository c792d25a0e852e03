package tree

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/fclairamb/ntlsync/internal/apperrors"
)

func file(name, predownload string) *Record {
	return &Record{Type: KindFile, Name: name, PredownloadLink: predownload}
}

func resolvedFile(name, predownload, link, filename string) *Record {
	return &Record{Type: KindFile, Name: name, PredownloadLink: predownload, DownloadLink: link, Filename: filename}
}

func folder(name string, children ...*Record) *Record {
	if children == nil {
		children = []*Record{}
	}
	return &Record{Type: KindFolder, Name: name, Children: children}
}

func TestMerge_Tutorials(t *testing.T) {
	t.Parallel()

	persisted := []*Record{{
		Type:     KindFolder,
		Name:     "Tutorials",
		Mapping:  map[string]int{"A.pdf": 0},
		Children: []*Record{resolvedFile("A.pdf", "u1", "http://x/A.pdf", "A.pdf")},
	}}
	incoming := []*Record{folder("Tutorials", file("A.pdf", "u1"), file("B.pdf", "u2"))}

	stats, err := Merge(persisted, incoming)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	a, b := incoming[0].Children[0], incoming[0].Children[1]
	if a.DownloadLink != "http://x/A.pdf" || a.Filename != "A.pdf" {
		t.Errorf("A.pdf not carried forward: %+v", a)
	}
	if b.DownloadLink != "" || b.Filename != "" {
		t.Errorf("B.pdf should stay unresolved: %+v", b)
	}
	if stats.Matched != 1 || stats.Resolved != 1 || stats.Unmatched != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMerge_EmptyPersisted(t *testing.T) {
	t.Parallel()

	incoming := []*Record{folder("Course", folder("Week 1", file("a", "u1")), file("b", "u2"))}
	before := CloneAll(incoming)

	stats, err := Merge(nil, incoming)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !reflect.DeepEqual(before, incoming) {
		t.Error("merging against nothing changed the incoming tree")
	}
	if stats.Unmatched != 2 || stats.Matched != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMerge_NestedAndLectures(t *testing.T) {
	t.Parallel()

	lecture := &Record{Type: KindRecordedLecture, Name: "Lecture 1", PredownloadLink: "acu1",
		DownloadLink: "https://media/1.mp4", Filename: "Lecture 1.mp4"}
	persisted := []*Record{
		folder("Course",
			folder("Content", resolvedFile("deep.pdf", "u1", "http://x/deep.pdf", "deep.pdf")),
			lecture,
		),
	}
	Index(persisted)

	incoming := []*Record{
		folder("Course",
			&Record{Type: KindRecordedLecture, Name: "Lecture 1", PredownloadLink: "acu1"},
			folder("Content", file("deep.pdf", "u1")),
		),
	}

	if _, err := Merge(persisted, incoming); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	gotLecture := incoming[0].Children[0]
	if gotLecture.DownloadLink != "https://media/1.mp4" || gotLecture.Filename != "Lecture 1.mp4" {
		t.Errorf("lecture not carried forward after reorder: %+v", gotLecture)
	}
	if got := incoming[0].Children[1].Children[0]; got.DownloadLink != "http://x/deep.pdf" {
		t.Errorf("nested file not carried forward: %+v", got)
	}
}

func TestMerge_UnmatchedAncestorIsNotSearched(t *testing.T) {
	t.Parallel()

	persisted := []*Record{folder("Course", folder("Old", resolvedFile("a.pdf", "u1", "http://x/a.pdf", "a.pdf")))}
	Index(persisted)

	// a.pdf moved under a renamed folder: it is new.
	incoming := []*Record{folder("Course", folder("New", file("a.pdf", "u1")))}

	if _, err := Merge(persisted, incoming); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if got := incoming[0].Children[0].Children[0]; got.DownloadLink != "" {
		t.Errorf("moved file should lose its cached link: %+v", got)
	}
}

func TestMerge_DropsMissingPersisted(t *testing.T) {
	t.Parallel()

	persisted := []*Record{
		folder("Gone", resolvedFile("x", "u", "http://x", "x")),
		folder("Kept", resolvedFile("y", "u", "http://y", "y")),
	}
	Index(persisted)
	incoming := []*Record{folder("Kept", file("y", "u"))}

	if _, err := Merge(persisted, incoming); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(incoming) != 1 || incoming[0].Children[0].DownloadLink != "http://y" {
		t.Errorf("unexpected merge result: %+v", incoming)
	}
}

func TestMerge_TypeMismatch(t *testing.T) {
	t.Parallel()

	persisted := []*Record{
		folder("Course",
			resolvedFile("first", "u0", "http://x/first", "first"),
			folder("X"),
		),
	}
	Index(persisted)
	incoming := []*Record{folder("Course", file("first", "u0"), file("X", "u1"))}
	before := CloneAll(incoming)

	_, err := Merge(persisted, incoming)
	if !errors.Is(err, apperrors.ErrStructuralMismatch) {
		t.Fatalf("expected ErrStructuralMismatch, got %v", err)
	}

	var mismatch *apperrors.TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TypeMismatchError, got %T", err)
	}
	if mismatch.Persisted != "folder" || mismatch.Incoming != "file" {
		t.Errorf("unexpected type tags: %+v", mismatch)
	}
	if !reflect.DeepEqual(mismatch.Path, []string{"Course", "X"}) {
		t.Errorf("unexpected path: %v", mismatch.Path)
	}

	if !reflect.DeepEqual(before, incoming) {
		t.Error("failed merge partially mutated the incoming tree")
	}
}

func TestMerge_TopLevelTypeMismatch(t *testing.T) {
	t.Parallel()

	persisted := []*Record{folder("X")}
	incoming := []*Record{file("X", "u")}

	if _, err := Merge(persisted, incoming); !errors.Is(err, apperrors.ErrStructuralMismatch) {
		t.Fatalf("expected ErrStructuralMismatch, got %v", err)
	}
}

func TestMerge_MissingMappingIsDerived(t *testing.T) {
	t.Parallel()

	persisted := []*Record{folder("Course", resolvedFile("a", "u", "http://a", "a"))}
	incoming := []*Record{folder("Course", file("a", "u"))}

	if _, err := Merge(persisted, incoming); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if incoming[0].Children[0].DownloadLink != "http://a" {
		t.Errorf("expected link carried without a stored mapping: %+v", incoming[0].Children[0])
	}
}

func TestMerge_StaleMappingIsCorruption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mapping map[string]int
	}{
		{name: "index out of range", mapping: map[string]int{"a": 3}},
		{name: "index points at another child", mapping: map[string]int{"b": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			persisted := []*Record{{
				Type: KindFolder, Name: "Course", Mapping: tt.mapping,
				Children: []*Record{resolvedFile("a", "u", "http://a", "a")},
			}}
			incoming := []*Record{folder("Course", file("a", "u"))}

			if _, err := Merge(persisted, incoming); !errors.Is(err, apperrors.ErrCorruptedState) {
				t.Errorf("expected ErrCorruptedState, got %v", err)
			}
		})
	}
}

func TestMerge_Idempotent(t *testing.T) {
	t.Parallel()

	persisted := []*Record{folder("Course",
		folder("Week 1", resolvedFile("a", "u1", "http://a", "a")),
		resolvedFile("b", "u2", "http://b", "b"),
	)}
	Index(persisted)

	scrape := func() []*Record {
		return []*Record{folder("Course",
			folder("Week 1", file("a", "u1"), file("new", "u3")),
			file("b", "u2"),
		)}
	}

	first := scrape()
	if _, err := Merge(persisted, first); err != nil {
		t.Fatalf("first merge failed: %v", err)
	}

	// Round trip through the persisted form, as a save and a load would.
	Index(first)
	data, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var saved []*Record
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	second := scrape()
	if _, err := Merge(saved, second); err != nil {
		t.Fatalf("second merge failed: %v", err)
	}

	Index(second)
	if !reflect.DeepEqual(first, second) {
		t.Error("merging against the previous merge result is not a fixed point")
	}
}

func TestIndex(t *testing.T) {
	t.Parallel()

	records := []*Record{folder("Course",
		file("a", "u1"),
		folder("sub", file("x", "u2"), file("y", "u3")),
		file("c", "u4"),
	)}
	records[0].Mapping = map[string]int{"stale": 9}

	Index(records)

	err := Walk(records, func(path []string, r *Record) error {
		if r.Type != KindFolder {
			return nil
		}
		if len(r.Mapping) != len(r.Children) {
			t.Errorf("%v: mapping has %d entries for %d children", path, len(r.Mapping), len(r.Children))
		}
		for i, c := range r.Children {
			if r.Mapping[c.Name] != i {
				t.Errorf("%v: mapping[%q] = %d, want %d", path, c.Name, r.Mapping[c.Name], i)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
}

func TestIndex_DuplicateNamesLastWins(t *testing.T) {
	t.Parallel()

	records := []*Record{folder("f", file("dup", "u1"), file("dup", "u2"))}
	Index(records)

	if got := records[0].Mapping["dup"]; got != 1 {
		t.Errorf("mapping[dup] = %d, want 1", got)
	}
}

func TestMerger_WithIdentity(t *testing.T) {
	t.Parallel()

	byLink := func(r *Record) string {
		if r.Type == KindFolder {
			return r.Name
		}
		return r.PredownloadLink
	}
	m := NewMerger(WithIdentity(byLink))

	persisted := []*Record{folder("Course", resolvedFile("Old name", "u1", "http://a", "a.pdf"))}
	m.Index(persisted)
	incoming := []*Record{folder("Course", file("New name", "u1"))}

	if _, err := m.Merge(persisted, incoming); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if incoming[0].Children[0].DownloadLink != "http://a" {
		t.Errorf("expected rename to keep its link with link identity: %+v", incoming[0].Children[0])
	}
}
