package tree

import (
	"context"
	"errors"
	"testing"

	"github.com/fclairamb/ntlsync/internal/apperrors"
)

type fakeLister struct {
	contents map[string][]Node
	calls    []string
}

func (f *fakeLister) ListContents(_ context.Context, courseID, contentID string) ([]Node, error) {
	f.calls = append(f.calls, courseID+"/"+contentID)
	return f.contents[contentID], nil
}

const solutionsLink = "/webapps/blackboard/content/listContent.jsp?course_id=_306327_1&content_id=_1875200_1"

func TestFolderLoadChildren(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{contents: map[string][]Node{
		"_1875200_1": {
			&File{Name: "Tut1_CE2003_soln", Link: "/bbcswebdav/pid-1875202-dt-content-rid-9478989_1/xid-9478989_1"},
		},
	}}

	folder := &Folder{Name: "Tutorial solutions", Link: solutionsLink}
	if folder.Loaded() {
		t.Fatal("expected folder to start unloaded")
	}

	if err := folder.LoadChildren(context.Background(), lister); err != nil {
		t.Fatalf("LoadChildren failed: %v", err)
	}
	if err := folder.LoadChildren(context.Background(), lister); err != nil {
		t.Fatalf("second LoadChildren failed: %v", err)
	}

	if len(lister.calls) != 1 || lister.calls[0] != "_306327_1/_1875200_1" {
		t.Errorf("expected a single listing of _306327_1/_1875200_1, got %v", lister.calls)
	}

	want := []Node{
		&File{Name: "Tut1_CE2003_soln", Link: "/bbcswebdav/pid-1875202-dt-content-rid-9478989_1/xid-9478989_1"},
	}
	if !Equal(folder, &Folder{Name: folder.Name, Link: folder.Link, Children: want}) {
		t.Errorf("unexpected children: %+v", folder.Children)
	}
}

func TestFolderLoadChildren_NoListingLink(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{}
	folder := &Folder{Name: "Item", Link: ""}
	if err := folder.LoadChildren(context.Background(), lister); err != nil {
		t.Fatalf("LoadChildren failed: %v", err)
	}
	if !folder.Loaded() || len(folder.Children) != 0 {
		t.Errorf("expected loaded empty folder, got %+v", folder.Children)
	}
	if len(lister.calls) != 0 {
		t.Errorf("expected no listing, got %v", lister.calls)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	doc := func(name string) *File {
		return &File{Name: name, Link: "/bbcswebdav/pid-1-dt-content-rid-2_1/" + name}
	}

	tests := []struct {
		name string
		a, b Node
		want bool
	}{
		{name: "same file", a: doc("a"), b: doc("a"), want: true},
		{name: "different file", a: doc("a"), b: doc("b"), want: false},
		{
			name: "file and lecture",
			a:    &File{Name: "a", Link: "x"},
			b:    &RecordedLecture{Name: "a", PredownloadLink: "x"},
			want: false,
		},
		{
			name: "folders with same children",
			a:    &Folder{Name: "f", Children: []Node{doc("a"), doc("b")}},
			b:    &Folder{Name: "f", Children: []Node{doc("a"), doc("b")}},
			want: true,
		},
		{
			name: "children order matters",
			a:    &Folder{Name: "f", Children: []Node{doc("a"), doc("b")}},
			b:    &Folder{Name: "f", Children: []Node{doc("b"), doc("a")}},
			want: false,
		},
		{
			name: "extra child",
			a:    &Folder{Name: "f", Children: []Node{doc("a")}},
			b:    &Folder{Name: "f", Children: []Node{doc("a"), doc("b")}},
			want: false,
		},
		{
			name: "loaded and unloaded",
			a:    &Folder{Name: "f", Children: []Node{}},
			b:    &Folder{Name: "f"},
			want: false,
		},
		{
			name: "details differ",
			a:    &Folder{Name: "f", Details: "x"},
			b:    &Folder{Name: "f", Details: "y"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSerialize(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{contents: map[string][]Node{
		"_1875200_1": {
			&File{Name: "Tut1", Link: "/bbcswebdav/pid-1875202-dt-content-rid-9478989_1/xid-9478989_1"},
		},
	}}

	course := &Folder{
		Name: "CE2003",
		Children: []Node{
			&Folder{Name: "Solutions", Link: solutionsLink},
			&RecordedLecture{Name: "Week 1", PredownloadLink: "/webapps/acu/launch?id=1"},
		},
	}

	rec, err := Serialize(context.Background(), course, lister)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	if rec.Type != KindFolder || len(rec.Children) != 2 {
		t.Fatalf("unexpected course record: %+v", rec)
	}

	solutions := rec.Children[0]
	if solutions.Type != KindFolder || len(solutions.Children) != 1 {
		t.Fatalf("unexpected solutions record: %+v", solutions)
	}
	want := "https://ntulearn.ntu.edu.sg/bbcswebdav/pid-1875202-dt-content-rid-9478989_1/xid-9478989_1"
	if got := solutions.Children[0].PredownloadLink; got != want {
		t.Errorf("predownload link = %q, want %q", got, want)
	}
	if solutions.Children[0].DownloadLink != "" || solutions.Children[0].Filename != "" {
		t.Errorf("expected fresh file to have no resolved attributes: %+v", solutions.Children[0])
	}

	lecture := rec.Children[1]
	if lecture.Type != KindRecordedLecture || lecture.PredownloadLink != "/webapps/acu/launch?id=1" {
		t.Errorf("unexpected lecture record: %+v", lecture)
	}
}

func TestSerialize_InvalidLink(t *testing.T) {
	t.Parallel()

	folder := &Folder{Name: "f", Children: []Node{&File{Name: "broken", Link: "/webapps/other/page"}}}
	_, err := Serialize(context.Background(), folder, nil)
	if !errors.Is(err, apperrors.ErrInvalidLink) {
		t.Fatalf("expected ErrInvalidLink, got %v", err)
	}

	var linkErr *apperrors.InvalidLinkError
	if !errors.As(err, &linkErr) || linkErr.Link != "/webapps/other/page" {
		t.Errorf("expected InvalidLinkError for the link, got %v", err)
	}
}
