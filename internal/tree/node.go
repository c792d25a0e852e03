// Package tree models the remote content tree of a course and reconciles a freshly scraped tree
// with the one persisted by the previous run.
package tree

import (
	"context"
	"fmt"
)

// Kind is the type tag of a node. The set is closed.
type Kind string

const (
	// KindFolder is a folder holding other nodes.
	KindFolder Kind = "folder"
	// KindFile is a downloadable document.
	KindFile Kind = "file"
	// KindRecordedLecture is a streaming video.
	KindRecordedLecture Kind = "recorded_lecture"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFolder, KindFile, KindRecordedLecture:
		return true
	default:
		return false
	}
}

// IsLeaf reports whether nodes of this kind carry resolved download attributes.
func (k Kind) IsLeaf() bool {
	return k == KindFile || k == KindRecordedLecture
}

// Course is a course the user is enrolled in.
type Course struct {
	Name string
	ID   string
}

// Node is one of *Folder, *File or *RecordedLecture.
type Node interface {
	Kind() Kind
	node()
}

// Lister lists the children of a remote content folder. Implementations carry the session token.
type Lister interface {
	ListContents(ctx context.Context, courseID, contentID string) ([]Node, error)
}

// Folder is a container node. A nil Children slice means the children were never loaded.
type Folder struct {
	Name     string
	Link     string
	Details  string
	Children []Node
}

// File is a document whose Link must be normalized into a predownload link.
type File struct {
	Name string
	Link string
}

// RecordedLecture is a video whose predownload link is resolved only when downloading.
type RecordedLecture struct {
	Name            string
	PredownloadLink string
}

// Kind implements Node.
func (*Folder) Kind() Kind { return KindFolder }

// Kind implements Node.
func (*File) Kind() Kind { return KindFile }

// Kind implements Node.
func (*RecordedLecture) Kind() Kind { return KindRecordedLecture }

func (*Folder) node()          {}
func (*File) node()            {}
func (*RecordedLecture) node() {}

// NameOf returns the display name of a node.
func NameOf(n Node) string {
	switch v := n.(type) {
	case *Folder:
		return v.Name
	case *File:
		return v.Name
	case *RecordedLecture:
		return v.Name
	default:
		return ""
	}
}

// Loaded reports whether the folder's children have been fetched.
func (f *Folder) Loaded() bool {
	return f.Children != nil
}

// LoadChildren fetches the folder's children through l unless they are already loaded.
// Folders whose link is not a content listing link load as empty.
func (f *Folder) LoadChildren(ctx context.Context, l Lister) error {
	if f.Loaded() {
		return nil
	}

	children := []Node{}
	if courseID, contentID, ok := ParseListContentURL(f.Link); ok && l != nil {
		listed, err := l.ListContents(ctx, courseID, contentID)
		if err != nil {
			return fmt.Errorf("list contents of %q: %w", f.Name, err)
		}
		if listed != nil {
			children = listed
		}
	}

	f.Children = children
	return nil
}

// Equal reports whether a and b have the same concrete type and equal fields.
// Folder children are compared pairwise, in order.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case *Folder:
		y, ok := b.(*Folder)
		if !ok || x.Name != y.Name || x.Link != y.Link || x.Details != y.Details {
			return false
		}
		if x.Loaded() != y.Loaded() || len(x.Children) != len(y.Children) {
			return false
		}
		for i := range x.Children {
			if !Equal(x.Children[i], y.Children[i]) {
				return false
			}
		}
		return true
	case *File:
		y, ok := b.(*File)
		return ok && *x == *y
	case *RecordedLecture:
		y, ok := b.(*RecordedLecture)
		return ok && *x == *y
	default:
		return false
	}
}

// Serializer converts live nodes into records.
type Serializer struct {
	// Lister loads folders that were not loaded yet. It may be nil for fully loaded trees.
	Lister Lister
	// BaseURL is used to absolutize relative file links.
	BaseURL string
}

// Serialize converts n with the default base URL, loading missing children through l.
func Serialize(ctx context.Context, n Node, l Lister) (*Record, error) {
	s := &Serializer{Lister: l, BaseURL: DefaultBaseURL}
	return s.Serialize(ctx, n)
}

// Serialize converts n and all its descendants into a Record.
func (s *Serializer) Serialize(ctx context.Context, n Node) (*Record, error) {
	switch v := n.(type) {
	case *Folder:
		if err := v.LoadChildren(ctx, s.Lister); err != nil {
			return nil, err
		}
		rec := &Record{Type: KindFolder, Name: v.Name, Children: make([]*Record, 0, len(v.Children))}
		for _, child := range v.Children {
			childRec, err := s.Serialize(ctx, child)
			if err != nil {
				return nil, err
			}
			rec.Children = append(rec.Children, childRec)
		}
		return rec, nil
	case *File:
		link, err := NormalizeFileLink(s.baseURL(), v.Link)
		if err != nil {
			return nil, fmt.Errorf("serialize file %q: %w", v.Name, err)
		}
		return &Record{Type: KindFile, Name: v.Name, PredownloadLink: link}, nil
	case *RecordedLecture:
		return &Record{Type: KindRecordedLecture, Name: v.Name, PredownloadLink: v.PredownloadLink}, nil
	default:
		return nil, fmt.Errorf("serialize %T: unsupported node", n)
	}
}

func (s *Serializer) baseURL() string {
	if s.BaseURL == "" {
		return DefaultBaseURL
	}
	return s.BaseURL
}
