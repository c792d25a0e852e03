package tree

import (
	"encoding/json"
	"fmt"

	"github.com/fclairamb/ntlsync/internal/apperrors"
)

// Record is the flat, persistable form of a node.
// Folders use Children and Mapping, leaves use the link fields.
// An empty DownloadLink or Filename is written as null.
type Record struct {
	Type            Kind
	Name            string
	Children        []*Record
	Mapping         map[string]int
	PredownloadLink string
	DownloadLink    string
	Filename        string
}

type folderView struct {
	Type     Kind           `json:"type" yaml:"type"`
	Name     string         `json:"name" yaml:"name"`
	Children []*Record      `json:"children" yaml:"children"`
	Mapping  map[string]int `json:"mapping,omitempty" yaml:"mapping,omitempty"`
}

type leafView struct {
	Type            Kind    `json:"type" yaml:"type"`
	Name            string  `json:"name" yaml:"name"`
	PredownloadLink string  `json:"predownload_link" yaml:"predownload_link"`
	DownloadLink    *string `json:"download_link" yaml:"download_link"`
	Filename        *string `json:"filename" yaml:"filename"`
}

// recordJSON accepts every field of every kind when decoding.
type recordJSON struct {
	Type            Kind           `json:"type"`
	Name            string         `json:"name"`
	Children        []*Record      `json:"children"`
	Mapping         map[string]int `json:"mapping"`
	PredownloadLink string         `json:"predownload_link"`
	DownloadLink    *string        `json:"download_link"`
	Filename        *string        `json:"filename"`
}

func (r Record) view() (any, error) {
	switch r.Type {
	case KindFolder:
		children := r.Children
		if children == nil {
			children = []*Record{}
		}
		return folderView{Type: r.Type, Name: r.Name, Children: children, Mapping: r.Mapping}, nil
	case KindFile, KindRecordedLecture:
		return leafView{
			Type:            r.Type,
			Name:            r.Name,
			PredownloadLink: r.PredownloadLink,
			DownloadLink:    nullable(r.DownloadLink),
			Filename:        nullable(r.Filename),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownNodeType, r.Type)
	}
}

// MarshalJSON writes only the fields of the record's kind.
func (r Record) MarshalJSON() ([]byte, error) {
	v, err := r.view()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// MarshalYAML mirrors MarshalJSON.
func (r Record) MarshalYAML() (any, error) {
	return r.view()
}

// UnmarshalJSON decodes a record and rejects unknown type tags.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Type.Valid() {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownNodeType, raw.Type)
	}

	*r = Record{Type: raw.Type, Name: raw.Name}
	if raw.Type == KindFolder {
		for i, child := range raw.Children {
			if child == nil {
				return fmt.Errorf("%w: null child at index %d of %q", apperrors.ErrCorruptedState, i, raw.Name)
			}
		}
		r.Children = raw.Children
		if r.Children == nil {
			r.Children = []*Record{}
		}
		r.Mapping = raw.Mapping
		return nil
	}

	r.PredownloadLink = raw.PredownloadLink
	if raw.DownloadLink != nil {
		r.DownloadLink = *raw.DownloadLink
	}
	if raw.Filename != nil {
		r.Filename = *raw.Filename
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Children != nil {
		c.Children = CloneAll(r.Children)
	}
	if r.Mapping != nil {
		c.Mapping = make(map[string]int, len(r.Mapping))
		for k, v := range r.Mapping {
			c.Mapping[k] = v
		}
	}
	return &c
}

// CloneAll deep copies a sequence of records.
func CloneAll(records []*Record) []*Record {
	out := make([]*Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// WalkFunc is called for every record with the names leading to it, the record's own name last.
type WalkFunc func(path []string, r *Record) error

// Walk visits records depth first, parents before children, in order.
func Walk(records []*Record, fn WalkFunc) error {
	return walk(nil, records, fn)
}

func walk(parent []string, records []*Record, fn WalkFunc) error {
	for _, r := range records {
		path := append(parent[:len(parent):len(parent)], r.Name)
		if err := fn(path, r); err != nil {
			return err
		}
		if r.Type == KindFolder {
			if err := walk(path, r.Children, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
