package tree

import (
	"fmt"

	"github.com/fclairamb/ntlsync/internal/apperrors"
)

// IdentityFunc returns the key a record is matched on between runs, among its siblings.
type IdentityFunc func(r *Record) string

// ByName matches records on their display name. Renamed nodes are treated as new.
func ByName(r *Record) string {
	return r.Name
}

// MergeStats describes what a merge carried forward.
type MergeStats struct {
	// Matched is the number of incoming leaves that had a persisted counterpart.
	Matched int
	// Resolved is the number of matched leaves that got a download link back.
	Resolved int
	// Unmatched is the number of incoming leaves with no persisted counterpart.
	Unmatched int
}

// Merger reconciles incoming trees against persisted ones.
type Merger struct {
	identity IdentityFunc
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithIdentity sets the function records are matched on. It must match the one used by Index.
func WithIdentity(fn IdentityFunc) MergerOption {
	return func(m *Merger) {
		m.identity = fn
	}
}

// NewMerger creates a merger matching records by name.
func NewMerger(opts ...MergerOption) *Merger {
	m := &Merger{identity: ByName}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge reconciles incoming against persisted with name matching. See Merger.Merge.
func Merge(persisted, incoming []*Record) (*MergeStats, error) {
	return NewMerger().Merge(persisted, incoming)
}

// carry is a pending copy of resolved attributes onto an incoming leaf.
type carry struct {
	dst          *Record
	downloadLink string
	filename     string
}

// Merge copies download_link and filename from persisted leaves onto the incoming leaves found at the
// same path, mutating incoming in place. incoming is authoritative for shape: persisted nodes it does
// not contain are dropped, and nothing below an unmatched node is looked up.
//
// On error incoming is left untouched.
func (m *Merger) Merge(persisted, incoming []*Record) (*MergeStats, error) {
	// Top-level records are not inside a folder, so there is no mapping to reuse.
	top := make(map[string]int, len(persisted))
	for i, r := range persisted {
		top[m.identity(r)] = i
	}

	stats := &MergeStats{}
	var plan []carry
	for _, fresh := range incoming {
		var saved *Record
		if i, ok := top[m.identity(fresh)]; ok {
			saved = persisted[i]
		}
		if err := m.reconcile(saved, fresh, []string{fresh.Name}, &plan, stats); err != nil {
			return nil, err
		}
	}

	for _, c := range plan {
		c.dst.DownloadLink = c.downloadLink
		c.dst.Filename = c.filename
	}

	return stats, nil
}

func (m *Merger) reconcile(saved, fresh *Record, path []string, plan *[]carry, stats *MergeStats) error {
	if saved == nil {
		stats.Unmatched += countLeaves(fresh)
		return nil
	}

	if saved.Type != fresh.Type {
		return &apperrors.TypeMismatchError{Path: path, Persisted: string(saved.Type), Incoming: string(fresh.Type)}
	}

	switch fresh.Type {
	case KindFile, KindRecordedLecture:
		*plan = append(*plan, carry{dst: fresh, downloadLink: saved.DownloadLink, filename: saved.Filename})
		stats.Matched++
		if saved.DownloadLink != "" {
			stats.Resolved++
		}
		return nil
	case KindFolder:
		mapping, err := m.mappingOf(saved, path)
		if err != nil {
			return err
		}
		for _, child := range fresh.Children {
			var old *Record
			if i, ok := mapping[m.identity(child)]; ok {
				old = saved.Children[i]
			}
			childPath := append(path[:len(path):len(path)], child.Name)
			if err := m.reconcile(old, child, childPath, plan, stats); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownNodeType, fresh.Type)
	}
}

// mappingOf returns the persisted folder's identity -> index map, checking it against the children
// it indexes. Folders saved without a mapping get one derived on the fly.
func (m *Merger) mappingOf(saved *Record, path []string) (map[string]int, error) {
	if saved.Mapping == nil {
		return m.index(saved.Children), nil
	}
	for key, i := range saved.Mapping {
		if i < 0 || i >= len(saved.Children) || m.identity(saved.Children[i]) != key {
			return nil, fmt.Errorf("%w: mapping entry %q -> %d of %v does not match its children",
				apperrors.ErrCorruptedState, key, i, path)
		}
	}
	return saved.Mapping, nil
}

func (m *Merger) index(children []*Record) map[string]int {
	mapping := make(map[string]int, len(children))
	for i, c := range children {
		mapping[m.identity(c)] = i
	}
	return mapping
}

// Index recomputes the mapping of every folder in records, replacing any previous one.
// With duplicate identities among siblings, the last one wins.
func (m *Merger) Index(records []*Record) {
	for _, r := range records {
		if r.Type != KindFolder {
			continue
		}
		r.Mapping = m.index(r.Children)
		m.Index(r.Children)
	}
}

// Index recomputes folder mappings by name. See Merger.Index.
func Index(records []*Record) {
	NewMerger().Index(records)
}

func countLeaves(r *Record) int {
	if r.Type != KindFolder {
		return 1
	}
	n := 0
	for _, c := range r.Children {
		n += countLeaves(c)
	}
	return n
}
