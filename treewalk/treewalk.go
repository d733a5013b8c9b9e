// Package treewalk implements an ordered multi-tree iterator: a k-way
// merge over the sorted entries of N git tree objects that puts a
// file and a directory of the same name in one row, so D/F
// (directory/file) conflicts can be detected (§4.L). No other package
// of this module imports it.
package treewalk

import (
	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/object"
)

// Entry is one tree's contribution to a Row, or nil if that tree has
// no entry with this Row's name.
type Entry struct {
	Name string
	Mode object.TreeObjectMode
	ID   ginternals.Oid
}

// Row is one step of the merge: the name being visited, and each
// input tree's entry for that name (nil where absent). Two non-nil
// entries with different Mode "shapes" (one a directory, one not) is
// a D/F conflict — treewalk surfaces both side by side rather than
// resolving it, leaving that call to the consumer (§4.L).
type Row struct {
	Name    string
	Entries []*Entry
}

// Walker performs the k-way merge over a fixed set of trees.
type Walker struct {
	entries [][]object.TreeEntry
	pos     []int
}

// New returns a Walker over the given trees' top-level entries. A nil
// tree is treated as empty (useful for diffing against "no tree",
// e.g. the first parent-less commit).
func New(trees ...*object.Tree) *Walker {
	w := &Walker{
		entries: make([][]object.TreeEntry, len(trees)),
		pos:     make([]int, len(trees)),
	}
	for i, t := range trees {
		if t != nil {
			w.entries[i] = t.Entries()
		}
	}
	return w
}

// sortKey is the name under the directory-suffix rule (§3): a
// directory entry sorts as if its name had a trailing "/", so
// a directory "foo" (key "foo/") sorts after "foo.txt", while a blob
// "foo" sorts before both.
func sortKey(e object.TreeEntry) string {
	if e.Mode == object.ModeDirectory {
		return e.Path + "/"
	}
	return e.Path
}

// Next returns the next Row in sorted-name order, or (nil, false) once
// every input tree is exhausted.
func (w *Walker) Next() (*Row, bool) {
	minName := ""
	minPath := ""
	found := false
	for i, entries := range w.entries {
		if w.pos[i] >= len(entries) {
			continue
		}
		key := sortKey(entries[w.pos[i]])
		if !found || key < minName {
			minName = key
			minPath = entries[w.pos[i]].Path
			found = true
		}
	}
	if !found {
		return nil, false
	}

	row := &Row{Entries: make([]*Entry, len(w.entries))}
	for i, entries := range w.entries {
		if w.pos[i] >= len(entries) {
			continue
		}
		e := entries[w.pos[i]]
		if e.Path != minPath {
			continue
		}
		row.Name = e.Path
		row.Entries[i] = &Entry{Name: e.Path, Mode: e.Mode, ID: e.ID}
		w.pos[i]++
	}
	return row, true
}

// HasConflict reports whether a Row mixes a directory entry with a
// non-directory entry of the same name — the D/F conflict §4.L calls
// out as the reason name-conflict pairing exists at all.
func (r *Row) HasConflict() bool {
	sawTree, sawOther := false, false
	for _, e := range r.Entries {
		if e == nil {
			continue
		}
		if e.Mode == object.ModeDirectory {
			sawTree = true
		} else {
			sawOther = true
		}
	}
	return sawTree && sawOther
}
