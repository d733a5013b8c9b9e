package treewalk

import (
	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/object"
)

// TreeLoader resolves a tree id to its parsed contents. Anything
// wrapping the object database's Object+AsTree call satisfies this.
type TreeLoader interface {
	GetTree(id ginternals.Oid) (*object.Tree, error)
}

// VisitFunc is called once per row encountered during a recursive
// walk, with path being the slash-joined path from the walk's root.
// Returning false skips descending into that row; the walk goes on
// with the next row.
type VisitFunc func(path string, row *Row) (descend bool)

// WalkRecursive performs a depth-first walk of the merge of trees,
// calling visit for every row (blob, tree, or conflicting entry) and
// descending into any row whose entries are all trees (and visit
// returned true for it) via loader. Pack enumeration (packbuild) walks
// trees with its own loader and does not call it.
func WalkRecursive(loader TreeLoader, prefix string, trees []*object.Tree, visit VisitFunc) error {
	w := New(trees...)
	for {
		row, ok := w.Next()
		if !ok {
			return nil
		}

		path := row.Name
		if prefix != "" {
			path = prefix + "/" + row.Name
		}

		descend := visit(path, row)
		if !descend || row.HasConflict() {
			continue
		}

		allTrees := true
		subtrees := make([]*object.Tree, len(row.Entries))
		for i, e := range row.Entries {
			if e == nil {
				continue
			}
			if e.Mode != object.ModeDirectory {
				allTrees = false
				break
			}
			t, err := loader.GetTree(e.ID)
			if err != nil {
				return err
			}
			subtrees[i] = t
		}
		if !allTrees {
			continue
		}
		if err := WalkRecursive(loader, path, subtrees, visit); err != nil {
			return err
		}
	}
}
