// Package packbuild implements the pack writer (§4.E): it turns a set
// of "want"/"have" commit ids (or a caller-supplied object list) into
// the ordered, delta-compressed object stream a packfile is made of.
package packbuild

import (
	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/object"
	"github.com/goabstract/git/revwalk"
	"golang.org/x/xerrors"
)

// ObjectSource loads any object (commit, tree, blob, or tag) by id. It's
// the subset of backend.Backend the enumerator needs; kept structural
// so packbuild doesn't import backend directly.
type ObjectSource interface {
	Object(id ginternals.Oid) (*object.Object, error)
}

// entry is one object selected for inclusion in the pack, before delta
// search has picked a base for it.
type entry struct {
	id  ginternals.Oid
	typ object.Type
	obj *object.Object
	// path is the tree entry name this blob/tree was found under, used
	// to group similarly-named objects into the same delta window
	// (§4.E selection rule 2).
	path string
}

// Closure walks the reachability closure from wants (excluding
// anything reachable from haves) and returns every object that must be
// serialized: the commits themselves, plus every tree and blob they
// reference, in discovery order (each commit followed by the trees and
// blobs first seen under it); Write reorders them
// commits-then-tags-then-trees+blobs per §4.E's ordering rule. Tag
// objects are not enumerated.
func Closure(src ObjectSource, wants, haves []ginternals.Oid) ([]*entry, error) {
	getter := revwalk.BackendGetter{Source: src}
	commitIDs, _, err := revwalk.Closure(getter, wants, haves)
	if err != nil {
		return nil, xerrors.Errorf("could not compute reachability closure: %w", err)
	}

	var entries []*entry
	seen := make(map[ginternals.Oid]bool)

	loader := &treeLoader{src: src}

	for _, cid := range commitIDs {
		o, err := src.Object(cid)
		if err != nil {
			return nil, xerrors.Errorf("could not load commit %s: %w", cid, err)
		}
		entries = append(entries, &entry{id: cid, typ: object.TypeCommit, obj: o})
		seen[cid] = true

		commit, err := o.AsCommit()
		if err != nil {
			return nil, xerrors.Errorf("%s is not a commit: %w", cid, err)
		}

		treeEntries, err := loader.walk(commit.TreeID(), seen)
		if err != nil {
			return nil, err
		}
		entries = append(entries, treeEntries...)
	}

	return entries, nil
}

// treeLoader adapts an ObjectSource to treewalk.TreeLoader and
// enumerates every tree/blob reachable from a root tree id that hasn't
// already been seen in this pack.
type treeLoader struct {
	src ObjectSource
}

func (l *treeLoader) GetTree(id ginternals.Oid) (*object.Tree, error) {
	o, err := l.src.Object(id)
	if err != nil {
		return nil, xerrors.Errorf("could not load tree %s: %w", id, err)
	}
	return o.AsTree()
}

// walk enumerates every tree and blob reachable from root, skipping
// objects already marked seen (shared subtrees across commits are only
// serialized once).
func (l *treeLoader) walk(root ginternals.Oid, seen map[ginternals.Oid]bool) ([]*entry, error) {
	rootTree, err := l.GetTree(root)
	if err != nil {
		return nil, err
	}

	var out []*entry
	var visit func(path string, id ginternals.Oid, mode object.TreeObjectMode) error
	visit = func(path string, id ginternals.Oid, mode object.TreeObjectMode) error {
		if seen[id] {
			return nil
		}
		seen[id] = true

		o, err := l.src.Object(id)
		if err != nil {
			return xerrors.Errorf("could not load %s: %w", id, err)
		}
		out = append(out, &entry{id: id, typ: o.Type(), obj: o, path: path})

		if mode != object.ModeDirectory {
			return nil
		}
		t, err := o.AsTree()
		if err != nil {
			return err
		}
		for _, e := range t.Entries() {
			if err := visit(e.Path, e.ID, e.Mode); err != nil {
				return err
			}
		}
		return nil
	}

	if !seen[root] {
		seen[root] = true
		out = append(out, &entry{id: root, typ: object.TypeTree, obj: rootTree.ToObject(), path: ""})
		for _, e := range rootTree.Entries() {
			if err := visit(e.Path, e.ID, e.Mode); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
