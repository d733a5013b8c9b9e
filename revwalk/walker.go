// Package revwalk implements the commit graph walker: mark-and-sweep
// commit enumeration ordered by committer timestamp, with
// uninteresting/boundary propagation used both to answer "log"-style
// traversals and to compute the want/have reachability closure that
// feeds pack writing and fetch negotiation (§4.H).
package revwalk

import (
	"container/heap"
	"errors"
	"io"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/object"
	"golang.org/x/xerrors"
)

// Flags are the per-commit mark bits the walker maintains across a
// traversal. They live in a side table keyed by Oid rather than on
// the commit value itself (§9: arena-owned flags, not a pointer graph
// of mutable commit objects).
type Flags uint32

const (
	// FlagSeen marks a commit that has been parsed and enqueued.
	FlagSeen Flags = 1 << iota
	// FlagUninteresting marks a commit (and, transitively, its
	// ancestors) as already known to the peer/caller and therefore
	// excluded from the result.
	FlagUninteresting
	// FlagBoundary marks a commit that is the immediate parent of an
	// interesting commit but is itself uninteresting — the edge of the
	// reachable-but-excluded fringe.
	FlagBoundary
	// FlagAdded marks a commit that has had its parents expanded into
	// the queue already, preventing double expansion.
	FlagAdded
	// FlagShallow marks a commit whose parent links are hidden because
	// the client declared it a shallow boundary.
	FlagShallow
	// FlagUser1 is the first of the caller-assignable bits porcelain on
	// top of the walker can repurpose freely.
	FlagUser1
	FlagUser2
	FlagUser3
)

// ErrMissingCommit is returned when a commit referenced by id (a want,
// a have, or a parent link) cannot be loaded from the object source.
var ErrMissingCommit = errors.New("commit not found")

// CommitGetter loads a parsed commit by id. *backend.Backend (or any
// reader exposing the object database) satisfies this via a thin
// adapter — see BackendGetter.
type CommitGetter interface {
	GetCommit(id ginternals.Oid) (*object.Commit, error)
}

// objectSource is the subset of backend.Backend the walker needs.
// Kept unexported and structural so revwalk doesn't import backend
// (avoiding an import cycle: backend is a low-level odb package, the
// walker is a consumer).
type objectSource interface {
	Object(id ginternals.Oid) (*object.Object, error)
}

// BackendGetter adapts any odb reader (backend.Backend satisfies this
// structurally) into a CommitGetter.
type BackendGetter struct {
	Source objectSource
}

// GetCommit implements CommitGetter.
func (g BackendGetter) GetCommit(id ginternals.Oid) (*object.Commit, error) {
	o, err := g.Source.Object(id)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", id, ErrMissingCommit)
	}
	c, err := o.AsCommit()
	if err != nil {
		return nil, xerrors.Errorf("%s is not a commit: %w", id, err)
	}
	return c, nil
}

// GenerationSource supplies precomputed commit generation numbers: the
// length of the longest path from id to a root commit. It's the
// interface a parsed commit-graph file would implement (§4.H: "ties
// broken by higher generation number if present"). A Walker with no
// source wired (the default) never has generation numbers available,
// and commitHeap.Less falls back to committer-time order alone, which
// §4.H allows for explicitly — this repo doesn't parse commit-graph
// files yet, so no concrete GenerationSource ships with it.
type GenerationSource interface {
	Generation(id ginternals.Oid) (generation uint32, ok bool)
}

// node is the walker's per-commit bookkeeping: the parsed commit plus
// its current flags and queue position.
type node struct {
	commit     *object.Commit
	flags      Flags
	index      int // heap index, maintained by container/heap
	generation uint32
	genKnown   bool
}

// Walker performs commit-time-ordered, uninteresting-aware traversal
// over a commit graph. The zero value is not usable; use New.
type Walker struct {
	get         CommitGetter
	generations GenerationSource
	nodes       map[ginternals.Oid]*node
	queue       commitHeap
	shallow     map[ginternals.Oid]bool
	boundary    []ginternals.Oid // commits emitted as boundary markers since the last drain
}

// New returns a Walker that loads commits through get.
func New(get CommitGetter) *Walker {
	return &Walker{
		get:     get,
		nodes:   make(map[ginternals.Oid]*node),
		shallow: make(map[ginternals.Oid]bool),
	}
}

// SetGenerations wires a GenerationSource the walker consults as each
// commit is loaded, enabling the generation-number tie-break in
// commitHeap.Less. Commits loaded before this is called keep whatever
// generation knowledge (none) they were loaded with.
func (w *Walker) SetGenerations(src GenerationSource) {
	w.generations = src
}

// MarkShallow records id as a shallow boundary: once reached, its
// parent links are hidden from traversal (§4.H shallow handling).
func (w *Walker) MarkShallow(id ginternals.Oid) {
	w.shallow[id] = true
}

// load returns (creating if needed) the node for id, without enqueuing it.
func (w *Walker) load(id ginternals.Oid) (*node, error) {
	if n, ok := w.nodes[id]; ok {
		return n, nil
	}
	c, err := w.get.GetCommit(id)
	if err != nil {
		return nil, err
	}
	n := &node{commit: c, index: -1}
	if w.generations != nil {
		if gen, ok := w.generations.Generation(id); ok {
			n.generation = gen
			n.genKnown = true
		}
	}
	w.nodes[id] = n
	return n, nil
}

// Push adds id as a traversal root. uninteresting marks it (and
// everything reachable from it) as excluded from Next's output — this
// is how "have"s and merge-base exclusions are expressed.
func (w *Walker) Push(id ginternals.Oid, uninteresting bool) error {
	n, err := w.load(id)
	if err != nil {
		return err
	}
	if uninteresting {
		n.flags |= FlagUninteresting
	}
	if n.flags&FlagSeen == 0 {
		n.flags |= FlagSeen
		heap.Push(&w.queue, n)
	} else if uninteresting {
		// Already queued as interesting; re-mark and let Next's
		// propagation step push UNINTERESTING to its ancestors too.
		heap.Fix(&w.queue, n.index)
	}
	return nil
}

// Next pops and returns the next commit in committer-time order (ties
// broken by generation number, highest first, when a GenerationSource
// is wired via SetGenerations and knows both commits — see
// commitHeap.Less), expanding its parents into the queue and propagating
// UNINTERESTING/BOUNDARY as it goes. It returns io.EOF once every
// pending commit is uninteresting or the queue is empty (§4.H
// termination rule).
func (w *Walker) Next() (*object.Commit, error) {
	for {
		if w.queue.Len() == 0 {
			return nil, io.EOF
		}
		n := heap.Pop(&w.queue).(*node)
		n.index = -1

		if err := w.expand(n); err != nil {
			return nil, err
		}

		if n.flags&FlagUninteresting != 0 {
			// Still need to have expanded it (to propagate
			// UNINTERESTING to parents) but it's not part of the
			// caller-visible result.
			if w.allUninteresting() {
				return nil, io.EOF
			}
			continue
		}
		return n.commit, nil
	}
}

// allUninteresting reports whether every commit remaining in the
// queue is marked uninteresting, the want/have closure termination
// condition (§4.H).
func (w *Walker) allUninteresting() bool {
	for _, n := range w.queue {
		if n.flags&FlagUninteresting == 0 {
			return false
		}
	}
	return true
}

// expand loads n's parents, links them into the queue, and propagates
// n's UNINTERESTING flag onto them. Parents of a shallow commit are
// never expanded.
func (w *Walker) expand(n *node) error {
	if n.flags&FlagAdded != 0 {
		return nil
	}
	n.flags |= FlagAdded

	if w.shallow[n.commit.ID()] {
		n.flags |= FlagBoundary
		return nil
	}

	for _, pid := range n.commit.ParentIDs() {
		p, err := w.load(pid)
		if err != nil {
			return err
		}

		wasUninteresting := p.flags&FlagUninteresting != 0
		switch {
		case n.flags&FlagUninteresting != 0 && !wasUninteresting:
			// Propagate UNINTERESTING down into the ancestry.
			p.flags |= FlagUninteresting
		case n.flags&FlagUninteresting == 0 && wasUninteresting:
			// n is interesting but its parent was already excluded:
			// p sits on the fringe between the two regions.
			p.flags |= FlagBoundary
		}

		if p.flags&FlagSeen == 0 {
			p.flags |= FlagSeen
			heap.Push(&w.queue, p)
		} else if p.index >= 0 {
			heap.Fix(&w.queue, p.index)
		}
	}
	return nil
}
