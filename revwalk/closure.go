package revwalk

import (
	"errors"
	"io"

	"github.com/goabstract/git/ginternals"
)

// Closure computes the minimal set of commits reachable from wants
// but not reachable from haves — the set a pack writer must serialize
// and the set a fetch negotiator is trying to shrink to nothing
// (§4.E build mode, §4.H termination rule).
//
// The returned boundary slice holds the uninteresting commits
// discovered at the edge of the reachable set: each is a parent of a
// reachable commit, and a have that is no such parent is not in it.
// Callers that need shallow/deepen advisories can inspect it.
func Closure(get CommitGetter, wants, haves []ginternals.Oid) (reachable, boundary []ginternals.Oid, err error) {
	w := New(get)
	for _, h := range haves {
		if err := w.Push(h, true); err != nil {
			return nil, nil, err
		}
	}
	for _, id := range wants {
		if err := w.Push(id, false); err != nil {
			return nil, nil, err
		}
	}

	for {
		c, err := w.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		reachable = append(reachable, c.ID())
	}

	for id, n := range w.nodes {
		if n.flags&FlagBoundary != 0 {
			boundary = append(boundary, id)
		}
	}
	return reachable, boundary, nil
}
