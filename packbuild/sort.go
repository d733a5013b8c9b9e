package packbuild

import (
	"sort"

	"github.com/goabstract/git/ginternals/object"
)

// order reorders entries per §4.E rule 1-2: commits first, then tags,
// then trees and blobs, with trees/blobs additionally grouped by path
// and similar size so the delta-search window (a fixed lookback) sees
// related objects next to each other.
func order(entries []*entry) []*entry {
	var commits, tags, rest []*entry
	for _, e := range entries {
		switch e.typ {
		case object.TypeCommit:
			commits = append(commits, e)
		case object.TypeTag:
			tags = append(tags, e)
		default:
			rest = append(rest, e)
		}
	}

	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].path != rest[j].path {
			return rest[i].path < rest[j].path
		}
		return rest[i].obj.Size() < rest[j].obj.Size()
	})

	out := make([]*entry, 0, len(entries))
	out = append(out, commits...)
	out = append(out, tags...)
	out = append(out, rest...)
	return out
}
