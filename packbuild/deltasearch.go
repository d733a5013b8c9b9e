package packbuild

import (
	"runtime"

	"github.com/goabstract/git/delta"
	"github.com/goabstract/git/ginternals"
	"golang.org/x/sync/errgroup"
)

// deltaRatio bounds how much smaller a delta must be than the
// undeltified object before it's worth keeping (§4.E rule 3: "delta is
// retained if its length < undeltified size × configurable ratio").
const deltaRatio = 0.9

// windowSize is the default sliding-window lookback for delta
// candidates (§4.E rule 3).
const windowSize = 10

// minParallelChunk is the smallest chunk worth handing to its own
// goroutine; below it the per-goroutine scheduling overhead dwarfs the
// delta-search savings.
const minParallelChunk = 4 * windowSize

// resolution is what the delta search settles on for one entry: either
// it stays whole (Base == NullOid, Data holds the raw payload) or it's
// expressed as a delta against an earlier window member.
type resolution struct {
	base ginternals.Oid
	data []byte
	// baseIndex is the global index (into the entries slice) of the
	// chosen base, or -1 when the entry was left undeltified. The
	// caller uses it to compute the offset-delta back-reference once
	// the base's final pack position is known.
	baseIndex int
}

// searchDeltas walks the (already ordered) entry list and, for each
// entry, looks for the best delta against up to windowSize preceding
// entries of the same object type via DeltaIndex. thin controls
// whether a base outside the provided entry set may be used; packbuild
// never looks outside its own entries today, so thin only documents
// future pack-writer behavior (see DESIGN.md).
//
// The search is parallelised over disjoint windows (§5's "optional
// delta-search worker pool" collaborator): the entry list is split
// into chunks of at least minParallelChunk entries and each chunk is
// scanned by its own goroutine with its own sliding window. A delta
// candidate never crosses a chunk boundary, trading a small amount of
// compression for linear speedup on large object sets; see DESIGN.md.
func searchDeltas(entries []*entry, thin bool) []resolution {
	out := make([]resolution, len(entries))

	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	chunkSize := (len(entries) + workers - 1) / workers
	if chunkSize < minParallelChunk {
		chunkSize = minParallelChunk
	}
	if chunkSize == 0 {
		return out
	}

	var g errgroup.Group
	for start := 0; start < len(entries); start += chunkSize {
		start := start
		end := start + chunkSize
		if end > len(entries) {
			end = len(entries)
		}
		g.Go(func() error {
			searchDeltaChunk(entries, out, start, end)
			return nil
		})
	}
	_ = g.Wait() // searchDeltaChunk never returns an error

	return out
}

// searchDeltaChunk runs the sequential sliding-window search over
// entries[start:end], writing results into out[start:end]. Candidates
// are drawn only from within the chunk.
func searchDeltaChunk(entries []*entry, out []resolution, start, end int) {
	type candidate struct {
		index int
		idx   *delta.DeltaIndex
	}

	var window []candidate

	for i := start; i < end; i++ {
		e := entries[i]
		raw := e.obj.Bytes()
		best := resolution{base: ginternals.NullOid, data: raw, baseIndex: -1}
		bestLen := len(raw)

		for _, c := range window {
			if entries[c.index].typ != e.typ {
				continue
			}
			encoded, ok := c.idx.Encode(raw, int(float64(bestLen)*deltaRatio))
			if !ok {
				continue
			}
			if len(encoded) < bestLen {
				best = resolution{base: entries[c.index].id, data: encoded, baseIndex: c.index}
				bestLen = len(encoded)
			}
		}

		out[i] = best

		window = append(window, candidate{index: i, idx: delta.NewDeltaIndex(raw)})
		if len(window) > windowSize {
			window = window[1:]
		}
	}
}
