package revwalk

// commitHeap is a max-heap of *node ordered by committer timestamp,
// ties broken by generation number when both sides have one (§4.H:
// "priority queue keyed by committer timestamp... ties broken by
// higher generation number if present"). It implements
// container/heap.Interface.
type commitHeap []*node

func (h commitHeap) Len() int { return len(h) }

func (h commitHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	ti := a.commit.Committer().Time
	tj := b.commit.Committer().Time
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	if a.genKnown && b.genKnown {
		return a.generation > b.generation
	}
	return false
}

func (h commitHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *commitHeap) Push(x interface{}) {
	n := x.(*node)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *commitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
