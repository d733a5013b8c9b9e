package delta

// rabinPoly is the generator used to build rabinT: a standard 32-bit
// CRC-style polynomial (the reflected IEEE 802.3 polynomial), used
// here as the LFSR git's diff-delta.c itself uses to build its T/U
// tables. rabinT folds a byte sitting in the hash's top byte through
// 8 bits of that LFSR; rabinU carries a byte's full decay across
// blockSize slides so a window can be rolled in O(1) instead of
// rehashed.
const rabinPoly uint32 = 0xedb88320

var rabinT, rabinU [256]uint32

func init() {
	for b := 0; b < 256; b++ {
		h := uint32(b) << 24
		for i := 0; i < 8; i++ {
			if h&0x80000000 != 0 {
				h = (h << 1) ^ rabinPoly
			} else {
				h <<= 1
			}
		}
		rabinT[b] = h
	}
	for b := 0; b < 256; b++ {
		h := uint32(b)
		for i := 0; i < blockSize; i++ {
			h = foldZero(h)
		}
		rabinU[b] = h
	}
}

// foldZero advances the fingerprint state by one byte position with no
// new byte injected: it's the decay half of foldByte, and the building
// block rabinU is computed from.
func foldZero(h uint32) uint32 {
	return (h << 8) ^ rabinT[byte(h>>24)]
}

// foldByte folds one more byte into a fingerprint. Because rabinT[0]
// is always 0, the first four folds of a fresh (zero) state are a
// plain big-endian concatenation — git's "4-byte bootstrap" — and only
// the remaining blockSize-4 folds actually exercise the table.
func foldByte(h uint32, c byte) uint32 {
	return foldZero(h) ^ uint32(c)
}

// blockHash computes the table-based Rabin fingerprint of a
// blockSize-byte window (§4.C): a 4-byte bootstrap followed by
// blockSize-4 table-driven accumulation steps. Used once to seed the
// scan; subsequent windows are derived incrementally via rollHash.
func blockHash(b []byte) uint32 {
	var h uint32
	for _, c := range b {
		h = foldByte(h, c)
	}
	return h
}

// rollHash advances a window hash by one byte: out leaves the window,
// in enters it. Folding in also advances out's contribution by one
// more step than it should've had, so rabinU[out] (out's full
// blockSize-step decay) corrects for that — this is equivalent to (and
// must stay equivalent to) calling blockHash on the shifted window.
func rollHash(h uint32, out, in byte) uint32 {
	return foldByte(h, in) ^ rabinU[out]
}

// DeltaIndex is a precomputed scanner over a source buffer: a
// power-of-two open-addressed table mapping the rolling hash of every
// blockSize-byte window to the offsets where it occurs, so Encode can
// find copy candidates for a destination buffer in roughly O(len(src)
// + len(dst)) instead of the O(len(src) * len(dst)) a naive scan would
// cost (§3, in-memory Delta index; §4.C).
type DeltaIndex struct {
	src     []byte
	buckets []int32   // hash&mask -> head of chain, -1 if empty
	next    []int32   // offset -> next offset in same chain, -1 if end
	mask    uint32
}

// NewDeltaIndex scans src and builds the hash table used to find delta
// copy candidates against it. The index can be reused across many
// Encode calls against different destination buffers (e.g. the pack
// writer's delta-search window reuses one per candidate base).
func NewDeltaIndex(src []byte) *DeltaIndex {
	di := &DeltaIndex{src: src}
	if len(src) < blockSize {
		return di
	}

	nBlocks := len(src) - blockSize + 1
	size := uint32(1)
	for int(size) < nBlocks {
		size <<= 1
	}
	if size == 0 {
		size = 1
	}
	di.mask = size - 1
	di.buckets = make([]int32, size)
	for i := range di.buckets {
		di.buckets[i] = -1
	}
	di.next = make([]int32, nBlocks)

	h := blockHash(src[:blockSize])
	for off := 0; ; off++ {
		di.insert(h, off)
		if off+1 >= nBlocks {
			break
		}
		h = rollHash(h, src[off], src[off+blockSize])
	}
	return di
}

// insert adds offset to the chain bucket for hash h, capping the chain
// at maxChainLength: once a chain is full, later offsets are not added,
// so the earliest offsets are kept. An early source offset leaves the
// most room for a match to extend forward, which keeps highly
// repetitive input down to a few long copies.
func (di *DeltaIndex) insert(h uint32, offset int) {
	bucket := h & di.mask
	length := int32(0)
	for n := di.buckets[bucket]; n != -1 && length < maxChainLength; n = di.next[n] {
		length++
	}
	if length >= maxChainLength {
		return
	}
	di.next[offset] = di.buckets[bucket]
	di.buckets[bucket] = int32(offset)
}

// candidates returns up to maxChainLength source offsets whose block
// hash equals h.
func (di *DeltaIndex) candidates(h uint32) []int32 {
	if len(di.buckets) == 0 {
		return nil
	}
	out := make([]int32, 0, 8)
	bucket := h & di.mask
	for n := di.buckets[bucket]; n != -1 && len(out) < maxChainLength; n = di.next[n] {
		out = append(out, n)
	}
	return out
}
