package delta

// match describes a candidate copy: size bytes of src, starting at
// srcOffset, equal dst[dstOffset:dstOffset+size].
type match struct {
	srcOffset int
	dstOffset int
	size      int
}

// Encode produces a delta instruction stream that transforms di's
// source buffer into dst. If sizeLimit is non-zero, Encode aborts and
// returns (nil, false) as soon as the output would exceed it (§4.C,
// deltaSizeLimit) — the writer uses this to reject deltas that aren't
// worth their size against the configured ratio before paying the
// cost of finishing the scan.
func (di *DeltaIndex) Encode(dst []byte, sizeLimit int) (out []byte, ok bool) {
	out = putVarint(out, uint64(len(di.src)))
	out = putVarint(out, uint64(len(dst)))

	fits := func(extra int) bool {
		if sizeLimit <= 0 {
			return true
		}
		return len(out)+extra <= sizeLimit
	}

	insertStart := 0
	flushInsert := func(upTo int) bool {
		for insertStart < upTo {
			n := upTo - insertStart
			if n > maxInsertSize {
				n = maxInsertSize
			}
			if !fits(1 + n) {
				return false
			}
			out = append(out, byte(n))
			out = append(out, dst[insertStart:insertStart+n]...)
			insertStart += n
		}
		return true
	}

	if len(dst) < blockSize || len(di.src) < blockSize {
		if !flushInsert(len(dst)) {
			return nil, false
		}
		return out, true
	}

	pos := 0
	h := blockHash(dst[pos : pos+blockSize])
	for pos+blockSize <= len(dst) {
		best := di.bestMatch(h, dst, pos, insertStart)
		if best.size < blockSize {
			if pos+blockSize < len(dst) {
				h = rollHash(h, dst[pos], dst[pos+blockSize])
			}
			pos++
			continue
		}

		if !flushInsert(best.dstOffset) {
			return nil, false
		}
		if !di.emitCopy(&out, best, fits) {
			return nil, false
		}
		insertStart = best.dstOffset + best.size
		pos = insertStart
		if pos+blockSize <= len(dst) {
			h = blockHash(dst[pos : pos+blockSize])
		}
	}

	if !flushInsert(len(dst)) {
		return nil, false
	}
	return out, true
}

// bestMatch finds the longest equal run starting at a block hash hit,
// extended forward past the matched block and backward (but never
// before insertStart, the start of the still-pending literal run) so
// that a long match doesn't leave an avoidable one-byte insert behind
// it (§4.C: "bias toward extending backwards when that shortens the
// preceding insert").
func (di *DeltaIndex) bestMatch(h uint32, dst []byte, pos, insertStart int) match {
	best := match{}
	for _, off := range di.candidates(h) {
		srcOff := int(off)
		if !bytesEqual(di.src[srcOff:srcOff+blockSize], dst[pos:pos+blockSize]) {
			continue
		}

		start, end := srcOff, pos
		for end+blockSize < len(dst) && start+blockSize < len(di.src) &&
			di.src[start+blockSize] == dst[end+blockSize] {
			start++
			end++
		}
		size := blockSize + (end - pos)
		matchSrcStart := srcOff
		matchDstStart := pos

		// extend backward
		for matchSrcStart > 0 && matchDstStart > insertStart &&
			di.src[matchSrcStart-1] == dst[matchDstStart-1] {
			matchSrcStart--
			matchDstStart--
			size++
		}

		if size > best.size {
			best = match{srcOffset: matchSrcStart, dstOffset: matchDstStart, size: size}
		}
	}
	return best
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// emitCopy appends one or more copy instructions covering m, splitting
// at maxCopySize boundaries, and reports whether the result still fits
// within the caller's size budget.
func (di *DeltaIndex) emitCopy(out *[]byte, m match, fits func(int) bool) bool {
	remaining := m.size
	srcOff := m.srcOffset
	for remaining > 0 {
		size := remaining
		if size > maxCopySize {
			size = maxCopySize
		}
		start := len(*out)
		*out = putCopy(*out, uint32(srcOff), uint32(size))
		if !fits(len(*out) - start) {
			*out = (*out)[:start]
			return false
		}
		srcOff += size
		remaining -= size
	}
	return true
}

// putCopy appends a copy instruction for [offset, offset+size) to buf,
// writing only the non-zero offset/size bytes and recording which
// ones are present in the command byte's bit pattern (§4.C).
func putCopy(buf []byte, offset, size uint32) []byte {
	var offBytes, sizeBytes [4]byte
	offBytes[0] = byte(offset)
	offBytes[1] = byte(offset >> 8)
	offBytes[2] = byte(offset >> 16)
	offBytes[3] = byte(offset >> 24)

	encSize := size
	if encSize == 0x10000 {
		encSize = 0 // implicit
	}
	sizeBytes[0] = byte(encSize)
	sizeBytes[1] = byte(encSize >> 8)
	sizeBytes[2] = byte(encSize >> 16)

	cmd := byte(0x80)
	start := len(buf)
	buf = append(buf, 0) // placeholder for cmd
	for i := 0; i < 4; i++ {
		if offBytes[i] != 0 {
			cmd |= 1 << uint(i)
			buf = append(buf, offBytes[i])
		}
	}
	for i := 0; i < 3; i++ {
		if sizeBytes[i] != 0 {
			cmd |= 1 << uint(4+i)
			buf = append(buf, sizeBytes[i])
		}
	}
	buf[start] = cmd
	return buf
}
