package delta

import "fmt"

// Apply reconstructs the result buffer a delta instruction stream
// describes against src, the delta's source buffer.
//
// A delta is: varint(len(src)) varint(len(result)) instruction*.
// Each instruction is one command byte:
//   - high bit set: copy. Bits 0-3 select which of up to 4 offset
//     bytes (LSB first) follow; bits 4-6 select which of up to 3 size
//     bytes follow. A size that decodes to 0 means 0x10000 (§4.C).
//     The named [offset, offset+size) range is copied from src.
//   - high bit clear, low 7 bits n > 0: insert the next n literal
//     bytes from the instruction stream.
//   - cmd == 0: reserved, always an error.
//
// Apply fails with ErrCorrupt if the source length recorded in the
// header doesn't match len(src), if the number of bytes written
// doesn't match the header's result length, or a copy instruction
// would read outside src.
func Apply(src, delta []byte) ([]byte, error) {
	srcLen, n := readVarint(delta)
	if n == 0 {
		return nil, fmt.Errorf("reading source length: %w", ErrCorrupt)
	}
	delta = delta[n:]
	if int(srcLen) != len(src) {
		return nil, fmt.Errorf("source length mismatch: delta wants %d, got %d: %w", srcLen, len(src), ErrCorrupt)
	}

	resultLen, n := readVarint(delta)
	if n == 0 {
		return nil, fmt.Errorf("reading result length: %w", ErrCorrupt)
	}
	delta = delta[n:]

	out := make([]byte, 0, resultLen)
	for len(delta) > 0 {
		cmd := delta[0]
		delta = delta[1:]

		switch {
		case cmd == 0:
			return nil, fmt.Errorf("reserved opcode 0: %w", ErrCorrupt)
		case cmd&0x80 != 0: // copy
			var offset, size uint32
			for i := uint(0); i < 4; i++ {
				if cmd&(1<<i) != 0 {
					if len(delta) == 0 {
						return nil, fmt.Errorf("truncated copy offset: %w", ErrCorrupt)
					}
					offset |= uint32(delta[0]) << (8 * i)
					delta = delta[1:]
				}
			}
			for i := uint(0); i < 3; i++ {
				if cmd&(1<<(4+i)) != 0 {
					if len(delta) == 0 {
						return nil, fmt.Errorf("truncated copy size: %w", ErrCorrupt)
					}
					size |= uint32(delta[0]) << (8 * i)
					delta = delta[1:]
				}
			}
			if size == 0 {
				size = 0x10000
			}
			end := uint64(offset) + uint64(size)
			if end > uint64(len(src)) {
				return nil, fmt.Errorf("copy [%d, %d) outside %d-byte source: %w", offset, end, len(src), ErrCorrupt)
			}
			out = append(out, src[offset:end]...)
		default: // insert, cmd is the literal count (1-127)
			if int(cmd) > len(delta) {
				return nil, fmt.Errorf("truncated insert: %w", ErrCorrupt)
			}
			out = append(out, delta[:cmd]...)
			delta = delta[cmd:]
		}
	}

	if uint64(len(out)) != resultLen {
		return nil, fmt.Errorf("result length mismatch: header says %d, wrote %d: %w", resultLen, len(out), ErrCorrupt)
	}
	return out, nil
}
