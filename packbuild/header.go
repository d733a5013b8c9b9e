package packbuild

import "github.com/goabstract/git/ginternals/object"

// writeObjectHeader encodes the (type, size) prefix that precedes every
// object's zlib-deflated payload. It's the exact inverse of
// Pack.getRawObjectAt's metadata parsing in ginternals/packfile: the
// first byte holds the MSB continuation bit, a 3-bit type, and the low
// 4 bits of size; subsequent bytes hold 7 more size bits each,
// little-endian, until the remaining size fits.
func writeObjectHeader(typ object.Type, size uint64) []byte {
	first := byte(typ) << 4
	rest := size >> 4
	if rest > 0 {
		first |= 0b_1000_0000
	}
	first |= byte(size) & 0b_0000_1111

	out := []byte{first}
	for rest > 0 {
		b := byte(rest) & 0b_0111_1111
		rest >>= 7
		if rest > 0 {
			b |= 0b_1000_0000
		}
		out = append(out, b)
	}
	return out
}

// writeDeltaOffset encodes an offset-delta back-reference: big-endian
// base-128 chunks, MSB-continuation, each non-final chunk stored minus
// one (the inverse convention Pack.readDeltaOffset undoes by adding it
// back). Bytes are produced least-significant-chunk first, then
// reversed, mirroring git's ofs_delta_header.
func writeDeltaOffset(offset uint64) []byte {
	buf := []byte{byte(offset & 0b_0111_1111)}
	offset >>= 7
	for offset != 0 {
		offset--
		buf = append(buf, 0b_1000_0000|byte(offset&0b_0111_1111))
		offset >>= 7
	}

	out := make([]byte, len(buf))
	for i, b := range buf {
		out[len(buf)-1-i] = b
	}
	return out
}
