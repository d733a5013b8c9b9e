package packbuild

import (
	"testing"

	"github.com/goabstract/git/ginternals/object"
	"github.com/stretchr/testify/assert"
)

// decodeObjectHeader mirrors Pack.getRawObjectAt's metadata parsing
// (ginternals/packfile/packfile.go) well enough to round-trip what
// writeObjectHeader produces.
func decodeObjectHeader(t *testing.T, data []byte) (object.Type, uint64, int) {
	t.Helper()
	typ := object.Type((data[0] & 0b_0111_0000) >> 4)
	size := uint64(data[0] & 0b_0000_1111)
	read := 1
	shift := uint(4)
	for data[read-1]&0b_1000_0000 != 0 {
		b := data[read]
		size |= uint64(b&0b_0111_1111) << shift
		shift += 7
		read++
	}
	return typ, size, read
}

func TestWriteObjectHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	sizes := []uint64{0, 1, 15, 16, 127, 128, 4095, 4096, 1 << 20, 1 << 34}
	for _, size := range sizes {
		header := writeObjectHeader(object.TypeBlob, size)
		typ, got, read := decodeObjectHeader(t, header)
		assert.Equal(t, object.TypeBlob, typ)
		assert.Equal(t, size, got)
		assert.Equal(t, len(header), read)
	}
}

func TestWriteDeltaOffsetKnownVector(t *testing.T) {
	t.Parallel()

	// offset=200 encodes to {0x80, 0x48} under git's ofs-delta scheme:
	// the final byte holds the low 7 bits (200 & 127 = 72 = 0x48); the
	// preceding byte holds (200>>7)-1 = 0 with the continuation bit set.
	assert.Equal(t, []byte{0x80, 0x48}, writeDeltaOffset(200))
	assert.Equal(t, []byte{0x00}, writeDeltaOffset(0))
}

func TestWriteDeltaOffsetRoundTrip(t *testing.T) {
	t.Parallel()

	offsets := []uint64{0, 1, 127, 128, 200, 16384, 1 << 20, 1 << 40}
	for _, offset := range offsets {
		encoded := writeDeltaOffset(offset)
		got := decodeDeltaOffset(t, encoded)
		assert.Equal(t, offset, got)
	}
}

// decodeDeltaOffset mirrors Pack.readDeltaOffset.
func decodeDeltaOffset(t *testing.T, data []byte) uint64 {
	t.Helper()
	var offset uint64
	for _, b := range data {
		chunk := uint64(b & 0b_0111_1111)
		if b&0b_1000_0000 != 0 {
			chunk++
		}
		offset = offset<<7 | chunk
	}
	return offset
}
