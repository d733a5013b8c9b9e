package packfile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // pack checksum algorithm, not a security boundary
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/goabstract/git/delta"
	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/object"
	"github.com/klauspost/compress/zlib"
)

// BuildIndex reads a full packfile from r (no .idx required) and
// returns one IndexEntry per object plus the pack's trailing SHA-1
// checksum, suitable for passing straight to WriteIndex. This backs
// the "index-pack" plumbing command (§4.D/E): it walks the pack
// sequentially by offset, resolving ofs-delta and ref-delta objects
// against bases already seen earlier in the same pack, so it works on
// any pack index-pack produces for itself but not on thin packs whose
// ref-delta bases live outside the stream.
func BuildIndex(r io.Reader) ([]IndexEntry, ginternals.Oid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ginternals.NullOid, fmt.Errorf("could not read packfile: %w", err)
	}
	if len(data) < packfileHeaderSize+ginternals.OidSize {
		return nil, ginternals.NullOid, fmt.Errorf("packfile too small: %w", ErrInvalidMagic)
	}

	trailer := data[len(data)-ginternals.OidSize:]
	body := data[:len(data)-ginternals.OidSize]
	sum := sha1.Sum(body) //nolint:gosec
	if !bytes.Equal(sum[:], trailer) {
		return nil, ginternals.NullOid, fmt.Errorf("packfile checksum mismatch: %w", ErrInvalidMagic)
	}
	packSum, err := ginternals.NewOidFromHex(trailer)
	if err != nil {
		return nil, ginternals.NullOid, fmt.Errorf("invalid packfile checksum: %w", err)
	}

	if !bytes.Equal(data[0:4], packfileMagic()) {
		return nil, ginternals.NullOid, fmt.Errorf("invalid header: %w", ErrInvalidMagic)
	}
	if !bytes.Equal(data[4:8], packfileVersion()) {
		return nil, ginternals.NullOid, fmt.Errorf("invalid header: %w", ErrInvalidVersion)
	}
	count := int(binary.BigEndian.Uint32(data[8:12]))

	type resolvedObj struct {
		typ     object.Type
		content []byte
	}
	byOffset := make(map[int]resolvedObj, count)
	byOid := make(map[ginternals.Oid]resolvedObj, count)
	entries := make([]IndexEntry, 0, count)

	pos := packfileHeaderSize
	for i := 0; i < count; i++ {
		start := pos

		typ, size, n, err := readEntryHeader(data[pos:])
		if err != nil {
			return nil, ginternals.NullOid, fmt.Errorf("object %d: %w", i, err)
		}
		pos += n

		var resolved resolvedObj
		switch typ { //nolint:exhaustive // only deltas need base resolution
		case object.ObjectDeltaOFS:
			relOffset, n2, err := readDeltaOffset(data[pos:])
			if err != nil {
				return nil, ginternals.NullOid, fmt.Errorf("object %d: invalid ofs-delta offset: %w", i, err)
			}
			pos += n2

			payload, n3, err := inflateFrom(data[pos:], int(size))
			if err != nil {
				return nil, ginternals.NullOid, fmt.Errorf("object %d: %w", i, err)
			}
			pos += n3

			baseOffset := start - int(relOffset)
			base, ok := byOffset[baseOffset]
			if !ok {
				return nil, ginternals.NullOid, fmt.Errorf("object %d: ofs-delta base at offset %d not yet seen", i, baseOffset)
			}
			content, err := delta.Apply(base.content, payload)
			if err != nil {
				return nil, ginternals.NullOid, fmt.Errorf("object %d: could not apply delta: %w", i, err)
			}
			resolved = resolvedObj{typ: base.typ, content: content}
		case object.ObjectDeltaRef:
			baseID, err := ginternals.NewOidFromHex(data[pos : pos+ginternals.OidSize])
			if err != nil {
				return nil, ginternals.NullOid, fmt.Errorf("object %d: invalid ref-delta base id: %w", i, err)
			}
			pos += ginternals.OidSize

			payload, n3, err := inflateFrom(data[pos:], int(size))
			if err != nil {
				return nil, ginternals.NullOid, fmt.Errorf("object %d: %w", i, err)
			}
			pos += n3

			base, ok := byOid[baseID]
			if !ok {
				return nil, ginternals.NullOid, fmt.Errorf("object %d: ref-delta base %s not in pack (thin packs aren't supported)", i, baseID)
			}
			content, err := delta.Apply(base.content, payload)
			if err != nil {
				return nil, ginternals.NullOid, fmt.Errorf("object %d: could not apply delta: %w", i, err)
			}
			resolved = resolvedObj{typ: base.typ, content: content}
		default:
			payload, n3, err := inflateFrom(data[pos:], int(size))
			if err != nil {
				return nil, ginternals.NullOid, fmt.Errorf("object %d: %w", i, err)
			}
			pos += n3
			resolved = resolvedObj{typ: typ, content: payload}
		}

		id := object.New(resolved.typ, resolved.content).ID()
		crc := crc32.ChecksumIEEE(data[start:pos])
		entries = append(entries, IndexEntry{ID: id, Offset: uint64(start), CRC: crc})

		byOffset[start] = resolved
		byOid[id] = resolved
	}

	return entries, packSum, nil
}

// readEntryHeader reads one object's type+size header (§4.D): the
// first byte's low 4 bits plus MSB-continued 7-bit little-endian
// groups, same format parsed by Pack.getRawObjectAt.
func readEntryHeader(data []byte) (object.Type, uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, 0, fmt.Errorf("unexpected end of packfile: %w", ErrInvalidMagic)
	}
	typ := object.Type((data[0] & 0b_0111_0000) >> 4)
	if !typ.IsValid() {
		return 0, 0, 0, fmt.Errorf("unknown object type %d: %w", typ, ErrInvalidMagic)
	}
	size := uint64(data[0] & 0b_0000_1111)
	n := 1

	if isMSBSet(data[0]) {
		rest, bytesRead, err := readSize(data[1:])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("could not read object size: %w", err)
		}
		n += bytesRead
		size |= rest << 4
	}
	return typ, size, n, nil
}

// The following are free-function equivalents of the bit-twiddling
// helpers Pack uses to parse entry headers (packfile.go's readSize /
// readDeltaOffset / isMSBSet / unsetMSB / insert{Little,Big}Endian7),
// needed here because BuildIndex walks a pack that has no .idx yet
// and so never constructs a *Pack.

func isMSBSet(b byte) bool { return b >= 0b_1000_0000 }

func unsetMSB(b byte) byte { return b & 0b_0111_1111 }

func insertLittleEndian7(base uint64, chunk, position uint8) uint64 {
	return (uint64(chunk) << (position * 7)) | base
}

func insertBigEndian7(base uint64, chunk uint8) uint64 {
	return base<<7 | uint64(chunk)
}

func readSize(data []byte) (objectSize uint64, bytesRead int, err error) {
	for i, b := range data {
		bytesRead++
		chunk := unsetMSB(b)
		objectSize = insertLittleEndian7(objectSize, chunk, uint8(i))
		if !isMSBSet(b) {
			break
		}
	}
	if isMSBSet(data[bytesRead-1]) {
		return 0, 0, ErrIntOverflow
	}
	return objectSize, bytesRead, nil
}

func readDeltaOffset(data []byte) (offset uint64, bytesRead int, err error) {
	for _, b := range data {
		bytesRead++
		chunk := unsetMSB(b)
		if isMSBSet(b) {
			chunk++
		}
		offset = insertBigEndian7(offset, chunk)
		if !isMSBSet(b) {
			break
		}
	}
	if isMSBSet(data[bytesRead-1]) {
		return 0, 0, ErrIntOverflow
	}
	return offset, bytesRead, nil
}

// inflateFrom decompresses the zlib stream starting at data[0],
// returning the (size-checked) payload and the number of compressed
// bytes consumed. Passing a fresh *bytes.Reader (which implements
// io.ByteReader) to zlib.NewReader keeps the flate reader from
// over-reading past the stream's end, so the consumed count is exact.
func inflateFrom(data []byte, size int) ([]byte, int, error) {
	br := bytes.NewReader(data)
	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, 0, fmt.Errorf("could not open zlib reader: %w", err)
	}
	defer zr.Close() //nolint:errcheck // read-only decompression, nothing left to flush

	var out bytes.Buffer
	if _, err := io.Copy(&out, zr); err != nil {
		return nil, 0, fmt.Errorf("could not decompress: %w", err)
	}
	if out.Len() != size {
		return nil, 0, fmt.Errorf("object size mismatch: expected %d, got %d", size, out.Len())
	}
	return out.Bytes(), len(data) - br.Len(), nil
}
