package packfile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // index checksum algorithm, not a security boundary
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/internal/readutil"
)

// OidWalkFunc is applied to every oid during a WalkOids call. Returning
// OidWalkStop ends the walk early without propagating an error.
type OidWalkFunc func(oid ginternals.Oid) error

// OidWalkStop is a sentinel error an OidWalkFunc can return to stop a
// walk early.
var OidWalkStop = errors.New("stop walking") //nolint // fake error, doesn't need an Err prefix

const (
	layer1Size      = 1024
	layer3EntrySize = 4
	layer4EntrySize = 4
)

// indexHeader represents the header of an index file.
// the first 4 bytes contain the magic, the 4 next bytes
// contains the version of the file.
// We only support Version 2
func indexHeader() []byte {
	return []byte{255, 't', 'O', 'c', 0, 0, 0, 2}
}

// PackIndex represents a packfile's PackIndex file (.idx)
// The index contains data to help parsing the packfile
// The index contains a header, 5 layers, and a footer.
// header: 8 bytes - See indexHeader to know the header format
// Layer1: 1024 bytes. Contains 256 entries of 4 bytes.
//         Each entry contains the CUMULATIVE number of objects having
//         a oid starting by oid[0].
//         (oid[0] is an hex number, 0 <= x <= 255).
//         It's used to count how many objects have a SHA starting by
//         a specific value.
//         Example:
//         oid[0] represents the value of the 2 first chars of a SHA
//         So for 9b91da06e69613397b38e0808e0ba5ee6983251b, oid[0]
//         is equal to '9b' which corresponds to 155.
//         You'll then find the CUMULATIVE object count at the
//         position 155 * 4 in layer1.
//         To get the total of object starting with 9b, you will need
//         to look at the previous entry (9a at 154 * 4), and do
//         total_at_9b = cumul_9b - cummul_9a
// Layer2: x*20 bytes - Contains the IDs (20 Bytes each) of all the objects
//		   contained in the packfile
// Layer3: x*4 bytes - Contains a CRC (Cyclic redundancy check) value
//         for each object. It's used to check that data did not get corrupt
//         by network operations.
//         https://en.wikipedia.org/wiki/Cyclic_redundancy_check
// Layer4: x*4 - Contains the offset of each objects inside the packfile.
//         The first bit (and not byte, 1 byte = 8 bits) of the offset
//         (called MSB for Most Significant Bit) is used to store a special
//         value, and is not part of the offset:
//
//         If the packfile is < 2GB
//           - The MSB will always be 0
//           - The remaining bit (31, because it's 4 bytes of 8 bits
//             minus the MSB, so 4*8-1) correspond to the offset of
//             the object in the packfile.
//
//         If the packfile is > 2GB
//           - The MSB may be 0, or 1
//           - If 0, then the next 31 bits will contain the offset of
//             the object in the packfile.
//           - If 1, then the packfile offset doesn't fit in 4 bytes and
//             has been stored in layer5. In that case the next 31 bits will
//             corresponds to the new location of the offset in
//             layer5.
// Layer5: y*8 bytes - Only exists for packfile bigger than 2GB.
//         Basically the same as Layer4 but the offsets are on 8 bytes
//         instead of 4, because 4 bytes was too small to store those
//         offsets.
// Footer: 40 bytes - Contains 2 sha of 20 bytes each
//         The first is the sha1 sum of the packfile
//         The second is the sha1 sum of the index file minus this sha
//
// Resources:
// https://codewords.recurse.com/issues/three/unpacking-git-packfiles#idx-files
// https://git-scm.com/docs/pack-format
//
//nolint:govet // aligning the memory makes the struct harder to read since we want to keep "parseError" and "parsed" together
type PackIndex struct {
	mu sync.Mutex

	r           readutil.BufferedReader
	headerBytes []byte
	hashOffset  map[ginternals.Oid]uint64
	packSum     ginternals.Oid

	parseError error
	parsed     bool
}

// NewIndex returns an index object from the given reader
func NewIndex(r readutil.BufferedReader) (idx *PackIndex, err error) {
	// Let's validate the header
	header := make([]byte, len(indexHeader()))
	_, err = r.Read(header)
	if err != nil {
		return nil, fmt.Errorf("could read header of index file: %w", err)
	}
	if !bytes.Equal(header, indexHeader()) {
		return nil, fmt.Errorf("invalid header: %w", ErrInvalidMagic)
	}

	return &PackIndex{
		r:           r,
		headerBytes: header,
	}, nil
}

// PackSum returns the packfile checksum recorded in the index's
// trailing footer, after verifying that footer against a SHA-1 of the
// index's own content (§4.D, §7 CORRUPT on mismatch).
func (idx *PackIndex) PackSum() (ginternals.Oid, error) {
	if err := idx.parse(); err != nil {
		return ginternals.NullOid, fmt.Errorf("could not parse the index file: %w", err)
	}
	return idx.packSum, nil
}

// GetObjectOffset returns the offset of Oid in the packfile
// If the object is not found ginternals.ErrObjectNotFound is returned
func (idx *PackIndex) GetObjectOffset(oid ginternals.Oid) (uint64, error) {
	if err := idx.parse(); err != nil {
		return 0, fmt.Errorf("could not parse the index file: %w", err)
	}
	offset, exists := idx.hashOffset[oid]
	if !exists {
		return 0, ginternals.ErrObjectNotFound
	}
	return offset, nil
}

// WalkOids invokes f once for every object id indexed by this file, in
// no particular order.
func (idx *PackIndex) WalkOids(f OidWalkFunc) error {
	if err := idx.parse(); err != nil {
		return fmt.Errorf("could not parse the index file: %w", err)
	}
	for oid := range idx.hashOffset {
		if err := f(oid); err != nil {
			if errors.Is(err, OidWalkStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// IndexEntry describes one object's placement for WriteIndex: its id,
// its byte offset in the packfile, and the CRC-32 of its on-disk
// (header+payload) bytes.
type IndexEntry struct {
	ID     ginternals.Oid
	Offset uint64
	CRC    uint32
}

// WriteIndex serializes entries (and the packfile's own checksum,
// packSum) as a v2 pack index (the same layout NewIndex/parse reads
// back): header, layer1 fanout, layer2 sorted ids, layer3 CRCs,
// layer4 (and, for any offset >= 2GiB, layer5) offsets, and the
// trailing packSum + index-content checksum footer. entries need not
// arrive sorted; WriteIndex sorts a copy by id as §3 requires.
func WriteIndex(w io.Writer, entries []IndexEntry, packSum ginternals.Oid) error {
	sorted := make([]IndexEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Compare(sorted[j].ID) < 0 })

	h := sha1.New() //nolint:gosec // index checksum algorithm, not a security boundary
	tee := io.MultiWriter(w, h)

	if _, err := tee.Write(indexHeader()); err != nil {
		return fmt.Errorf("could not write index header: %w", err)
	}

	// Layer1: cumulative per-first-byte counts.
	var fanout [256]uint32
	for _, e := range sorted {
		fanout[e.ID.Bytes()[0]]++
	}
	for i := 1; i < 256; i++ {
		fanout[i] += fanout[i-1]
	}
	buf4 := make([]byte, 4)
	for _, count := range fanout {
		binary.BigEndian.PutUint32(buf4, count)
		if _, err := tee.Write(buf4); err != nil {
			return fmt.Errorf("could not write layer1: %w", err)
		}
	}

	// Layer2: sorted raw ids.
	for _, e := range sorted {
		if _, err := tee.Write(e.ID.Bytes()); err != nil {
			return fmt.Errorf("could not write layer2: %w", err)
		}
	}

	// Layer3: CRC-32 of each object's on-disk bytes.
	for _, e := range sorted {
		binary.BigEndian.PutUint32(buf4, e.CRC)
		if _, err := tee.Write(buf4); err != nil {
			return fmt.Errorf("could not write layer3: %w", err)
		}
	}

	// Layer4/5: offsets, with the MSB-set indirection into layer5 for
	// any offset that doesn't fit in 31 bits.
	var layer5 []uint64
	for _, e := range sorted {
		if e.Offset <= 0x7fffffff {
			binary.BigEndian.PutUint32(buf4, uint32(e.Offset))
		} else {
			binary.BigEndian.PutUint32(buf4, uint32(len(layer5))|0x80000000)
			layer5 = append(layer5, e.Offset)
		}
		if _, err := tee.Write(buf4); err != nil {
			return fmt.Errorf("could not write layer4: %w", err)
		}
	}

	buf8 := make([]byte, 8)
	for _, offset := range layer5 {
		binary.BigEndian.PutUint64(buf8, offset)
		if _, err := tee.Write(buf8); err != nil {
			return fmt.Errorf("could not write layer5: %w", err)
		}
	}

	if _, err := tee.Write(packSum.Bytes()); err != nil {
		return fmt.Errorf("could not write pack checksum: %w", err)
	}

	sum := h.Sum(nil)
	if _, err := w.Write(sum); err != nil {
		return fmt.Errorf("could not write index checksum: %w", err)
	}
	return nil
}

// parse extracts all the data from the index and puts them in memory.
func (idx *PackIndex) parse() (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	// No reason to call this method more than once
	if idx.parsed {
		return nil
	}

	// If the method failed, then there's no reason to try again,
	// especially that the underlying reader doesn't get its cursor
	// reset
	if idx.parseError != nil {
		return idx.parseError
	}
	defer func() {
		if err != nil {
			idx.parseError = err
		}
	}()

	bufInt32 := make([]byte, 4)
	bufInt64 := make([]byte, 8)
	bufOid := make([]byte, ginternals.OidSize)

	// Every byte of the index but the trailing footer feeds this hash,
	// so it can be checked against the index checksum half of the
	// footer once we reach it (§4.D). The header was already consumed
	// by NewIndex, so it's fed in up front; everything else is read
	// through tr instead of idx.r directly, including bytes we'd
	// otherwise just Discard, since Discard bypasses the tee.
	h := sha1.New() //nolint:gosec // index checksum algorithm, not a security boundary
	h.Write(idx.headerBytes)
	tr := io.TeeReader(idx.r, h)

	// First we parse layer1 to get the count of objects in the packfile.
	// Since layer1 stores a cumul, all we have to do is to get the number
	// at the last position, which is at 0xff (or 255). See doc for
	// more details
	lastEntryRelOffset := 255 * 4 // an entry is an int32, so 4 bytes
	// We move the pointer to the data we need
	_, err = io.CopyN(io.Discard, tr, int64(lastEntryRelOffset))
	if err != nil {
		return fmt.Errorf("could not move pointer to the last entry of layer1: %w", err)
	}
	// we now can read the count
	_, err = io.ReadFull(tr, bufInt32)
	if err != nil {
		return fmt.Errorf("couldn't get the total number of objects: %w", err)
	}
	objectCount := int(binary.BigEndian.Uint32(bufInt32))

	// Now we can allocate the right amount of memory to store all the
	// oids temporarily in an ordered list, and fill it by parsing
	// layer2 which contains all oids back-to-back
	oids := make([]ginternals.Oid, 0, objectCount)
	// we basically need to get everything in between layer2 and
	// layer3
	layer2offset := len(indexHeader()) + layer1Size
	layer2Size := objectCount * ginternals.OidSize
	layer3offset := layer2offset + layer2Size

	for i := 0; i < objectCount; i++ {
		currentOffset := layer2offset + i*ginternals.OidSize
		// this should only happen if the indexfile is invalid and
		// layer2 is smaller than it should
		if currentOffset >= layer3offset {
			return fmt.Errorf("oid %d is out of bound in layer2: %w", i, os.ErrNotExist)
		}

		_, err = io.ReadFull(tr, bufOid)
		if err != nil {
			return fmt.Errorf("couldn't get the oid at offset %d: %w", currentOffset, err)
		}
		oid, err := ginternals.NewOidFromHex(bufOid)
		if err != nil {
			return fmt.Errorf("invalid oid at offset %d: %w", currentOffset, err)
		}
		oids = append(oids, oid)
	}

	// We don't care about layer3 just yet so we skip it
	// TODO(melvin): parse and use layer3
	// https://golang.org/pkg/hash/crc32/
	layer3Size := objectCount * layer3EntrySize
	_, err = io.CopyN(io.Discard, tr, int64(layer3Size))
	if err != nil {
		return fmt.Errorf("could not skip layer3: %w", err)
	}

	// We can now allocate our final map (oid => offset) and fill it with the
	// correct offsets by reading into layer4 and layer5
	// We'll first loop over layer4, then into layer if needed
	idx.hashOffset = make(map[ginternals.Oid]uint64, objectCount)
	layer4Offset := layer2offset + layer2Size + layer3Size
	layer4Size := objectCount * layer4EntrySize
	layer5Offset := int64(layer4Offset + layer4Size)

	// Before fetching the data in layer 4, we need to make a list to
	// store the object that we'll need to find in layer5. Because we use
	// a buffered reader, we cannot go back and forth between layer4 and 5,
	// so if layer4 contains a layer5 object, we'll have to read it later
	type layer5Data struct {
		oid            ginternals.Oid
		relativeOffset uint64
	}
	layer5offsets := []*layer5Data{}

	// now we can start parsing layer4
	for i, oid := range oids {
		currentOffset := int64(layer4Offset + i*layer4EntrySize)
		// this should only happen if the indexfile is invalid and
		// layer4 is smaller than it should
		if currentOffset >= layer5Offset {
			return fmt.Errorf("oid %s is out of bound in layer4: %w", oid.String(), os.ErrNotExist)
		}
		_, err = io.ReadFull(tr, bufInt32)
		if err != nil {
			return fmt.Errorf("couldn't read offset of oid %s at position %d (layer4): %w", oid.String(), currentOffset, err)
		}
		entry := binary.BigEndian.Uint32(bufInt32)

		// The entry contains 2 information, a MSB and the offset.
		// The MSB correspond to the first bit on the very left, and the
		// offset is stored in the 31 next bits (because its a 32bits number)

		// One way to get the MSB value is to push it 31 bits to the right.
		// If the MSB is one, then our 32bits number will now be
		// 00000000000000000000000000000001, which is the binary
		// representation of 1
		// If the MSB is 0, then all the bits will be set to 0, which is
		// the binary representation of a 0.
		msb := (entry >> 31) == 1

		// Now to get the offset we need to force the MSB to be 0.
		// To do so we can use a binary mask with a AND. We use 0 for the
		// bits we want to change to 0, and 1 for the bits we want to stay at
		// their current value.
		offset := uint64(entry & 0b01111111111111111111111111111111)
		// If the msb is not set, then the offset is valid, and we're done.
		// If the msb is set then the offset we got is to get an entry in
		// layer5, which will contain the offset in the packfile
		if msb {
			layer5offsets = append(layer5offsets, &layer5Data{
				oid:            oid,
				relativeOffset: offset,
			})
			continue
		}
		idx.hashOffset[oid] = offset
	}

	// Now we go get the offset from layer5
	// We need to make sure we access the offset in the right order
	// since we won't be able to go back to a lower offset
	sort.Slice(layer5offsets, func(i, j int) bool { return layer5offsets[i].relativeOffset < layer5offsets[j].relativeOffset })
	currentRelativeOffset := uint64(0)
	for _, data := range layer5offsets {
		// This should never happen since the offsert should be back-
		// to-back, but it cost nothing to double check
		if data.relativeOffset != currentRelativeOffset {
			return fmt.Errorf("expected oid %s to be at (relative) offset %d, but is at %d instead (in layer5 %d): %w", data.oid.String(), currentRelativeOffset, data.relativeOffset, layer5Offset, os.ErrNotExist)
		}

		entryOffset := layer5Offset + int64(data.relativeOffset)
		_, err = io.ReadFull(tr, bufInt64)
		if err != nil {
			return fmt.Errorf("couldn't read offset of oid %s at position %d (layer5): %w", data.oid.String(), entryOffset, err)
		}
		offset := binary.BigEndian.Uint64(bufInt64)
		idx.hashOffset[data.oid] = offset
		currentRelativeOffset++
	}

	// Finally, the footer: the packfile's own checksum, followed by the
	// SHA-1 of everything we just hashed above. A mismatch or short
	// read means the index is truncated or corrupt (§4.D, §7 CORRUPT).
	footer := make([]byte, ginternals.OidSize*2)
	if _, err = io.ReadFull(idx.r, footer); err != nil {
		return fmt.Errorf("could not read index footer: %w", err)
	}
	packSum, err := ginternals.NewOidFromHex(footer[:ginternals.OidSize])
	if err != nil {
		return fmt.Errorf("invalid pack checksum in index footer: %w", err)
	}
	if !bytes.Equal(h.Sum(nil), footer[ginternals.OidSize:]) {
		return fmt.Errorf("index checksum mismatch: %w", ErrChecksumMismatch)
	}
	idx.packSum = packSum

	idx.parsed = true
	return nil
}
