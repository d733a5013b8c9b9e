package packbuild

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // sha1 is git's object/pack id algorithm, not used for security
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/ginternals/object"
	"github.com/goabstract/git/ginternals/packfile"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/xerrors"
)

// Monitor receives progress updates while a pack is written, mirroring
// the "progress reported through a monitor collaborator" requirement
// of §4.E. A nil Monitor disables reporting.
type Monitor interface {
	// OnObject is called once an object has been written, with the
	// running count and the total object count known up front.
	OnObject(done, total int)
}

// Options configures a single Write call.
type Options struct {
	// Thin allows delta bases that are not themselves included in the
	// pack (not yet exercised by Closure, which only enumerates
	// self-contained object sets, but threaded through so a future
	// partial-clone enumerator can opt in without an API break).
	Thin bool
	// Monitor receives progress callbacks, or nil.
	Monitor Monitor
	// Index, if non-nil, is appended with one packfile.IndexEntry per
	// object written (offset + CRC-32), so the caller can build a
	// companion .idx file without re-reading the pack (§4.D/E).
	Index *[]packfile.IndexEntry
	// PackSum, if non-nil, is set to the pack's trailing SHA-1
	// checksum once Write returns successfully.
	PackSum *ginternals.Oid
}

// Write streams a full packfile (header, every object from entries in
// delta-searched order, trailing SHA-1 checksum) to w. It performs one
// pass: ordering, then delta search, then serialization, per §4.E
// ("writer is single-call per instance").
func Write(w io.Writer, entries []*entry, opts Options) error {
	ordered := order(entries)
	resolved := searchDeltas(ordered, opts.Thin)

	position := make([]int64, len(ordered))

	h := sha1.New() //nolint:gosec // see import comment
	tee := io.MultiWriter(w, h)

	if err := writeHeader(tee, len(ordered)); err != nil {
		return err
	}

	var offset int64 = 12 // header size
	for i, e := range ordered {
		position[i] = offset
		n, crc, err := writeEntry(tee, e, resolved[i], position, i)
		if err != nil {
			return xerrors.Errorf("could not write object %s: %w", e.id, err)
		}
		offset += int64(n)

		if opts.Index != nil {
			*opts.Index = append(*opts.Index, packfile.IndexEntry{
				ID:     e.id,
				Offset: uint64(position[i]),
				CRC:    crc,
			})
		}
		if opts.Monitor != nil {
			opts.Monitor.OnObject(i+1, len(ordered))
		}
	}

	sum := h.Sum(nil)
	if _, err := w.Write(sum); err != nil {
		return xerrors.Errorf("could not write pack trailer: %w", err)
	}
	if opts.PackSum != nil {
		id, err := ginternals.NewOidFromHex(sum)
		if err != nil {
			return xerrors.Errorf("could not derive pack checksum: %w", err)
		}
		*opts.PackSum = id
	}
	return nil
}

func writeHeader(w io.Writer, count int) error {
	var buf [12]byte
	copy(buf[0:4], []byte{'P', 'A', 'C', 'K'})
	binary.BigEndian.PutUint32(buf[4:8], 2)
	binary.BigEndian.PutUint32(buf[8:12], uint32(count))
	_, err := w.Write(buf[:])
	return err
}

// writeEntry emits one (header, [base reference], deflated payload)
// triple and returns the number of bytes written plus the CRC-32 of
// those bytes (used for the companion pack index's layer3).
func writeEntry(w io.Writer, e *entry, res resolution, position []int64, index int) (int, uint32, error) {
	var typ object.Type
	var payload []byte
	var extra []byte

	if res.baseIndex < 0 {
		typ = e.typ
		payload = res.data
	} else {
		payload = res.data
		baseOffset := position[index] - position[res.baseIndex]
		typ = object.ObjectDeltaOFS
		extra = writeDeltaOffset(uint64(baseOffset))
	}

	var buf bytes.Buffer
	buf.Write(writeObjectHeader(typ, uint64(len(payload))))
	if extra != nil {
		buf.Write(extra)
	}

	deflated, err := deflate(payload)
	if err != nil {
		return 0, 0, err
	}
	buf.Write(deflated)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return 0, 0, err
	}
	return buf.Len(), crc32.ChecksumIEEE(buf.Bytes()), nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
