// Package delta implements the variable-length delta encoding used by
// git packfiles: a DeltaIndex scanner/encoder that turns a (source,
// result) pair of byte buffers into a compact copy/insert instruction
// stream, and an Apply function that reverses the transformation.
//
// The wire format is the one documented by git's pack-format: a varint
// source-length, a varint result-length, then a stream of copy/insert
// instructions (see Apply for the exact bit layout).
package delta

import "errors"

var (
	// ErrCorrupt is returned by Apply when the instruction stream is
	// malformed: a length mismatch against the header, an out-of-range
	// copy, or the reserved opcode 0.
	ErrCorrupt = errors.New("corrupt delta")

	// ErrOutputTooLarge names the condition of a caller-supplied size
	// limit being exceeded by the encoded output. Encode itself does not
	// return it: it reports that condition by returning ok == false.
	ErrOutputTooLarge = errors.New("delta output exceeds size limit")
)

// blockSize is the width, in bytes, of the blocks the index hashes and
// matches on. Matches shorter than this are never worth a copy
// instruction (the copy opcode itself costs several bytes).
const blockSize = 16

// maxChainLength bounds how many source offsets sharing the same hash
// bucket are checked for a candidate match, keeping encode time linear
// in the combined buffer size instead of quadratic on pathological
// repetitive input (§4.C).
const maxChainLength = 64

// maxCopySize is the largest single copy instruction's size operand.
// Longer matches are split across consecutive copy instructions; this
// mirrors canonical git's encoder and keeps every size operand
// representable in the 3 size bytes the format allows per instruction.
const maxCopySize = 0x10000

// maxInsertSize is the largest single insert instruction's literal
// run; the low 7 bits of an insert opcode byte cap it at 127.
const maxInsertSize = 0x7f
