package delta_test

import (
	"bytes"
	"testing"

	"github.com/goabstract/git/delta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeApplyRoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		desc string
		src  []byte
		dst  []byte
	}{
		{
			desc: "identical buffers",
			src:  bytes.Repeat([]byte("abcdefgh"), 100),
			dst:  bytes.Repeat([]byte("abcdefgh"), 100),
		},
		{
			desc: "middle replaced",
			src:  bytes.Repeat([]byte{'a'}, 4096),
			dst: func() []byte {
				b := bytes.Repeat([]byte{'a'}, 4096)
				copy(b[2048:2056], []byte("ZZZZZZZZ"))
				return b
			}(),
		},
		{
			desc: "append",
			src:  []byte("the quick brown fox jumps over the lazy dog, again and again"),
			dst:  []byte("the quick brown fox jumps over the lazy dog, again and again and again"),
		},
		{
			desc: "prepend",
			src:  []byte("the quick brown fox jumps over the lazy dog"),
			dst:  []byte("once upon a time, the quick brown fox jumps over the lazy dog"),
		},
		{
			desc: "totally different, small",
			src:  []byte("abc"),
			dst:  []byte("xyz"),
		},
		{
			desc: "empty source",
			src:  []byte{},
			dst:  []byte("hello"),
		},
		{
			desc: "empty result",
			src:  []byte("hello"),
			dst:  []byte{},
		},
		{
			desc: "both empty",
			src:  []byte{},
			dst:  []byte{},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			idx := delta.NewDeltaIndex(tc.src)
			encoded, ok := idx.Encode(tc.dst, 0)
			require.True(t, ok)

			got, err := delta.Apply(tc.src, encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.dst, got)
		})
	}
}

func TestEncodeSmallReplacementBound(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte{'a'}, 4096)
	dst := bytes.Repeat([]byte{'a'}, 4096)
	copy(dst[2048:2056], []byte("ZZZZZZZZ"))

	idx := delta.NewDeltaIndex(src)
	encoded, ok := idx.Encode(dst, 0)
	require.True(t, ok)
	assert.LessOrEqual(t, len(encoded), 40, "delta for a single small replacement should stay compact")
}

func TestEncodeSizeLimitAborts(t *testing.T) {
	t.Parallel()

	src := []byte("abc")
	dst := bytes.Repeat([]byte("xyz123"), 1000)

	idx := delta.NewDeltaIndex(src)
	_, ok := idx.Encode(dst, 4)
	assert.False(t, ok)
}

func TestApplyRejectsSourceLengthMismatch(t *testing.T) {
	t.Parallel()

	src := []byte("hello world")
	idx := delta.NewDeltaIndex(src)
	encoded, ok := idx.Encode([]byte("hello there"), 0)
	require.True(t, ok)

	_, err := delta.Apply([]byte("hello"), encoded)
	assert.ErrorIs(t, err, delta.ErrCorrupt)
}

func TestApplyRejectsReservedOpcode(t *testing.T) {
	t.Parallel()

	// varint(0) varint(0) then a single reserved 0x00 instruction byte.
	bad := []byte{0x00, 0x00, 0x00}
	_, err := delta.Apply(nil, bad)
	assert.ErrorIs(t, err, delta.ErrCorrupt)
}

func TestApplyRejectsOutOfRangeCopy(t *testing.T) {
	t.Parallel()

	// varint(3) varint(5), then a copy instruction (cmd=0x91: offset
	// byte present, size byte present) reading past the 3-byte source.
	bad := []byte{3, 5, 0x91, 0, 5}
	_, err := delta.Apply([]byte("abc"), bad)
	assert.ErrorIs(t, err, delta.ErrCorrupt)
}
