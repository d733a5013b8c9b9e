package transport_test

import (
	"errors"
	"io"
	"testing"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceHaves is a transport.HaveSource over a fixed slice, for tests
// that don't need a real revwalk.Walker.
type sliceHaves struct {
	ids []ginternals.Oid
	pos int
}

func (s *sliceHaves) Next() (ginternals.Oid, error) {
	if s.pos >= len(s.ids) {
		return ginternals.NullOid, io.EOF
	}
	id := s.ids[s.pos]
	s.pos++
	return id, nil
}

func idN(b byte) ginternals.Oid {
	var raw [20]byte
	raw[0] = b
	id, _ := ginternals.NewOidFromHex(raw[:])
	return id
}

func TestNegotiatorStopsEarlyOnCommon(t *testing.T) {
	t.Parallel()

	src := &sliceHaves{ids: []ginternals.Oid{idN(1), idN(2), idN(3)}}
	n := transport.NewNegotiator(src)

	require.NoError(t, n.WriteWants(mustWriter(t), []ginternals.Oid{idN(9)}, transport.ParseSet("ofs-delta")))
	assert.Equal(t, transport.StateNegotiate, n.State())

	ids, done, err := n.NextHaveBatch()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.False(t, done)

	n.HandleAck(transport.Ack{ID: idN(2), Status: "common"})

	ids, done, err = n.NextHaveBatch()
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.True(t, done)

	require.NoError(t, n.MarkDone())
	assert.Equal(t, transport.StateReceive, n.State())
	require.NoError(t, n.MarkReceived())
	assert.Equal(t, transport.StateDone, n.State())
}

func TestNegotiatorExhaustsHavesAndSendsDone(t *testing.T) {
	t.Parallel()

	src := &sliceHaves{ids: []ginternals.Oid{idN(1)}}
	n := transport.NewNegotiator(src)
	require.NoError(t, n.WriteWants(mustWriter(t), []ginternals.Oid{idN(9)}, nil))

	ids, done, err := n.NextHaveBatch()
	require.NoError(t, err)
	assert.Equal(t, []ginternals.Oid{idN(1)}, ids)
	assert.False(t, done)

	ids, done, err = n.NextHaveBatch()
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.True(t, done, "exhausted have source should end negotiation")
}

func TestWriteWantsRejectsWrongState(t *testing.T) {
	t.Parallel()

	n := transport.NewNegotiator(&sliceHaves{})
	require.NoError(t, n.WriteWants(mustWriter(t), []ginternals.Oid{idN(9)}, nil))
	err := n.WriteWants(mustWriter(t), []ginternals.Oid{idN(9)}, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
}
