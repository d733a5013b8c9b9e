package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/pktline"
	"github.com/goabstract/git/revwalk"
)

// State is one of the client-side fetch negotiation states (§4.J's
// state table).
type State int

const (
	StateInit State = iota
	StateNegotiate
	StateReceive
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateNegotiate:
		return "NEGOTIATE"
	case StateReceive:
		return "RECEIVE"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// maxHaveRounds bounds negotiation: after this many doubling rounds
// (32, 64, 128, 256, 256, ...) the client gives up waiting for a
// common base and sends done unconditionally (§4.J).
const maxHaveRounds = 8

// initialHaveBatch and maxHaveBatch bound the per-round have count;
// each round doubles the previous batch size up to the cap.
const (
	initialHaveBatch = 32
	maxHaveBatch     = 256
)

// Ack is one server acknowledgment line parsed during negotiation.
type Ack struct {
	ID     ginternals.Oid
	Status string // "", "continue", "common", "ready"
}

// HaveSource supplies candidate "have" ids in commit-time order;
// NewHaveSource adapts a revwalk.Walker over the local refs into one.
type HaveSource interface {
	Next() (ginternals.Oid, error)
}

// walkerHaveSource adapts a revwalk.Walker (which yields *object.Commit)
// into a HaveSource of ids.
type walkerHaveSource struct {
	w *revwalk.Walker
}

// NewHaveSource wraps a revwalk.Walker seeded with the local refs as
// roots so Negotiator can pull haves from it in commit-time order.
func NewHaveSource(w *revwalk.Walker) HaveSource {
	return walkerHaveSource{w: w}
}

func (h walkerHaveSource) Next() (ginternals.Oid, error) {
	c, err := h.w.Next()
	if err != nil {
		return ginternals.NullOid, err
	}
	return c.ID(), nil
}

// Negotiator drives the v0/v1 fetch client state machine described in
// §4.J: it emits wants once, then have batches of doubling size until
// the server reports a common ancestor or the round cap is hit, then
// sends done.
type Negotiator struct {
	haves HaveSource

	state      State
	round      int
	batch      int
	gotCommon  bool
	sentDone   bool
}

// NewNegotiator returns a Negotiator that draws haves from src.
func NewNegotiator(src HaveSource) *Negotiator {
	return &Negotiator{haves: src, state: StateInit, batch: initialHaveBatch}
}

// State reports the negotiator's current state.
func (n *Negotiator) State() State { return n.state }

// WriteWants emits the initial want lines (capabilities on the first
// one only) and transitions INIT -> NEGOTIATE.
func (n *Negotiator) WriteWants(w *pktline.Writer, wants []ginternals.Oid, caps Set) error {
	if n.state != StateInit {
		return fmt.Errorf("WriteWants called in state %s, want %s", n.state, StateInit)
	}
	for i, id := range wants {
		line := "want " + id.String()
		if i == 0 && len(caps) > 0 {
			line += " " + caps.String()
		}
		if err := w.WriteData([]byte(line + "\n")); err != nil {
			return err
		}
	}
	if err := w.WriteFlush(); err != nil {
		return err
	}
	n.state = StateNegotiate
	return nil
}

// NextHaveBatch returns the next round's have lines (possibly empty if
// the source is exhausted) along with whether this round should end
// with "done" instead of a flush. The caller writes the returned lines
// followed by a flush (or "done") and then reads the server's
// ACK/NAK response via HandleAck.
func (n *Negotiator) NextHaveBatch() (ids []ginternals.Oid, done bool, err error) {
	if n.state != StateNegotiate {
		return nil, false, fmt.Errorf("NextHaveBatch called in state %s, want %s", n.state, StateNegotiate)
	}

	for i := 0; i < n.batch; i++ {
		id, err := n.haves.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, err
		}
		ids = append(ids, id)
	}

	n.round++
	if n.batch < maxHaveBatch {
		n.batch *= 2
		if n.batch > maxHaveBatch {
			n.batch = maxHaveBatch
		}
	}

	done = len(ids) == 0 || n.round >= maxHaveRounds || n.gotCommon
	return ids, done, nil
}

// HandleAck processes one parsed ACK/NAK line from the server,
// updating negotiation state per the table: a "common" or "ready"
// status means further haves are unnecessary and the next round should
// send done.
func (n *Negotiator) HandleAck(ack Ack) {
	switch ack.Status {
	case "common", "ready":
		n.gotCommon = true
	case "continue", "":
		// keep negotiating
	}
}

// MarkDone transitions NEGOTIATE -> RECEIVE once "done" has been sent.
func (n *Negotiator) MarkDone() error {
	if n.state != StateNegotiate {
		return fmt.Errorf("MarkDone called in state %s, want %s", n.state, StateNegotiate)
	}
	n.sentDone = true
	n.state = StateReceive
	return nil
}

// MarkReceived transitions RECEIVE -> DONE once the pack stream has
// been fully parsed and indexed.
func (n *Negotiator) MarkReceived() error {
	if n.state != StateReceive {
		return fmt.Errorf("MarkReceived called in state %s, want %s", n.state, StateReceive)
	}
	n.state = StateDone
	return nil
}

// Fail transitions to FAILED from any state, preserving n so the
// caller can inspect how far negotiation got before cleaning up.
func (n *Negotiator) Fail() {
	n.state = StateFailed
}
