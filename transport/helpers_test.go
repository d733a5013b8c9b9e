package transport_test

import (
	"bytes"
	"testing"

	"github.com/goabstract/git/pktline"
)

// mustWriter returns a pktline.Writer over a fresh, discarded buffer —
// negotiate tests only care about the Negotiator's state transitions,
// not the bytes written.
func mustWriter(t *testing.T) *pktline.Writer {
	t.Helper()
	return pktline.NewWriter(&bytes.Buffer{})
}
