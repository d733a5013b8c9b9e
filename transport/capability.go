// Package transport implements the smart-transfer protocol engine
// (§4.J): capability negotiation, the v0/v1 and v2 fetch state
// machines, receive-pack (push), and the scheme registry that maps a
// remote URL to a concrete transport opener (§6). The wire grammar
// (capability lines, key[=value] pairs) follows the same shape as
// protocol v2's capability-advertisement, grounded on the pack's
// bored-engineer-git-protocol-v2 reference implementation.
package transport

import (
	"strings"

	"github.com/google/uuid"
)

// Minimum capability set the engine understands (§4.J).
const (
	CapMultiAck                  = "multi_ack"
	CapMultiAckDetailed          = "multi_ack_detailed"
	CapSideBand                  = "side-band"
	CapSideBand64k               = "side-band-64k"
	CapOFSDelta                  = "ofs-delta"
	CapThinPack                  = "thin-pack"
	CapNoProgress                = "no-progress"
	CapIncludeTag                = "include-tag"
	CapAllowTipSHA1InWant       = "allow-tip-sha1-in-want"
	CapAllowReachableSHA1InWant = "allow-reachable-sha1-in-want"
	CapShallow                  = "shallow"
	CapDeepenSince              = "deepen-since"
	CapDeepenNot                = "deepen-not"
	CapDeepenRelative           = "deepen-relative"
	CapFilter                   = "filter"
	CapObjectFormat             = "object-format"
	CapAgent                    = "agent"
	CapSessionID                = "session-id" // v2 only
	CapWaitForDone              = "wait-for-done"
	CapSidebandAll              = "sideband-all"
	CapPackfileURIs             = "packfile-uris"
	CapReportStatus             = "report-status"
	CapAtomic                   = "atomic"
	CapPushOptions              = "push-options"
)

// Capability is a single "key[=value]" entry in a capability list.
type Capability struct {
	Key   string
	Value string
}

// String renders the capability the way it appears on the wire.
func (c Capability) String() string {
	if c.Value == "" {
		return c.Key
	}
	return c.Key + "=" + c.Value
}

// Set is an ordered capability list, parsed from (or destined for) the
// NUL-separated tail of the first ref advertisement line (v0/v1) or
// the space-separated argument lines of a v2 command.
type Set []Capability

// ParseSet splits a space-separated capability string (as carried
// after the NUL on a v0/v1 first ref-advertisement line, or a v2
// capability-advertisement line) into a Set.
func ParseSet(s string) Set {
	fields := strings.Fields(s)
	out := make(Set, 0, len(fields))
	for _, f := range fields {
		key, value, _ := strings.Cut(f, "=")
		out = append(out, Capability{Key: key, Value: value})
	}
	return out
}

// String renders the set back to its wire form.
func (s Set) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Has reports whether key is present in the set.
func (s Set) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Get returns the value associated with key, and whether it was present.
func (s Set) Get(key string) (string, bool) {
	for _, c := range s {
		if c.Key == key {
			return c.Value, true
		}
	}
	return "", false
}

// NewSessionID returns a fresh value for the v2 "session-id" capability
// (§4.J), a client-chosen opaque token servers may echo into logs to
// correlate a fetch/push with its advertisement round-trip.
func NewSessionID() string {
	return uuid.NewString()
}

// Intersect returns the capabilities in s that are also present in
// other, preserving s's order. Used to compute what a client may
// actually request given what a server advertised.
func (s Set) Intersect(other Set) Set {
	var out Set
	for _, c := range s {
		if other.Has(c.Key) {
			out = append(out, c)
		}
	}
	return out
}
