package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goabstract/git/ginternals"
	"github.com/goabstract/git/pktline"
)

// v2 fetch command argument keys (§4.J): the "fetch" command's
// argument lines, distinct from the v0/v1 line grammar handled by
// Negotiator. Grounded on the pack's bored-engineer-git-protocol-v2
// reference implementation of the same request/response shape.
const (
	ArgWant         = "want"
	ArgWantRef      = "want-ref"
	ArgHave         = "have"
	ArgDone         = "done"
	ArgThinPack     = "thin-pack"
	ArgNoProgress   = "no-progress"
	ArgIncludeTag   = "include-tag"
	ArgOFSDelta     = "ofs-delta"
	ArgShallow      = "shallow"
	ArgDeepen       = "deepen"
	ArgDeepenSince  = "deepen-since"
	ArgDeepenNot    = "deepen-not"
	ArgFilter       = "filter"
	ArgSidebandAll  = "sideband-all"
	ArgPackfileURIs = "packfile-uris"
	ArgWaitForDone  = "wait-for-done"
	ArgServerOption = "server-option"
	ArgAgent        = "agent"
	ArgSessionID    = "session-id"
)

// FetchV2Request builds one "command=fetch" request (§4.J's v2
// argument-line list). Unlike the v0/v1 Negotiator, v2 fetch is
// stateless request/response: a request carries its own wants/haves
// and the caller decides from the response whether to issue another.
type FetchV2Request struct {
	Wants         []ginternals.Oid
	WantRefs      []string
	Haves         []ginternals.Oid
	Done          bool
	Shallows      []ginternals.Oid
	Deepen        int
	DeepenSince   int64
	DeepenNot     []string
	Filter        string
	ThinPack      bool
	NoProgress    bool
	IncludeTag    bool
	OFSDelta      bool
	SidebandAll   bool
	PackfileURIs  bool
	WaitForDone   bool
	ServerOptions []string
	Agent         string
	SessionID     string
}

// Write emits the command-request: "command=fetch", the negotiated
// capability list, a delim, the argument lines, then a flush (§4.J,
// matching the command.go/arguments.go grammar of the reference
// implementation).
func (r FetchV2Request) Write(w *pktline.Writer, caps Set) error {
	if err := w.WriteData([]byte("command=fetch\n")); err != nil {
		return err
	}
	for _, c := range caps {
		if err := w.WriteData([]byte(c.String() + "\n")); err != nil {
			return err
		}
	}
	if err := w.WriteDelim(); err != nil {
		return err
	}

	writeArg := func(line string) error { return w.WriteData([]byte(line + "\n")) }

	for _, id := range r.Wants {
		if err := writeArg(ArgWant + " " + id.String()); err != nil {
			return err
		}
	}
	for _, ref := range r.WantRefs {
		if err := writeArg(ArgWantRef + " " + ref); err != nil {
			return err
		}
	}
	for _, id := range r.Haves {
		if err := writeArg(ArgHave + " " + id.String()); err != nil {
			return err
		}
	}
	for _, id := range r.Shallows {
		if err := writeArg(ArgShallow + " " + id.String()); err != nil {
			return err
		}
	}
	if r.Deepen > 0 {
		if err := writeArg(fmt.Sprintf("%s %d", ArgDeepen, r.Deepen)); err != nil {
			return err
		}
	}
	if r.DeepenSince > 0 {
		if err := writeArg(fmt.Sprintf("%s %d", ArgDeepenSince, r.DeepenSince)); err != nil {
			return err
		}
	}
	for _, rev := range r.DeepenNot {
		if err := writeArg(ArgDeepenNot + " " + rev); err != nil {
			return err
		}
	}
	if r.Filter != "" {
		if err := writeArg(ArgFilter + " " + r.Filter); err != nil {
			return err
		}
	}
	if r.ThinPack {
		if err := writeArg(ArgThinPack); err != nil {
			return err
		}
	}
	if r.NoProgress {
		if err := writeArg(ArgNoProgress); err != nil {
			return err
		}
	}
	if r.IncludeTag {
		if err := writeArg(ArgIncludeTag); err != nil {
			return err
		}
	}
	if r.OFSDelta {
		if err := writeArg(ArgOFSDelta); err != nil {
			return err
		}
	}
	if r.SidebandAll {
		if err := writeArg(ArgSidebandAll); err != nil {
			return err
		}
	}
	if r.PackfileURIs {
		if err := writeArg(ArgPackfileURIs); err != nil {
			return err
		}
	}
	if r.WaitForDone {
		if err := writeArg(ArgWaitForDone); err != nil {
			return err
		}
	}
	for _, opt := range r.ServerOptions {
		if err := writeArg(ArgServerOption + " " + opt); err != nil {
			return err
		}
	}
	if r.Agent != "" {
		if err := writeArg(ArgAgent + "=" + r.Agent); err != nil {
			return err
		}
	}
	if r.SessionID != "" {
		if err := writeArg(ArgSessionID + "=" + r.SessionID); err != nil {
			return err
		}
	}
	if r.Done {
		if err := writeArg(ArgDone); err != nil {
			return err
		}
	}

	return w.WriteFlush()
}

// Acknowledgments is the v2 "acknowledgments" response section.
type Acknowledgments struct {
	NAK   bool
	Ready bool
	ACKs  []ginternals.Oid
}

// ShallowInfo is the v2 "shallow-info" response section.
type ShallowInfo struct {
	Shallow   []ginternals.Oid
	Unshallow []ginternals.Oid
}

// WantedRef is one line of the v2 "wanted-refs" response section.
type WantedRef struct {
	ID   ginternals.Oid
	Name string
}

// FetchV2Response is the fully parsed response to a "command=fetch"
// request: zero or more named sections, terminated by the "packfile"
// section whose body is the (optionally sideband-multiplexed) pack
// stream (§4.J).
type FetchV2Response struct {
	Acknowledgments Acknowledgments
	ShallowInfo     ShallowInfo
	WantedRefs      []WantedRef
}

// ErrProtocol reports a malformed or out-of-sequence v2 response
// section.
var ErrProtocol = errors.New("protocol: malformed v2 fetch response")

// ParseFetchV2Response reads the response sections from r up to and
// including the "packfile" header, writing the demultiplexed pack
// bytes to pack (and, if non-nil, progress text to progress). sideband
// selects whether the packfile section is sideband-multiplexed
// (true whenever side-band/side-band-64k was negotiated).
func ParseFetchV2Response(r io.Reader, pack io.Writer, progress func([]byte), sideband bool) (*FetchV2Response, error) {
	pr := pktline.NewReader(r)
	resp := &FetchV2Response{}

	for {
		pkt, err := pr.ReadPacket()
		if err != nil {
			return nil, err
		}
		if pkt.Type != pktline.Data {
			// A stray delim between sections; keep reading for the
			// next section header.
			continue
		}

		switch string(bytes.TrimSuffix(pkt.Payload, []byte("\n"))) {
		case "acknowledgments":
			if err := parseAcknowledgments(pr, &resp.Acknowledgments); err != nil {
				return nil, err
			}
		case "shallow-info":
			if err := parseShallowInfo(pr, &resp.ShallowInfo); err != nil {
				return nil, err
			}
		case "wanted-refs":
			if err := parseWantedRefs(pr, &resp.WantedRefs); err != nil {
				return nil, err
			}
		case "packfile-uris":
			if err := skipSection(pr); err != nil {
				return nil, err
			}
		case "packfile":
			if err := copyPackfileSection(pr, pack, progress, sideband); err != nil {
				return nil, err
			}
			return resp, nil
		default:
			return nil, fmt.Errorf("%w: unexpected section %q", ErrProtocol, pkt.Payload)
		}
	}
}

func parseAcknowledgments(pr *pktline.Reader, out *Acknowledgments) error {
	for {
		pkt, err := pr.ReadPacket()
		if err != nil {
			return err
		}
		if pkt.Type != pktline.Data {
			return nil
		}
		line := string(bytes.TrimSuffix(pkt.Payload, []byte("\n")))
		switch {
		case line == "NAK":
			out.NAK = true
		case line == "ready":
			out.Ready = true
		case len(line) > 4 && line[:4] == "ACK ":
			id, err := ginternals.NewOidFromStr(line[4:])
			if err != nil {
				return fmt.Errorf("%w: invalid ACK: %v", ErrProtocol, err)
			}
			out.ACKs = append(out.ACKs, id)
		default:
			return fmt.Errorf("%w: invalid acknowledgments line %q", ErrProtocol, line)
		}
	}
}

func parseShallowInfo(pr *pktline.Reader, out *ShallowInfo) error {
	for {
		pkt, err := pr.ReadPacket()
		if err != nil {
			return err
		}
		if pkt.Type != pktline.Data {
			return nil
		}
		line := string(bytes.TrimSuffix(pkt.Payload, []byte("\n")))
		switch {
		case len(line) > 8 && line[:8] == "shallow ":
			id, err := ginternals.NewOidFromStr(line[8:])
			if err != nil {
				return fmt.Errorf("%w: invalid shallow: %v", ErrProtocol, err)
			}
			out.Shallow = append(out.Shallow, id)
		case len(line) > 10 && line[:10] == "unshallow ":
			id, err := ginternals.NewOidFromStr(line[10:])
			if err != nil {
				return fmt.Errorf("%w: invalid unshallow: %v", ErrProtocol, err)
			}
			out.Unshallow = append(out.Unshallow, id)
		default:
			return fmt.Errorf("%w: invalid shallow-info line %q", ErrProtocol, line)
		}
	}
}

func parseWantedRefs(pr *pktline.Reader, out *[]WantedRef) error {
	for {
		pkt, err := pr.ReadPacket()
		if err != nil {
			return err
		}
		if pkt.Type != pktline.Data {
			return nil
		}
		line := bytes.TrimSuffix(pkt.Payload, []byte("\n"))
		idStr, name, ok := bytes.Cut(line, []byte(" "))
		if !ok {
			return fmt.Errorf("%w: invalid wanted-ref line %q", ErrProtocol, line)
		}
		id, err := ginternals.NewOidFromStr(string(idStr))
		if err != nil {
			return fmt.Errorf("%w: invalid wanted-ref id: %v", ErrProtocol, err)
		}
		*out = append(*out, WantedRef{ID: id, Name: string(name)})
	}
}

// skipSection drains an unhandled section (e.g. packfile-uris, whose
// payload this client never downloads from) up to its terminator.
func skipSection(pr *pktline.Reader) error {
	for {
		pkt, err := pr.ReadPacket()
		if err != nil {
			return err
		}
		if pkt.Type != pktline.Data {
			return nil
		}
	}
}

// copyPackfileSection copies the packfile section body into pack,
// demultiplexing sideband channels first if active.
func copyPackfileSection(pr *pktline.Reader, pack io.Writer, progress func([]byte), sideband bool) error {
	if !sideband {
		for {
			pkt, err := pr.ReadPacket()
			if err != nil {
				return err
			}
			if pkt.Type != pktline.Data {
				return nil
			}
			if _, err := pack.Write(pkt.Payload); err != nil {
				return err
			}
		}
	}

	for {
		pkt, err := pr.ReadPacket()
		if err != nil {
			return err
		}
		if pkt.Type != pktline.Data {
			return nil
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		channel, body := pkt.Payload[0], pkt.Payload[1:]
		switch channel {
		case pktline.ChannelPackData:
			if _, err := pack.Write(body); err != nil {
				return err
			}
		case pktline.ChannelProgress:
			if progress != nil {
				progress(body)
			}
		case pktline.ChannelFatal:
			return fmt.Errorf("%s: %w", body, pktline.ErrFatal)
		default:
			return fmt.Errorf("%w: unknown sideband channel %d", ErrProtocol, channel)
		}
	}
}
