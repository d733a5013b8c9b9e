package pktline

import (
	"errors"
	"fmt"
	"io"
)

// Sideband channel ids (§4.I): the first payload byte of a data frame
// when the sideband/sideband-64k capability is active.
const (
	ChannelPackData byte = 1
	ChannelProgress byte = 2
	ChannelFatal    byte = 3
)

// sidebandMaxChunk is the largest data frame payload once the leading
// channel byte is accounted for.
const sidebandMaxChunk = MaxPayloadSize - 1

// ErrFatal wraps the message carried on the fatal-error sideband
// channel; receiving it aborts the session (§4.I).
var ErrFatal = errors.New("fatal error from remote")

// SidebandWriter multiplexes pack data and progress text onto a
// single pkt-line stream using the sideband channel byte convention.
type SidebandWriter struct {
	pw *Writer
}

// NewSidebandWriter wraps w for sideband-multiplexed writes.
func NewSidebandWriter(w io.Writer) *SidebandWriter {
	return &SidebandWriter{pw: NewWriter(w)}
}

// WriteChannel writes payload on the given channel, chunked so no
// frame exceeds the pkt-line payload limit.
func (sw *SidebandWriter) WriteChannel(channel byte, payload []byte) error {
	for len(payload) > 0 {
		n := len(payload)
		if n > sidebandMaxChunk {
			n = sidebandMaxChunk
		}
		frame := make([]byte, 1+n)
		frame[0] = channel
		copy(frame[1:], payload[:n])
		if err := sw.pw.WriteData(frame); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// WritePack writes a pack-data chunk (channel 1).
func (sw *SidebandWriter) WritePack(p []byte) error { return sw.WriteChannel(ChannelPackData, p) }

// WriteProgress writes a progress message (channel 2).
func (sw *SidebandWriter) WriteProgress(p []byte) error { return sw.WriteChannel(ChannelProgress, p) }

// WriteFatal writes a fatal error message (channel 3); the caller
// should stop writing and close the connection after this returns.
func (sw *SidebandWriter) WriteFatal(p []byte) error { return sw.WriteChannel(ChannelFatal, p) }

// Flush writes the terminating flush packet.
func (sw *SidebandWriter) Flush() error { return sw.pw.WriteFlush() }

// SidebandDemuxer splits an incoming sideband-multiplexed pkt-line
// stream back into its pack-data and progress channels: Next and
// ReadAll return channel 1 data, and channel 2 goes to a callback.
type SidebandDemuxer struct {
	pr       *Reader
	Progress func([]byte)
}

// NewSidebandDemuxer wraps r for sideband demultiplexing. Progress
// may be left nil to discard progress messages.
func NewSidebandDemuxer(r io.Reader, progress func([]byte)) *SidebandDemuxer {
	return &SidebandDemuxer{pr: NewReader(r), Progress: progress}
}

// Next reads the next pack-data chunk, transparently routing any
// interleaved progress frames to Progress. Returns io.EOF once a
// flush packet is observed. A fatal-channel frame returns ErrFatal
// wrapping the remote's message, and aborts the session per §4.I.
func (d *SidebandDemuxer) Next() ([]byte, error) {
	for {
		pkt, err := d.pr.ReadPacket()
		if err != nil {
			return nil, err
		}
		switch pkt.Type {
		case Flush:
			return nil, io.EOF
		case Delim, ResponseEnd:
			return nil, io.EOF
		case Data:
			if len(pkt.Payload) == 0 {
				continue
			}
			channel, body := pkt.Payload[0], pkt.Payload[1:]
			switch channel {
			case ChannelPackData:
				return body, nil
			case ChannelProgress:
				if d.Progress != nil {
					d.Progress(body)
				}
			case ChannelFatal:
				return nil, fmt.Errorf("%s: %w", body, ErrFatal)
			default:
				return nil, fmt.Errorf("unknown sideband channel %d: %w", channel, ErrInvalidLength)
			}
		}
	}
}

// ReadAll drains the demuxer, returning the concatenated pack-data
// stream. Used by the fetch client when it doesn't need to stream the
// pack incrementally into the pack indexer.
func (d *SidebandDemuxer) ReadAll() ([]byte, error) {
	var out []byte
	for {
		chunk, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}
