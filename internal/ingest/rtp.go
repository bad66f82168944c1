package ingest

import (
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtp"
)

const (
	payloadTypeMP2T = 33
	tsPacketSize    = 188
)

var errNotMP2T = errors.New("ingest: RTP payload is not MPEG-TS")

// Depacketizer strips RTP headers from the datagrams of one stream and
// tracks sequence continuity.
type Depacketizer struct {
	stream  *Stream
	w       io.Writer
	haveSeq bool
	nextSeq uint16
	pkt     rtp.Packet
}

// NewDepacketizer writes the transport stream carried by stream's RTP
// packets to w.
func NewDepacketizer(stream *Stream, w io.Writer) *Depacketizer {
	return &Depacketizer{stream: stream, w: w}
}

// Write handles one datagram. Malformed packets are counted and skipped;
// only a failing writer returns an error.
func (d *Depacketizer) Write(datagram []byte) error {
	d.stream.RecordRead(len(datagram))

	payload, err := d.unwrap(datagram)
	if err != nil {
		d.stream.rejected.Add(1)
		return nil
	}
	if _, err := d.w.Write(payload); err != nil {
		return fmt.Errorf("forward transport stream: %w", err)
	}
	return nil
}

func (d *Depacketizer) unwrap(datagram []byte) ([]byte, error) {
	if err := d.pkt.Unmarshal(datagram); err != nil {
		return nil, err
	}
	if d.pkt.PayloadType != payloadTypeMP2T || len(d.pkt.Payload)%tsPacketSize != 0 {
		return nil, errNotMP2T
	}
	d.stream.rtpPackets.Add(1)

	seq := d.pkt.SequenceNumber
	if d.haveSeq && seq != d.nextSeq {
		// Signed distance handles wraparound.
		if gap := int16(seq - d.nextSeq); gap > 0 {
			d.stream.lost.Add(int64(gap))
		} else {
			d.stream.reordered.Add(1)
			return d.pkt.Payload, nil
		}
	}
	d.haveSeq = true
	d.nextSeq = seq + 1
	return d.pkt.Payload, nil
}
