package mpegts

import (
	"context"
	"errors"
	"io"
)

// Demuxer reads a transport stream and yields its PAT, PMT, PES and PCR
// units in stream order.
type Demuxer struct {
	ctx     context.Context
	r       io.Reader
	buf     []byte
	pids    *pidTable
	pending []*DemuxerData
	hook    func(*Packet)
	stats   DemuxerStats
	eof     bool
}

// NewDemuxer creates a demuxer reading 188-byte packets from r.
func NewDemuxer(ctx context.Context, r io.Reader, opts ...func(*Demuxer)) *Demuxer {
	d := &Demuxer{
		ctx:  ctx,
		r:    r,
		buf:  make([]byte, packetSize),
		pids: newPIDTable(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DemuxerOptPacketHook registers a callback that sees every parsed packet
// before reassembly.
func DemuxerOptPacketHook(fn func(*Packet)) func(*Demuxer) {
	return func(d *Demuxer) {
		d.hook = fn
	}
}

// Stats returns counters for everything read so far.
func (d *Demuxer) Stats() DemuxerStats { return d.stats }

// NextData returns the next unit. It returns io.EOF once the reader is
// exhausted and every pending unit has been returned.
func (d *Demuxer) NextData() (*DemuxerData, error) {
	for len(d.pending) == 0 {
		if d.eof {
			return nil, io.EOF
		}
		if err := d.ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := io.ReadFull(d.r, d.buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				for _, unit := range d.pids.drain() {
					d.emit(unit)
				}
				continue
			}
			return nil, err
		}
		d.stats.Packets++

		pkt, err := parsePacket(d.buf)
		if err != nil {
			d.stats.CorruptPackets++
			continue
		}
		if d.hook != nil {
			d.hook(pkt)
		}
		if pkt.HasPCR {
			d.pending = append(d.pending, &DemuxerData{PID: pkt.PID, PCR: &PCR{Value: pkt.PCR}})
		}

		unit, ccErr := d.pids.push(pkt)
		if ccErr {
			d.stats.CCErrors++
		}
		if unit != nil {
			d.emit(unit)
		}
	}

	next := d.pending[0]
	d.pending = d.pending[1:]
	return next, nil
}

// emit parses a completed unit and queues the results.
func (d *Demuxer) emit(unit []*Packet) {
	pid := unit[0].PID
	payload := payloadOf(unit)
	if len(payload) == 0 {
		return
	}

	if d.pids.isPSI(pid) {
		results, _ := parseSections(pid, payload)
		for _, r := range results {
			d.stats.PSI++
			if r.PAT != nil {
				for _, prog := range r.PAT.Programs {
					d.pids.markPSI(prog.PMTPID)
				}
			}
		}
		d.pending = append(d.pending, results...)
		return
	}

	if !hasPESStartCode(payload) {
		return
	}
	pes, err := parsePES(payload)
	if err != nil {
		return
	}
	d.stats.PES++
	d.pending = append(d.pending, &DemuxerData{PID: pid, PES: pes})
}
