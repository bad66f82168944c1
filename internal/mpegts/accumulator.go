package mpegts

import "sort"

// pidBuffer collects the packets of one PID until a unit is complete.
type pidBuffer struct {
	pid     uint16
	psi     bool
	lastCC  int
	packets []*Packet
}

// push adds p and returns a completed unit, if any. ccError is set when the
// continuity counter jumped without a signalled discontinuity.
func (b *pidBuffer) push(p *Packet) (unit []*Packet, ccError bool) {
	if p.TransportError {
		b.packets = nil
		return nil, false
	}
	// Packets without payload keep the counter unchanged.
	if !p.HasPayload {
		return nil, false
	}

	cc := int(p.ContinuityCounter)
	if b.lastCC >= 0 && !p.Discontinuity {
		switch cc {
		case b.lastCC:
			return nil, false
		case (b.lastCC + 1) & 0x0F:
		default:
			ccError = true
			b.packets = nil
		}
	}
	b.lastCC = cc

	if p.UnitStart && len(b.packets) > 0 {
		unit = b.packets
		b.packets = nil
	}
	if !p.UnitStart && len(b.packets) == 0 {
		// Continuation without a start; nothing to attach it to.
		return unit, ccError
	}
	b.packets = append(b.packets, p)

	if unit == nil && b.psi && sectionComplete(payloadOf(b.packets)) {
		unit = b.packets
		b.packets = nil
	}
	return unit, ccError
}

func payloadOf(packets []*Packet) []byte {
	var out []byte
	for _, p := range packets {
		out = append(out, p.Payload...)
	}
	return out
}

// pidTable holds a pidBuffer per PID and knows which PIDs carry PSI.
type pidTable struct {
	bufs map[uint16]*pidBuffer
	psi  map[uint16]bool
}

func newPIDTable() *pidTable {
	return &pidTable{
		bufs: make(map[uint16]*pidBuffer),
		psi:  map[uint16]bool{PIDPAT: true},
	}
}

func (t *pidTable) markPSI(pid uint16) {
	t.psi[pid] = true
	if b, ok := t.bufs[pid]; ok {
		b.psi = true
	}
}

func (t *pidTable) isPSI(pid uint16) bool { return t.psi[pid] }

func (t *pidTable) push(p *Packet) ([]*Packet, bool) {
	b, ok := t.bufs[p.PID]
	if !ok {
		b = &pidBuffer{pid: p.PID, psi: t.psi[p.PID], lastCC: -1}
		t.bufs[p.PID] = b
	}
	return b.push(p)
}

// drain returns all pending units ordered by PID, so the PAT comes first.
func (t *pidTable) drain() [][]*Packet {
	pids := make([]int, 0, len(t.bufs))
	for pid := range t.bufs {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)

	var out [][]*Packet
	for _, pid := range pids {
		b := t.bufs[uint16(pid)]
		if len(b.packets) > 0 {
			out = append(out, b.packets)
			b.packets = nil
		}
	}
	return out
}
