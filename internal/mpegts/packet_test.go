package mpegts

import "testing"

func makePacket(pid uint16, cc uint8, unitStart bool, payload []byte) []byte {
	buf := make([]byte, packetSize)
	buf[0] = syncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | cc&0x0F
	if unitStart {
		buf[1] |= 0x40
	}
	copy(buf[4:], payload)
	return buf
}

func makePCRPacket(pcr uint64) []byte {
	return writePCR(nil, pcr)[:packetSize:packetSize]
}

func TestParsePacket(t *testing.T) {
	t.Parallel()

	p, err := parsePacket(makePacket(0x1011, 5, true, []byte{0x01, 0x02, 0x03}))
	if err != nil {
		t.Fatal(err)
	}
	if p.PID != 0x1011 {
		t.Errorf("PID = 0x%X, want 0x1011", p.PID)
	}
	if p.ContinuityCounter != 5 {
		t.Errorf("CC = %d, want 5", p.ContinuityCounter)
	}
	if !p.UnitStart || !p.HasPayload || p.HasAdaptation {
		t.Errorf("flags = %+v", p)
	}
	if len(p.Payload) != 184 || p.Payload[2] != 0x03 {
		t.Errorf("payload length = %d", len(p.Payload))
	}
}

func TestParsePacketPCR(t *testing.T) {
	t.Parallel()

	const pcr = 27_000_000*3 + 299
	p, err := parsePacket(makePCRPacket(pcr))
	if err != nil {
		t.Fatal(err)
	}
	if !p.HasPCR {
		t.Fatal("HasPCR should be true")
	}
	if p.PCR != pcr {
		t.Errorf("PCR = %d, want %d", p.PCR, pcr)
	}
	if p.HasPayload || p.Payload != nil {
		t.Error("PCR packet should carry no payload")
	}
	if p.PID != PIDPCR {
		t.Errorf("PID = 0x%X, want 0x%X", p.PID, PIDPCR)
	}
}

func TestParsePacketErrors(t *testing.T) {
	t.Parallel()

	bad := make([]byte, packetSize)
	if _, err := parsePacket(bad); err == nil {
		t.Error("expected error for bad sync byte")
	}
	if _, err := parsePacket([]byte{0x47, 0x00, 0x00}); err == nil {
		t.Error("expected error for short packet")
	}

	tei := makePacket(0x100, 0, false, nil)
	tei[1] |= 0x80
	p, err := parsePacket(tei)
	if err != nil {
		t.Fatal(err)
	}
	if !p.TransportError {
		t.Error("TransportError should be true")
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	for _, pts := range []int64{0, 90000, 1<<33 - 1, 0x1_2345_6789 & (1<<33 - 1)} {
		b := []byte{
			0x20 | byte(pts>>30)&0x07<<1 | 1,
			byte(pts >> 22),
			byte(pts>>15)&0x7F<<1 | 1,
			byte(pts >> 7),
			byte(pts)&0x7F<<1 | 1,
		}
		if got := parseTimestamp(b); got != pts {
			t.Errorf("parseTimestamp = %d, want %d", got, pts)
		}
	}
}
