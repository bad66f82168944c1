package mpegts

import "fmt"

const (
	packetSize = 188
	syncByte   = 0x47
)

// PacketSize is the size of one transport stream packet.
const PacketSize = packetSize

func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) != packetSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), packetSize)
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := &Packet{
		TransportError:    buf[1]&0x80 != 0,
		UnitStart:         buf[1]&0x40 != 0,
		PID:               uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		HasAdaptation:     buf[3]&0x20 != 0,
		HasPayload:        buf[3]&0x10 != 0,
		ContinuityCounter: buf[3] & 0x0F,
	}

	offset := 4
	if p.HasAdaptation {
		afLen := int(buf[4])
		if afLen > 0 {
			flags := buf[5]
			p.Discontinuity = flags&0x80 != 0
			if flags&0x10 != 0 && afLen >= 7 {
				p.PCR = parsePCR(buf[6:12])
				p.HasPCR = true
			}
		}
		offset += 1 + afLen
	}

	if p.HasPayload && offset < packetSize {
		p.Payload = append([]byte(nil), buf[offset:]...)
	}
	return p, nil
}

// parsePCR decodes the 6-byte program_clock_reference field.
func parsePCR(b []byte) uint64 {
	base := uint64(b[0])<<25 | uint64(b[1])<<17 | uint64(b[2])<<9 | uint64(b[3])<<1 | uint64(b[4]>>7)
	ext := uint64(b[4]&0x01)<<8 | uint64(b[5])
	return base*300 + ext
}
