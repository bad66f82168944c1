package mpegts

import "fmt"

func hasPESStartCode(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// streamHasOptionalHeader reports whether a PES with this stream id carries
// the optional header: all but padding, private_stream_2, ECM, EMM,
// DSM-CC, H.222.1 type E and the program stream directory.
func streamHasOptionalHeader(id uint8) bool {
	switch id {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(payload []byte) (*PES, error) {
	if len(payload) < 6 || !hasPESStartCode(payload) {
		return nil, fmt.Errorf("mpegts: invalid PES header")
	}

	pes := &PES{
		StreamID: payload[3],
		Length:   int(payload[4])<<8 | int(payload[5]),
	}
	end := len(payload)
	if pes.Length > 0 && 6+pes.Length < end {
		end = 6 + pes.Length
	}

	if !streamHasOptionalHeader(pes.StreamID) {
		pes.Data = payload[6:end]
		return pes, nil
	}
	if len(payload) < 9 {
		return nil, fmt.Errorf("mpegts: PES optional header too short")
	}

	start := min(9+int(payload[8]), end)
	switch payload[7] >> 6 {
	case 0b10:
		if len(payload) >= 14 {
			pes.PTS, pes.HasPTS = parseTimestamp(payload[9:14]), true
		}
	case 0b11:
		if len(payload) >= 19 {
			pes.PTS, pes.HasPTS = parseTimestamp(payload[9:14]), true
			pes.DTS, pes.HasDTS = parseTimestamp(payload[14:19]), true
		}
	}
	pes.Data = payload[start:end]
	return pes, nil
}

// parseTimestamp decodes a 33-bit PTS or DTS field.
func parseTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}
