package mpegts

import "fmt"

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// parseSections walks the sections in a PSI payload that starts with a
// pointer field.
func parseSections(pid uint16, payload []byte) ([]*DemuxerData, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("mpegts: empty PSI payload")
	}
	offset := 1 + int(payload[0])

	var out []*DemuxerData
	for offset+3 <= len(payload) {
		if payload[offset] == 0xFF || payload[offset+1]&0x80 == 0 {
			break
		}
		end := offset + 3 + (int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2]))
		if end > len(payload) {
			return out, fmt.Errorf("mpegts: truncated section on PID 0x%04X", pid)
		}
		section := payload[offset:end]
		if err := verifyCRC32(section); err != nil {
			return out, fmt.Errorf("mpegts: section 0x%02X on PID 0x%04X: %w", section[0], pid, err)
		}

		switch section[0] {
		case tableIDPAT:
			pat, err := parsePAT(section)
			if err != nil {
				return out, err
			}
			out = append(out, &DemuxerData{PID: pid, PAT: pat})
		case tableIDPMT:
			pmt, err := parsePMT(section)
			if err != nil {
				return out, err
			}
			out = append(out, &DemuxerData{PID: pid, PMT: pmt})
		}
		offset = end
	}
	return out, nil
}

// sectionComplete reports whether payload holds every section it starts.
func sectionComplete(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	offset := 1 + int(payload[0])
	for offset < len(payload) {
		if payload[offset] == 0xFF {
			return true
		}
		if offset+3 > len(payload) {
			return false
		}
		if payload[offset+1]&0x80 == 0 {
			return true
		}
		offset += 3 + (int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2]))
	}
	return offset == len(payload)
}

func parsePAT(s []byte) (*PAT, error) {
	if len(s) < 12 {
		return nil, fmt.Errorf("mpegts: PAT too short")
	}
	pat := &PAT{
		TransportStreamID: uint16(s[3])<<8 | uint16(s[4]),
		Version:           s[5] >> 1 & 0x1F,
	}
	for i := 8; i+4 <= len(s)-4; i += 4 {
		num := uint16(s[i])<<8 | uint16(s[i+1])
		if num == 0 {
			continue
		}
		pat.Programs = append(pat.Programs, PATProgram{
			Number: num,
			PMTPID: uint16(s[i+2]&0x1F)<<8 | uint16(s[i+3]),
		})
	}
	return pat, nil
}

func parsePMT(s []byte) (*PMT, error) {
	if len(s) < 16 {
		return nil, fmt.Errorf("mpegts: PMT too short")
	}
	pmt := &PMT{
		ProgramNumber: uint16(s[3])<<8 | uint16(s[4]),
		Version:       s[5] >> 1 & 0x1F,
		PCRPID:        uint16(s[8]&0x1F)<<8 | uint16(s[9]),
	}
	offset := 12 + (int(s[10]&0x0F)<<8 | int(s[11]))
	end := len(s) - 4
	for offset+5 <= end {
		es := ElementaryStream{
			StreamType: s[offset],
			PID:        uint16(s[offset+1]&0x1F)<<8 | uint16(s[offset+2]),
		}
		infoEnd := offset + 5 + (int(s[offset+3]&0x0F)<<8 | int(s[offset+4]))
		if infoEnd > end {
			return nil, fmt.Errorf("mpegts: ES info for PID 0x%04X overruns PMT", es.PID)
		}
		es.Descriptors = parseDescriptors(s[offset+5 : infoEnd])
		pmt.Streams = append(pmt.Streams, es)
		offset = infoEnd
	}
	return pmt, nil
}

func parseDescriptors(b []byte) []Descriptor {
	var ds []Descriptor
	for len(b) >= 2 {
		n := int(b[1])
		if 2+n > len(b) {
			break
		}
		ds = append(ds, Descriptor{Tag: b[0], Data: b[2 : 2+n]})
		b = b[2+n:]
	}
	return ds
}
