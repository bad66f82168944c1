// Package h264 scans H.264 Annex-B byte streams: it locates NAL units,
// classifies them, parses sequence parameter sets and keeps running
// statistics over the units it has seen.
package h264

// NAL unit types from ITU-T H.264 Table 7-1.
const (
	NALTypeSlice      = 1
	NALTypeIDR        = 5
	NALTypeSEI        = 6
	NALTypeSPS        = 7
	NALTypePPS        = 8
	NALTypeAUD        = 9
	NALTypeFillerData = 12
)

// NALUnit is one NAL unit: header byte plus payload, without start code.
type NALUnit struct {
	Type byte
	Data []byte
}

// NALType returns the nal_unit_type of a NAL unit that starts with its
// header byte.
func NALType(nal []byte) byte {
	if len(nal) == 0 {
		return 0
	}
	return nal[0] & 0x1F
}

// findStartCode returns the index of the next 00 00 01 sequence at or
// after from, or -1.
func findStartCode(data []byte, from int) int {
	for i := from; i+2 < len(data); i++ {
		if data[i+2] > 1 {
			i += 2
			continue
		}
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			return i
		}
	}
	return -1
}

// NextNALUnit locates the first NAL unit in data. It returns the unit
// without its start code or trailing zero bytes, and rest positioned at the
// following start code (nil when data is exhausted). ok is false when no
// non-empty NAL unit remains. Emulation prevention bytes are left in place.
func NextNALUnit(data []byte) (nal, rest []byte, ok bool) {
	sc := findStartCode(data, 0)
	for sc >= 0 {
		start := sc + 3
		next := findStartCode(data, start)
		end := len(data)
		if next >= 0 {
			end = next
		}
		for end > start+1 && data[end-1] == 0 {
			end--
		}
		if end > start && !(end == start+1 && data[start] == 0) {
			if next >= 0 {
				rest = data[next:]
			}
			return data[start:end], rest, true
		}
		sc = next
	}
	return nil, nil, false
}

// ParseAnnexB splits an Annex-B byte stream into NAL units. Both 3-byte
// and 4-byte start codes are recognized.
func ParseAnnexB(data []byte) []NALUnit {
	var units []NALUnit
	for {
		nal, rest, ok := NextNALUnit(data)
		if !ok {
			return units
		}
		units = append(units, NALUnit{Type: NALType(nal), Data: nal})
		data = rest
	}
}

// ContainsIDR reports whether data holds an IDR slice NAL unit.
func ContainsIDR(data []byte) bool {
	for {
		nal, rest, ok := NextNALUnit(data)
		if !ok {
			return false
		}
		if NALType(nal) == NALTypeIDR {
			return true
		}
		data = rest
	}
}

// IsKeyframe returns true if the NAL type is an IDR slice.
func IsKeyframe(nalType byte) bool {
	return nalType == NALTypeIDR
}

// IsSPS returns true if the NAL type is a sequence parameter set.
func IsSPS(nalType byte) bool {
	return nalType == NALTypeSPS
}

// IsPPS returns true if the NAL type is a picture parameter set.
func IsPPS(nalType byte) bool {
	return nalType == NALTypePPS
}

// IsVCL reports whether the NAL type carries coded slice data.
func IsVCL(nalType byte) bool {
	return nalType >= NALTypeSlice && nalType <= NALTypeIDR
}

// AppendStartCode appends a 4-byte start code followed by nal to dst.
func AppendStartCode(dst, nal []byte) []byte {
	dst = append(dst, 0x00, 0x00, 0x00, 0x01)
	return append(dst, nal...)
}
