package h264

import (
	"errors"
	"fmt"
)

// SPSInfo holds the sequence parameter set fields the packetizer and the
// sender configuration care about.
type SPSInfo struct {
	Width           int
	Height          int
	ProfileIDC      byte
	ConstraintFlags byte
	LevelIDC        byte
	// FrameRate is derived from VUI timing info and is 0 when absent.
	FrameRate float64
}

// CodecString returns the RFC 6381 codec parameter string, e.g. "avc1.42C01F".
func (s SPSInfo) CodecString() string {
	return fmt.Sprintf("avc1.%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}

var errSPSTooShort = errors.New("h264: SPS data too short")

// bitReader reads an RBSP MSB first. The first read past the end sets err
// and every later read returns 0.
type bitReader struct {
	data []byte
	pos  int
	bit  uint
	err  error
}

func (br *bitReader) u(n int) uint {
	var v uint
	for i := 0; i < n; i++ {
		if br.pos >= len(br.data) {
			br.err = errSPSTooShort
			return 0
		}
		v = v<<1 | uint(br.data[br.pos]>>(7-br.bit))&1
		br.bit++
		if br.bit == 8 {
			br.bit = 0
			br.pos++
		}
	}
	return v
}

func (br *bitReader) flag() bool { return br.u(1) == 1 }

func (br *bitReader) ue() uint {
	zeros := 0
	for br.u(1) == 0 {
		if br.err != nil || zeros > 31 {
			br.err = errSPSTooShort
			return 0
		}
		zeros++
	}
	return 1<<zeros - 1 + br.u(zeros)
}

func (br *bitReader) se() int {
	v := br.ue()
	if v%2 == 0 {
		return -int(v / 2)
	}
	return int((v + 1) / 2)
}

func (br *bitReader) skipScalingList(size int) {
	last, next := 8, 8
	for j := 0; j < size && br.err == nil; j++ {
		if next != 0 {
			next = (last + br.se() + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
}

// highProfiles carry chroma_format_idc and scaling lists in the SPS.
var highProfiles = map[uint]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true,
	86: true, 118: true, 128: true, 138: true, 139: true, 134: true,
}

// ParseSPS parses an SPS NAL unit, header byte included, start code
// excluded.
func ParseSPS(nal []byte) (SPSInfo, error) {
	if len(nal) < 4 {
		return SPSInfo{}, errSPSTooShort
	}
	br := &bitReader{data: removeEmulationPrevention(nal[1:])}

	var info SPSInfo
	profile := br.u(8)
	info.ProfileIDC = byte(profile)
	info.ConstraintFlags = byte(br.u(8))
	info.LevelIDC = byte(br.u(8))
	br.ue() // seq_parameter_set_id

	chromaFormat := uint(1)
	separatePlanes := false
	if highProfiles[profile] {
		chromaFormat = br.ue()
		if chromaFormat == 3 {
			separatePlanes = br.flag()
		}
		br.ue() // bit_depth_luma_minus8
		br.ue() // bit_depth_chroma_minus8
		br.u(1) // qpprime_y_zero_transform_bypass_flag
		if br.flag() {
			lists := 8
			if chromaFormat == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				if !br.flag() {
					continue
				}
				if i < 6 {
					br.skipScalingList(16)
				} else {
					br.skipScalingList(64)
				}
			}
		}
	}

	br.ue() // log2_max_frame_num_minus4
	switch br.ue() {
	case 0:
		br.ue() // log2_max_pic_order_cnt_lsb_minus4
	case 1:
		br.u(1)
		br.se()
		br.se()
		n := br.ue()
		for i := uint(0); i < n && br.err == nil; i++ {
			br.se()
		}
	}
	br.ue() // max_num_ref_frames
	br.u(1) // gaps_in_frame_num_value_allowed_flag

	widthMbs := br.ue() + 1
	heightUnits := br.ue() + 1
	frameMbsOnly := br.u(1)
	if frameMbsOnly == 0 {
		br.u(1) // mb_adaptive_frame_field_flag
	}
	br.u(1) // direct_8x8_inference_flag

	var cropLeft, cropRight, cropTop, cropBottom uint
	if br.flag() {
		cropLeft, cropRight, cropTop, cropBottom = br.ue(), br.ue(), br.ue(), br.ue()
	}
	if br.err != nil {
		return SPSInfo{}, br.err
	}

	subWidth, subHeight := uint(2), uint(2)
	switch {
	case separatePlanes || chromaFormat == 0 || chromaFormat == 3:
		subWidth, subHeight = 1, 1
	case chromaFormat == 2:
		subHeight = 1
	}
	cropUnitY := subHeight * (2 - frameMbsOnly)

	info.Width = int(widthMbs*16 - subWidth*(cropLeft+cropRight))
	info.Height = int(heightUnits*16*(2-frameMbsOnly) - cropUnitY*(cropTop+cropBottom))

	if br.flag() {
		info.FrameRate = parseVUIFrameRate(br)
	}
	return info, nil
}

// parseVUIFrameRate walks the VUI up to timing_info and returns the frame
// rate it describes, or 0.
func parseVUIFrameRate(br *bitReader) float64 {
	if br.flag() { // aspect_ratio_info_present_flag
		if br.u(8) == 255 {
			br.u(32)
		}
	}
	if br.flag() { // overscan_info_present_flag
		br.u(1)
	}
	if br.flag() { // video_signal_type_present_flag
		br.u(4)
		if br.flag() {
			br.u(24)
		}
	}
	if br.flag() { // chroma_loc_info_present_flag
		br.ue()
		br.ue()
	}
	if !br.flag() { // timing_info_present_flag
		return 0
	}
	unitsInTick := br.u(32)
	timeScale := br.u(32)
	if br.err != nil || unitsInTick == 0 {
		return 0
	}
	return float64(timeScale) / float64(2*unitsInTick)
}

func removeEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	zeros := 0
	for _, b := range data {
		if zeros >= 2 && b == 3 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}
