package h264

// AccessUnitSplitter groups NAL units into access units following the
// first-VCL-NAL rules of H.264 section 7.4.1.2.3.
type AccessUnitSplitter struct {
	current [][]byte
	hasVCL  bool
}

// Push adds nal to the access unit being built. When nal starts a new
// access unit, the completed one is returned.
func (s *AccessUnitSplitter) Push(nal []byte) [][]byte {
	if len(nal) == 0 {
		return nil
	}
	var done [][]byte
	if s.startsNewUnit(nal) && len(s.current) > 0 {
		done = s.current
		s.current = nil
		s.hasVCL = false
	}
	s.current = append(s.current, nal)
	if IsVCL(NALType(nal)) {
		s.hasVCL = true
	}
	return done
}

// Flush returns the pending access unit, if any.
func (s *AccessUnitSplitter) Flush() [][]byte {
	done := s.current
	s.current = nil
	s.hasVCL = false
	return done
}

func (s *AccessUnitSplitter) startsNewUnit(nal []byte) bool {
	t := NALType(nal)
	switch {
	case t == NALTypeAUD:
		return true
	case t == NALTypeSEI || t == NALTypeSPS || t == NALTypePPS || (t >= 14 && t <= 18):
		return s.hasVCL
	case IsVCL(t):
		// first_mb_in_slice is ue(v); a leading 1 bit encodes 0.
		return s.hasVCL && len(nal) > 1 && nal[1]&0x80 != 0
	}
	return false
}

// SplitAccessUnits splits an Annex-B stream into access units, each
// re-encoded with 4-byte start codes.
func SplitAccessUnits(data []byte) [][]byte {
	var (
		s   AccessUnitSplitter
		out [][]byte
	)
	join := func(nals [][]byte) []byte {
		var au []byte
		for _, n := range nals {
			au = AppendStartCode(au, n)
		}
		return au
	}
	for {
		nal, rest, ok := NextNALUnit(data)
		if !ok {
			break
		}
		if done := s.Push(nal); done != nil {
			out = append(out, join(done))
		}
		data = rest
	}
	if done := s.Flush(); done != nil {
		out = append(out, join(done))
	}
	return out
}
