package h264

import (
	"bytes"
	"testing"
)

func TestParseAnnexB(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0xFF, 0xFE,
	}

	nalus := ParseAnnexB(data)
	if len(nalus) != 3 {
		t.Fatalf("expected 3 NAL units, got %d", len(nalus))
	}
	if !IsSPS(nalus[0].Type) {
		t.Errorf("NALU[0] type = %d, want SPS", nalus[0].Type)
	}
	if !IsPPS(nalus[1].Type) {
		t.Errorf("NALU[1] type = %d, want PPS", nalus[1].Type)
	}
	if !IsKeyframe(nalus[2].Type) {
		t.Errorf("NALU[2] type = %d, want IDR", nalus[2].Type)
	}
	if !bytes.Equal(nalus[2].Data, []byte{0x65, 0x88, 0x84, 0x00, 0xFF, 0xFE}) {
		t.Errorf("IDR data = %x", nalus[2].Data)
	}
}

func TestParseAnnexBEmpty(t *testing.T) {
	t.Parallel()
	if nalus := ParseAnnexB(nil); nalus != nil {
		t.Errorf("expected nil for empty input, got %d units", len(nalus))
	}
	if nalus := ParseAnnexB([]byte{0x00, 0x01}); nalus != nil {
		t.Errorf("expected nil for too-short input, got %d units", len(nalus))
	}
}

func TestParseAnnexBTrailingZeroAbsorbedByStartCode(t *testing.T) {
	t.Parallel()
	// The 0x00 before 00 00 01 belongs to a 4-byte start code.
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x06, 0xAA, 0xBB, 0x00,
		0x00, 0x00, 0x01, 0x41, 0x9A,
	}

	nalus := ParseAnnexB(data)
	if len(nalus) != 2 {
		t.Fatalf("expected 2 NAL units, got %d", len(nalus))
	}
	if nalus[0].Type != NALTypeSEI || len(nalus[0].Data) != 3 {
		t.Errorf("SEI type/len = %d/%d, want %d/3", nalus[0].Type, len(nalus[0].Data), NALTypeSEI)
	}
	if nalus[1].Type != NALTypeSlice {
		t.Errorf("expected Slice (1), got %d", nalus[1].Type)
	}
}

func TestParseAnnexBMixed3And4ByteStartCodes(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42,
		0x00, 0x00, 0x01, 0x68, 0xCE,
		0x00, 0x00, 0x00, 0x01, 0x06, 0xFF, 0xFE,
		0x00, 0x00, 0x01, 0x65, 0x88,
	}

	nalus := ParseAnnexB(data)
	wantTypes := []byte{NALTypeSPS, NALTypePPS, NALTypeSEI, NALTypeIDR}
	if len(nalus) != len(wantTypes) {
		t.Fatalf("expected %d NAL units, got %d", len(wantTypes), len(nalus))
	}
	for i, want := range wantTypes {
		if nalus[i].Type != want {
			t.Errorf("NALU[%d]: got type %d, want %d", i, nalus[i].Type, want)
		}
	}
}

func TestNextNALUnit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		wantNAL  []byte
		wantRest []byte
		wantOK   bool
	}{
		{
			name:    "single unit to end of buffer",
			data:    []byte{0x00, 0x00, 0x01, 0x41, 0x9A, 0x01},
			wantNAL: []byte{0x41, 0x9A, 0x01},
			wantOK:  true,
		},
		{
			name:     "rest starts at next start code",
			data:     []byte{0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x00, 0x01, 0x68},
			wantNAL:  []byte{0x67, 0x42},
			wantRest: []byte{0x00, 0x00, 0x01, 0x68},
			wantOK:   true,
		},
		{
			name:    "trailing zeros stripped",
			data:    []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x00, 0x00},
			wantNAL: []byte{0x65, 0x88},
			wantOK:  true,
		},
		{
			name:    "leading garbage skipped",
			data:    []byte{0xAB, 0xCD, 0x00, 0x00, 0x01, 0x09, 0xF0},
			wantNAL: []byte{0x09, 0xF0},
			wantOK:  true,
		},
		{
			name:   "start code at very end",
			data:   []byte{0x41, 0x9A, 0x00, 0x00, 0x01},
			wantOK: false,
		},
		{
			name:   "no start code",
			data:   []byte{0x41, 0x9A, 0x00, 0x01, 0x02},
			wantOK: false,
		},
		{
			name:   "empty",
			data:   nil,
			wantOK: false,
		},
		{
			name:    "empty unit skipped",
			data:    []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0x68, 0xCE},
			wantNAL: []byte{0x68, 0xCE},
			wantOK:  true,
		},
		{
			name:    "emulation prevention left in place",
			data:    []byte{0x00, 0x00, 0x01, 0x06, 0x00, 0x00, 0x03, 0x01, 0x80},
			wantNAL: []byte{0x06, 0x00, 0x00, 0x03, 0x01, 0x80},
			wantOK:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			nal, rest, ok := NextNALUnit(tc.data)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !bytes.Equal(nal, tc.wantNAL) {
				t.Errorf("nal = %x, want %x", nal, tc.wantNAL)
			}
			if !bytes.Equal(rest, tc.wantRest) {
				t.Errorf("rest = %x, want %x", rest, tc.wantRest)
			}
		})
	}
}

func TestContainsIDR(t *testing.T) {
	t.Parallel()

	idr := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE,
		0x00, 0x00, 0x01, 0x65, 0x88, 0x84,
	}
	if !ContainsIDR(idr) {
		t.Error("ContainsIDR = false for buffer with IDR slice")
	}

	nonIDR := []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x9A, 0x00, 0x00, 0x01, 0x06, 0x05}
	if ContainsIDR(nonIDR) {
		t.Error("ContainsIDR = true for buffer without IDR slice")
	}
	if ContainsIDR(nil) {
		t.Error("ContainsIDR = true for empty buffer")
	}
}

func TestAppendStartCode(t *testing.T) {
	t.Parallel()
	got := AppendStartCode([]byte{0xAA}, []byte{0x67, 0x42})
	want := []byte{0xAA, 0x00, 0x00, 0x00, 0x01, 0x67, 0x42}
	if !bytes.Equal(got, want) {
		t.Errorf("AppendStartCode = %x, want %x", got, want)
	}
}
