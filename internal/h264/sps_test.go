package h264

import (
	"bytes"
	"testing"
)

var sps720p = []byte{
	0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
	0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
	0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
	0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
}

func TestParseSPS720p(t *testing.T) {
	t.Parallel()

	info, err := ParseSPS(sps720p)
	if err != nil {
		t.Fatalf("ParseSPS error: %v", err)
	}
	if info.Width != 1280 || info.Height != 720 {
		t.Errorf("resolution = %dx%d, want 1280x720", info.Width, info.Height)
	}
	if info.ProfileIDC != 100 || info.LevelIDC != 31 {
		t.Errorf("profile/level = %d/%d, want 100/31", info.ProfileIDC, info.LevelIDC)
	}
	if got := info.CodecString(); got != "avc1.64001F" {
		t.Errorf("CodecString() = %q, want %q", got, "avc1.64001F")
	}
}

func TestParseSPS256x192(t *testing.T) {
	t.Parallel()
	sps := []byte{
		0x67, 0x4d, 0x40, 0x1f, 0xb9, 0x08, 0x08, 0x0c,
		0xd8, 0x0b, 0x50, 0x10, 0x10, 0x14, 0x00, 0x00,
		0x0f, 0xa4, 0x00, 0x02, 0xee, 0x03, 0x81, 0x80,
		0x04, 0x93, 0xc0, 0x02, 0x49, 0xe8, 0xa0, 0xc0,
		0x3a, 0x8e, 0x18, 0xc9,
	}

	info, err := ParseSPS(sps)
	if err != nil {
		t.Fatalf("ParseSPS error: %v", err)
	}
	if info.Width != 256 || info.Height != 192 {
		t.Errorf("resolution = %dx%d, want 256x192", info.Width, info.Height)
	}
	if info.ConstraintFlags != 0x40 {
		t.Errorf("ConstraintFlags = 0x%02X, want 0x40", info.ConstraintFlags)
	}
}

func TestParseSPSTooShort(t *testing.T) {
	t.Parallel()
	for _, in := range [][]byte{nil, {}, {0x67, 0x64, 0x00}} {
		if _, err := ParseSPS(in); err == nil {
			t.Errorf("ParseSPS(%x): expected error", in)
		}
	}
}

func TestParseSPSTruncatedBody(t *testing.T) {
	t.Parallel()
	if _, err := ParseSPS(sps720p[:6]); err == nil {
		t.Error("expected error for SPS cut before the picture size")
	}
}

func TestRemoveEmulationPrevention(t *testing.T) {
	t.Parallel()
	in := []byte{0x11, 0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x00, 0x22}
	want := []byte{0x11, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x22}
	if got := removeEmulationPrevention(in); !bytes.Equal(got, want) {
		t.Errorf("removeEmulationPrevention = %x, want %x", got, want)
	}
}
