package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/zsiec/wfdcast/internal/media"
	"github.com/zsiec/wfdcast/internal/mpegts"
)

func buildStream(t *testing.T, units int) []byte {
	t.Helper()
	var now int64
	p := mpegts.NewPacketizer(mpegts.PacketizerOptClock(func() int64 { return now }))
	if _, err := p.AddTrack(mpegts.TrackFormat{MIME: mpegts.MIMETypeAVC, ProfileIDC: 66, LevelIDC: 31, ConstraintSet: 0xC0}); err != nil {
		t.Fatal(err)
	}
	idr := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x21}
	slice := []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x9A, 0x02, 0x11}

	var out []byte
	for i := 0; i < units; i++ {
		now = int64(i) * 100_000
		au := slice
		if i == 0 {
			au = idr
		}
		buf := media.NewBufferFrom(au)
		buf.SetTimestamp(now)
		ts, err := p.Packetize(0, buf, mpegts.EmitPATAndPMT|mpegts.EmitPCR)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, ts.Data()...)
	}
	return out
}

func TestProbe(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s, err := probe(context.Background(), "test", bytes.NewReader(buildStream(t, 5)), &out, false)
	if err != nil {
		t.Fatal(err)
	}

	if s.PATs != 5 || s.PMTs != 5 || s.PCRs != 5 {
		t.Errorf("PAT/PMT/PCR = %d/%d/%d, want 5/5/5", s.PATs, s.PMTs, s.PCRs)
	}
	if s.PES[mpegts.PIDFirstES] != 5 {
		t.Errorf("PES on first ES PID = %d, want 5", s.PES[mpegts.PIDFirstES])
	}
	if s.IDR != 1 {
		t.Errorf("IDR = %d, want 1", s.IDR)
	}
	if s.FirstPTS != 0 || s.LastPTS != 36000 {
		t.Errorf("PTS range = %d..%d, want 0..36000", s.FirstPTS, s.LastPTS)
	}
	if s.Demux.CCErrors != 0 {
		t.Errorf("CCErrors = %d, want 0", s.Demux.CCErrors)
	}

	text := out.String()
	for _, want := range []string{"PAT program 1", "PMT program 1", "type 0x1b", "avc profile=66"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	// The PMT is printed once while its version stays the same.
	if n := strings.Count(text, "PMT program"); n != 1 {
		t.Errorf("PMT printed %d times, want 1", n)
	}

	var summary bytes.Buffer
	s.print("test", &summary)
	if !strings.Contains(summary.String(), "PTS span 0.400s") {
		t.Errorf("summary = %s", summary.String())
	}
}

func TestProbeVerbose(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if _, err := probe(context.Background(), "v", bytes.NewReader(buildStream(t, 2)), &out, true); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out.String(), "PES PID"); n != 2 {
		t.Errorf("printed %d PES lines, want 2", n)
	}
	if n := strings.Count(out.String(), "] PCR "); n != 2 {
		t.Errorf("printed %d PCR lines, want 2", n)
	}
}
