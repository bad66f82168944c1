package h264

import (
	"sync"
	"testing"
)

var spsAndPPS = []byte{
	0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
	0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
}

func TestAnalyzerSPSAndPPS(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer()
	r := a.Process(spsAndPPS)

	want := Result{Units: 2, SPS: 1, PPS: 1}
	if r != want {
		t.Errorf("Process = %+v, want %+v", r, want)
	}
	if a.Statistics() != want {
		t.Errorf("Statistics = %+v, want %+v", a.Statistics(), want)
	}
}

func TestAnalyzerCumulative(t *testing.T) {
	t.Parallel()

	frame := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
		0x00, 0x00, 0x01, 0x65, 0x88, 0x84,
		0x00, 0x00, 0x01, 0x41, 0x9A, 0x02,
		0x00, 0x00, 0x01, 0x06, 0x05, 0x01, 0x00, 0x80,
	}

	a := NewAnalyzer()
	first := a.Process(frame)
	second := a.Process(frame)

	if first != second {
		t.Errorf("per-call results differ: %+v vs %+v", first, second)
	}
	if first.Units != 5 || first.IDRFrames != 1 || first.Slices != 1 || first.SEI != 1 {
		t.Errorf("first = %+v", first)
	}

	stats := a.Statistics()
	var want Result
	want.Add(first)
	want.Add(first)
	if stats != want {
		t.Errorf("Statistics = %+v, want %+v", stats, want)
	}
	if stats.Units != 10 {
		t.Errorf("Units = %d, want 10", stats.Units)
	}
}

func TestAnalyzerEmpty(t *testing.T) {
	t.Parallel()
	a := NewAnalyzer()
	if r := a.Process(nil); r != (Result{}) {
		t.Errorf("Process(nil) = %+v, want zero", r)
	}
}

// captionSEI is an SEI NAL carrying an A/53 cc_data payload with one
// CEA-608 pair.
func captionSEI() []byte {
	payload := []byte{
		0xB5, 0x00, 0x31, 'G', 'A', '9', '4', 0x03,
		0x41, 0xFF,
		0xFC, 0xC8, 0x49,
		0xFF,
	}
	nal := []byte{0x06, 0x04, byte(len(payload))}
	nal = append(nal, payload...)
	nal = append(nal, 0x80)
	return AppendStartCode(nil, nal)
}

func TestAnalyzerCaptionSEI(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer()
	r := a.Process(captionSEI())
	if r.SEI != 1 {
		t.Fatalf("SEI = %d, want 1", r.SEI)
	}
	if r.CaptionSEI != 1 {
		t.Errorf("CaptionSEI = %d, want 1", r.CaptionSEI)
	}

	plain := []byte{0x00, 0x00, 0x01, 0x06, 0x05, 0x01, 0x00, 0x80}
	if r := a.Process(plain); r.CaptionSEI != 0 {
		t.Errorf("CaptionSEI = %d for SEI without captions, want 0", r.CaptionSEI)
	}
}

func TestAnalyzerConcurrent(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				a.Process(spsAndPPS)
			}
		}()
	}
	wg.Wait()

	if got := a.Statistics().Units; got != 8*50*2 {
		t.Errorf("Units = %d, want %d", got, 8*50*2)
	}
}
