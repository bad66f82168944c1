package h264

import (
	"sync"

	"github.com/zsiec/ccx"
)

// Result counts NAL units by kind.
type Result struct {
	Units      int `json:"units"`
	Slices     int `json:"slices"`
	IDRFrames  int `json:"idrFrames"`
	SPS        int `json:"sps"`
	PPS        int `json:"pps"`
	SEI        int `json:"sei"`
	CaptionSEI int `json:"captionSei"`
}

// Add accumulates o into r.
func (r *Result) Add(o Result) {
	r.Units += o.Units
	r.Slices += o.Slices
	r.IDRFrames += o.IDRFrames
	r.SPS += o.SPS
	r.PPS += o.PPS
	r.SEI += o.SEI
	r.CaptionSEI += o.CaptionSEI
}

// Analyzer classifies the NAL units of Annex-B buffers. Statistics
// accumulate across Process calls for the life of the Analyzer.
type Analyzer struct {
	mu    sync.Mutex
	stats Result
}

// NewAnalyzer creates an Analyzer with zeroed statistics.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Process counts the NAL units in data, adds them to the running
// statistics and returns the counts for this call alone. SEI units that
// carry CEA-608/708 caption data are counted in CaptionSEI as well.
func (a *Analyzer) Process(data []byte) Result {
	var r Result
	for {
		nal, rest, ok := NextNALUnit(data)
		if !ok {
			break
		}
		r.Units++
		switch NALType(nal) {
		case NALTypeSlice:
			r.Slices++
		case NALTypeIDR:
			r.IDRFrames++
		case NALTypeSPS:
			r.SPS++
		case NALTypePPS:
			r.PPS++
		case NALTypeSEI:
			r.SEI++
			if cd := ccx.ExtractCaptions(nal); cd != nil && (len(cd.CC608Pairs) > 0 || len(cd.DTVCC) > 0) {
				r.CaptionSEI++
			}
		}
		data = rest
	}

	a.mu.Lock()
	a.stats.Add(r)
	a.mu.Unlock()
	return r
}

// Statistics returns the counts accumulated over all Process calls.
func (a *Analyzer) Statistics() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
