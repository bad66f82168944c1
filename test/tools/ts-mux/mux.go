package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/zsiec/wfdcast/internal/h264"
	"github.com/zsiec/wfdcast/internal/media"
	"github.com/zsiec/wfdcast/internal/mpegts"
)

type muxOptions struct {
	// ChunkSize splits the input into fixed-size payloads. Zero splits it
	// into H.264 access units instead.
	ChunkSize int
	// PSIEvery emits PAT, PMT and PCR before every Nth payload.
	PSIEvery int
	// FrameDuration spaces timestamps, in microseconds.
	FrameDuration int64
	ProfileIDC    byte
	LevelIDC      byte
}

type muxResult struct {
	Payloads int
	Packets  int
}

// mux packetizes in and writes the transport stream to out.
func mux(in io.Reader, out io.Writer, opts muxOptions) (muxResult, error) {
	var res muxResult
	if opts.PSIEvery <= 0 {
		opts.PSIEvery = 1
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return res, fmt.Errorf("read input: %w", err)
	}

	var payloads [][]byte
	if opts.ChunkSize > 0 {
		for off := 0; off < len(data); off += opts.ChunkSize {
			payloads = append(payloads, data[off:min(off+opts.ChunkSize, len(data))])
		}
	} else {
		payloads = h264.SplitAccessUnits(data)
	}

	var now int64
	p := mpegts.NewPacketizer(mpegts.PacketizerOptClock(func() int64 { return now }))
	track, err := p.AddTrack(mpegts.TrackFormat{
		MIME:          mpegts.MIMETypeAVC,
		ProfileIDC:    opts.ProfileIDC,
		LevelIDC:      opts.LevelIDC,
		ConstraintSet: 0xC0,
	})
	if err != nil {
		return res, err
	}

	w := bufio.NewWriter(out)
	for i, payload := range payloads {
		now = int64(i) * opts.FrameDuration

		if opts.ChunkSize == 0 && hasSPS(payload) {
			// The stream's own SPS keeps the PMT descriptor accurate.
			if err := p.SubmitCSD(track, media.NewBufferFrom(payload)); err != nil {
				return res, err
			}
		}

		var flags mpegts.Flags
		if i%opts.PSIEvery == 0 {
			flags |= mpegts.EmitPATAndPMT | mpegts.EmitPCR
		}
		buf := media.NewBufferFrom(payload)
		buf.SetTimestamp(now)
		ts, err := p.Packetize(track, buf, flags)
		if err != nil {
			return res, fmt.Errorf("payload %d: %w", i, err)
		}
		if _, err := w.Write(ts.Data()); err != nil {
			return res, fmt.Errorf("write output: %w", err)
		}
		res.Payloads++
		res.Packets += ts.Length() / mpegts.PacketSize
	}
	return res, w.Flush()
}

func hasSPS(au []byte) bool {
	for _, n := range h264.ParseAnnexB(au) {
		if n.Type == h264.NALTypeSPS {
			return true
		}
	}
	return false
}
