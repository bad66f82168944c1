package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/zsiec/wfdcast/internal/h264"
	"github.com/zsiec/wfdcast/internal/mpegts"
)

// summary describes one probed transport stream.
type summary struct {
	PATs     int
	PMTs     int
	PCRs     int
	PES      map[uint16]int
	IDR      int
	Bytes    int64
	FirstPTS int64
	LastPTS  int64
	FirstPCR uint64
	LastPCR  uint64
	Streams  []mpegts.ElementaryStream
	Demux    mpegts.DemuxerStats
}

// probe demuxes r until EOF or cancellation, printing each PAT/PMT change
// and, when verbose, every PES and PCR.
func probe(ctx context.Context, key string, r io.Reader, out io.Writer, verbose bool) (*summary, error) {
	s := &summary{PES: make(map[uint16]int), FirstPTS: -1}
	d := mpegts.NewDemuxer(ctx, r)

	var lastPMTVersion = -1
	for {
		data, err := d.NextData()
		if err != nil {
			s.Demux = d.Stats()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return s, nil
			}
			return s, err
		}

		switch {
		case data.PAT != nil:
			if s.PATs == 0 {
				for _, p := range data.PAT.Programs {
					fmt.Fprintf(out, "[%s] PAT program %d -> PMT PID %#04x\n", key, p.Number, p.PMTPID)
				}
			}
			s.PATs++
		case data.PMT != nil:
			if int(data.PMT.Version) != lastPMTVersion {
				lastPMTVersion = int(data.PMT.Version)
				s.Streams = data.PMT.Streams
				fmt.Fprintf(out, "[%s] PMT program %d version %d PCR PID %#04x\n",
					key, data.PMT.ProgramNumber, data.PMT.Version, data.PMT.PCRPID)
				for _, es := range data.PMT.Streams {
					fmt.Fprintf(out, "[%s]   ES PID %#04x type %#02x %s\n", key, es.PID, es.StreamType, describe(es.Descriptors))
				}
			}
			s.PMTs++
		case data.PCR != nil:
			if s.PCRs == 0 {
				s.FirstPCR = data.PCR.Value
			}
			s.LastPCR = data.PCR.Value
			s.PCRs++
			if verbose {
				fmt.Fprintf(out, "[%s] PCR %d (%.3fs)\n", key, data.PCR.Value, float64(data.PCR.Base())/90000)
			}
		case data.PES != nil:
			pes := data.PES
			s.PES[data.PID]++
			s.Bytes += int64(len(pes.Data))
			idr := h264.ContainsIDR(pes.Data)
			if idr {
				s.IDR++
			}
			if pes.HasPTS {
				if s.FirstPTS < 0 {
					s.FirstPTS = pes.PTS
				}
				s.LastPTS = pes.PTS
			}
			if verbose {
				fmt.Fprintf(out, "[%s] PES PID %#04x stream %#02x PTS %d len %d idr=%v\n",
					key, data.PID, pes.StreamID, pes.PTS, len(pes.Data), idr)
			}
		}
	}
}

func describe(ds []mpegts.Descriptor) string {
	var parts []string
	for _, d := range ds {
		switch {
		case d.Tag == 0x28 && len(d.Data) >= 3:
			parts = append(parts, fmt.Sprintf("avc profile=%d constraints=%#02x level=%d", d.Data[0], d.Data[1], d.Data[2]))
		case d.Tag == 0x2A:
			parts = append(parts, "avc-timing-hrd")
		default:
			parts = append(parts, fmt.Sprintf("tag=%#02x", d.Tag))
		}
	}
	return strings.Join(parts, ", ")
}

func (s *summary) print(key string, out io.Writer) {
	pids := make([]int, 0, len(s.PES))
	total := 0
	for pid, n := range s.PES {
		pids = append(pids, int(pid))
		total += n
	}
	sort.Ints(pids)

	fmt.Fprintf(out, "[%s] packets=%d corrupt=%d cc_errors=%d PAT=%d PMT=%d PCR=%d PES=%d IDR=%d es_bytes=%d\n",
		key, s.Demux.Packets, s.Demux.CorruptPackets, s.Demux.CCErrors, s.PATs, s.PMTs, s.PCRs, total, s.IDR, s.Bytes)
	for _, pid := range pids {
		fmt.Fprintf(out, "[%s]   PID %#04x: %d PES\n", key, pid, s.PES[uint16(pid)])
	}
	if s.FirstPTS >= 0 {
		fmt.Fprintf(out, "[%s]   PTS span %.3fs\n", key, float64(s.LastPTS-s.FirstPTS)/90000)
	}
	if s.PCRs > 1 {
		fmt.Fprintf(out, "[%s]   PCR span %.3fs\n", key, float64(s.LastPCR-s.FirstPCR)/27e6)
	}
}
