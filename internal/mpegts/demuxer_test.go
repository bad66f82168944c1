package mpegts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/zsiec/wfdcast/internal/media"
)

func readAll(t *testing.T, stream []byte) ([]*DemuxerData, *Demuxer) {
	t.Helper()
	d := NewDemuxer(context.Background(), bytes.NewReader(stream))
	var out []*DemuxerData
	for {
		data, err := d.NextData()
		if errors.Is(err, io.EOF) {
			return out, d
		}
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, data)
	}
}

func TestDemuxerRoundTrip(t *testing.T) {
	t.Parallel()

	p := newAVCPacketizer(t, PacketizerOptClock(fixedClock(500_000)))
	if err := p.SubmitCSD(0, media.NewBufferFrom(spsPPS)); err != nil {
		t.Fatal(err)
	}

	units := [][]byte{
		append(append([]byte(nil), spsPPS...), idrUnit...),
		bytes.Repeat([]byte{0x00, 0x00, 0x01, 0x41, 0x9A, 0x55}, 100),
		{0x00, 0x00, 0x00, 0x01, 0x41, 0x9B},
	}
	var stream []byte
	for i, u := range units {
		in := media.NewBufferFrom(u)
		in.SetTimestamp(int64(i) * 33_333)
		out, err := p.Packetize(0, in, EmitPATAndPMT|EmitPCR)
		if err != nil {
			t.Fatal(err)
		}
		stream = append(stream, out.Data()...)
	}

	all, d := readAll(t, stream)

	var pats, pmts, pcrs int
	var pes []*PES
	for _, data := range all {
		switch {
		case data.PAT != nil:
			pats++
			if len(data.PAT.Programs) != 1 || data.PAT.Programs[0] != (PATProgram{Number: 1, PMTPID: PIDPMT}) {
				t.Errorf("PAT programs = %+v", data.PAT.Programs)
			}
		case data.PMT != nil:
			pmts++
			pmt := data.PMT
			if pmt.PCRPID != PIDPCR {
				t.Errorf("PCR PID = 0x%X, want 0x%X", pmt.PCRPID, PIDPCR)
			}
			if len(pmt.Streams) != 1 {
				t.Fatalf("PMT streams = %d, want 1", len(pmt.Streams))
			}
			es := pmt.Streams[0]
			if es.PID != PIDFirstES || es.StreamType != StreamTypeH264 {
				t.Errorf("ES = 0x%X type 0x%X", es.PID, es.StreamType)
			}
			if len(es.Descriptors) != 2 {
				t.Fatalf("descriptors = %d, want 2", len(es.Descriptors))
			}
			avc := es.Descriptors[0]
			if avc.Tag != descriptorAVCVideo || !bytes.Equal(avc.Data, []byte{0x42, 0xE0, 0x1E, 0x3F}) {
				t.Errorf("AVC descriptor = 0x%X % X", avc.Tag, avc.Data)
			}
			if es.Descriptors[1].Tag != descriptorAVCTimingHRD {
				t.Errorf("second descriptor tag = 0x%X", es.Descriptors[1].Tag)
			}
		case data.PCR != nil:
			pcrs++
			if data.PCR.Base() != 500_000*9/100 {
				t.Errorf("PCR base = %d, want %d", data.PCR.Base(), 500_000*9/100)
			}
		case data.PES != nil:
			pes = append(pes, data.PES)
		}
	}

	if pats != 3 || pmts != 3 || pcrs != 3 {
		t.Errorf("PAT/PMT/PCR = %d/%d/%d, want 3/3/3", pats, pmts, pcrs)
	}
	if len(pes) != len(units) {
		t.Fatalf("PES = %d, want %d", len(pes), len(units))
	}
	for i, got := range pes {
		if got.StreamID != StreamIDAVC {
			t.Errorf("PES %d stream id = 0x%X", i, got.StreamID)
		}
		if !got.HasPTS || got.PTS != int64(i)*33_333*9/100 {
			t.Errorf("PES %d PTS = %d, want %d", i, got.PTS, int64(i)*33_333*9/100)
		}
		if !bytes.Equal(got.Data, units[i]) {
			t.Errorf("PES %d data mismatch: %d bytes, want %d", i, len(got.Data), len(units[i]))
		}
	}

	stats := d.Stats()
	if stats.CCErrors != 0 || stats.CorruptPackets != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Packets != len(stream)/packetSize {
		t.Errorf("Packets = %d, want %d", stats.Packets, len(stream)/packetSize)
	}
}

func TestDemuxerCountsCCErrors(t *testing.T) {
	t.Parallel()

	pes := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x00, 0x00, 0xAA}
	var stream []byte
	stream = append(stream, makePacket(0x1011, 0, true, pes)...)
	stream = append(stream, makePacket(0x1011, 1, false, nil)...)
	stream = append(stream, makePacket(0x1011, 3, true, pes)...)

	_, d := readAll(t, stream)
	if got := d.Stats().CCErrors; got != 1 {
		t.Errorf("CCErrors = %d, want 1", got)
	}
}

func TestDemuxerPacketHook(t *testing.T) {
	t.Parallel()

	p := newAVCPacketizer(t)
	out, _ := p.Packetize(0, auOf(400, 0), EmitPATAndPMT)

	var pids []uint16
	d := NewDemuxer(context.Background(), bytes.NewReader(out.Data()),
		DemuxerOptPacketHook(func(p *Packet) { pids = append(pids, p.PID) }))
	for {
		if _, err := d.NextData(); err != nil {
			break
		}
	}

	want := []uint16{PIDPAT, PIDPMT, PIDFirstES, PIDFirstES, PIDFirstES}
	if len(pids) != len(want) {
		t.Fatalf("hook saw %d packets, want %d", len(pids), len(want))
	}
	for i := range want {
		if pids[i] != want[i] {
			t.Errorf("packet %d PID = 0x%X, want 0x%X", i, pids[i], want[i])
		}
	}
}

func TestDemuxerCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDemuxer(ctx, bytes.NewReader(make([]byte, packetSize)))
	if _, err := d.NextData(); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
