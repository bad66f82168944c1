package mpegts

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/wfdcast/internal/h264"
	"github.com/zsiec/wfdcast/internal/media"
)

// Well-known PIDs and identifiers used by the packetizer.
const (
	PIDPAT      = 0x0000
	PIDPMT      = 0x0100
	PIDPCR      = 0x1000
	PIDFirstES  = 0x1011
	StreamIDAVC = 0xE0

	StreamTypeH264 = 0x1B

	// MaxTracks bounds the number of tracks; it equals the number of
	// video stream ids 0xE0..0xEF.
	MaxTracks = 16

	MIMETypeAVC = "video/avc"

	pesHeaderSize   = 14
	firstPayloadMax = packetSize - 4 - pesHeaderSize
	payloadMax      = packetSize - 4
)

// Flags control what Packetize emits in front of the PES packets.
type Flags uint8

const (
	// EmitPATAndPMT prepends a PAT and a PMT.
	EmitPATAndPMT Flags = 1 << iota
	// EmitPCR prepends an adaptation-only packet carrying the PCR.
	EmitPCR
	// IsEncrypted marks HDCP-protected payloads. Encryption is not
	// supported and the flag is accepted without effect.
	IsEncrypted
	// PrependSPSAndPPSToIDR inserts the track's codec-specific data in
	// front of access units that contain an IDR slice.
	PrependSPSAndPPSToIDR
)

var (
	ErrUnsupportedFormat = errors.New("mpegts: unsupported track format")
	ErrTooManyTracks     = errors.New("mpegts: track table full")
	ErrUnknownTrack      = errors.New("mpegts: unknown track")
)

// TrackFormat describes an elementary stream. Only "video/avc" is
// supported. The profile, level and constraint fields feed the PMT's AVC
// video descriptor until codec-specific data is submitted.
type TrackFormat struct {
	MIME          string
	ProfileIDC    byte
	LevelIDC      byte
	ConstraintSet byte
}

// Report receives packetizer events.
type Report interface {
	PacketizedFrame(timestampUs int64)
}

type track struct {
	format     TrackFormat
	pid        uint16
	streamType byte
	streamID   byte
	cc         uint8
	csd        [][]byte
}

// Packetizer wraps H.264 access units into 188-byte transport stream
// packets. It is safe for concurrent use; calls are serialized.
type Packetizer struct {
	log    *slog.Logger
	report Report
	clock  func() int64

	mu      sync.Mutex
	tracks  [MaxTracks]track
	ntracks int
	patCC   uint8
	pmtCC   uint8
}

// NewPacketizer creates a packetizer with no tracks.
func NewPacketizer(opts ...func(*Packetizer)) *Packetizer {
	p := &Packetizer{
		log:   slog.Default(),
		clock: media.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "mpegts-packetizer")
	return p
}

// PacketizerOptLogger sets the logger.
func PacketizerOptLogger(log *slog.Logger) func(*Packetizer) {
	return func(p *Packetizer) {
		if log != nil {
			p.log = log
		}
	}
}

// PacketizerOptReport sets the receiver of PacketizedFrame events.
func PacketizerOptReport(r Report) func(*Packetizer) {
	return func(p *Packetizer) {
		p.report = r
	}
}

// PacketizerOptClock replaces the microsecond clock the PCR is derived
// from.
func PacketizerOptClock(clock func() int64) func(*Packetizer) {
	return func(p *Packetizer) {
		p.clock = clock
	}
}

// AddTrack registers a track and returns its id, starting at 0. It returns
// -1 and an error for unsupported formats and when MaxTracks are in use.
func (p *Packetizer) AddTrack(format TrackFormat) (int, error) {
	if format.MIME != MIMETypeAVC {
		p.log.Warn("rejecting track", "mime", format.MIME)
		return -1, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format.MIME)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ntracks >= MaxTracks {
		return -1, ErrTooManyTracks
	}
	id := p.ntracks
	p.tracks[id] = track{
		format:     format,
		pid:        PIDFirstES + uint16(id),
		streamType: StreamTypeH264,
		streamID:   StreamIDAVC + byte(id),
	}
	p.ntracks++
	p.log.Debug("track added", "id", id, "pid", p.tracks[id].pid)
	return id, nil
}

// TrackCount returns the number of registered tracks.
func (p *Packetizer) TrackCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ntracks
}

// TrackPID returns the elementary stream PID of a track.
func (p *Packetizer) TrackPID(trackID int) (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.trackLocked(trackID)
	if err != nil {
		return 0, err
	}
	return t.pid, nil
}

func (p *Packetizer) trackLocked(trackID int) (*track, error) {
	if trackID < 0 || trackID >= p.ntracks {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTrack, trackID)
	}
	return &p.tracks[trackID], nil
}

// SubmitCSD stores the SPS and PPS found in buf as the track's
// codec-specific data, replacing any earlier submission.
func (p *Packetizer) SubmitCSD(trackID int, buf *media.Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.trackLocked(trackID)
	if err != nil {
		return err
	}

	var csd [][]byte
	for _, nal := range h264.ParseAnnexB(buf.Data()) {
		if nal.Type != h264.NALTypeSPS && nal.Type != h264.NALTypePPS {
			continue
		}
		csd = append(csd, h264.AppendStartCode(nil, nal.Data))
	}
	if len(csd) == 0 {
		return fmt.Errorf("mpegts: no SPS or PPS in codec config for track %d", trackID)
	}
	t.csd = csd
	return nil
}

// Packetize wraps the access unit in into transport stream packets and
// returns them as one buffer carrying in's timestamp.
func (p *Packetizer) Packetize(trackID int, in *media.Buffer, flags Flags) (*media.Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.trackLocked(trackID)
	if err != nil {
		return nil, err
	}

	au := in.Data()
	if flags&PrependSPSAndPPSToIDR != 0 && len(t.csd) > 0 && h264.ContainsIDR(au) {
		var joined []byte
		for _, c := range t.csd {
			joined = append(joined, c...)
		}
		au = append(joined, au...)
	}

	var psi [][]byte
	if flags&EmitPATAndPMT != 0 {
		psi = [][]byte{p.patSection(), p.pmtSection()}
	}

	n := pesPacketCount(len(au))
	for _, s := range psi {
		n += psiPacketCount(len(s))
	}
	if flags&EmitPCR != 0 {
		n++
	}

	out := media.NewBuffer(n*packetSize, in.Timestamp())
	w := out.Data()[:0]

	if psi != nil {
		w = writePSI(w, PIDPAT, psi[0], &p.patCC)
		w = writePSI(w, PIDPMT, psi[1], &p.pmtCC)
	}
	if flags&EmitPCR != 0 {
		w = writePCR(w, uint64(p.clock())*27)
	}
	w = writePES(w, t, au, in.Timestamp())

	if len(w) != n*packetSize {
		return nil, fmt.Errorf("mpegts: wrote %d bytes, expected %d", len(w), n*packetSize)
	}

	if p.report != nil {
		p.report.PacketizedFrame(in.Timestamp())
	}
	return out, nil
}

// patSection builds a PAT announcing program 1 on PIDPMT.
func (p *Packetizer) patSection() []byte {
	s := []byte{
		tableIDPAT,
		0xB0, 0x0D, // section_syntax_indicator, section_length 13
		0x00, 0x00, // transport_stream_id
		0xC3,       // version 1, current_next_indicator
		0x00, 0x00, // section_number, last_section_number
		0x00, 0x01, // program_number
		0xE0 | PIDPMT>>8, PIDPMT & 0xFF,
	}
	return appendCRC32(s)
}

// pmtSection builds the PMT for all registered tracks. Each elementary
// stream carries an AVC video descriptor and an AVC timing and HRD
// descriptor.
func (p *Packetizer) pmtSection() []byte {
	s := []byte{
		tableIDPMT,
		0xB0, 0x00, // section_length patched below
		0x00, 0x01, // program_number
		0xC3,
		0x00, 0x00,
		0xE0 | PIDPCR>>8, PIDPCR & 0xFF,
		0xF0, 0x00, // program_info_length
	}
	for i := 0; i < p.ntracks; i++ {
		t := &p.tracks[i]
		profile, constraints, level := t.format.ProfileIDC, t.format.ConstraintSet, t.format.LevelIDC
		// csd[0] is start code + SPS header + profile, constraints, level.
		if len(t.csd) > 0 && len(t.csd[0]) >= 8 {
			profile, constraints, level = t.csd[0][5], t.csd[0][6], t.csd[0][7]
		}
		es := []byte{
			t.streamType,
			0xE0 | byte(t.pid>>8), byte(t.pid),
			0xF0, 10, // ES_info_length
			descriptorAVCVideo, 4, profile, constraints, level, 0x3F,
			descriptorAVCTimingHRD, 2, 0x7E, 0x1F,
		}
		s = append(s, es...)
	}
	length := len(s) - 3 + 4
	s[1] = 0xB0 | byte(length>>8)
	s[2] = byte(length)
	return appendCRC32(s)
}

func psiPacketCount(sectionLen int) int {
	return (sectionLen + 1 + payloadMax - 1) / payloadMax
}

func pesPacketCount(auLen int) int {
	if auLen <= firstPayloadMax {
		return 1
	}
	return 1 + (auLen-firstPayloadMax+payloadMax-1)/payloadMax
}

func appendHeader(w []byte, pid uint16, pusi bool, afc byte, cc uint8) []byte {
	b1 := byte(pid>>8) & 0x1F
	if pusi {
		b1 |= 0x40
	}
	return append(w, syncByte, b1, byte(pid), afc<<4|cc&0x0F)
}

// appendStuffing appends an adaptation field of exactly size bytes:
// length byte, flags byte and 0xFF stuffing.
func appendStuffing(w []byte, size int) []byte {
	w = append(w, byte(size-1))
	if size >= 2 {
		w = append(w, 0x00)
		for i := 2; i < size; i++ {
			w = append(w, 0xFF)
		}
	}
	return w
}

func fill(w []byte, b byte, n int) []byte {
	for i := 0; i < n; i++ {
		w = append(w, b)
	}
	return w
}

// writePSI splits a section over as many packets as it needs. The
// counter is advanced before each packet.
func writePSI(w []byte, pid uint16, section []byte, cc *uint8) []byte {
	payload := append([]byte{0x00}, section...) // pointer_field
	for first := true; len(payload) > 0; first = false {
		*cc = (*cc + 1) & 0x0F
		w = appendHeader(w, pid, first, 0x1, *cc)
		n := min(len(payload), payloadMax)
		w = append(w, payload[:n]...)
		w = fill(w, 0xFF, payloadMax-n)
		payload = payload[n:]
	}
	return w
}

// writePCR emits an adaptation-only packet on PIDPCR. Packets without
// payload do not advance the continuity counter.
func writePCR(w []byte, pcr uint64) []byte {
	base := (pcr / 300) & (1<<33 - 1)
	ext := pcr % 300
	w = appendHeader(w, PIDPCR, true, 0x2, 0)
	w = append(w,
		payloadMax-1, // adaptation_field_length
		0x10,         // PCR_flag
		byte(base>>25), byte(base>>17), byte(base>>9), byte(base>>1),
		byte(base&1)<<7|0x7E|byte(ext>>8)&1, byte(ext),
	)
	return fill(w, 0xFF, payloadMax-8)
}

// writePES emits the access unit as one PES packet. Stuffing goes into an
// adaptation field on the first packet when the unit fits in it, and on the
// last packet otherwise.
func writePES(w []byte, t *track, au []byte, timestampUs int64) []byte {
	pesLength := len(au) + 8
	if pesLength > 0xFFFF {
		pesLength = 0
	}
	pts := uint64(timestampUs*9/100) & (1<<33 - 1)

	pad := firstPayloadMax - len(au)
	if pad > 0 {
		w = appendHeader(w, t.pid, true, 0x3, t.cc)
		w = appendStuffing(w, pad)
	} else {
		w = appendHeader(w, t.pid, true, 0x1, t.cc)
	}
	t.cc = (t.cc + 1) & 0x0F

	w = append(w,
		0x00, 0x00, 0x01, t.streamID,
		byte(pesLength>>8), byte(pesLength),
		0x84, // data_alignment_indicator
		0x80, // PTS only
		0x05,
		0x20|byte(pts>>30)&0x07<<1|1,
		byte(pts>>22),
		byte(pts>>15)&0x7F<<1|1,
		byte(pts>>7),
		byte(pts)&0x7F<<1|1,
	)

	n := min(len(au), firstPayloadMax)
	w = append(w, au[:n]...)
	au = au[n:]

	for len(au) > 0 {
		last := len(au) < payloadMax
		if last {
			w = appendHeader(w, t.pid, false, 0x3, t.cc)
			w = appendStuffing(w, payloadMax-len(au))
		} else {
			w = appendHeader(w, t.pid, false, 0x1, t.cc)
		}
		t.cc = (t.cc + 1) & 0x0F

		n := min(len(au), payloadMax)
		w = append(w, au[:n]...)
		au = au[n:]
	}
	return w
}
