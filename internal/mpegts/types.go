// Package mpegts turns H.264 access units into 188-byte MPEG transport
// stream packets for Wi-Fi Display sinks, and reads such streams back for
// probing and verification.
package mpegts

// Packet is one parsed 188-byte transport stream packet.
type Packet struct {
	PID               uint16
	ContinuityCounter uint8
	UnitStart         bool
	TransportError    bool
	Discontinuity     bool
	HasAdaptation     bool
	HasPayload        bool

	// PCR is the 27 MHz program clock reference, valid when HasPCR is set.
	PCR    uint64
	HasPCR bool

	Payload []byte
}

// DemuxerData is one logical unit read from a stream. Exactly one of PAT,
// PMT, PES and PCR is set.
type DemuxerData struct {
	PID uint16
	PAT *PAT
	PMT *PMT
	PES *PES
	PCR *PCR
}

// PAT is a Program Association Table.
type PAT struct {
	TransportStreamID uint16
	Version           uint8
	Programs          []PATProgram
}

// PATProgram maps a program number to its PMT PID.
type PATProgram struct {
	Number uint16
	PMTPID uint16
}

// PMT is a Program Map Table.
type PMT struct {
	ProgramNumber uint16
	Version       uint8
	PCRPID        uint16
	Streams       []ElementaryStream
}

// ElementaryStream is one entry of a PMT.
type ElementaryStream struct {
	PID         uint16
	StreamType  uint8
	Descriptors []Descriptor
}

// Descriptor is a raw tag/length/value descriptor.
type Descriptor struct {
	Tag  uint8
	Data []byte
}

// Descriptor tags emitted for AVC streams.
const (
	descriptorAVCVideo     = 0x28
	descriptorAVCTimingHRD = 0x2A
)

// PES is a reassembled packetized elementary stream packet.
type PES struct {
	StreamID uint8
	// Length is the PES_packet_length field; 0 means unbounded.
	Length int
	PTS    int64
	HasPTS bool
	DTS    int64
	HasDTS bool
	Data   []byte
}

// PCR is a program clock reference seen on PID.
type PCR struct {
	Value uint64
}

// Base returns the 90 kHz part of the reference.
func (p PCR) Base() uint64 { return p.Value / 300 }

// DemuxerStats counts what a Demuxer has read.
type DemuxerStats struct {
	Packets        int `json:"packets"`
	CorruptPackets int `json:"corruptPackets"`
	CCErrors       int `json:"ccErrors"`
	PES            int `json:"pes"`
	PSI            int `json:"psi"`
}
