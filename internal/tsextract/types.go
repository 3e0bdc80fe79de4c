// Package tsextract pulls video elementary streams out of an MPEG-TS byte
// stream so the unit scanner can inspect them. It discovers programs from
// the PAT and PMTs, reassembles PES packets per PID with their timestamps
// and reports container damage (lost sync, continuity gaps, transport
// errors, bad section CRCs) as diagnostics rather than failing.
package tsextract

// Packet is one parsed transport stream packet.
type Packet struct {
	Header  PacketHeader
	Payload []byte
	// Offset is the byte position of the packet in the input.
	Offset int64
}

// PacketHeader holds the fixed header fields of a packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
}

// Data is one logical unit produced by the demuxer. Exactly one of PAT,
// PMT or PES is set.
type Data struct {
	FirstPacket *Packet
	PAT         *PAT
	PMT         *PMT
	PES         *PES
}

// PAT is a Program Association Table.
type PAT struct {
	TransportStreamID uint16
	Programs          []Program
}

// Program maps a program number to its PMT PID.
type Program struct {
	Number uint16
	PMTPID uint16
}

// PMT is a Program Map Table.
type PMT struct {
	ProgramNumber uint16
	PCRPID        uint16
	Streams       []ElementaryStream
}

// ElementaryStream is one PMT entry. Registration holds the
// format_identifier of a registration descriptor, when present.
type ElementaryStream struct {
	PID          uint16
	StreamType   uint8
	Registration uint32
}

// PES is a reassembled PES packet. PTS and DTS are 33-bit 90 kHz values.
type PES struct {
	StreamID uint8
	PTS      *int64
	DTS      *int64
	Data     []byte
}
