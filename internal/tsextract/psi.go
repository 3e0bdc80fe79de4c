package tsextract

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/bitscope/internal/parseerr"
)

const (
	pidPAT     = 0x0000
	tableIDPAT = 0x00
	tableIDPMT = 0x02

	descriptorRegistration = 0x05
)

// parsePSI walks the sections in a reassembled PSI payload. Sections that
// fail their CRC are reported through the returned error after the good
// ones have been collected.
func parsePSI(payload []byte, first *Packet) ([]*Data, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("tsextract: psi: %w", parseerr.ErrEmpty)
	}
	pos := 1 + int(payload[0])
	if pos >= len(payload) {
		return nil, fmt.Errorf("tsextract: psi: %w", parseerr.Field("pointer_field", parseerr.ErrOutOfRange))
	}

	var out []*Data
	var firstErr error
	for pos+3 <= len(payload) {
		tableID := payload[pos]
		if tableID == 0xFF || payload[pos+1]&0x80 == 0 {
			break
		}
		sectionLength := int(payload[pos+1]&0x0F)<<8 | int(payload[pos+2])
		end := pos + 3 + sectionLength
		if end > len(payload) {
			if firstErr == nil {
				firstErr = fmt.Errorf("tsextract: table 0x%02X: %w", tableID, parseerr.ErrUnexpectedEOF)
			}
			break
		}
		section := payload[pos:end]
		pos = end

		var err error
		switch tableID {
		case tableIDPAT:
			var pat *PAT
			if pat, err = parsePAT(section); err == nil {
				out = append(out, &Data{FirstPacket: first, PAT: pat})
			}
		case tableIDPMT:
			var pmt *PMT
			if pmt, err = parsePMT(section); err == nil {
				out = append(out, &Data{FirstPacket: first, PMT: pmt})
			}
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return out, firstErr
}

// parsePAT decodes a complete PAT section including its CRC.
//
//	[0]      table_id
//	[1-2]    section_syntax_indicator, section_length
//	[3-4]    transport_stream_id
//	[5-7]    version, section numbers
//	[8..N-4] program entries, 4 bytes each
//	[N-4..N] CRC32
func parsePAT(section []byte) (*PAT, error) {
	if len(section) < 12 {
		return nil, fmt.Errorf("tsextract: pat: %w", parseerr.ErrUnexpectedEOF)
	}
	if !validCRC32(section) {
		return nil, fmt.Errorf("tsextract: pat: %w", parseerr.Field("CRC_32", parseerr.ErrInvalid))
	}
	pat := &PAT{TransportStreamID: binary.BigEndian.Uint16(section[3:5])}
	for i := 8; i+4 <= len(section)-4; i += 4 {
		number := binary.BigEndian.Uint16(section[i:])
		pid := binary.BigEndian.Uint16(section[i+2:]) & 0x1FFF
		if number == 0 {
			continue // network PID
		}
		pat.Programs = append(pat.Programs, Program{Number: number, PMTPID: pid})
	}
	return pat, nil
}

// parsePMT decodes a complete PMT section including its CRC.
//
//	[0]      table_id
//	[1-2]    section_syntax_indicator, section_length
//	[3-4]    program_number
//	[5-7]    version, section numbers
//	[8-9]    PCR_PID
//	[10-11]  program_info_length
//	[...]    program descriptors, stream entries, CRC32
func parsePMT(section []byte) (*PMT, error) {
	if len(section) < 16 {
		return nil, fmt.Errorf("tsextract: pmt: %w", parseerr.ErrUnexpectedEOF)
	}
	if !validCRC32(section) {
		return nil, fmt.Errorf("tsextract: pmt: %w", parseerr.Field("CRC_32", parseerr.ErrInvalid))
	}
	pmt := &PMT{
		ProgramNumber: binary.BigEndian.Uint16(section[3:5]),
		PCRPID:        binary.BigEndian.Uint16(section[8:10]) & 0x1FFF,
	}
	end := len(section) - 4
	pos := 12 + int(binary.BigEndian.Uint16(section[10:12])&0x0FFF)
	for pos+5 <= end {
		es := ElementaryStream{
			StreamType: section[pos],
			PID:        binary.BigEndian.Uint16(section[pos+1:]) & 0x1FFF,
		}
		infoLen := int(binary.BigEndian.Uint16(section[pos+3:]) & 0x0FFF)
		pos += 5
		if pos+infoLen > end {
			return pmt, fmt.Errorf("tsextract: pmt: %w", parseerr.Field("ES_info_length", parseerr.ErrOutOfRange))
		}
		es.Registration = registration(section[pos : pos+infoLen])
		pmt.Streams = append(pmt.Streams, es)
		pos += infoLen
	}
	return pmt, nil
}

// registration returns the format_identifier of the first registration
// descriptor in a descriptor loop, or zero.
func registration(loop []byte) uint32 {
	for i := 0; i+2 <= len(loop); {
		tag, n := loop[i], int(loop[i+1])
		if i+2+n > len(loop) {
			return 0
		}
		if tag == descriptorRegistration && n >= 4 {
			return binary.BigEndian.Uint32(loop[i+2:])
		}
		i += 2 + n
	}
	return 0
}

// psiComplete reports whether the accumulated payload holds every section
// it announces.
func psiComplete(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	pos := 1 + int(payload[0])
	if pos >= len(payload) {
		return false
	}
	for pos < len(payload) {
		if payload[pos] == 0xFF {
			return true
		}
		if pos+3 > len(payload) {
			return false
		}
		if payload[pos+1]&0x80 == 0 {
			return true
		}
		pos += 3 + (int(payload[pos+1]&0x0F)<<8 | int(payload[pos+2]))
		if pos > len(payload) {
			return false
		}
	}
	return true
}
