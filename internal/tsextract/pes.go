package tsextract

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/parseerr"
)

func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// hasOptionalHeader reports whether a stream_id carries the optional PES
// header: everything except padding, private_stream_2, ECM, EMM, DSMCC,
// H.222.1 type E and the program stream directory.
func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(payload []byte) (*PES, error) {
	if len(payload) < 6 {
		return nil, fmt.Errorf("tsextract: pes: %w", parseerr.ErrUnexpectedEOF)
	}
	if !isPESPayload(payload) {
		return nil, fmt.Errorf("tsextract: pes: %w", parseerr.Field("packet_start_code_prefix", parseerr.ErrInvalid))
	}
	pes := &PES{StreamID: payload[3]}
	end := len(payload)
	if n := int(payload[4])<<8 | int(payload[5]); n > 0 && 6+n < end {
		end = 6 + n
	}

	if !hasOptionalHeader(pes.StreamID) {
		pes.Data = payload[6:end]
		return pes, nil
	}
	if end < 9 {
		return nil, fmt.Errorf("tsextract: pes: optional header: %w", parseerr.ErrUnexpectedEOF)
	}
	if payload[6]&0xC0 != 0x80 {
		return nil, fmt.Errorf("tsextract: pes: %w", parseerr.Field("marker_bits", parseerr.ErrInvalid))
	}
	flags := payload[7] >> 6
	dataStart := 9 + int(payload[8])
	if dataStart > end {
		return nil, fmt.Errorf("tsextract: pes: %w", parseerr.Field("PES_header_data_length", parseerr.ErrOutOfRange))
	}
	switch flags {
	case 2:
		if dataStart < 14 {
			return nil, fmt.Errorf("tsextract: pes: %w", parseerr.Field("PTS", parseerr.ErrUnexpectedEOF))
		}
		pts := parseTimestamp(payload[9:14])
		pes.PTS = &pts
	case 3:
		if dataStart < 19 {
			return nil, fmt.Errorf("tsextract: pes: %w", parseerr.Field("DTS", parseerr.ErrUnexpectedEOF))
		}
		pts, dts := parseTimestamp(payload[9:14]), parseTimestamp(payload[14:19])
		pes.PTS, pes.DTS = &pts, &dts
	case 1:
		return nil, fmt.Errorf("tsextract: pes: %w", parseerr.Field("PTS_DTS_flags", parseerr.ErrInvalid))
	}
	pes.Data = payload[dataStart:end]
	return pes, nil
}

// parseTimestamp extracts a 33-bit timestamp from 5 PES timestamp bytes.
func parseTimestamp(bs []byte) int64 {
	return int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
}
