package tsextract

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/parseerr"
)

const (
	packetSize = 188
	syncByte   = 0x47
	pidNull    = 0x1FFF
)

// parsePacket decodes a 188-byte packet. The payload is copied out of buf.
func parsePacket(buf []byte, offset int64) (*Packet, error) {
	if len(buf) != packetSize {
		return nil, fmt.Errorf("tsextract: packet of %d bytes: %w", len(buf), parseerr.ErrUnexpectedEOF)
	}
	if buf[0] != syncByte {
		return nil, parseerr.Parse(int(offset), fmt.Sprintf("sync byte 0x%02X", buf[0]))
	}

	p := &Packet{Offset: offset}
	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.HasAdaptationField = buf[3]&0x20 != 0
	p.Header.HasPayload = buf[3]&0x10 != 0
	p.Header.ContinuityCounter = buf[3] & 0x0F

	pos := 4
	if p.Header.HasAdaptationField {
		afLen := int(buf[pos])
		if afLen > 0 {
			p.Header.DiscontinuityIndicator = buf[pos+1]&0x80 != 0
		}
		pos += 1 + afLen
		if pos > packetSize {
			return p, parseerr.Parse(int(offset)+4, fmt.Sprintf("adaptation field of %d bytes", afLen))
		}
	}
	if p.Header.HasPayload && pos < packetSize {
		p.Payload = make([]byte, packetSize-pos)
		copy(p.Payload, buf[pos:])
	}
	return p, nil
}
