package unit

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
)

// Frame decodes the unit starting at buf[offset]. On success the returned
// unit satisfies TotalSize == HeaderBytes + SizeFieldBytes + PayloadSize and
// Offset+TotalSize <= len(buf). Frame never reads outside buf.
func Frame(d *Descriptor, buf []byte, offset int, opts Options) (Unit, error) {
	if offset < 0 || offset >= len(buf) {
		return Unit{}, fmt.Errorf("unit at offset %d: %w", offset, parseerr.ErrUnexpectedEOF)
	}

	switch d.Size {
	case SizeLEB128:
		return frameLEB128(d, buf, offset, opts)
	case SizeLengthPrefix:
		return frameLengthPrefixed(d, buf, offset, opts)
	case SizeAnnexB:
		return frameAnnexB(d, buf, offset, opts)
	case SizeSuperframe:
		return frameSuperframe(d, buf, offset, opts)
	}
	return Unit{}, fmt.Errorf("unit: size mode %d: %w", d.Size, parseerr.ErrInvalidFormat)
}

func frameLEB128(d *Descriptor, buf []byte, offset int, opts Options) (Unit, error) {
	h, err := readHeader(d, buf, offset, offset, opts)
	if err != nil {
		return Unit{}, err
	}
	pos := offset + h.HeaderBytes

	sizeBytes := 0
	var payload uint64
	if h.HasSize {
		if pos >= len(buf) {
			return Unit{}, fmt.Errorf("unit at offset %d: size field: %w", offset, parseerr.ErrUnexpectedEOF)
		}
		v, n, err := bits.DecodeULEB128(buf[pos:])
		if err != nil {
			return Unit{}, fmt.Errorf("unit at offset %d: size field: %w", offset, err)
		}
		payload = v
		sizeBytes = n
		pos += n
	} else {
		payload = uint64(len(buf) - pos)
	}
	return finish(h, buf, offset, sizeBytes, pos, payload)
}

func frameLengthPrefixed(d *Descriptor, buf []byte, offset int, opts Options) (Unit, error) {
	n := d.LengthBytes
	if n < 1 || n > 4 {
		return Unit{}, fmt.Errorf("unit: length prefix of %d bytes: %w", n, parseerr.ErrInvalidFormat)
	}
	if offset+n > len(buf) {
		return Unit{}, fmt.Errorf("unit at offset %d: length prefix: %w", offset, parseerr.ErrUnexpectedEOF)
	}
	var length uint64
	for _, b := range buf[offset : offset+n] {
		length = length<<8 | uint64(b)
	}

	h, err := readHeader(d, buf, offset+n, offset, opts)
	if err != nil {
		return Unit{}, err
	}
	if length < uint64(h.HeaderBytes) {
		return Unit{}, parseerr.Parse(offset, fmt.Sprintf("length %d shorter than %d byte header", length, h.HeaderBytes))
	}
	h.HasSize = true
	pos := offset + n + h.HeaderBytes
	return finish(h, buf, offset, n, pos, length-uint64(h.HeaderBytes))
}

func frameAnnexB(d *Descriptor, buf []byte, offset int, opts Options) (Unit, error) {
	sc := startCodeLen(buf, offset)
	if sc == 0 {
		return Unit{}, parseerr.Parse(offset, "missing start code")
	}
	h, err := readHeader(d, buf, offset+sc, offset, opts)
	if err != nil {
		return Unit{}, err
	}
	pos := offset + sc + h.HeaderBytes
	end := nextStartCode(buf, pos)
	return finish(h, buf, offset, sc, pos, uint64(end-pos))
}

func frameSuperframe(d *Descriptor, buf []byte, offset int, opts Options) (Unit, error) {
	idx, hasIndex := ParseSuperframeIndex(buf)
	limit := len(buf)
	if hasIndex {
		if offset == idx.Start {
			return indexUnit(d, buf, idx), nil
		}
		if offset > idx.Start {
			return Unit{}, parseerr.Parse(offset, "inside superframe index")
		}
		limit = idx.Start
	}

	h, err := readHeader(d, buf, offset, offset, opts)
	if err != nil {
		return Unit{}, err
	}
	pos := offset + h.HeaderBytes
	end := limit
	if hasIndex {
		for _, f := range idx.Frames {
			if f.Offset == offset {
				end = f.Offset + f.Size
				h.HasSize = true
				break
			}
		}
	}
	if end < pos {
		return Unit{}, parseerr.Parse(offset, "frame shorter than header")
	}
	return finish(h, buf, offset, 0, pos, uint64(end-pos))
}

func indexUnit(d *Descriptor, buf []byte, idx SuperframeIndex) Unit {
	marker := buf[idx.Start]
	return Unit{
		Header: Header{
			Codec:       d.Codec,
			Kind:        KindSuperframeIndex,
			Code:        marker >> 5,
			HasSize:     true,
			Aux:         uint32(marker),
			HeaderBytes: 1,
		},
		Offset:         idx.Start,
		SizeFieldBytes: 1,
		PayloadOffset:  idx.Start + 1,
		PayloadSize:    idx.Size - 2,
		TotalSize:      idx.Size,
		Payload:        buf[idx.Start+1 : idx.Start+idx.Size-1],
		Raw:            buf[idx.Start : idx.Start+idx.Size],
	}
}

// finish validates the payload extent and assembles the unit. pos is the
// absolute payload start.
func finish(h Header, buf []byte, offset, sizeBytes, pos int, payload uint64) (Unit, error) {
	if pos > len(buf) || payload > uint64(len(buf)-pos) {
		return Unit{}, fmt.Errorf("unit at offset %d: payload of %d bytes exceeds buffer: %w",
			offset, payload, parseerr.ErrUnexpectedEOF)
	}
	p := int(payload)
	total := h.HeaderBytes + sizeBytes + p
	u := Unit{
		Header:         h,
		Offset:         offset,
		SizeFieldBytes: sizeBytes,
		PayloadOffset:  pos,
		PayloadSize:    p,
		TotalSize:      total,
		Payload:        buf[pos : pos+p],
		Raw:            buf[offset : offset+total],
	}
	return u, nil
}

// readHeader walks the descriptor fields starting at buf[start]. unitOffset
// is reported in errors.
func readHeader(d *Descriptor, buf []byte, start, unitOffset int, opts Options) (Header, error) {
	need := fieldBits(d.Header) / 8
	if start+need > len(buf) {
		return Header{}, fmt.Errorf("unit at offset %d: header: %w", unitOffset, parseerr.ErrUnexpectedEOF)
	}

	h := Header{Codec: d.Codec}
	r := bits.NewReader(buf[start:])
	if err := readFields(r, d.Header, &h, unitOffset); err != nil {
		return Header{}, err
	}
	if h.HasExtension {
		if len(d.Extension) == 0 {
			return Header{}, parseerr.Parse(unitOffset, "extension flag set for codec without extension header")
		}
		if err := readFields(r, d.Extension, &h, unitOffset); err != nil {
			return Header{}, err
		}
	}
	h.HeaderBytes = r.BitPos() / 8
	if d.Classify != nil {
		h.Kind = d.Classify(uint32(h.Code))
	}

	if d.Refine != nil {
		if err := d.Refine(&h, buf[start:start+h.HeaderBytes]); err != nil {
			return Header{}, fmt.Errorf("unit at offset %d: %w", unitOffset, err)
		}
	}
	if opts.RejectReserved && !h.Kind.Known() {
		return Header{}, fmt.Errorf("unit at offset %d: %s type %d: %w",
			unitOffset, d.Codec, h.Code, parseerr.ErrInvalidUnitType)
	}
	return h, nil
}

func readFields(r *bits.Reader, fields []Field, h *Header, unitOffset int) error {
	for _, f := range fields {
		v, err := r.ReadBits(f.Bits)
		if err != nil {
			return fmt.Errorf("unit at offset %d: %w", unitOffset, parseerr.Field(f.Name, err))
		}
		switch f.Kind {
		case FieldForbidden:
			if v != 0 {
				return parseerr.Parse(unitOffset, "forbidden bit set")
			}
		case FieldMarker:
			if uint32(v) != f.Want {
				return parseerr.Parse(unitOffset, "invalid "+f.Name)
			}
		case FieldType:
			h.Code = uint8(v)
			h.Kind = KindReserved
		case FieldExtensionFlag:
			h.HasExtension = v == 1
		case FieldSizeFlag:
			h.HasSize = v == 1
		case FieldTemporalID:
			t := uint8(v)
			h.TemporalID = &t
		case FieldTemporalIDPlus1:
			if v == 0 {
				return fmt.Errorf("unit at offset %d: %w", unitOffset, parseerr.Field(f.Name, parseerr.ErrInvalid))
			}
			t := uint8(v - 1)
			h.TemporalID = &t
		case FieldSpatialID:
			s := uint8(v)
			h.SpatialID = &s
		case FieldLayerID:
			h.LayerID = uint8(v)
		case FieldRefIDC:
			h.RefIDC = uint8(v)
		case FieldAux:
			h.Aux = h.Aux<<uint(f.Bits) | uint32(v)
		}
	}
	return nil
}

// startCodeLen returns 3 or 4 when buf[pos:] begins with an Annex B start
// code, otherwise 0.
func startCodeLen(buf []byte, pos int) int {
	if pos+3 <= len(buf) && buf[pos] == 0 && buf[pos+1] == 0 {
		if buf[pos+2] == 1 {
			return 3
		}
		if pos+4 <= len(buf) && buf[pos+2] == 0 && buf[pos+3] == 1 {
			return 4
		}
	}
	return 0
}

// nextStartCode returns the position of the next start code at or after
// pos, attributing a leading zero byte to a 4-byte start code, or len(buf).
func nextStartCode(buf []byte, pos int) int {
	for i := pos; i+3 <= len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
			if i > pos && buf[i-1] == 0 {
				return i - 1
			}
			return i
		}
	}
	return len(buf)
}
