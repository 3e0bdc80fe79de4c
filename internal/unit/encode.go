package unit

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
)

// Append serializes h and payload with d's header layout and packaging and
// appends the unit to buf. It is the inverse of Frame and is used to build
// synthetic streams.
func Append(buf []byte, d *Descriptor, h Header, payload []byte) ([]byte, error) {
	w := bits.NewWriter()
	auxBits := 0
	for _, f := range d.Header {
		if f.Kind == FieldAux {
			auxBits += f.Bits
		}
	}
	writeFields(w, d.Header, h, &auxBits)
	if h.HasExtension {
		if len(d.Extension) == 0 {
			return buf, fmt.Errorf("unit: %s has no extension header: %w", d.Codec, parseerr.ErrInvalidFormat)
		}
		writeFields(w, d.Extension, h, &auxBits)
	}
	if w.BitLen()%8 != 0 {
		return buf, fmt.Errorf("unit: %s header is %d bits: %w", d.Codec, w.BitLen(), parseerr.ErrInvalidFormat)
	}
	hdr := w.Bytes()

	switch d.Size {
	case SizeLEB128:
		buf = append(buf, hdr...)
		if h.HasSize {
			buf = bits.AppendULEB128(buf, uint64(len(payload)))
		}
	case SizeLengthPrefix:
		n := d.LengthBytes
		length := uint64(len(hdr) + len(payload))
		if n < 1 || n > 4 || length >= 1<<(8*uint(n)) {
			return buf, fmt.Errorf("unit: %d bytes in %d byte length prefix: %w", length, n, parseerr.ErrOutOfRange)
		}
		for i := n - 1; i >= 0; i-- {
			buf = append(buf, byte(length>>(8*uint(i))))
		}
		buf = append(buf, hdr...)
	case SizeAnnexB:
		buf = append(buf, 0, 0, 0, 1)
		buf = append(buf, hdr...)
	case SizeSuperframe:
		buf = append(buf, hdr...)
	default:
		return buf, fmt.Errorf("unit: size mode %d: %w", d.Size, parseerr.ErrInvalidFormat)
	}
	return append(buf, payload...), nil
}

func writeFields(w *bits.Writer, fields []Field, h Header, auxLeft *int) {
	for _, f := range fields {
		var v uint64
		switch f.Kind {
		case FieldMarker:
			v = uint64(f.Want)
		case FieldType:
			v = uint64(h.Code)
		case FieldExtensionFlag:
			v = b2u(h.HasExtension)
		case FieldSizeFlag:
			v = b2u(h.HasSize)
		case FieldTemporalID:
			if h.TemporalID != nil {
				v = uint64(*h.TemporalID)
			}
		case FieldTemporalIDPlus1:
			v = 1
			if h.TemporalID != nil {
				v = uint64(*h.TemporalID) + 1
			}
		case FieldSpatialID:
			if h.SpatialID != nil {
				v = uint64(*h.SpatialID)
			}
		case FieldLayerID:
			v = uint64(h.LayerID)
		case FieldRefIDC:
			v = uint64(h.RefIDC)
		case FieldAux:
			*auxLeft -= f.Bits
			v = uint64(h.Aux >> uint(*auxLeft))
		}
		w.PutBits(f.Bits, v&(1<<uint(f.Bits)-1))
	}
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
