package unit

// FieldKind says how the framer interprets a header field.
type FieldKind uint8

const (
	// FieldForbidden must be zero.
	FieldForbidden FieldKind = iota
	// FieldMarker must equal Field.Want.
	FieldMarker
	// FieldType is the unit type code handed to Descriptor.Classify.
	FieldType
	// FieldExtensionFlag signals that Descriptor.Extension fields follow.
	FieldExtensionFlag
	// FieldSizeFlag signals an explicit size field after the header.
	FieldSizeFlag
	// FieldReserved is read and ignored.
	FieldReserved
	FieldTemporalID
	// FieldTemporalIDPlus1 stores value-1; zero is invalid.
	FieldTemporalIDPlus1
	FieldSpatialID
	FieldLayerID
	FieldRefIDC
	// FieldAux bits are concatenated into Header.Aux in read order.
	FieldAux
)

// Field is one fixed-width element of a unit header.
type Field struct {
	Name string
	Kind FieldKind
	Bits int
	Want uint32
}

// SizeMode selects how the payload length of a unit is determined.
type SizeMode uint8

const (
	// SizeLEB128: a leb128 size follows the header when the size flag is
	// set, otherwise the payload runs to the end of the buffer (AV1).
	SizeLEB128 SizeMode = iota
	// SizeLengthPrefix: a LengthBytes big-endian length precedes the
	// header and covers header plus payload (AVCC, hvcC, vvcC).
	SizeLengthPrefix
	// SizeAnnexB: a 3 or 4 byte start code precedes the header and the
	// payload runs to the next start code.
	SizeAnnexB
	// SizeSuperframe: frame sizes come from a trailing VP9 superframe
	// index; without one the frame runs to the end of the buffer.
	SizeSuperframe
)

func (m SizeMode) String() string {
	switch m {
	case SizeLEB128:
		return "leb128"
	case SizeLengthPrefix:
		return "length-prefix"
	case SizeAnnexB:
		return "annexb"
	case SizeSuperframe:
		return "superframe"
	}
	return "unknown"
}

// Descriptor parameterizes the shared framing algorithm for one codec and
// one packaging.
type Descriptor struct {
	Codec       Codec
	Header      []Field
	Extension   []Field
	Size        SizeMode
	LengthBytes int

	// Classify maps a raw type code to its Kind. It must accept every
	// code the type field can hold.
	Classify func(code uint32) Kind

	// Refine, when set, may re-derive header fields from the raw header
	// bytes after the generic walk (VP9 profile 3 shifts its flags).
	Refine func(h *Header, raw []byte) error
}

// WithSize returns a copy of d using a different packaging.
func (d *Descriptor) WithSize(mode SizeMode, lengthBytes int) *Descriptor {
	c := *d
	c.Size = mode
	c.LengthBytes = lengthBytes
	return &c
}

func fieldBits(fields []Field) int {
	n := 0
	for _, f := range fields {
		n += f.Bits
	}
	return n
}
