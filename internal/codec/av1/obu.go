// Package av1 describes AV1 open bitstream units (OBUs): the header layout
// used by the shared framer, the OBU type table and the sequence header
// decoder.
package av1

import (
	"github.com/zsiec/bitscope/internal/unit"
)

// OBU type codes.
const (
	OBUSequenceHeader       = 1
	OBUTemporalDelimiter    = 2
	OBUFrameHeader          = 3
	OBUTileGroup            = 4
	OBUMetadata             = 5
	OBUFrame                = 6
	OBURedundantFrameHeader = 7
	OBUTileList             = 8
	OBUPadding              = 15
)

// Descriptor frames low-overhead AV1 bitstreams: a one-byte header, an
// optional one-byte extension and a leb128 size when obu_has_size_field is
// set.
var Descriptor = &unit.Descriptor{
	Codec: unit.CodecAV1,
	Header: []unit.Field{
		{Name: "obu_forbidden_bit", Kind: unit.FieldForbidden, Bits: 1},
		{Name: "obu_type", Kind: unit.FieldType, Bits: 4},
		{Name: "obu_extension_flag", Kind: unit.FieldExtensionFlag, Bits: 1},
		{Name: "obu_has_size_field", Kind: unit.FieldSizeFlag, Bits: 1},
		{Name: "obu_reserved_1bit", Kind: unit.FieldReserved, Bits: 1},
	},
	Extension: []unit.Field{
		{Name: "temporal_id", Kind: unit.FieldTemporalID, Bits: 3},
		{Name: "spatial_id", Kind: unit.FieldSpatialID, Bits: 2},
		{Name: "extension_header_reserved_3bits", Kind: unit.FieldReserved, Bits: 3},
	},
	Size:     unit.SizeLEB128,
	Classify: Classify,
}

// Classify maps an obu_type to its unit kind.
func Classify(code uint32) unit.Kind {
	switch code {
	case OBUSequenceHeader:
		return unit.KindSequenceHeader
	case OBUTemporalDelimiter:
		return unit.KindTemporalDelimiter
	case OBUFrameHeader:
		return unit.KindFrameHeader
	case OBUTileGroup:
		return unit.KindTileGroup
	case OBUMetadata:
		return unit.KindMetadata
	case OBUFrame:
		return unit.KindFrame
	case OBURedundantFrameHeader:
		return unit.KindRedundantFrameHeader
	case OBUTileList:
		return unit.KindTileList
	case OBUPadding:
		return unit.KindPadding
	}
	return unit.KindReserved
}

// Extension carries the optional OBU extension header values.
type Extension struct {
	TemporalID uint8
	SpatialID  uint8
}

// AppendOBU appends an OBU of the given type with an explicit size field.
// ext may be nil.
func AppendOBU(buf []byte, obuType uint8, ext *Extension, payload []byte) []byte {
	h := unit.Header{Code: obuType, HasSize: true}
	if ext != nil {
		tid, sid := ext.TemporalID, ext.SpatialID
		h.HasExtension = true
		h.TemporalID = &tid
		h.SpatialID = &sid
	}
	// The AV1 layout is byte aligned and has no length limit, so Append
	// cannot fail here.
	out, _ := unit.Append(buf, Descriptor, h, payload)
	return out
}

// Decoder decodes the structured header of sequence header OBUs. Other OBU
// types carry no structured header and decode to nil.
type Decoder struct{}

// DecodePayload implements the scanner's payload decoder contract.
func (Decoder) DecodePayload(u unit.Unit) (any, error) {
	if u.Kind != unit.KindSequenceHeader {
		return nil, nil
	}
	return ParseSequenceHeader(u.Payload)
}
