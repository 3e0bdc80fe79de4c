// Package vvc describes H.266 NAL units for the shared framer.
package vvc

import (
	"github.com/bluenviron/mediacommon/pkg/codecs/h264"

	"github.com/zsiec/bitscope/internal/unit"
)

// H.266 NAL unit type constants as defined in ITU-T H.266 Table 5.
const (
	NALTypeTrail     = 0
	NALTypeSTSA      = 1
	NALTypeRADL      = 2
	NALTypeRASL      = 3
	NALTypeIDRWRADL  = 7
	NALTypeIDRNLP    = 8
	NALTypeCRA       = 9
	NALTypeGDR       = 10
	NALTypeRsvIRAP11 = 11
	NALTypeOPI       = 12
	NALTypeDCI       = 13
	NALTypeVPS       = 14
	NALTypeSPS       = 15
	NALTypePPS       = 16
	NALTypePrefixAPS = 17
	NALTypeSuffixAPS = 18
	NALTypePH        = 19
	NALTypeAUD       = 20
	NALTypeEOS       = 21
	NALTypeEOB       = 22
	NALTypePrefixSEI = 23
	NALTypeSuffixSEI = 24
	NALTypeFD        = 25
)

var nalHeader = []unit.Field{
	{Name: "forbidden_zero_bit", Kind: unit.FieldForbidden, Bits: 1},
	{Name: "nuh_reserved_zero_bit", Kind: unit.FieldReserved, Bits: 1},
	{Name: "nuh_layer_id", Kind: unit.FieldLayerID, Bits: 6},
	{Name: "nal_unit_type", Kind: unit.FieldType, Bits: 5},
	{Name: "nuh_temporal_id_plus1", Kind: unit.FieldTemporalIDPlus1, Bits: 3},
}

// DescriptorAnnexB frames H.266 Annex B byte streams.
var DescriptorAnnexB = &unit.Descriptor{
	Codec:    unit.CodecVVC,
	Header:   nalHeader,
	Size:     unit.SizeAnnexB,
	Classify: Classify,
}

// DescriptorVVCC frames length-prefixed H.266 (vvcC, 4-byte lengths).
var DescriptorVVCC = DescriptorAnnexB.WithSize(unit.SizeLengthPrefix, 4)

// Classify maps nal_unit_type to a unit kind. Only IDR_W_RADL, IDR_N_LP
// and CRA are IRAP. GDR pictures classify as plain slices and RSV_IRAP_11
// as reserved.
func Classify(code uint32) unit.Kind {
	switch {
	case code <= NALTypeRASL || code == NALTypeGDR:
		return unit.KindSlice
	case code >= NALTypeIDRWRADL && code <= NALTypeCRA:
		return unit.KindSliceIRAP
	case code >= 28:
		return unit.KindUnspecified
	}
	switch code {
	case NALTypeOPI:
		return unit.KindOperatingPoint
	case NALTypeDCI:
		return unit.KindDecodingCapability
	case NALTypeVPS:
		return unit.KindVPS
	case NALTypeSPS:
		return unit.KindSPS
	case NALTypePPS:
		return unit.KindPPS
	case NALTypePrefixAPS, NALTypeSuffixAPS:
		return unit.KindAPS
	case NALTypePH:
		return unit.KindPictureHeader
	case NALTypeAUD:
		return unit.KindAUD
	case NALTypeEOS:
		return unit.KindEndOfSequence
	case NALTypeEOB:
		return unit.KindEndOfStream
	case NALTypePrefixSEI, NALTypeSuffixSEI:
		return unit.KindSEI
	case NALTypeFD:
		return unit.KindFillerData
	}
	return unit.KindReserved
}

// RBSP strips emulation prevention bytes from a NAL unit payload.
func RBSP(payload []byte) []byte {
	return h264.EmulationPreventionRemove(payload)
}
