// Package avc describes H.264 NAL units and decodes the syntax structures
// an inspector needs: sequence and picture parameter sets, slice headers and
// SEI messages (pic timing timecodes and CEA-608/708 captions).
package avc

import (
	"fmt"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"

	"github.com/zsiec/bitscope/internal/unit"
)

// H.264 NAL unit type constants as defined in ITU-T H.264 Table 7-1.
const (
	NALTypeSlice          = 1
	NALTypeDataPartitionA = 2
	NALTypeDataPartitionB = 3
	NALTypeDataPartitionC = 4
	NALTypeIDR            = 5
	NALTypeSEI            = 6
	NALTypeSPS            = 7
	NALTypePPS            = 8
	NALTypeAUD            = 9
	NALTypeEndOfSequence  = 10
	NALTypeEndOfStream    = 11
	NALTypeFillerData     = 12
	NALTypeSPSExtension   = 13
	NALTypePrefix         = 14
	NALTypeSubsetSPS      = 15
	NALTypeAuxSlice       = 19
	NALTypeSliceExtension = 20
	NALTypeSlice3D        = 21
)

var nalHeader = []unit.Field{
	{Name: "forbidden_zero_bit", Kind: unit.FieldForbidden, Bits: 1},
	{Name: "nal_ref_idc", Kind: unit.FieldRefIDC, Bits: 2},
	{Name: "nal_unit_type", Kind: unit.FieldType, Bits: 5},
}

// DescriptorAnnexB frames H.264 Annex B byte streams.
var DescriptorAnnexB = &unit.Descriptor{
	Codec:    unit.CodecAVC,
	Header:   nalHeader,
	Size:     unit.SizeAnnexB,
	Classify: Classify,
}

// DescriptorAVCC frames length-prefixed H.264 (avcC, 4-byte lengths).
var DescriptorAVCC = DescriptorAnnexB.WithSize(unit.SizeLengthPrefix, 4)

// Classify maps nal_unit_type to a unit kind.
func Classify(code uint32) unit.Kind {
	switch code {
	case NALTypeSlice, NALTypeAuxSlice:
		return unit.KindSlice
	case NALTypeDataPartitionA, NALTypeDataPartitionB, NALTypeDataPartitionC:
		return unit.KindSliceDataPartition
	case NALTypeIDR:
		return unit.KindSliceIRAP
	case NALTypeSEI:
		return unit.KindSEI
	case NALTypeSPS, NALTypeSubsetSPS:
		return unit.KindSPS
	case NALTypePPS:
		return unit.KindPPS
	case NALTypeAUD:
		return unit.KindAUD
	case NALTypeEndOfSequence:
		return unit.KindEndOfSequence
	case NALTypeEndOfStream:
		return unit.KindEndOfStream
	case NALTypeFillerData:
		return unit.KindFillerData
	case NALTypeSPSExtension:
		return unit.KindParameterSetExtension
	case NALTypePrefix:
		return unit.KindPrefixNAL
	case NALTypeSliceExtension, NALTypeSlice3D:
		return unit.KindSliceExtension
	}
	if code == 0 || code >= 24 {
		return unit.KindUnspecified
	}
	return unit.KindReserved
}

// RBSP strips emulation prevention bytes from a NAL unit payload.
func RBSP(payload []byte) []byte {
	return h264.EmulationPreventionRemove(payload)
}

// CodecString returns the RFC 6381 codec parameter string (e.g. "avc1.42E01E")
// for an SPS.
func CodecString(s *SPS) string {
	return fmt.Sprintf("avc1.%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}
