// Package hevc describes H.265 NAL units and decodes video, sequence and
// picture parameter sets and slice segment headers.
package hevc

import (
	"fmt"
	"math/bits"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"

	"github.com/zsiec/bitscope/internal/unit"
)

// H.265 NAL unit type constants as defined in ITU-T H.265 Table 7-1.
const (
	NALTypeTrailN    = 0
	NALTypeTrailR    = 1
	NALTypeTSAN      = 2
	NALTypeTSAR      = 3
	NALTypeSTSAN     = 4
	NALTypeSTSAR     = 5
	NALTypeRADLN     = 6
	NALTypeRADLR     = 7
	NALTypeRASLN     = 8
	NALTypeRASLR     = 9
	NALTypeBLAWLP    = 16
	NALTypeBLAWRADL  = 17
	NALTypeBLANLP    = 18
	NALTypeIDRWRADL  = 19
	NALTypeIDRNLP    = 20
	NALTypeCRA       = 21
	NALTypeRsvIRAP23 = 23
	NALTypeVPS       = 32
	NALTypeSPS       = 33
	NALTypePPS       = 34
	NALTypeAUD       = 35
	NALTypeEOS       = 36
	NALTypeEOB       = 37
	NALTypeFD        = 38
	NALTypePrefixSEI = 39
	NALTypeSuffixSEI = 40
)

var nalHeader = []unit.Field{
	{Name: "forbidden_zero_bit", Kind: unit.FieldForbidden, Bits: 1},
	{Name: "nal_unit_type", Kind: unit.FieldType, Bits: 6},
	{Name: "nuh_layer_id", Kind: unit.FieldLayerID, Bits: 6},
	{Name: "nuh_temporal_id_plus1", Kind: unit.FieldTemporalIDPlus1, Bits: 3},
}

// DescriptorAnnexB frames H.265 Annex B byte streams.
var DescriptorAnnexB = &unit.Descriptor{
	Codec:    unit.CodecHEVC,
	Header:   nalHeader,
	Size:     unit.SizeAnnexB,
	Classify: Classify,
}

// DescriptorHVCC frames length-prefixed H.265 (hvcC, 4-byte lengths).
var DescriptorHVCC = DescriptorAnnexB.WithSize(unit.SizeLengthPrefix, 4)

// Classify maps nal_unit_type to a unit kind.
func Classify(code uint32) unit.Kind {
	switch {
	case code <= NALTypeRASLR:
		return unit.KindSlice
	case code >= NALTypeBLAWLP && code <= NALTypeCRA:
		return unit.KindSliceIRAP
	case code >= 48:
		return unit.KindUnspecified
	}
	switch code {
	case NALTypeVPS:
		return unit.KindVPS
	case NALTypeSPS:
		return unit.KindSPS
	case NALTypePPS:
		return unit.KindPPS
	case NALTypeAUD:
		return unit.KindAUD
	case NALTypeEOS:
		return unit.KindEndOfSequence
	case NALTypeEOB:
		return unit.KindEndOfStream
	case NALTypeFD:
		return unit.KindFillerData
	case NALTypePrefixSEI, NALTypeSuffixSEI:
		return unit.KindSEI
	}
	return unit.KindReserved
}

// IsIDR reports whether nal_unit_type is IDR_W_RADL or IDR_N_LP.
func IsIDR(code uint8) bool {
	return code == NALTypeIDRWRADL || code == NALTypeIDRNLP
}

// IsIRAP reports whether nal_unit_type lies in BLA_W_LP..RSV_IRAP_VCL23.
func IsIRAP(code uint8) bool {
	return code >= NALTypeBLAWLP && code <= NALTypeRsvIRAP23
}

// RBSP strips emulation prevention bytes from a NAL unit payload.
func RBSP(payload []byte) []byte {
	return h264.EmulationPreventionRemove(payload)
}

// CodecString returns the RFC 6381 codec parameter string (e.g.
// "hev1.1.6.L93.B0") for an SPS.
func CodecString(s *SPS) string {
	ptl := s.ProfileTierLevel
	tier := "L"
	if ptl.TierFlag {
		tier = "H"
	}

	var constraintBytes [6]byte
	for i := 0; i < 6; i++ {
		constraintBytes[i] = byte(ptl.ConstraintIndicatorFlags >> uint((5-i)*8))
	}
	lastNonZero := -1
	for i := 5; i >= 0; i-- {
		if constraintBytes[i] != 0 {
			lastNonZero = i
			break
		}
	}

	codec := fmt.Sprintf("hev1.%d.%X.%s%d", ptl.ProfileIDC, bits.Reverse32(ptl.ProfileCompatibilityFlags), tier, ptl.LevelIDC)
	for i := 0; i <= lastNonZero; i++ {
		codec += fmt.Sprintf(".%X", constraintBytes[i])
	}
	return codec
}
