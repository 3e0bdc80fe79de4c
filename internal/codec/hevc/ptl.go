package hevc

import (
	"github.com/zsiec/bitscope/internal/bits"
)

// maxSubLayers is the number of temporal sub-layers H.265 allows.
const maxSubLayers = 7

// ProfileTierLevel holds the general part of profile_tier_level(). Sub-layer
// entries are read and discarded.
type ProfileTierLevel struct {
	ProfileSpace              uint8
	TierFlag                  bool
	ProfileIDC                uint8
	ProfileCompatibilityFlags uint32
	// ConstraintIndicatorFlags holds the 48 bits that follow the
	// compatibility flags: progressive, interlaced, non-packed and
	// frame-only source flags then the 44 profile-specific bits.
	ConstraintIndicatorFlags uint64
	LevelIDC                 uint8
}

// ProgressiveSource is general_progressive_source_flag.
func (p ProfileTierLevel) ProgressiveSource() bool {
	return p.ConstraintIndicatorFlags>>47&1 == 1
}

// InterlacedSource is general_interlaced_source_flag.
func (p ProfileTierLevel) InterlacedSource() bool {
	return p.ConstraintIndicatorFlags>>46&1 == 1
}

func readProfileTierLevel(s *bits.Syntax, maxSubLayersMinus1 int) ProfileTierLevel {
	var p ProfileTierLevel
	p.ProfileSpace = uint8(s.U(2, "general_profile_space"))
	p.TierFlag = s.Flag("general_tier_flag")
	p.ProfileIDC = uint8(s.U(5, "general_profile_idc"))
	p.ProfileCompatibilityFlags = s.U(32, "general_profile_compatibility_flag")
	p.ConstraintIndicatorFlags = s.U64(48, "general_constraint_indicator_flags")
	p.LevelIDC = uint8(s.U(8, "general_level_idc"))

	var profilePresent, levelPresent [maxSubLayers]bool
	for i := 0; i < maxSubLayersMinus1; i++ {
		profilePresent[i] = s.Flag("sub_layer_profile_present_flag")
		levelPresent[i] = s.Flag("sub_layer_level_present_flag")
	}
	if maxSubLayersMinus1 > 0 {
		for i := maxSubLayersMinus1; i < 8; i++ {
			s.Skip(2, "reserved_zero_2bits")
		}
	}
	for i := 0; i < maxSubLayersMinus1; i++ {
		if profilePresent[i] {
			s.Skip(88, "sub_layer_profile")
		}
		if levelPresent[i] {
			s.Skip(8, "sub_layer_level_idc")
		}
	}
	return p
}

// SubLayerOrdering is one entry of the sub-layer ordering info loop.
type SubLayerOrdering struct {
	MaxDecPicBufferingMinus1 uint32
	MaxNumReorderPics        uint32
	MaxLatencyIncreasePlus1  uint32
}

// readSubLayerOrdering fills all maxSubLayersMinus1+1 entries; when the
// per-layer values are absent the highest layer's values are replicated.
func readSubLayerOrdering(s *bits.Syntax, maxSubLayersMinus1 int, prefix string) []SubLayerOrdering {
	present := s.Flag(prefix + "_sub_layer_ordering_info_present_flag")
	out := make([]SubLayerOrdering, maxSubLayersMinus1+1)
	first := maxSubLayersMinus1
	if present {
		first = 0
	}
	for i := first; i <= maxSubLayersMinus1; i++ {
		out[i].MaxDecPicBufferingMinus1 = s.UEMax(15, prefix+"_max_dec_pic_buffering_minus1")
		out[i].MaxNumReorderPics = s.UEMax(15, prefix+"_max_num_reorder_pics")
		out[i].MaxLatencyIncreasePlus1 = s.UE(prefix + "_max_latency_increase_plus1")
	}
	for i := 0; i < first; i++ {
		out[i] = out[first]
	}
	return out
}
