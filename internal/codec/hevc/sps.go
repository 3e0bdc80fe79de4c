package hevc

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
)

const (
	maxSPSID = 15
	maxPPSID = 63
)

// RangeExtension holds sps_range_extension().
type RangeExtension struct {
	TransformSkipRotation       bool
	TransformSkipContext        bool
	ImplicitRDPCM               bool
	ExplicitRDPCM               bool
	ExtendedPrecisionProcessing bool
	IntraSmoothingDisabled      bool
	HighPrecisionOffsets        bool
	PersistentRiceAdaptation    bool
	CabacBypassAlignment        bool
}

// SPS is a decoded seq_parameter_set_rbsp().
type SPS struct {
	VPSID              uint8
	MaxSubLayersMinus1 int
	TemporalIDNesting  bool
	ProfileTierLevel   ProfileTierLevel
	ID                 uint32

	ChromaFormatIDC     uint32
	SeparateColourPlane bool
	PicWidth            uint32
	PicHeight           uint32

	ConformanceWindow bool
	ConfWinLeft       uint32
	ConfWinRight      uint32
	ConfWinTop        uint32
	ConfWinBottom     uint32

	BitDepthLuma          int
	BitDepthChroma        int
	Log2MaxPicOrderCntLsb int
	SubLayerOrdering      []SubLayerOrdering

	Log2MinCbSize                   int
	Log2CtbSize                     int
	Log2MinTbSize                   int
	Log2MaxTbSize                   int
	MaxTransformHierarchyDepthInter uint32
	MaxTransformHierarchyDepthIntra uint32

	ScalingListEnabled     bool
	ScalingListDataPresent bool
	AMPEnabled             bool
	SAOEnabled             bool

	PCMEnabled            bool
	PCMBitDepthLuma       int
	PCMBitDepthChroma     int
	Log2MinPCMCbSize      int
	Log2MaxPCMCbSize      int
	PCMLoopFilterDisabled bool

	ShortTermRPS []*ShortTermRPS

	LongTermRefPicsPresent bool
	LtRefPicPocLsb         []uint32
	UsedByCurrPicLt        []bool

	TemporalMVPEnabled   bool
	StrongIntraSmoothing bool

	VUI   *VUI
	Range *RangeExtension
}

// ChromaArrayType is ChromaArrayType as derived in 7.4.3.2.1.
func (s *SPS) ChromaArrayType() uint32 {
	if s.SeparateColourPlane {
		return 0
	}
	return s.ChromaFormatIDC
}

// QpBdOffsetY returns the luma QP range offset for the coded bit depth.
func (s *SPS) QpBdOffsetY() int {
	return 6 * (s.BitDepthLuma - 8)
}

// PicWidthInCtbs is PicWidthInCtbsY.
func (s *SPS) PicWidthInCtbs() uint32 {
	ctb := uint64(1) << uint(s.Log2CtbSize)
	return uint32((uint64(s.PicWidth) + ctb - 1) / ctb)
}

// PicHeightInCtbs is PicHeightInCtbsY.
func (s *SPS) PicHeightInCtbs() uint32 {
	ctb := uint64(1) << uint(s.Log2CtbSize)
	return uint32((uint64(s.PicHeight) + ctb - 1) / ctb)
}

// PicSizeInCtbs is PicSizeInCtbsY.
func (s *SPS) PicSizeInCtbs() uint64 {
	return uint64(s.PicWidthInCtbs()) * uint64(s.PicHeightInCtbs())
}

// MaxDecPicBufferingMinus1 is sps_max_dec_pic_buffering_minus1 of the
// highest sub-layer.
func (s *SPS) MaxDecPicBufferingMinus1() uint32 {
	if len(s.SubLayerOrdering) == 0 {
		return 0
	}
	return s.SubLayerOrdering[len(s.SubLayerOrdering)-1].MaxDecPicBufferingMinus1
}

// Width returns the luma width inside the conformance window.
func (s *SPS) Width() int {
	subWidthC, _ := s.subsampling()
	return int(int64(s.PicWidth) - int64(subWidthC)*(int64(s.ConfWinLeft)+int64(s.ConfWinRight)))
}

// Height returns the luma height inside the conformance window.
func (s *SPS) Height() int {
	_, subHeightC := s.subsampling()
	return int(int64(s.PicHeight) - int64(subHeightC)*(int64(s.ConfWinTop)+int64(s.ConfWinBottom)))
}

func (s *SPS) subsampling() (int, int) {
	switch s.ChromaArrayType() {
	case 1:
		return 2, 2
	case 2:
		return 2, 1
	}
	return 1, 1
}

// ParseSPS decodes an SPS NAL unit payload, the 2-byte header excluded.
func ParseSPS(payload []byte) (*SPS, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("hevc: sps: %w", parseerr.ErrUnexpectedEOF)
	}
	s := bits.NewSyntax(RBSP(payload))
	sps := &SPS{}

	sps.VPSID = uint8(s.U(4, "sps_video_parameter_set_id"))
	sps.MaxSubLayersMinus1 = int(s.U(3, "sps_max_sub_layers_minus1"))
	if sps.MaxSubLayersMinus1 >= maxSubLayers {
		s.Fail("sps_max_sub_layers_minus1", parseerr.ErrOutOfRange)
	}
	sps.TemporalIDNesting = s.Flag("sps_temporal_id_nesting_flag")
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("hevc: sps: %w", err)
	}
	sps.ProfileTierLevel = readProfileTierLevel(s, sps.MaxSubLayersMinus1)
	sps.ID = s.UEMax(maxSPSID, "sps_seq_parameter_set_id")

	sps.ChromaFormatIDC = s.UEMax(3, "chroma_format_idc")
	if sps.ChromaFormatIDC == 3 {
		sps.SeparateColourPlane = s.Flag("separate_colour_plane_flag")
	}
	sps.PicWidth = s.UE("pic_width_in_luma_samples")
	sps.PicHeight = s.UE("pic_height_in_luma_samples")
	if s.Err() == nil && (sps.PicWidth == 0 || sps.PicHeight == 0) {
		s.Fail("pic_width_in_luma_samples", parseerr.ErrInvalid)
	}
	sps.ConformanceWindow = s.Flag("conformance_window_flag")
	if sps.ConformanceWindow {
		sps.ConfWinLeft = s.UE("conf_win_left_offset")
		sps.ConfWinRight = s.UE("conf_win_right_offset")
		sps.ConfWinTop = s.UE("conf_win_top_offset")
		sps.ConfWinBottom = s.UE("conf_win_bottom_offset")
		if s.Err() == nil && (sps.Width() <= 0 || sps.Height() <= 0) {
			s.Fail("conf_win_offset", parseerr.ErrOutOfRange)
		}
	}
	sps.BitDepthLuma = int(s.UEMax(8, "bit_depth_luma_minus8")) + 8
	sps.BitDepthChroma = int(s.UEMax(8, "bit_depth_chroma_minus8")) + 8
	sps.Log2MaxPicOrderCntLsb = int(s.UEMax(12, "log2_max_pic_order_cnt_lsb_minus4")) + 4
	sps.SubLayerOrdering = readSubLayerOrdering(s, sps.MaxSubLayersMinus1, "sps")

	sps.Log2MinCbSize = int(s.UEMax(3, "log2_min_luma_coding_block_size_minus3")) + 3
	sps.Log2CtbSize = sps.Log2MinCbSize + int(s.UEMax(3, "log2_diff_max_min_luma_coding_block_size"))
	if s.Err() == nil && (sps.Log2CtbSize < 4 || sps.Log2CtbSize > 6) {
		s.Fail("log2_diff_max_min_luma_coding_block_size", parseerr.ErrOutOfRange)
	}
	sps.Log2MinTbSize = int(s.UEMax(3, "log2_min_luma_transform_block_size_minus2")) + 2
	sps.Log2MaxTbSize = sps.Log2MinTbSize + int(s.UEMax(3, "log2_diff_max_min_luma_transform_block_size"))
	sps.MaxTransformHierarchyDepthInter = s.UEMax(4, "max_transform_hierarchy_depth_inter")
	sps.MaxTransformHierarchyDepthIntra = s.UEMax(4, "max_transform_hierarchy_depth_intra")

	sps.ScalingListEnabled = s.Flag("scaling_list_enabled_flag")
	if sps.ScalingListEnabled {
		sps.ScalingListDataPresent = s.Flag("sps_scaling_list_data_present_flag")
		if sps.ScalingListDataPresent {
			readScalingListData(s)
		}
	}
	sps.AMPEnabled = s.Flag("amp_enabled_flag")
	sps.SAOEnabled = s.Flag("sample_adaptive_offset_enabled_flag")
	sps.PCMEnabled = s.Flag("pcm_enabled_flag")
	if sps.PCMEnabled {
		sps.PCMBitDepthLuma = int(s.U(4, "pcm_sample_bit_depth_luma_minus1")) + 1
		sps.PCMBitDepthChroma = int(s.U(4, "pcm_sample_bit_depth_chroma_minus1")) + 1
		sps.Log2MinPCMCbSize = int(s.UEMax(2, "log2_min_pcm_luma_coding_block_size_minus3")) + 3
		sps.Log2MaxPCMCbSize = sps.Log2MinPCMCbSize + int(s.UEMax(2, "log2_diff_max_min_pcm_luma_coding_block_size"))
		sps.PCMLoopFilterDisabled = s.Flag("pcm_loop_filter_disabled_flag")
	}

	num := int(s.UEMax(maxShortTermRefPicSets, "num_short_term_ref_pic_sets"))
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("hevc: sps: %w", err)
	}
	sps.ShortTermRPS = make([]*ShortTermRPS, 0, num)
	for i := 0; i < num && s.Err() == nil; i++ {
		sps.ShortTermRPS = append(sps.ShortTermRPS,
			readShortTermRPS(s, i, num, sps.ShortTermRPS, sps.MaxDecPicBufferingMinus1()))
	}

	sps.LongTermRefPicsPresent = s.Flag("long_term_ref_pics_present_flag")
	if sps.LongTermRefPicsPresent {
		n := int(s.UEMax(maxLongTermRefPicsSPS, "num_long_term_ref_pics_sps"))
		if s.Err() == nil {
			sps.LtRefPicPocLsb = make([]uint32, n)
			sps.UsedByCurrPicLt = make([]bool, n)
		}
		for i := range sps.LtRefPicPocLsb {
			sps.LtRefPicPocLsb[i] = s.U(sps.Log2MaxPicOrderCntLsb, "lt_ref_pic_poc_lsb_sps")
			sps.UsedByCurrPicLt[i] = s.Flag("used_by_curr_pic_lt_sps_flag")
		}
	}
	sps.TemporalMVPEnabled = s.Flag("sps_temporal_mvp_enabled_flag")
	sps.StrongIntraSmoothing = s.Flag("strong_intra_smoothing_enabled_flag")

	if s.Flag("vui_parameters_present_flag") {
		sps.VUI = readVUI(s, sps.MaxSubLayersMinus1)
	}
	if s.Flag("sps_extension_present_flag") {
		rangeExt := s.Flag("sps_range_extension_flag")
		s.Skip(7, "sps_extension_7bits")
		if rangeExt {
			sps.Range = &RangeExtension{
				TransformSkipRotation:       s.Flag("transform_skip_rotation_enabled_flag"),
				TransformSkipContext:        s.Flag("transform_skip_context_enabled_flag"),
				ImplicitRDPCM:               s.Flag("implicit_rdpcm_enabled_flag"),
				ExplicitRDPCM:               s.Flag("explicit_rdpcm_enabled_flag"),
				ExtendedPrecisionProcessing: s.Flag("extended_precision_processing_flag"),
				IntraSmoothingDisabled:      s.Flag("intra_smoothing_disabled_flag"),
				HighPrecisionOffsets:        s.Flag("high_precision_offsets_enabled_flag"),
				PersistentRiceAdaptation:    s.Flag("persistent_rice_adaptation_enabled_flag"),
				CabacBypassAlignment:        s.Flag("cabac_bypass_alignment_enabled_flag"),
			}
		}
	}

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("hevc: sps: %w", err)
	}
	return sps, nil
}
