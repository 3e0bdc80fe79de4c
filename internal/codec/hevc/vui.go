package hevc

import (
	"github.com/zsiec/bitscope/internal/bits"
)

// maxCpbCnt bounds cpb_cnt_minus1.
const maxCpbCnt = 31

// SubLayerHRD holds one sub_layer_hrd_parameters() loop.
type SubLayerHRD struct {
	BitRateValueMinus1   []uint32
	CpbSizeValueMinus1   []uint32
	CpbSizeDuValueMinus1 []uint32
	BitRateDuValueMinus1 []uint32
	CBR                  []bool
}

// SubLayerTiming is the per-sub-layer part of hrd_parameters().
type SubLayerTiming struct {
	FixedPicRateGeneral         bool
	FixedPicRateWithinCVS       bool
	ElementalDurationInTcMinus1 uint32
	LowDelayHRD                 bool
	CpbCnt                      int
	NAL                         *SubLayerHRD
	VCL                         *SubLayerHRD
}

// HRD holds hrd_parameters().
type HRD struct {
	NALPresent bool
	VCLPresent bool

	SubPicParamsPresent           bool
	TickDivisorMinus2             uint8
	DuCpbRemovalDelayIncrementLen int
	SubPicCpbParamsInPicTimingSEI bool
	DpbOutputDelayDuLength        int
	BitRateScale                  uint8
	CpbSizeScale                  uint8
	CpbSizeDuScale                uint8
	InitialCpbRemovalDelayLength  int
	AuCpbRemovalDelayLength       int
	DpbOutputDelayLength          int

	SubLayers []SubLayerTiming
}

func readHRD(s *bits.Syntax, commonInf bool, maxSubLayersMinus1 int) *HRD {
	h := &HRD{
		InitialCpbRemovalDelayLength: 24,
		AuCpbRemovalDelayLength:      24,
		DpbOutputDelayLength:         24,
	}
	if commonInf {
		h.NALPresent = s.Flag("nal_hrd_parameters_present_flag")
		h.VCLPresent = s.Flag("vcl_hrd_parameters_present_flag")
		if h.NALPresent || h.VCLPresent {
			h.SubPicParamsPresent = s.Flag("sub_pic_hrd_params_present_flag")
			if h.SubPicParamsPresent {
				h.TickDivisorMinus2 = uint8(s.U(8, "tick_divisor_minus2"))
				h.DuCpbRemovalDelayIncrementLen = int(s.U(5, "du_cpb_removal_delay_increment_length_minus1")) + 1
				h.SubPicCpbParamsInPicTimingSEI = s.Flag("sub_pic_cpb_params_in_pic_timing_sei_flag")
				h.DpbOutputDelayDuLength = int(s.U(5, "dpb_output_delay_du_length_minus1")) + 1
			}
			h.BitRateScale = uint8(s.U(4, "bit_rate_scale"))
			h.CpbSizeScale = uint8(s.U(4, "cpb_size_scale"))
			if h.SubPicParamsPresent {
				h.CpbSizeDuScale = uint8(s.U(4, "cpb_size_du_scale"))
			}
			h.InitialCpbRemovalDelayLength = int(s.U(5, "initial_cpb_removal_delay_length_minus1")) + 1
			h.AuCpbRemovalDelayLength = int(s.U(5, "au_cpb_removal_delay_length_minus1")) + 1
			h.DpbOutputDelayLength = int(s.U(5, "dpb_output_delay_length_minus1")) + 1
		}
	}

	h.SubLayers = make([]SubLayerTiming, maxSubLayersMinus1+1)
	for i := range h.SubLayers {
		sl := &h.SubLayers[i]
		sl.FixedPicRateGeneral = s.Flag("fixed_pic_rate_general_flag")
		sl.FixedPicRateWithinCVS = true
		if !sl.FixedPicRateGeneral {
			sl.FixedPicRateWithinCVS = s.Flag("fixed_pic_rate_within_cvs_flag")
		}
		if sl.FixedPicRateWithinCVS {
			sl.ElementalDurationInTcMinus1 = s.UEMax(2047, "elemental_duration_in_tc_minus1")
		} else {
			sl.LowDelayHRD = s.Flag("low_delay_hrd_flag")
		}
		sl.CpbCnt = 1
		if !sl.LowDelayHRD {
			sl.CpbCnt = int(s.UEMax(maxCpbCnt, "cpb_cnt_minus1")) + 1
		}
		if s.Err() != nil {
			return h
		}
		if h.NALPresent {
			sl.NAL = readSubLayerHRD(s, sl.CpbCnt, h.SubPicParamsPresent)
		}
		if h.VCLPresent {
			sl.VCL = readSubLayerHRD(s, sl.CpbCnt, h.SubPicParamsPresent)
		}
	}
	return h
}

func readSubLayerHRD(s *bits.Syntax, cpbCnt int, subPic bool) *SubLayerHRD {
	h := &SubLayerHRD{
		BitRateValueMinus1: make([]uint32, cpbCnt),
		CpbSizeValueMinus1: make([]uint32, cpbCnt),
		CBR:                make([]bool, cpbCnt),
	}
	if subPic {
		h.CpbSizeDuValueMinus1 = make([]uint32, cpbCnt)
		h.BitRateDuValueMinus1 = make([]uint32, cpbCnt)
	}
	for i := 0; i < cpbCnt; i++ {
		h.BitRateValueMinus1[i] = s.UE("bit_rate_value_minus1")
		h.CpbSizeValueMinus1[i] = s.UE("cpb_size_value_minus1")
		if subPic {
			h.CpbSizeDuValueMinus1[i] = s.UE("cpb_size_du_value_minus1")
			h.BitRateDuValueMinus1[i] = s.UE("bit_rate_du_value_minus1")
		}
		h.CBR[i] = s.Flag("cbr_flag")
	}
	return h
}

// VUI holds vui_parameters().
type VUI struct {
	AspectRatioIDC uint8
	SarWidth       uint16
	SarHeight      uint16

	OverscanInfoPresent bool
	OverscanAppropriate bool

	VideoSignalTypePresent  bool
	VideoFormat             uint8
	VideoFullRange          bool
	ColourDescription       bool
	ColourPrimaries         uint8
	TransferCharacteristics uint8
	MatrixCoefficients      uint8

	ChromaLocInfoPresent bool
	ChromaLocTopField    uint32
	ChromaLocBottomField uint32

	NeutralChromaIndication bool
	FieldSeq                bool
	FrameFieldInfoPresent   bool

	DefaultDisplayWindow bool
	DefDispWinLeft       uint32
	DefDispWinRight      uint32
	DefDispWinTop        uint32
	DefDispWinBottom     uint32

	TimingInfoPresent        bool
	NumUnitsInTick           uint32
	TimeScale                uint32
	POCProportionalToTiming  bool
	NumTicksPOCDiffOneMinus1 uint32
	HRD                      *HRD

	BitstreamRestriction           bool
	TilesFixedStructure            bool
	MotionVectorsOverPicBoundaries bool
	RestrictedRefPicLists          bool
	MinSpatialSegmentationIDC      uint32
	MaxBytesPerPicDenom            uint32
	MaxBitsPerMinCuDenom           uint32
	Log2MaxMvLengthHorizontal      uint32
	Log2MaxMvLengthVertical        uint32
}

func readVUI(s *bits.Syntax, maxSubLayersMinus1 int) *VUI {
	v := &VUI{}
	if s.Flag("aspect_ratio_info_present_flag") {
		v.AspectRatioIDC = uint8(s.U(8, "aspect_ratio_idc"))
		if v.AspectRatioIDC == 255 {
			v.SarWidth = uint16(s.U(16, "sar_width"))
			v.SarHeight = uint16(s.U(16, "sar_height"))
		}
	}
	v.OverscanInfoPresent = s.Flag("overscan_info_present_flag")
	if v.OverscanInfoPresent {
		v.OverscanAppropriate = s.Flag("overscan_appropriate_flag")
	}
	v.VideoSignalTypePresent = s.Flag("video_signal_type_present_flag")
	if v.VideoSignalTypePresent {
		v.VideoFormat = uint8(s.U(3, "video_format"))
		v.VideoFullRange = s.Flag("video_full_range_flag")
		v.ColourDescription = s.Flag("colour_description_present_flag")
		if v.ColourDescription {
			v.ColourPrimaries = uint8(s.U(8, "colour_primaries"))
			v.TransferCharacteristics = uint8(s.U(8, "transfer_characteristics"))
			v.MatrixCoefficients = uint8(s.U(8, "matrix_coeffs"))
		}
	}
	v.ChromaLocInfoPresent = s.Flag("chroma_loc_info_present_flag")
	if v.ChromaLocInfoPresent {
		v.ChromaLocTopField = s.UEMax(5, "chroma_sample_loc_type_top_field")
		v.ChromaLocBottomField = s.UEMax(5, "chroma_sample_loc_type_bottom_field")
	}
	v.NeutralChromaIndication = s.Flag("neutral_chroma_indication_flag")
	v.FieldSeq = s.Flag("field_seq_flag")
	v.FrameFieldInfoPresent = s.Flag("frame_field_info_present_flag")
	v.DefaultDisplayWindow = s.Flag("default_display_window_flag")
	if v.DefaultDisplayWindow {
		v.DefDispWinLeft = s.UE("def_disp_win_left_offset")
		v.DefDispWinRight = s.UE("def_disp_win_right_offset")
		v.DefDispWinTop = s.UE("def_disp_win_top_offset")
		v.DefDispWinBottom = s.UE("def_disp_win_bottom_offset")
	}
	v.TimingInfoPresent = s.Flag("vui_timing_info_present_flag")
	if v.TimingInfoPresent {
		v.NumUnitsInTick = s.U(32, "vui_num_units_in_tick")
		v.TimeScale = s.U(32, "vui_time_scale")
		v.POCProportionalToTiming = s.Flag("vui_poc_proportional_to_timing_flag")
		if v.POCProportionalToTiming {
			v.NumTicksPOCDiffOneMinus1 = s.UE("vui_num_ticks_poc_diff_one_minus1")
		}
		if s.Flag("vui_hrd_parameters_present_flag") {
			v.HRD = readHRD(s, true, maxSubLayersMinus1)
		}
	}
	v.BitstreamRestriction = s.Flag("bitstream_restriction_flag")
	if v.BitstreamRestriction {
		v.TilesFixedStructure = s.Flag("tiles_fixed_structure_flag")
		v.MotionVectorsOverPicBoundaries = s.Flag("motion_vectors_over_pic_boundaries_flag")
		v.RestrictedRefPicLists = s.Flag("restricted_ref_pic_lists_flag")
		v.MinSpatialSegmentationIDC = s.UEMax(4095, "min_spatial_segmentation_idc")
		v.MaxBytesPerPicDenom = s.UEMax(16, "max_bytes_per_pic_denom")
		v.MaxBitsPerMinCuDenom = s.UEMax(16, "max_bits_per_min_cu_denom")
		v.Log2MaxMvLengthHorizontal = s.UEMax(15, "log2_max_mv_length_horizontal")
		v.Log2MaxMvLengthVertical = s.UEMax(15, "log2_max_mv_length_vertical")
	}
	return v
}
