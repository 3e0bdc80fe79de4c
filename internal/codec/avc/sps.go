package avc

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
)

const (
	maxSPSID = 31
	maxPPSID = 255
)

// HRD holds hrd_parameters().
type HRD struct {
	CpbCnt                       int
	BitRateScale                 uint8
	CpbSizeScale                 uint8
	BitRateValueMinus1           []uint32
	CpbSizeValueMinus1           []uint32
	CBR                          []bool
	InitialCpbRemovalDelayLength int
	CpbRemovalDelayLength        int
	DpbOutputDelayLength         int
	TimeOffsetLength             int
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

	ChromaLocTopField    uint32
	ChromaLocBottomField uint32

	TimingInfoPresent bool
	NumUnitsInTick    uint32
	TimeScale         uint32
	FixedFrameRate    bool

	NalHRD           *HRD
	VclHRD           *HRD
	LowDelayHRD      bool
	PicStructPresent bool

	BitstreamRestriction bool
	MaxNumReorderFrames  uint32
	MaxDecFrameBuffering uint32
}

// SPS is a decoded seq_parameter_set_data().
type SPS struct {
	ProfileIDC      uint8
	ConstraintFlags uint8
	LevelIDC        uint8
	ID              uint32

	ChromaFormatIDC         uint32
	SeparateColourPlane     bool
	BitDepthLuma            int
	BitDepthChroma          int
	QpprimeYZeroBypass      bool
	SeqScalingMatrixPresent bool

	Log2MaxFrameNum         int
	PicOrderCntType         uint32
	Log2MaxPicOrderCntLsb   int
	DeltaPicOrderAlwaysZero bool
	OffsetForNonRefPic      int32
	OffsetForTopToBottom    int32
	OffsetForRefFrame       []int32

	MaxNumRefFrames           uint32
	GapsInFrameNumAllowed     bool
	PicWidthInMbsMinus1       uint32
	PicHeightInMapUnitsMinus1 uint32
	FrameMbsOnly              bool
	MbAdaptiveFrameField      bool
	Direct8x8Inference        bool

	FrameCropping bool
	CropLeft      uint32
	CropRight     uint32
	CropTop       uint32
	CropBottom    uint32

	VUI *VUI
}

// ChromaArrayType is ChromaArrayType as derived in 7.4.2.1.1.
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

// PicSizeInMapUnits is PicWidthInMbs * PicHeightInMapUnits.
func (s *SPS) PicSizeInMapUnits() uint64 {
	return uint64(s.PicWidthInMbsMinus1+1) * uint64(s.PicHeightInMapUnitsMinus1+1)
}

// Width returns the cropped luma width in samples.
func (s *SPS) Width() int {
	subWidthC, _ := s.subsampling()
	w := int64(s.PicWidthInMbsMinus1+1) * 16
	return int(w - int64(subWidthC)*int64(s.CropLeft+s.CropRight))
}

// Height returns the cropped luma height in samples.
func (s *SPS) Height() int {
	_, subHeightC := s.subsampling()
	frameMul := int64(2)
	if s.FrameMbsOnly {
		frameMul = 1
	}
	h := int64(s.PicHeightInMapUnitsMinus1+1) * 16 * frameMul
	return int(h - int64(subHeightC)*frameMul*int64(s.CropTop+s.CropBottom))
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

// HRD returns the NAL HRD parameters, falling back to the VCL ones.
func (s *SPS) HRD() *HRD {
	if s.VUI == nil {
		return nil
	}
	if s.VUI.NalHRD != nil {
		return s.VUI.NalHRD
	}
	return s.VUI.VclHRD
}

func hasChromaInfo(profile uint8) bool {
	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// ParseSPS decodes an SPS NAL unit payload (the bytes after the one-byte NAL
// header, emulation prevention still in place).
func ParseSPS(payload []byte) (*SPS, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("avc: sps: %w", parseerr.ErrUnexpectedEOF)
	}
	s := bits.NewSyntax(RBSP(payload))
	sps := &SPS{ChromaFormatIDC: 1, BitDepthLuma: 8, BitDepthChroma: 8}

	sps.ProfileIDC = uint8(s.U(8, "profile_idc"))
	sps.ConstraintFlags = uint8(s.U(8, "constraint_set_flags"))
	sps.LevelIDC = uint8(s.U(8, "level_idc"))
	sps.ID = s.UEMax(maxSPSID, "seq_parameter_set_id")

	if hasChromaInfo(sps.ProfileIDC) {
		sps.ChromaFormatIDC = s.UEMax(3, "chroma_format_idc")
		if sps.ChromaFormatIDC == 3 {
			sps.SeparateColourPlane = s.Flag("separate_colour_plane_flag")
		}
		sps.BitDepthLuma = int(s.UEMax(6, "bit_depth_luma_minus8")) + 8
		sps.BitDepthChroma = int(s.UEMax(6, "bit_depth_chroma_minus8")) + 8
		sps.QpprimeYZeroBypass = s.Flag("qpprime_y_zero_transform_bypass_flag")
		sps.SeqScalingMatrixPresent = s.Flag("seq_scaling_matrix_present_flag")
		if sps.SeqScalingMatrixPresent {
			lists := 8
			if sps.ChromaFormatIDC == 3 {
				lists = 12
			}
			readScalingLists(s, lists, "seq_scaling_list_present_flag")
		}
	}

	sps.Log2MaxFrameNum = int(s.UEMax(12, "log2_max_frame_num_minus4")) + 4
	sps.PicOrderCntType = s.UEMax(2, "pic_order_cnt_type")
	switch sps.PicOrderCntType {
	case 0:
		sps.Log2MaxPicOrderCntLsb = int(s.UEMax(12, "log2_max_pic_order_cnt_lsb_minus4")) + 4
	case 1:
		sps.DeltaPicOrderAlwaysZero = s.Flag("delta_pic_order_always_zero_flag")
		sps.OffsetForNonRefPic = s.SE("offset_for_non_ref_pic")
		sps.OffsetForTopToBottom = s.SE("offset_for_top_to_bottom_field")
		n := s.UEMax(255, "num_ref_frames_in_pic_order_cnt_cycle")
		if s.Err() == nil {
			sps.OffsetForRefFrame = make([]int32, n)
			for i := range sps.OffsetForRefFrame {
				sps.OffsetForRefFrame[i] = s.SE("offset_for_ref_frame")
			}
		}
	}

	sps.MaxNumRefFrames = s.UEMax(16, "max_num_ref_frames")
	sps.GapsInFrameNumAllowed = s.Flag("gaps_in_frame_num_value_allowed_flag")
	sps.PicWidthInMbsMinus1 = s.UE("pic_width_in_mbs_minus1")
	sps.PicHeightInMapUnitsMinus1 = s.UE("pic_height_in_map_units_minus1")
	sps.FrameMbsOnly = s.Flag("frame_mbs_only_flag")
	if !sps.FrameMbsOnly {
		sps.MbAdaptiveFrameField = s.Flag("mb_adaptive_frame_field_flag")
	}
	sps.Direct8x8Inference = s.Flag("direct_8x8_inference_flag")
	sps.FrameCropping = s.Flag("frame_cropping_flag")
	if sps.FrameCropping {
		sps.CropLeft = s.UE("frame_crop_left_offset")
		sps.CropRight = s.UE("frame_crop_right_offset")
		sps.CropTop = s.UE("frame_crop_top_offset")
		sps.CropBottom = s.UE("frame_crop_bottom_offset")
	}
	if s.Flag("vui_parameters_present_flag") {
		sps.VUI = readVUI(s)
	}

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("avc: sps: %w", err)
	}
	return sps, nil
}

func readVUI(s *bits.Syntax) *VUI {
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
			v.MatrixCoefficients = uint8(s.U(8, "matrix_coefficients"))
		}
	}
	if s.Flag("chroma_loc_info_present_flag") {
		v.ChromaLocTopField = s.UEMax(5, "chroma_sample_loc_type_top_field")
		v.ChromaLocBottomField = s.UEMax(5, "chroma_sample_loc_type_bottom_field")
	}
	v.TimingInfoPresent = s.Flag("timing_info_present_flag")
	if v.TimingInfoPresent {
		v.NumUnitsInTick = s.U(32, "num_units_in_tick")
		v.TimeScale = s.U(32, "time_scale")
		v.FixedFrameRate = s.Flag("fixed_frame_rate_flag")
	}
	if s.Flag("nal_hrd_parameters_present_flag") {
		v.NalHRD = readHRD(s)
	}
	if s.Flag("vcl_hrd_parameters_present_flag") {
		v.VclHRD = readHRD(s)
	}
	if v.NalHRD != nil || v.VclHRD != nil {
		v.LowDelayHRD = s.Flag("low_delay_hrd_flag")
	}
	v.PicStructPresent = s.Flag("pic_struct_present_flag")
	v.BitstreamRestriction = s.Flag("bitstream_restriction_flag")
	if v.BitstreamRestriction {
		s.Flag("motion_vectors_over_pic_boundaries_flag")
		s.UE("max_bytes_per_pic_denom")
		s.UE("max_bits_per_mb_denom")
		s.UE("log2_max_mv_length_horizontal")
		s.UE("log2_max_mv_length_vertical")
		v.MaxNumReorderFrames = s.UE("max_num_reorder_frames")
		v.MaxDecFrameBuffering = s.UE("max_dec_frame_buffering")
	}
	return v
}

func readHRD(s *bits.Syntax) *HRD {
	h := &HRD{CpbCnt: int(s.UEMax(31, "cpb_cnt_minus1")) + 1}
	h.BitRateScale = uint8(s.U(4, "bit_rate_scale"))
	h.CpbSizeScale = uint8(s.U(4, "cpb_size_scale"))
	if s.Err() != nil {
		return h
	}
	h.BitRateValueMinus1 = make([]uint32, h.CpbCnt)
	h.CpbSizeValueMinus1 = make([]uint32, h.CpbCnt)
	h.CBR = make([]bool, h.CpbCnt)
	for i := 0; i < h.CpbCnt; i++ {
		h.BitRateValueMinus1[i] = s.UE("bit_rate_value_minus1")
		h.CpbSizeValueMinus1[i] = s.UE("cpb_size_value_minus1")
		h.CBR[i] = s.Flag("cbr_flag")
	}
	h.InitialCpbRemovalDelayLength = int(s.U(5, "initial_cpb_removal_delay_length_minus1")) + 1
	h.CpbRemovalDelayLength = int(s.U(5, "cpb_removal_delay_length_minus1")) + 1
	h.DpbOutputDelayLength = int(s.U(5, "dpb_output_delay_length_minus1")) + 1
	h.TimeOffsetLength = int(s.U(5, "time_offset_length"))
	return h
}

// readScalingLists reads count present flags and the scaling_list() each
// one announces. Lists 0-5 are 4x4, the rest 8x8.
func readScalingLists(s *bits.Syntax, count int, flagName string) {
	for i := 0; i < count; i++ {
		if !s.Flag(flagName) {
			continue
		}
		size := 16
		if i >= 6 {
			size = 64
		}
		readScalingList(s, size)
	}
}

func readScalingList(s *bits.Syntax, size int) {
	lastScale, nextScale := int32(8), int32(8)
	for j := 0; j < size && s.Err() == nil; j++ {
		if nextScale != 0 {
			delta := s.SERange(-128, 127, "delta_scale")
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
}
