package hevc

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
)

// Tile grid limits of the highest level (Table A.8).
const (
	maxTileColumns = 20
	maxTileRows    = 22
)

// PPSRangeExtension holds pps_range_extension().
type PPSRangeExtension struct {
	Log2MaxTransformSkipBlockSize int
	CrossComponentPrediction      bool
	ChromaQPOffsetListEnabled     bool
	DiffCuChromaQPOffsetDepth     uint32
	CbQPOffsetList                []int32
	CrQPOffsetList                []int32
	Log2SaoOffsetScaleLuma        uint32
	Log2SaoOffsetScaleChroma      uint32
}

// PPS is a decoded pic_parameter_set_rbsp().
type PPS struct {
	ID    uint32
	SPSID uint32

	DependentSliceSegmentsEnabled bool
	OutputFlagPresent             bool
	NumExtraSliceHeaderBits       int
	SignDataHiding                bool
	CabacInitPresent              bool
	NumRefIdxL0DefaultActive      int
	NumRefIdxL1DefaultActive      int
	InitQPMinus26                 int32
	ConstrainedIntraPred          bool
	TransformSkipEnabled          bool
	CuQPDeltaEnabled              bool
	DiffCuQPDeltaDepth            uint32
	CbQPOffset                    int32
	CrQPOffset                    int32
	SliceChromaQPOffsetsPresent   bool
	WeightedPred                  bool
	WeightedBipred                bool
	TransquantBypassEnabled       bool

	TilesEnabled             bool
	EntropyCodingSyncEnabled bool
	NumTileColumns           int
	NumTileRows              int
	UniformSpacing           bool
	ColumnWidthMinus1        []uint32
	RowHeightMinus1          []uint32
	LoopFilterAcrossTiles    bool
	LoopFilterAcrossSlices   bool

	DeblockingFilterControlPresent  bool
	DeblockingFilterOverrideEnabled bool
	DeblockingFilterDisabled        bool
	BetaOffsetDiv2                  int32
	TcOffsetDiv2                    int32

	ScalingListDataPresent      bool
	ListsModificationPresent    bool
	Log2ParallelMergeLevel      int
	SliceSegmentHeaderExtension bool

	Range *PPSRangeExtension
}

// ParsePPS decodes a PPS NAL unit payload, the 2-byte header excluded.
func ParsePPS(payload []byte) (*PPS, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("hevc: pps: %w", parseerr.ErrEmpty)
	}
	s := bits.NewSyntax(RBSP(payload))
	pps := &PPS{}

	pps.ID = s.UEMax(maxPPSID, "pps_pic_parameter_set_id")
	pps.SPSID = s.UEMax(maxSPSID, "pps_seq_parameter_set_id")
	pps.DependentSliceSegmentsEnabled = s.Flag("dependent_slice_segments_enabled_flag")
	pps.OutputFlagPresent = s.Flag("output_flag_present_flag")
	pps.NumExtraSliceHeaderBits = int(s.U(3, "num_extra_slice_header_bits"))
	pps.SignDataHiding = s.Flag("sign_data_hiding_enabled_flag")
	pps.CabacInitPresent = s.Flag("cabac_init_present_flag")
	pps.NumRefIdxL0DefaultActive = int(s.UEMax(14, "num_ref_idx_l0_default_active_minus1")) + 1
	pps.NumRefIdxL1DefaultActive = int(s.UEMax(14, "num_ref_idx_l1_default_active_minus1")) + 1
	// Bit-depth dependent lower bound is enforced on SliceQPY.
	pps.InitQPMinus26 = s.SERange(-(26 + 48), 25, "init_qp_minus26")
	pps.ConstrainedIntraPred = s.Flag("constrained_intra_pred_flag")
	pps.TransformSkipEnabled = s.Flag("transform_skip_enabled_flag")
	pps.CuQPDeltaEnabled = s.Flag("cu_qp_delta_enabled_flag")
	if pps.CuQPDeltaEnabled {
		pps.DiffCuQPDeltaDepth = s.UEMax(3, "diff_cu_qp_delta_depth")
	}
	pps.CbQPOffset = s.SERange(-12, 12, "pps_cb_qp_offset")
	pps.CrQPOffset = s.SERange(-12, 12, "pps_cr_qp_offset")
	pps.SliceChromaQPOffsetsPresent = s.Flag("pps_slice_chroma_qp_offsets_present_flag")
	pps.WeightedPred = s.Flag("weighted_pred_flag")
	pps.WeightedBipred = s.Flag("weighted_bipred_flag")
	pps.TransquantBypassEnabled = s.Flag("transquant_bypass_enabled_flag")
	pps.TilesEnabled = s.Flag("tiles_enabled_flag")
	pps.EntropyCodingSyncEnabled = s.Flag("entropy_coding_sync_enabled_flag")

	pps.NumTileColumns, pps.NumTileRows = 1, 1
	pps.LoopFilterAcrossTiles = true
	if pps.TilesEnabled {
		pps.NumTileColumns = int(s.UEMax(maxTileColumns-1, "num_tile_columns_minus1")) + 1
		pps.NumTileRows = int(s.UEMax(maxTileRows-1, "num_tile_rows_minus1")) + 1
		pps.UniformSpacing = s.Flag("uniform_spacing_flag")
		if !pps.UniformSpacing && s.Err() == nil {
			pps.ColumnWidthMinus1 = make([]uint32, pps.NumTileColumns-1)
			for i := range pps.ColumnWidthMinus1 {
				pps.ColumnWidthMinus1[i] = s.UE("column_width_minus1")
			}
			pps.RowHeightMinus1 = make([]uint32, pps.NumTileRows-1)
			for i := range pps.RowHeightMinus1 {
				pps.RowHeightMinus1[i] = s.UE("row_height_minus1")
			}
		}
		pps.LoopFilterAcrossTiles = s.Flag("loop_filter_across_tiles_enabled_flag")
	}
	pps.LoopFilterAcrossSlices = s.Flag("pps_loop_filter_across_slices_enabled_flag")

	pps.DeblockingFilterControlPresent = s.Flag("deblocking_filter_control_present_flag")
	if pps.DeblockingFilterControlPresent {
		pps.DeblockingFilterOverrideEnabled = s.Flag("deblocking_filter_override_enabled_flag")
		pps.DeblockingFilterDisabled = s.Flag("pps_deblocking_filter_disabled_flag")
		if !pps.DeblockingFilterDisabled {
			pps.BetaOffsetDiv2 = s.SERange(-6, 6, "pps_beta_offset_div2")
			pps.TcOffsetDiv2 = s.SERange(-6, 6, "pps_tc_offset_div2")
		}
	}
	pps.ScalingListDataPresent = s.Flag("pps_scaling_list_data_present_flag")
	if pps.ScalingListDataPresent {
		readScalingListData(s)
	}
	pps.ListsModificationPresent = s.Flag("lists_modification_present_flag")
	pps.Log2ParallelMergeLevel = int(s.UEMax(4, "log2_parallel_merge_level_minus2")) + 2
	pps.SliceSegmentHeaderExtension = s.Flag("slice_segment_header_extension_present_flag")

	if s.Flag("pps_extension_present_flag") {
		rangeExt := s.Flag("pps_range_extension_flag")
		s.Skip(7, "pps_extension_7bits")
		if rangeExt {
			pps.Range = readPPSRangeExtension(s, pps.TransformSkipEnabled)
		}
	}

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("hevc: pps: %w", err)
	}
	return pps, nil
}

func readPPSRangeExtension(s *bits.Syntax, transformSkip bool) *PPSRangeExtension {
	r := &PPSRangeExtension{Log2MaxTransformSkipBlockSize: 2}
	if transformSkip {
		r.Log2MaxTransformSkipBlockSize = int(s.UEMax(3, "log2_max_transform_skip_block_size_minus2")) + 2
	}
	r.CrossComponentPrediction = s.Flag("cross_component_prediction_enabled_flag")
	r.ChromaQPOffsetListEnabled = s.Flag("chroma_qp_offset_list_enabled_flag")
	if r.ChromaQPOffsetListEnabled {
		r.DiffCuChromaQPOffsetDepth = s.UEMax(3, "diff_cu_chroma_qp_offset_depth")
		n := int(s.UEMax(5, "chroma_qp_offset_list_len_minus1")) + 1
		for i := 0; i < n && s.Err() == nil; i++ {
			r.CbQPOffsetList = append(r.CbQPOffsetList, s.SERange(-12, 12, "cb_qp_offset_list"))
			r.CrQPOffsetList = append(r.CrQPOffsetList, s.SERange(-12, 12, "cr_qp_offset_list"))
		}
	}
	r.Log2SaoOffsetScaleLuma = s.UEMax(6, "log2_sao_offset_scale_luma")
	r.Log2SaoOffsetScaleChroma = s.UEMax(6, "log2_sao_offset_scale_chroma")
	return r
}
