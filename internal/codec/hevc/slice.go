package hevc

import (
	"fmt"
	"math/bits"

	bitreader "github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
	"github.com/zsiec/bitscope/internal/unit"
)

// SliceType is slice_type.
type SliceType uint8

const (
	SliceB SliceType = iota
	SliceP
	SliceI
)

func (t SliceType) String() string {
	switch t {
	case SliceB:
		return "B"
	case SliceP:
		return "P"
	case SliceI:
		return "I"
	}
	return "unknown"
}

// LongTermPic is one entry of the long-term picture loop.
type LongTermPic struct {
	// LtIdxSPS is set for candidates taken from the SPS list.
	LtIdxSPS           uint32
	FromSPS            bool
	PocLsbLt           uint32
	UsedByCurrPic      bool
	DeltaPocMsbPresent bool
	DeltaPocMsbCycleLt uint32
}

// WeightEntry holds the explicit weights of one reference index.
type WeightEntry struct {
	LumaFlag          bool
	ChromaFlag        bool
	DeltaLumaWeight   int32
	LumaOffset        int32
	DeltaChromaWeight [2]int32
	DeltaChromaOffset [2]int32
}

// PredWeightTable is pred_weight_table().
type PredWeightTable struct {
	LumaLog2WeightDenom        uint32
	DeltaChromaLog2WeightDenom int32
	L0                         []WeightEntry
	L1                         []WeightEntry
}

// SliceHeader is a decoded slice_segment_header().
type SliceHeader struct {
	FirstSliceSegmentInPic bool
	NoOutputOfPriorPics    bool
	PPSID                  uint32
	DependentSliceSegment  bool
	SliceSegmentAddress    uint32

	Type           SliceType
	PicOutput      bool
	ColourPlaneID  uint8
	PicOrderCntLsb uint32

	ShortTermRefPicSetSPS bool
	ShortTermRefPicSetIdx uint32
	// ShortTermRPS is the set in effect, either coded in the header or
	// selected from the SPS.
	ShortTermRPS *ShortTermRPS
	// ShortTermRPSBits is the length of an explicitly coded set.
	ShortTermRPSBits int

	NumLongTermSPS  uint32
	NumLongTermPics uint32
	LongTerm        []LongTermPic

	TemporalMVPEnabled bool
	SAOLuma            bool
	SAOChroma          bool

	NumRefIdxActiveOverride bool
	NumRefIdxL0Active       int
	NumRefIdxL1Active       int
	ListEntryL0             []uint32
	ListEntryL1             []uint32
	MvdL1Zero               bool
	CabacInit               bool
	CollocatedFromL0        bool
	CollocatedRefIdx        uint32
	PredWeightTable         *PredWeightTable
	MaxNumMergeCand         int

	SliceQPDelta             int32
	SliceCbQPOffset          int32
	SliceCrQPOffset          int32
	CuChromaQPOffsetEnabled  bool
	DeblockingFilterOverride bool
	DeblockingFilterDisabled bool
	BetaOffsetDiv2           int32
	TcOffsetDiv2             int32
	LoopFilterAcrossSlices   bool

	OffsetLen         int
	EntryPointOffsets []uint32

	// SliceQPY is 26 + init_qp_minus26 + slice_qp_delta.
	SliceQPY int
	// CbQPOffset and CrQPOffset sum the PPS and slice chroma offsets.
	CbQPOffset int
	CrQPOffset int
	// HeaderBits is the bit length of the header within the RBSP,
	// byte_alignment() included.
	HeaderBits int
}

// DecodeSliceHeader decodes the slice segment header at the start of a VCL
// NAL unit payload. nalType is nal_unit_type, which selects the IRAP and
// IDR forms of the header. A dependent slice segment carries only the
// segment address and entry points; the rest of its fields stay zero.
func DecodeSliceHeader(payload []byte, ps *ParamSets, nalType uint8) (*SliceHeader, error) {
	if kind := Classify(uint32(nalType)); kind != unit.KindSlice && kind != unit.KindSliceIRAP {
		return nil, fmt.Errorf("hevc: slice header: %s: %w", kind, parseerr.ErrInvalidUnitType)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("hevc: slice header: %w", parseerr.ErrEmpty)
	}
	if ps == nil {
		ps = &ParamSets{}
	}
	s := bitreader.NewSyntax(RBSP(payload))
	h := &SliceHeader{PicOutput: true, CollocatedFromL0: true}

	h.FirstSliceSegmentInPic = s.Flag("first_slice_segment_in_pic_flag")
	if IsIRAP(nalType) {
		h.NoOutputOfPriorPics = s.Flag("no_output_of_prior_pics_flag")
	}
	h.PPSID = s.UEMax(maxPPSID, "slice_pic_parameter_set_id")
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("hevc: slice header: %w", err)
	}

	pps, err := ps.PPS.Lookup(h.PPSID)
	if err != nil {
		return nil, fmt.Errorf("hevc: slice header: %w", err)
	}
	sps, err := ps.SPS.Lookup(pps.SPSID)
	if err != nil {
		return nil, fmt.Errorf("hevc: slice header: %w", err)
	}

	if !h.FirstSliceSegmentInPic {
		if pps.DependentSliceSegmentsEnabled {
			h.DependentSliceSegment = s.Flag("dependent_slice_segment_flag")
		}
		size := sps.PicSizeInCtbs()
		h.SliceSegmentAddress = s.U(ceilLog2(size), "slice_segment_address")
		if s.Err() == nil && uint64(h.SliceSegmentAddress) >= size {
			s.Fail("slice_segment_address", parseerr.ErrOutOfRange)
		}
	}

	if !h.DependentSliceSegment {
		readIndependentFields(s, h, sps, pps, nalType)
	}

	if pps.TilesEnabled || pps.EntropyCodingSyncEnabled {
		var limit uint32
		switch {
		case pps.TilesEnabled && pps.EntropyCodingSyncEnabled:
			limit = uint32(pps.NumTileColumns)*sps.PicHeightInCtbs() - 1
		case pps.TilesEnabled:
			limit = uint32(pps.NumTileColumns*pps.NumTileRows) - 1
		default:
			limit = sps.PicHeightInCtbs() - 1
		}
		n := s.UEMax(limit, "num_entry_point_offsets")
		if n > 0 {
			h.OffsetLen = int(s.UEMax(31, "offset_len_minus1")) + 1
			if s.Err() == nil && uint64(n)*uint64(h.OffsetLen) > uint64(s.Reader().BitsLeft()) {
				s.Fail("entry_point_offset_minus1", parseerr.ErrUnexpectedEOF)
			}
			if s.Err() == nil {
				h.EntryPointOffsets = make([]uint32, n)
			}
			for i := range h.EntryPointOffsets {
				h.EntryPointOffsets[i] = s.U(h.OffsetLen, "entry_point_offset_minus1")
			}
		}
	}

	if pps.SliceSegmentHeaderExtension {
		n := int(s.UEMax(256, "slice_segment_header_extension_length"))
		s.Skip(8*n, "slice_segment_header_extension_data_byte")
	}

	// byte_alignment(): a one bit then zeros up to the byte boundary.
	if !s.Flag("alignment_bit_equal_to_one") && s.Err() == nil {
		s.Fail("alignment_bit_equal_to_one", parseerr.ErrInvalid)
	}
	if r := s.Reader(); !r.ByteAligned() && s.Err() == nil {
		if v := s.U(8-r.BitPos()%8, "alignment_bit_equal_to_zero"); v != 0 {
			s.Fail("alignment_bit_equal_to_zero", parseerr.ErrInvalid)
		}
	}

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("hevc: slice header: %w", err)
	}

	if !h.DependentSliceSegment {
		h.SliceQPY = 26 + int(pps.InitQPMinus26) + int(h.SliceQPDelta)
		if h.SliceQPY < -sps.QpBdOffsetY() || h.SliceQPY > 51 {
			return nil, fmt.Errorf("hevc: slice header: %w",
				parseerr.Field("slice_qp_delta", parseerr.ErrOutOfRange))
		}
		h.CbQPOffset = int(pps.CbQPOffset) + int(h.SliceCbQPOffset)
		h.CrQPOffset = int(pps.CrQPOffset) + int(h.SliceCrQPOffset)
	}
	h.HeaderBits = s.Reader().BitPos()
	return h, nil
}

func readIndependentFields(s *bitreader.Syntax, h *SliceHeader, sps *SPS, pps *PPS, nalType uint8) {
	s.Skip(pps.NumExtraSliceHeaderBits, "slice_reserved_flag")
	h.Type = SliceType(s.UEMax(2, "slice_type"))
	if IsIRAP(nalType) && s.Err() == nil && h.Type != SliceI {
		s.Fail("slice_type", parseerr.ErrInvalid)
	}
	if pps.OutputFlagPresent {
		h.PicOutput = s.Flag("pic_output_flag")
	}
	if sps.SeparateColourPlane {
		h.ColourPlaneID = uint8(s.U(2, "colour_plane_id"))
		if s.Err() == nil && h.ColourPlaneID > 2 {
			s.Fail("colour_plane_id", parseerr.ErrOutOfRange)
		}
	}

	numPicTotalCurr := 0
	if !IsIDR(nalType) {
		h.PicOrderCntLsb = s.U(sps.Log2MaxPicOrderCntLsb, "slice_pic_order_cnt_lsb")
		h.ShortTermRefPicSetSPS = s.Flag("short_term_ref_pic_set_sps_flag")
		num := len(sps.ShortTermRPS)
		if !h.ShortTermRefPicSetSPS {
			start := s.Reader().BitPos()
			h.ShortTermRPS = readShortTermRPS(s, num, num, sps.ShortTermRPS, sps.MaxDecPicBufferingMinus1())
			h.ShortTermRPSBits = s.Reader().BitPos() - start
		} else {
			if num == 0 {
				s.Fail("short_term_ref_pic_set_sps_flag", parseerr.ErrInvalid)
			}
			if num > 1 {
				h.ShortTermRefPicSetIdx = s.U(ceilLog2(uint64(num)), "short_term_ref_pic_set_idx")
			}
			if s.Err() == nil {
				if int(h.ShortTermRefPicSetIdx) >= num {
					s.Fail("short_term_ref_pic_set_idx", parseerr.ErrOutOfRange)
				} else {
					h.ShortTermRPS = sps.ShortTermRPS[h.ShortTermRefPicSetIdx]
				}
			}
		}
		if h.ShortTermRPS != nil {
			numPicTotalCurr = h.ShortTermRPS.NumUsedByCurrPic()
		}

		if sps.LongTermRefPicsPresent {
			numPicTotalCurr += readLongTermPics(s, h, sps)
		}
		if sps.TemporalMVPEnabled {
			h.TemporalMVPEnabled = s.Flag("slice_temporal_mvp_enabled_flag")
		}
	}

	if sps.SAOEnabled {
		h.SAOLuma = s.Flag("slice_sao_luma_flag")
		if sps.ChromaArrayType() != 0 {
			h.SAOChroma = s.Flag("slice_sao_chroma_flag")
		}
	}

	if h.Type == SliceP || h.Type == SliceB {
		h.NumRefIdxL0Active = pps.NumRefIdxL0DefaultActive
		if h.Type == SliceB {
			h.NumRefIdxL1Active = pps.NumRefIdxL1DefaultActive
		}
		h.NumRefIdxActiveOverride = s.Flag("num_ref_idx_active_override_flag")
		if h.NumRefIdxActiveOverride {
			h.NumRefIdxL0Active = int(s.UEMax(14, "num_ref_idx_l0_active_minus1")) + 1
			if h.Type == SliceB {
				h.NumRefIdxL1Active = int(s.UEMax(14, "num_ref_idx_l1_active_minus1")) + 1
			}
		}
		if s.Err() == nil && numPicTotalCurr == 0 {
			s.Fail("num_ref_idx_active_override_flag", parseerr.ErrInvalid)
		}

		if pps.ListsModificationPresent && numPicTotalCurr > 1 {
			n := ceilLog2(uint64(numPicTotalCurr))
			h.ListEntryL0 = readListEntries(s, h.NumRefIdxL0Active, n, numPicTotalCurr, "l0")
			if h.Type == SliceB {
				h.ListEntryL1 = readListEntries(s, h.NumRefIdxL1Active, n, numPicTotalCurr, "l1")
			}
		}
		if h.Type == SliceB {
			h.MvdL1Zero = s.Flag("mvd_l1_zero_flag")
		}
		if pps.CabacInitPresent {
			h.CabacInit = s.Flag("cabac_init_flag")
		}
		if h.TemporalMVPEnabled {
			if h.Type == SliceB {
				h.CollocatedFromL0 = s.Flag("collocated_from_l0_flag")
			}
			if h.CollocatedFromL0 && h.NumRefIdxL0Active > 1 {
				h.CollocatedRefIdx = s.UEMax(uint32(h.NumRefIdxL0Active-1), "collocated_ref_idx")
			} else if !h.CollocatedFromL0 && h.NumRefIdxL1Active > 1 {
				h.CollocatedRefIdx = s.UEMax(uint32(h.NumRefIdxL1Active-1), "collocated_ref_idx")
			}
		}
		if (pps.WeightedPred && h.Type == SliceP) || (pps.WeightedBipred && h.Type == SliceB) {
			h.PredWeightTable = readPredWeightTable(s, h, sps)
		}
		h.MaxNumMergeCand = 5 - int(s.UEMax(4, "five_minus_max_num_merge_cand"))
	}

	h.SliceQPDelta = s.SE("slice_qp_delta")
	if pps.SliceChromaQPOffsetsPresent {
		h.SliceCbQPOffset = s.SERange(-12, 12, "slice_cb_qp_offset")
		h.SliceCrQPOffset = s.SERange(-12, 12, "slice_cr_qp_offset")
		if s.Err() == nil {
			if cb := pps.CbQPOffset + h.SliceCbQPOffset; cb < -12 || cb > 12 {
				s.Fail("slice_cb_qp_offset", parseerr.ErrOutOfRange)
			}
			if cr := pps.CrQPOffset + h.SliceCrQPOffset; cr < -12 || cr > 12 {
				s.Fail("slice_cr_qp_offset", parseerr.ErrOutOfRange)
			}
		}
	}
	if pps.Range != nil && pps.Range.ChromaQPOffsetListEnabled {
		h.CuChromaQPOffsetEnabled = s.Flag("cu_chroma_qp_offset_enabled_flag")
	}
	if pps.DeblockingFilterOverrideEnabled {
		h.DeblockingFilterOverride = s.Flag("deblocking_filter_override_flag")
	}
	h.DeblockingFilterDisabled = pps.DeblockingFilterDisabled
	h.BetaOffsetDiv2 = pps.BetaOffsetDiv2
	h.TcOffsetDiv2 = pps.TcOffsetDiv2
	if h.DeblockingFilterOverride {
		h.DeblockingFilterDisabled = s.Flag("slice_deblocking_filter_disabled_flag")
		if !h.DeblockingFilterDisabled {
			h.BetaOffsetDiv2 = s.SERange(-6, 6, "slice_beta_offset_div2")
			h.TcOffsetDiv2 = s.SERange(-6, 6, "slice_tc_offset_div2")
		}
	}
	h.LoopFilterAcrossSlices = pps.LoopFilterAcrossSlices
	if pps.LoopFilterAcrossSlices && (h.SAOLuma || h.SAOChroma || !h.DeblockingFilterDisabled) {
		h.LoopFilterAcrossSlices = s.Flag("slice_loop_filter_across_slices_enabled_flag")
	}
}

// readLongTermPics reads the long-term picture loop and returns how many
// of the pictures are used by the current picture.
func readLongTermPics(s *bitreader.Syntax, h *SliceHeader, sps *SPS) int {
	numSPS := uint32(len(sps.LtRefPicPocLsb))
	if numSPS > 0 {
		h.NumLongTermSPS = s.UEMax(numSPS, "num_long_term_sps")
	}
	h.NumLongTermPics = s.UEMax(maxLongTermRefPicsSPS, "num_long_term_pics")
	if s.Err() != nil {
		return 0
	}

	used := 0
	total := int(h.NumLongTermSPS + h.NumLongTermPics)
	h.LongTerm = make([]LongTermPic, total)
	for i := range h.LongTerm {
		lt := &h.LongTerm[i]
		if i < int(h.NumLongTermSPS) {
			lt.FromSPS = true
			if numSPS > 1 {
				lt.LtIdxSPS = s.U(ceilLog2(uint64(numSPS)), "lt_idx_sps")
			}
			if s.Err() != nil {
				return used
			}
			if lt.LtIdxSPS >= numSPS {
				s.Fail("lt_idx_sps", parseerr.ErrOutOfRange)
				return used
			}
			lt.PocLsbLt = sps.LtRefPicPocLsb[lt.LtIdxSPS]
			lt.UsedByCurrPic = sps.UsedByCurrPicLt[lt.LtIdxSPS]
		} else {
			lt.PocLsbLt = s.U(sps.Log2MaxPicOrderCntLsb, "poc_lsb_lt")
			lt.UsedByCurrPic = s.Flag("used_by_curr_pic_lt_flag")
		}
		lt.DeltaPocMsbPresent = s.Flag("delta_poc_msb_present_flag")
		if lt.DeltaPocMsbPresent {
			lt.DeltaPocMsbCycleLt = s.UE("delta_poc_msb_cycle_lt")
		}
		if lt.UsedByCurrPic {
			used++
		}
	}
	return used
}

func readListEntries(s *bitreader.Syntax, numActive, n, numPicTotalCurr int, list string) []uint32 {
	if !s.Flag("ref_pic_list_modification_flag_" + list) {
		return nil
	}
	entries := make([]uint32, numActive)
	for i := range entries {
		entries[i] = s.U(n, "list_entry_"+list)
		if s.Err() == nil && int(entries[i]) >= numPicTotalCurr {
			s.Fail("list_entry_"+list, parseerr.ErrOutOfRange)
		}
	}
	return entries
}

func readPredWeightTable(s *bitreader.Syntax, h *SliceHeader, sps *SPS) *PredWeightTable {
	t := &PredWeightTable{}
	chroma := sps.ChromaArrayType() != 0
	t.LumaLog2WeightDenom = s.UEMax(7, "luma_log2_weight_denom")
	if chroma {
		d := int32(t.LumaLog2WeightDenom)
		t.DeltaChromaLog2WeightDenom = s.SERange(-d, 7-d, "delta_chroma_log2_weight_denom")
	}

	offsetY, offsetC := int32(128), int32(128)
	if sps.Range != nil && sps.Range.HighPrecisionOffsets {
		offsetY = 1 << uint(sps.BitDepthLuma-1)
		offsetC = 1 << uint(sps.BitDepthChroma-1)
	}
	t.L0 = readWeights(s, h.NumRefIdxL0Active, chroma, offsetY, offsetC, "l0")
	if h.Type == SliceB {
		t.L1 = readWeights(s, h.NumRefIdxL1Active, chroma, offsetY, offsetC, "l1")
	}
	return t
}

// readWeights reads one list of weights. halfY and halfC are
// WpOffsetHalfRangeY and WpOffsetHalfRangeC.
func readWeights(s *bitreader.Syntax, n int, chroma bool, halfY, halfC int32, list string) []WeightEntry {
	entries := make([]WeightEntry, n)
	for i := range entries {
		entries[i].LumaFlag = s.Flag("luma_weight_" + list + "_flag")
	}
	if chroma {
		for i := range entries {
			entries[i].ChromaFlag = s.Flag("chroma_weight_" + list + "_flag")
		}
	}
	for i := range entries {
		e := &entries[i]
		if e.LumaFlag {
			e.DeltaLumaWeight = s.SERange(-128, 127, "delta_luma_weight_"+list)
			e.LumaOffset = s.SERange(-halfY, halfY-1, "luma_offset_"+list)
		}
		if e.ChromaFlag {
			for j := 0; j < 2; j++ {
				e.DeltaChromaWeight[j] = s.SERange(-128, 127, "delta_chroma_weight_"+list)
				e.DeltaChromaOffset[j] = s.SERange(-4*halfC, 4*halfC-1, "delta_chroma_offset_"+list)
			}
		}
	}
	return entries
}

// ceilLog2 is Ceil(Log2(n)) for n >= 1.
func ceilLog2(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}
