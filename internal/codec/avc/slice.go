package avc

import (
	"fmt"
	"math/bits"

	bitreader "github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
	"github.com/zsiec/bitscope/internal/unit"
)

// SliceType is slice_type modulo 5.
type SliceType uint8

const (
	SliceP SliceType = iota
	SliceB
	SliceI
	SliceSP
	SliceSI
)

func (t SliceType) String() string {
	switch t {
	case SliceP:
		return "P"
	case SliceB:
		return "B"
	case SliceI:
		return "I"
	case SliceSP:
		return "SP"
	case SliceSI:
		return "SI"
	}
	return "unknown"
}

// maxMMCO bounds the memory_management_control_operation loop.
const maxMMCO = 66

// RefPicListModification is one modification_of_pic_nums_idc entry.
type RefPicListModification struct {
	IDC   uint32
	Value uint32
}

// WeightEntry holds the explicit weights of one reference index.
type WeightEntry struct {
	LumaWeight   int32
	LumaOffset   int32
	ChromaWeight [2]int32
	ChromaOffset [2]int32
	LumaFlag     bool
	ChromaFlag   bool
}

// PredWeightTable is pred_weight_table().
type PredWeightTable struct {
	LumaLog2WeightDenom   uint32
	ChromaLog2WeightDenom uint32
	L0                    []WeightEntry
	L1                    []WeightEntry
}

// MMCO is one memory_management_control_operation.
type MMCO struct {
	Op                    uint32
	DifferenceOfPicNums   uint32
	LongTermPicNum        uint32
	LongTermFrameIdx      uint32
	MaxLongTermFrameIdxP1 uint32
}

// DecRefPicMarking is dec_ref_pic_marking().
type DecRefPicMarking struct {
	NoOutputOfPriorPics bool
	LongTermReference   bool
	Adaptive            bool
	Ops                 []MMCO
}

// SliceHeader is a decoded slice_header().
type SliceHeader struct {
	FirstMbInSlice uint32
	// SliceTypeRaw is slice_type as coded (0..9); values >= 5 assert that
	// every slice of the picture has the same type.
	SliceTypeRaw uint32
	Type         SliceType
	PPSID        uint32
	ColourPlane  uint8
	FrameNum     uint32
	FieldPic     bool
	BottomField  bool
	IDR          bool
	IDRPicID     uint32

	PicOrderCntLsb         uint32
	DeltaPicOrderCntBottom int32
	DeltaPicOrderCnt       [2]int32
	RedundantPicCnt        uint32

	DirectSpatialMvPred     bool
	NumRefIdxActiveOverride bool
	NumRefIdxL0Active       int
	NumRefIdxL1Active       int

	RefPicListModificationL0 []RefPicListModification
	RefPicListModificationL1 []RefPicListModification

	PredWeightTable  *PredWeightTable
	DecRefPicMarking *DecRefPicMarking

	CabacInitIDC      uint32
	SliceQPDelta      int32
	SPForSwitch       bool
	SliceQSDelta      int32
	DisableDeblocking uint32
	AlphaC0OffsetDiv2 int32
	BetaOffsetDiv2    int32

	SliceGroupChangeCycle uint32

	// SliceQPY is 26 + pic_init_qp_minus26 + slice_qp_delta.
	SliceQPY int
	// HeaderBits is the bit length of the header within the RBSP.
	HeaderBits int
}

// DecodeSliceHeader decodes the slice header at the start of a slice NAL
// unit payload. kind must be KindSlice or KindSliceIRAP; ref is the
// reference flag (nal_ref_idc != 0), which gates dec_ref_pic_marking.
func DecodeSliceHeader(payload []byte, ps *ParamSets, kind unit.Kind, ref bool) (*SliceHeader, error) {
	if kind != unit.KindSlice && kind != unit.KindSliceIRAP {
		return nil, fmt.Errorf("avc: slice header: %s: %w", kind, parseerr.ErrInvalidUnitType)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("avc: slice header: %w", parseerr.ErrEmpty)
	}
	if ps == nil {
		ps = &ParamSets{}
	}
	s := bitreader.NewSyntax(RBSP(payload))
	h := &SliceHeader{IDR: kind == unit.KindSliceIRAP}

	h.FirstMbInSlice = s.UE("first_mb_in_slice")
	h.SliceTypeRaw = s.UEMax(9, "slice_type")
	h.Type = SliceType(h.SliceTypeRaw % 5)
	h.PPSID = s.UEMax(maxPPSID, "pic_parameter_set_id")
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("avc: slice header: %w", err)
	}

	pps, err := ps.PPS.Lookup(h.PPSID)
	if err != nil {
		return nil, fmt.Errorf("avc: slice header: %w", err)
	}
	sps, err := ps.SPS.Lookup(pps.SPSID)
	if err != nil {
		return nil, fmt.Errorf("avc: slice header: %w", err)
	}

	picSizeInMbs := sps.PicSizeInMapUnits()
	if !sps.FrameMbsOnly {
		picSizeInMbs *= 2
	}
	if uint64(h.FirstMbInSlice) >= picSizeInMbs {
		s.Fail("first_mb_in_slice", parseerr.ErrOutOfRange)
	}
	if h.IDR && h.Type != SliceI && h.Type != SliceSI {
		s.Fail("slice_type", parseerr.ErrInvalid)
	}

	if sps.SeparateColourPlane {
		h.ColourPlane = uint8(s.U(2, "colour_plane_id"))
		if s.Err() == nil && h.ColourPlane > 2 {
			s.Fail("colour_plane_id", parseerr.ErrOutOfRange)
		}
	}
	h.FrameNum = s.U(sps.Log2MaxFrameNum, "frame_num")
	if h.IDR && s.Err() == nil && h.FrameNum != 0 {
		s.Fail("frame_num", parseerr.ErrInvalid)
	}
	if !sps.FrameMbsOnly {
		h.FieldPic = s.Flag("field_pic_flag")
		if h.FieldPic {
			h.BottomField = s.Flag("bottom_field_flag")
		}
	}
	if h.IDR {
		h.IDRPicID = s.UEMax(65535, "idr_pic_id")
	}
	switch sps.PicOrderCntType {
	case 0:
		h.PicOrderCntLsb = s.U(sps.Log2MaxPicOrderCntLsb, "pic_order_cnt_lsb")
		if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
			h.DeltaPicOrderCntBottom = s.SE("delta_pic_order_cnt_bottom")
		}
	case 1:
		if !sps.DeltaPicOrderAlwaysZero {
			h.DeltaPicOrderCnt[0] = s.SE("delta_pic_order_cnt[0]")
			if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
				h.DeltaPicOrderCnt[1] = s.SE("delta_pic_order_cnt[1]")
			}
		}
	}
	if pps.RedundantPicCntPresent {
		h.RedundantPicCnt = s.UEMax(127, "redundant_pic_cnt")
	}
	if h.Type == SliceB {
		h.DirectSpatialMvPred = s.Flag("direct_spatial_mv_pred_flag")
	}

	h.NumRefIdxL0Active = pps.NumRefIdxL0DefaultActive
	h.NumRefIdxL1Active = pps.NumRefIdxL1DefaultActive
	if h.Type == SliceP || h.Type == SliceSP || h.Type == SliceB {
		maxRef := uint32(15)
		if h.FieldPic {
			maxRef = 31
		}
		h.NumRefIdxActiveOverride = s.Flag("num_ref_idx_active_override_flag")
		if h.NumRefIdxActiveOverride {
			h.NumRefIdxL0Active = int(s.UEMax(maxRef, "num_ref_idx_l0_active_minus1")) + 1
			if h.Type == SliceB {
				h.NumRefIdxL1Active = int(s.UEMax(maxRef, "num_ref_idx_l1_active_minus1")) + 1
			}
		}
	}

	if h.Type != SliceI && h.Type != SliceSI {
		h.RefPicListModificationL0 = readRefPicListModification(s, h.NumRefIdxL0Active, "l0")
		if h.Type == SliceB {
			h.RefPicListModificationL1 = readRefPicListModification(s, h.NumRefIdxL1Active, "l1")
		}
	}

	if (pps.WeightedPred && (h.Type == SliceP || h.Type == SliceSP)) ||
		(pps.WeightedBipredIDC == 1 && h.Type == SliceB) {
		h.PredWeightTable = readPredWeightTable(s, h, sps.ChromaArrayType())
	}

	if ref {
		h.DecRefPicMarking = readDecRefPicMarking(s, h.IDR)
	}

	if pps.EntropyCodingMode && h.Type != SliceI && h.Type != SliceSI {
		h.CabacInitIDC = s.UEMax(2, "cabac_init_idc")
	}
	h.SliceQPDelta = s.SE("slice_qp_delta")
	if h.Type == SliceSP || h.Type == SliceSI {
		if h.Type == SliceSP {
			h.SPForSwitch = s.Flag("sp_for_switch_flag")
		}
		h.SliceQSDelta = s.SE("slice_qs_delta")
	}
	if pps.DeblockingFilterControlPresent {
		h.DisableDeblocking = s.UEMax(2, "disable_deblocking_filter_idc")
		if h.DisableDeblocking != 1 {
			h.AlphaC0OffsetDiv2 = s.SERange(-6, 6, "slice_alpha_c0_offset_div2")
			h.BetaOffsetDiv2 = s.SERange(-6, 6, "slice_beta_offset_div2")
		}
	}
	if pps.NumSliceGroups > 1 && pps.SliceGroupMapType >= 3 && pps.SliceGroupMapType <= 5 {
		// Ceil(Log2(PicSizeInMapUnits ÷ SliceGroupChangeRate + 1)) with exact
		// division, i.e. Len64 of the rounded-up quotient.
		rate := max(uint64(pps.SliceGroupChangeRate), 1)
		n := bits.Len64((sps.PicSizeInMapUnits() + rate - 1) / rate)
		h.SliceGroupChangeCycle = s.U(n, "slice_group_change_cycle")
	}

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("avc: slice header: %w", err)
	}

	h.SliceQPY = 26 + int(pps.PicInitQPMinus26) + int(h.SliceQPDelta)
	if h.SliceQPY < -sps.QpBdOffsetY() || h.SliceQPY > 51 {
		return nil, fmt.Errorf("avc: slice header: %w",
			parseerr.Field("slice_qp_delta", parseerr.ErrOutOfRange))
	}
	h.HeaderBits = s.Reader().BitPos()
	return h, nil
}

func readRefPicListModification(s *bitreader.Syntax, numRefIdxActive int, list string) []RefPicListModification {
	if !s.Flag("ref_pic_list_modification_flag_" + list) {
		return nil
	}
	var mods []RefPicListModification
	for i := 0; ; i++ {
		idc := s.UEMax(3, "modification_of_pic_nums_idc")
		if s.Err() != nil || idc == 3 {
			break
		}
		if i >= numRefIdxActive {
			s.Fail("modification_of_pic_nums_idc", parseerr.ErrTooLong)
			break
		}
		m := RefPicListModification{IDC: idc}
		switch idc {
		case 0, 1:
			m.Value = s.UE("abs_diff_pic_num_minus1")
		case 2:
			m.Value = s.UE("long_term_pic_num")
		}
		mods = append(mods, m)
	}
	return mods
}

func readPredWeightTable(s *bitreader.Syntax, h *SliceHeader, chromaArrayType uint32) *PredWeightTable {
	t := &PredWeightTable{}
	t.LumaLog2WeightDenom = s.UEMax(7, "luma_log2_weight_denom")
	if chromaArrayType != 0 {
		t.ChromaLog2WeightDenom = s.UEMax(7, "chroma_log2_weight_denom")
	}
	t.L0 = readWeights(s, h.NumRefIdxL0Active, chromaArrayType != 0)
	if h.Type == SliceB {
		t.L1 = readWeights(s, h.NumRefIdxL1Active, chromaArrayType != 0)
	}
	return t
}

func readWeights(s *bitreader.Syntax, n int, chroma bool) []WeightEntry {
	entries := make([]WeightEntry, n)
	for i := range entries {
		e := &entries[i]
		e.LumaFlag = s.Flag("luma_weight_flag")
		if e.LumaFlag {
			e.LumaWeight = s.SERange(-128, 127, "luma_weight")
			e.LumaOffset = s.SERange(-128, 127, "luma_offset")
		}
		if chroma {
			e.ChromaFlag = s.Flag("chroma_weight_flag")
			if e.ChromaFlag {
				for j := 0; j < 2; j++ {
					e.ChromaWeight[j] = s.SERange(-128, 127, "chroma_weight")
					e.ChromaOffset[j] = s.SERange(-128, 127, "chroma_offset")
				}
			}
		}
		if s.Err() != nil {
			return entries[:i]
		}
	}
	return entries
}

func readDecRefPicMarking(s *bitreader.Syntax, idr bool) *DecRefPicMarking {
	m := &DecRefPicMarking{}
	if idr {
		m.NoOutputOfPriorPics = s.Flag("no_output_of_prior_pics_flag")
		m.LongTermReference = s.Flag("long_term_reference_flag")
		return m
	}
	m.Adaptive = s.Flag("adaptive_ref_pic_marking_mode_flag")
	if !m.Adaptive {
		return m
	}
	for {
		op := MMCO{Op: s.UEMax(6, "memory_management_control_operation")}
		if s.Err() != nil || op.Op == 0 {
			break
		}
		if len(m.Ops) == maxMMCO {
			s.Fail("memory_management_control_operation", parseerr.ErrTooLong)
			break
		}
		if op.Op == 1 || op.Op == 3 {
			op.DifferenceOfPicNums = s.UE("difference_of_pic_nums_minus1")
		}
		if op.Op == 2 {
			op.LongTermPicNum = s.UE("long_term_pic_num")
		}
		if op.Op == 3 || op.Op == 6 {
			op.LongTermFrameIdx = s.UE("long_term_frame_idx")
		}
		if op.Op == 4 {
			op.MaxLongTermFrameIdxP1 = s.UE("max_long_term_frame_idx_plus1")
		}
		m.Ops = append(m.Ops, op)
	}
	return m
}
