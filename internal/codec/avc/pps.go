package avc

import (
	"fmt"
	"math/bits"

	bitreader "github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/paramset"
	"github.com/zsiec/bitscope/internal/parseerr"
)

// PPS is a decoded pic_parameter_set_rbsp().
type PPS struct {
	ID    uint32
	SPSID uint32

	EntropyCodingMode                 bool
	BottomFieldPicOrderInFramePresent bool

	NumSliceGroups          int
	SliceGroupMapType       uint32
	SliceGroupChangeRate    uint32
	SliceGroupChangeForward bool

	NumRefIdxL0DefaultActive int
	NumRefIdxL1DefaultActive int
	WeightedPred             bool
	WeightedBipredIDC        uint8
	PicInitQPMinus26         int32
	PicInitQSMinus26         int32
	ChromaQPIndexOffset      int32

	DeblockingFilterControlPresent bool
	ConstrainedIntraPred           bool
	RedundantPicCntPresent         bool

	Transform8x8Mode          bool
	PicScalingMatrixPresent   bool
	SecondChromaQPIndexOffset int32
}

// ParsePPS decodes a PPS NAL unit payload. The SPS table is consulted only
// when a picture scaling matrix is present, since the number of lists
// depends on the referenced SPS chroma format.
func ParsePPS(payload []byte, spsTable *paramset.Table[*SPS]) (*PPS, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("avc: pps: %w", parseerr.ErrEmpty)
	}
	s := bitreader.NewSyntax(RBSP(payload))
	p := &PPS{}

	p.ID = s.UEMax(maxPPSID, "pic_parameter_set_id")
	p.SPSID = s.UEMax(maxSPSID, "seq_parameter_set_id")
	p.EntropyCodingMode = s.Flag("entropy_coding_mode_flag")
	p.BottomFieldPicOrderInFramePresent = s.Flag("bottom_field_pic_order_in_frame_present_flag")
	p.NumSliceGroups = int(s.UEMax(7, "num_slice_groups_minus1")) + 1
	if p.NumSliceGroups > 1 {
		p.SliceGroupMapType = s.UEMax(6, "slice_group_map_type")
		switch p.SliceGroupMapType {
		case 0:
			for i := 0; i < p.NumSliceGroups; i++ {
				s.UE("run_length_minus1")
			}
		case 2:
			for i := 0; i < p.NumSliceGroups-1; i++ {
				s.UE("top_left")
				s.UE("bottom_right")
			}
		case 3, 4, 5:
			p.SliceGroupChangeForward = s.Flag("slice_group_change_direction_flag")
			p.SliceGroupChangeRate = s.UE("slice_group_change_rate_minus1") + 1
		case 6:
			n := s.UE("pic_size_in_map_units_minus1")
			idBits := bits.Len(uint(p.NumSliceGroups - 1))
			for i := uint64(0); i <= uint64(n) && s.Err() == nil; i++ {
				s.U(idBits, "slice_group_id")
			}
		}
	}
	p.NumRefIdxL0DefaultActive = int(s.UEMax(31, "num_ref_idx_l0_default_active_minus1")) + 1
	p.NumRefIdxL1DefaultActive = int(s.UEMax(31, "num_ref_idx_l1_default_active_minus1")) + 1
	p.WeightedPred = s.Flag("weighted_pred_flag")
	p.WeightedBipredIDC = uint8(s.U(2, "weighted_bipred_idc"))
	if s.Err() == nil && p.WeightedBipredIDC > 2 {
		s.Fail("weighted_bipred_idc", parseerr.ErrOutOfRange)
	}
	// The lower bound depends on the SPS bit depth; -26-36 covers 14-bit.
	p.PicInitQPMinus26 = s.SERange(-62, 25, "pic_init_qp_minus26")
	p.PicInitQSMinus26 = s.SERange(-26, 25, "pic_init_qs_minus26")
	p.ChromaQPIndexOffset = s.SERange(-12, 12, "chroma_qp_index_offset")
	p.DeblockingFilterControlPresent = s.Flag("deblocking_filter_control_present_flag")
	p.ConstrainedIntraPred = s.Flag("constrained_intra_pred_flag")
	p.RedundantPicCntPresent = s.Flag("redundant_pic_cnt_present_flag")
	p.SecondChromaQPIndexOffset = p.ChromaQPIndexOffset

	if s.MoreRBSPData() {
		p.Transform8x8Mode = s.Flag("transform_8x8_mode_flag")
		p.PicScalingMatrixPresent = s.Flag("pic_scaling_matrix_present_flag")
		if p.PicScalingMatrixPresent && s.Err() == nil {
			sps, err := spsTable.Lookup(p.SPSID)
			if err != nil {
				return nil, fmt.Errorf("avc: pps: %w", err)
			}
			lists := 6
			if p.Transform8x8Mode {
				if sps.ChromaFormatIDC == 3 {
					lists += 6
				} else {
					lists += 2
				}
			}
			readScalingLists(s, lists, "pic_scaling_list_present_flag")
		}
		p.SecondChromaQPIndexOffset = s.SERange(-12, 12, "second_chroma_qp_index_offset")
	}

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("avc: pps: %w", err)
	}
	return p, nil
}
