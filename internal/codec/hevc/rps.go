package hevc

import (
	"github.com/zsiec/bitscope/internal/bits"
)

const (
	maxShortTermRefPicSets = 64
	maxLongTermRefPicsSPS  = 32
	maxDeltaPoc            = 1<<15 - 1
)

// ShortTermRPS is a short-term reference picture set after the derivation
// of 7.4.8, so predicted sets carry their resolved deltas.
type ShortTermRPS struct {
	InterRPSPrediction bool
	DeltaIdxMinus1     uint32
	DeltaRPS           int32

	DeltaPocS0      []int32
	UsedByCurrPicS0 []bool
	DeltaPocS1      []int32
	UsedByCurrPicS1 []bool
}

// NumNegativePics is NumNegativePics.
func (r *ShortTermRPS) NumNegativePics() int { return len(r.DeltaPocS0) }

// NumPositivePics is NumPositivePics.
func (r *ShortTermRPS) NumPositivePics() int { return len(r.DeltaPocS1) }

// NumDeltaPocs is NumDeltaPocs.
func (r *ShortTermRPS) NumDeltaPocs() int { return len(r.DeltaPocS0) + len(r.DeltaPocS1) }

// NumUsedByCurrPic counts the pictures the current picture may reference.
func (r *ShortTermRPS) NumUsedByCurrPic() int {
	n := 0
	for _, u := range r.UsedByCurrPicS0 {
		if u {
			n++
		}
	}
	for _, u := range r.UsedByCurrPicS1 {
		if u {
			n++
		}
	}
	return n
}

// readShortTermRPS reads st_ref_pic_set(idx) where num is
// num_short_term_ref_pic_sets; idx == num selects the slice header form.
// sets holds at least the first idx sets. maxDecPicBuffering bounds the
// explicit picture counts.
func readShortTermRPS(s *bits.Syntax, idx, num int, sets []*ShortTermRPS, maxDecPicBuffering uint32) *ShortTermRPS {
	rps := &ShortTermRPS{}
	if idx != 0 {
		rps.InterRPSPrediction = s.Flag("inter_ref_pic_set_prediction_flag")
	}

	if rps.InterRPSPrediction {
		if idx == num {
			rps.DeltaIdxMinus1 = s.UEMax(uint32(idx-1), "delta_idx_minus1")
		}
		sign := s.Flag("delta_rps_sign")
		abs := int32(s.UEMax(maxDeltaPoc, "abs_delta_rps_minus1")) + 1
		rps.DeltaRPS = abs
		if sign {
			rps.DeltaRPS = -abs
		}
		if s.Err() != nil {
			return rps
		}
		ref := sets[idx-int(rps.DeltaIdxMinus1)-1]

		n := ref.NumDeltaPocs()
		used := make([]bool, n+1)
		useDelta := make([]bool, n+1)
		for j := 0; j <= n; j++ {
			used[j] = s.Flag("used_by_curr_pic_flag")
			useDelta[j] = true
			if !used[j] {
				useDelta[j] = s.Flag("use_delta_flag")
			}
		}
		deriveRPS(rps, ref, used, useDelta)
		return rps
	}

	numNeg := s.UEMax(maxDecPicBuffering, "num_negative_pics")
	numPos := s.UEMax(maxDecPicBuffering-numNeg, "num_positive_pics")
	if s.Err() != nil {
		return rps
	}
	rps.DeltaPocS0 = make([]int32, numNeg)
	rps.UsedByCurrPicS0 = make([]bool, numNeg)
	poc := int32(0)
	for i := range rps.DeltaPocS0 {
		poc -= int32(s.UEMax(maxDeltaPoc, "delta_poc_s0_minus1")) + 1
		rps.DeltaPocS0[i] = poc
		rps.UsedByCurrPicS0[i] = s.Flag("used_by_curr_pic_s0_flag")
	}
	rps.DeltaPocS1 = make([]int32, numPos)
	rps.UsedByCurrPicS1 = make([]bool, numPos)
	poc = 0
	for i := range rps.DeltaPocS1 {
		poc += int32(s.UEMax(maxDeltaPoc, "delta_poc_s1_minus1")) + 1
		rps.DeltaPocS1[i] = poc
		rps.UsedByCurrPicS1[i] = s.Flag("used_by_curr_pic_s1_flag")
	}
	return rps
}

// deriveRPS applies equations 7-61 and 7-62.
func deriveRPS(rps, ref *ShortTermRPS, used, useDelta []bool) {
	numNeg, numPos := ref.NumNegativePics(), ref.NumPositivePics()
	n := numNeg + numPos
	d := rps.DeltaRPS

	for j := numPos - 1; j >= 0; j-- {
		if dPoc := ref.DeltaPocS1[j] + d; dPoc < 0 && useDelta[numNeg+j] {
			rps.DeltaPocS0 = append(rps.DeltaPocS0, dPoc)
			rps.UsedByCurrPicS0 = append(rps.UsedByCurrPicS0, used[numNeg+j])
		}
	}
	if d < 0 && useDelta[n] {
		rps.DeltaPocS0 = append(rps.DeltaPocS0, d)
		rps.UsedByCurrPicS0 = append(rps.UsedByCurrPicS0, used[n])
	}
	for j := 0; j < numNeg; j++ {
		if dPoc := ref.DeltaPocS0[j] + d; dPoc < 0 && useDelta[j] {
			rps.DeltaPocS0 = append(rps.DeltaPocS0, dPoc)
			rps.UsedByCurrPicS0 = append(rps.UsedByCurrPicS0, used[j])
		}
	}

	for j := numNeg - 1; j >= 0; j-- {
		if dPoc := ref.DeltaPocS0[j] + d; dPoc > 0 && useDelta[j] {
			rps.DeltaPocS1 = append(rps.DeltaPocS1, dPoc)
			rps.UsedByCurrPicS1 = append(rps.UsedByCurrPicS1, used[j])
		}
	}
	if d > 0 && useDelta[n] {
		rps.DeltaPocS1 = append(rps.DeltaPocS1, d)
		rps.UsedByCurrPicS1 = append(rps.UsedByCurrPicS1, used[n])
	}
	for j := 0; j < numPos; j++ {
		if dPoc := ref.DeltaPocS1[j] + d; dPoc > 0 && useDelta[numNeg+j] {
			rps.DeltaPocS1 = append(rps.DeltaPocS1, dPoc)
			rps.UsedByCurrPicS1 = append(rps.UsedByCurrPicS1, used[numNeg+j])
		}
	}
}

// readScalingListData validates scaling_list_data(). The matrices are not
// kept.
func readScalingListData(s *bits.Syntax) {
	for sizeID := 0; sizeID < 4; sizeID++ {
		step := 1
		if sizeID == 3 {
			step = 3
		}
		for matrixID := 0; matrixID < 6; matrixID += step {
			if !s.Flag("scaling_list_pred_mode_flag") {
				s.UEMax(uint32(matrixID/step), "scaling_list_pred_matrix_id_delta")
				continue
			}
			coefNum := min(64, 1<<(4+(sizeID<<1)))
			if sizeID > 1 {
				s.SERange(-7, 247, "scaling_list_dc_coef_minus8")
			}
			for i := 0; i < coefNum && s.Err() == nil; i++ {
				s.SERange(-128, 127, "scaling_list_delta_coef")
			}
		}
	}
}
