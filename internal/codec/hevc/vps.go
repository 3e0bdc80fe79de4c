package hevc

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
)

// maxLayerSets bounds vps_num_layer_sets_minus1.
const maxLayerSets = 1023

// VPS is the base-layer part of video_parameter_set_rbsp(). Extension data
// is not decoded.
type VPS struct {
	ID                 uint8
	BaseLayerInternal  bool
	BaseLayerAvailable bool
	MaxLayersMinus1    uint8
	MaxSubLayersMinus1 int
	TemporalIDNesting  bool
	ProfileTierLevel   ProfileTierLevel
	SubLayerOrdering   []SubLayerOrdering
	MaxLayerID         uint8
	NumLayerSets       int

	TimingInfoPresent        bool
	NumUnitsInTick           uint32
	TimeScale                uint32
	POCProportionalToTiming  bool
	NumTicksPOCDiffOneMinus1 uint32
	HRD                      []*HRD
}

// ParseVPS decodes a VPS NAL unit payload, the 2-byte header excluded.
func ParseVPS(payload []byte) (*VPS, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("hevc: vps: %w", parseerr.ErrUnexpectedEOF)
	}
	s := bits.NewSyntax(RBSP(payload))
	vps := &VPS{}

	vps.ID = uint8(s.U(4, "vps_video_parameter_set_id"))
	vps.BaseLayerInternal = s.Flag("vps_base_layer_internal_flag")
	vps.BaseLayerAvailable = s.Flag("vps_base_layer_available_flag")
	vps.MaxLayersMinus1 = uint8(s.U(6, "vps_max_layers_minus1"))
	vps.MaxSubLayersMinus1 = int(s.U(3, "vps_max_sub_layers_minus1"))
	if vps.MaxSubLayersMinus1 >= maxSubLayers {
		s.Fail("vps_max_sub_layers_minus1", parseerr.ErrOutOfRange)
	}
	vps.TemporalIDNesting = s.Flag("vps_temporal_id_nesting_flag")
	if v := s.U(16, "vps_reserved_0xffff_16bits"); s.Err() == nil && v != 0xFFFF {
		s.Fail("vps_reserved_0xffff_16bits", parseerr.ErrInvalid)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("hevc: vps: %w", err)
	}

	vps.ProfileTierLevel = readProfileTierLevel(s, vps.MaxSubLayersMinus1)
	vps.SubLayerOrdering = readSubLayerOrdering(s, vps.MaxSubLayersMinus1, "vps")
	vps.MaxLayerID = uint8(s.U(6, "vps_max_layer_id"))
	vps.NumLayerSets = int(s.UEMax(maxLayerSets, "vps_num_layer_sets_minus1")) + 1
	for i := 1; i < vps.NumLayerSets && s.Err() == nil; i++ {
		s.Skip(int(vps.MaxLayerID)+1, "layer_id_included_flag")
	}

	vps.TimingInfoPresent = s.Flag("vps_timing_info_present_flag")
	if vps.TimingInfoPresent {
		vps.NumUnitsInTick = s.U(32, "vps_num_units_in_tick")
		vps.TimeScale = s.U(32, "vps_time_scale")
		vps.POCProportionalToTiming = s.Flag("vps_poc_proportional_to_timing_flag")
		if vps.POCProportionalToTiming {
			vps.NumTicksPOCDiffOneMinus1 = s.UE("vps_num_ticks_poc_diff_one_minus1")
		}
		numHRD := int(s.UEMax(uint32(vps.NumLayerSets), "vps_num_hrd_parameters"))
		for i := 0; i < numHRD && s.Err() == nil; i++ {
			s.UEMax(uint32(vps.NumLayerSets-1), "hrd_layer_set_idx")
			cprms := true
			if i > 0 {
				cprms = s.Flag("cprms_present_flag")
			}
			vps.HRD = append(vps.HRD, readHRD(s, cprms, vps.MaxSubLayersMinus1))
		}
	}

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("hevc: vps: %w", err)
	}
	return vps, nil
}
