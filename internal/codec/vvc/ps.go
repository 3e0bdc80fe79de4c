package vvc

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
	"github.com/zsiec/bitscope/internal/unit"
)

// SPS holds the leading fields of seq_parameter_set_rbsp() up to and
// including the general profile, tier and level.
type SPS struct {
	ID                 uint8
	VPSID              uint8
	MaxSublayersMinus1 int
	ChromaFormatIDC    uint8
	Log2CtuSize        int

	PTLDpbHrdParamsPresent bool
	ProfileIDC             uint8
	TierFlag               bool
	LevelIDC               uint8
	FrameOnlyConstraint    bool
	MultilayerEnabled      bool
}

// ParseSPS decodes the SPS prefix from a NAL unit payload, the 2-byte
// header excluded.
func ParseSPS(payload []byte) (*SPS, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("vvc: sps: %w", parseerr.ErrEmpty)
	}
	s := bits.NewSyntax(RBSP(payload))
	sps := &SPS{}
	sps.ID = uint8(s.U(4, "sps_seq_parameter_set_id"))
	sps.VPSID = uint8(s.U(4, "sps_video_parameter_set_id"))
	sps.MaxSublayersMinus1 = int(s.U(3, "sps_max_sublayers_minus1"))
	if s.Err() == nil && sps.MaxSublayersMinus1 > 6 {
		s.Fail("sps_max_sublayers_minus1", parseerr.ErrOutOfRange)
	}
	sps.ChromaFormatIDC = uint8(s.U(2, "sps_chroma_format_idc"))
	sps.Log2CtuSize = int(s.U(2, "sps_log2_ctu_size_minus5")) + 5
	if s.Err() == nil && sps.Log2CtuSize > 7 {
		s.Fail("sps_log2_ctu_size_minus5", parseerr.ErrOutOfRange)
	}
	sps.PTLDpbHrdParamsPresent = s.Flag("sps_ptl_dpb_hrd_params_present_flag")
	if sps.PTLDpbHrdParamsPresent {
		sps.ProfileIDC = uint8(s.U(7, "general_profile_idc"))
		sps.TierFlag = s.Flag("general_tier_flag")
		sps.LevelIDC = uint8(s.U(8, "general_level_idc"))
		sps.FrameOnlyConstraint = s.Flag("ptl_frame_only_constraint_flag")
		sps.MultilayerEnabled = s.Flag("ptl_multilayer_enabled_flag")
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("vvc: sps: %w", err)
	}
	return sps, nil
}

// PPS holds the leading fields of pic_parameter_set_rbsp().
type PPS struct {
	ID                  uint8
	SPSID               uint8
	MixedNaluTypesInPic bool
	PicWidth            uint32
	PicHeight           uint32
}

// ParsePPS decodes the PPS prefix from a NAL unit payload, the 2-byte
// header excluded.
func ParsePPS(payload []byte) (*PPS, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("vvc: pps: %w", parseerr.ErrEmpty)
	}
	s := bits.NewSyntax(RBSP(payload))
	pps := &PPS{}
	pps.ID = uint8(s.U(6, "pps_pic_parameter_set_id"))
	pps.SPSID = uint8(s.U(4, "pps_seq_parameter_set_id"))
	pps.MixedNaluTypesInPic = s.Flag("pps_mixed_nalu_types_in_pic_flag")
	pps.PicWidth = s.UE("pps_pic_width_in_luma_samples")
	pps.PicHeight = s.UE("pps_pic_height_in_luma_samples")
	if s.Err() == nil && (pps.PicWidth == 0 || pps.PicHeight == 0) {
		s.Fail("pps_pic_width_in_luma_samples", parseerr.ErrInvalid)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("vvc: pps: %w", err)
	}
	return pps, nil
}

// Decoder decodes the parameter-set prefixes of H.266 units. Slices and
// picture headers carry no structured syntax here.
type Decoder struct{}

// DecodePayload implements the scanner's payload decoder contract.
func (Decoder) DecodePayload(u unit.Unit) (any, error) {
	switch u.Kind {
	case unit.KindSPS:
		return ParseSPS(u.Payload)
	case unit.KindPPS:
		return ParsePPS(u.Payload)
	}
	return nil, nil
}
