package av1

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
)

// Colour description defaults when color_description_present_flag is 0.
const (
	ColorPrimariesUnspecified = 2
	TransferUnspecified       = 2
	MatrixUnspecified         = 2

	colorPrimariesBT709 = 1
	transferSRGB        = 13
	matrixIdentity      = 0
)

// SelectScreenContentTools and SelectIntegerMV are the "decided per frame"
// values of seq_force_screen_content_tools and seq_force_integer_mv.
const (
	SelectScreenContentTools = 2
	SelectIntegerMV          = 2
)

// TimingInfo is timing_info().
type TimingInfo struct {
	NumUnitsInDisplayTick uint32
	TimeScale             uint32
	EqualPictureInterval  bool
	NumTicksPerPicture    uint64
}

// DecoderModelInfo is decoder_model_info().
type DecoderModelInfo struct {
	BufferDelayLength           uint8
	NumUnitsInDecodingTick      uint32
	BufferRemovalTimeLength     uint8
	FramePresentationTimeLength uint8
}

// OperatingPoint is one entry of the operating point loop.
type OperatingPoint struct {
	IDC                 uint16
	SeqLevelIdx         uint8
	SeqTier             uint8
	DecoderModelPresent bool
	DecoderBufferDelay  uint32
	EncoderBufferDelay  uint32
	LowDelayMode        bool
	// InitialDisplayDelay is initial_display_delay_minus_1 + 1, or 0 when
	// absent.
	InitialDisplayDelay uint8
}

// ColorConfig is color_config().
type ColorConfig struct {
	BitDepth                int
	MonoChrome              bool
	ColorPrimaries          uint8
	TransferCharacteristics uint8
	MatrixCoefficients      uint8
	ColorRange              bool
	SubsamplingX            bool
	SubsamplingY            bool
	ChromaSamplePosition    uint8
	SeparateUVDeltaQ        bool
}

// SequenceHeader is a decoded sequence_header_obu.
type SequenceHeader struct {
	SeqProfile                uint8
	StillPicture              bool
	ReducedStillPictureHeader bool

	TimingInfo       *TimingInfo
	DecoderModelInfo *DecoderModelInfo
	OperatingPoints  []OperatingPoint

	MaxFrameWidth  uint32
	MaxFrameHeight uint32

	FrameIDNumbersPresent    bool
	DeltaFrameIDLength       uint8
	AdditionalFrameIDLength  uint8
	Use128x128Superblock     bool
	EnableFilterIntra        bool
	EnableIntraEdgeFilter    bool
	EnableInterintraCompound bool
	EnableMaskedCompound     bool
	EnableWarpedMotion       bool
	EnableDualFilter         bool
	EnableOrderHint          bool
	EnableJntComp            bool
	EnableRefFrameMVs        bool
	SeqForceScreenContent    uint8
	SeqForceIntegerMV        uint8
	OrderHintBits            uint8
	EnableSuperres           bool
	EnableCDEF               bool
	EnableRestoration        bool

	Color ColorConfig

	FilmGrainParamsPresent bool
}

// ParseSequenceHeader decodes a sequence header OBU payload.
func ParseSequenceHeader(payload []byte) (*SequenceHeader, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("av1: sequence header: %w", parseerr.ErrEmpty)
	}
	s := bits.NewSyntax(payload)
	sh := &SequenceHeader{}

	sh.SeqProfile = uint8(s.U(3, "seq_profile"))
	if s.Err() == nil && sh.SeqProfile > 2 {
		s.Fail("seq_profile", parseerr.ErrInvalid)
	}
	sh.StillPicture = s.Flag("still_picture")
	sh.ReducedStillPictureHeader = s.Flag("reduced_still_picture_header")

	if sh.ReducedStillPictureHeader {
		sh.OperatingPoints = []OperatingPoint{{SeqLevelIdx: uint8(s.U(5, "seq_level_idx"))}}
	} else {
		if s.Flag("timing_info_present_flag") {
			sh.TimingInfo = parseTimingInfo(s)
			if s.Flag("decoder_model_info_present_flag") {
				sh.DecoderModelInfo = &DecoderModelInfo{
					BufferDelayLength:           uint8(s.U(5, "buffer_delay_length_minus_1")) + 1,
					NumUnitsInDecodingTick:      s.U(32, "num_units_in_decoding_tick"),
					BufferRemovalTimeLength:     uint8(s.U(5, "buffer_removal_time_length_minus_1")) + 1,
					FramePresentationTimeLength: uint8(s.U(5, "frame_presentation_time_length_minus_1")) + 1,
				}
			}
		}
		initialDisplayDelayPresent := s.Flag("initial_display_delay_present_flag")
		count := int(s.U(5, "operating_points_cnt_minus_1")) + 1
		if err := s.Err(); err != nil {
			return nil, fmt.Errorf("av1: sequence header: %w", err)
		}
		sh.OperatingPoints = make([]OperatingPoint, count)
		for i := range sh.OperatingPoints {
			op := &sh.OperatingPoints[i]
			op.IDC = uint16(s.U(12, "operating_point_idc"))
			op.SeqLevelIdx = uint8(s.U(5, "seq_level_idx"))
			if op.SeqLevelIdx > 7 {
				op.SeqTier = uint8(s.U(1, "seq_tier"))
			}
			if sh.DecoderModelInfo != nil {
				op.DecoderModelPresent = s.Flag("decoder_model_present_for_this_op")
				if op.DecoderModelPresent {
					n := int(sh.DecoderModelInfo.BufferDelayLength)
					op.DecoderBufferDelay = s.U(n, "decoder_buffer_delay")
					op.EncoderBufferDelay = s.U(n, "encoder_buffer_delay")
					op.LowDelayMode = s.Flag("low_delay_mode_flag")
				}
			}
			if initialDisplayDelayPresent && s.Flag("initial_display_delay_present_for_this_op") {
				op.InitialDisplayDelay = uint8(s.U(4, "initial_display_delay_minus_1")) + 1
			}
		}
	}

	wBits := int(s.U(4, "frame_width_bits_minus_1")) + 1
	hBits := int(s.U(4, "frame_height_bits_minus_1")) + 1
	sh.MaxFrameWidth = s.U(wBits, "max_frame_width_minus_1") + 1
	sh.MaxFrameHeight = s.U(hBits, "max_frame_height_minus_1") + 1

	if !sh.ReducedStillPictureHeader {
		sh.FrameIDNumbersPresent = s.Flag("frame_id_numbers_present_flag")
	}
	if sh.FrameIDNumbersPresent {
		sh.DeltaFrameIDLength = uint8(s.U(4, "delta_frame_id_length_minus_2")) + 2
		sh.AdditionalFrameIDLength = uint8(s.U(3, "additional_frame_id_length_minus_1")) + 1
	}

	sh.Use128x128Superblock = s.Flag("use_128x128_superblock")
	sh.EnableFilterIntra = s.Flag("enable_filter_intra")
	sh.EnableIntraEdgeFilter = s.Flag("enable_intra_edge_filter")

	sh.SeqForceScreenContent = SelectScreenContentTools
	sh.SeqForceIntegerMV = SelectIntegerMV
	if !sh.ReducedStillPictureHeader {
		sh.EnableInterintraCompound = s.Flag("enable_interintra_compound")
		sh.EnableMaskedCompound = s.Flag("enable_masked_compound")
		sh.EnableWarpedMotion = s.Flag("enable_warped_motion")
		sh.EnableDualFilter = s.Flag("enable_dual_filter")
		sh.EnableOrderHint = s.Flag("enable_order_hint")
		if sh.EnableOrderHint {
			sh.EnableJntComp = s.Flag("enable_jnt_comp")
			sh.EnableRefFrameMVs = s.Flag("enable_ref_frame_mvs")
		}
		if !s.Flag("seq_choose_screen_content_tools") {
			sh.SeqForceScreenContent = uint8(s.U(1, "seq_force_screen_content_tools"))
		}
		if sh.SeqForceScreenContent > 0 {
			if !s.Flag("seq_choose_integer_mv") {
				sh.SeqForceIntegerMV = uint8(s.U(1, "seq_force_integer_mv"))
			}
		}
		if sh.EnableOrderHint {
			sh.OrderHintBits = uint8(s.U(3, "order_hint_bits_minus_1")) + 1
		}
	}

	sh.EnableSuperres = s.Flag("enable_superres")
	sh.EnableCDEF = s.Flag("enable_cdef")
	sh.EnableRestoration = s.Flag("enable_restoration")
	sh.Color = parseColorConfig(s, sh.SeqProfile)
	sh.FilmGrainParamsPresent = s.Flag("film_grain_params_present")

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("av1: sequence header: %w", err)
	}
	return sh, nil
}

func parseTimingInfo(s *bits.Syntax) *TimingInfo {
	ti := &TimingInfo{
		NumUnitsInDisplayTick: s.U(32, "num_units_in_display_tick"),
		TimeScale:             s.U(32, "time_scale"),
		EqualPictureInterval:  s.Flag("equal_picture_interval"),
	}
	if ti.EqualPictureInterval {
		ti.NumTicksPerPicture = uint64(readUVLC(s, "num_ticks_per_picture_minus_1")) + 1
	}
	return ti
}

func parseColorConfig(s *bits.Syntax, profile uint8) ColorConfig {
	c := ColorConfig{BitDepth: 8}
	highBitdepth := s.Flag("high_bitdepth")
	switch {
	case profile == 2 && highBitdepth:
		c.BitDepth = 10
		if s.Flag("twelve_bit") {
			c.BitDepth = 12
		}
	case highBitdepth:
		c.BitDepth = 10
	}
	if profile != 1 {
		c.MonoChrome = s.Flag("mono_chrome")
	}

	c.ColorPrimaries = ColorPrimariesUnspecified
	c.TransferCharacteristics = TransferUnspecified
	c.MatrixCoefficients = MatrixUnspecified
	if s.Flag("color_description_present_flag") {
		c.ColorPrimaries = uint8(s.U(8, "color_primaries"))
		c.TransferCharacteristics = uint8(s.U(8, "transfer_characteristics"))
		c.MatrixCoefficients = uint8(s.U(8, "matrix_coefficients"))
	}

	if c.MonoChrome {
		c.ColorRange = s.Flag("color_range")
		c.SubsamplingX, c.SubsamplingY = true, true
		return c
	}
	if c.ColorPrimaries == colorPrimariesBT709 &&
		c.TransferCharacteristics == transferSRGB &&
		c.MatrixCoefficients == matrixIdentity {
		c.ColorRange = true
	} else {
		c.ColorRange = s.Flag("color_range")
		switch profile {
		case 0:
			c.SubsamplingX, c.SubsamplingY = true, true
		case 1:
		default:
			if c.BitDepth == 12 {
				c.SubsamplingX = s.Flag("subsampling_x")
				if c.SubsamplingX {
					c.SubsamplingY = s.Flag("subsampling_y")
				}
			} else {
				c.SubsamplingX = true
			}
		}
		if c.SubsamplingX && c.SubsamplingY {
			c.ChromaSamplePosition = uint8(s.U(2, "chroma_sample_position"))
		}
	}
	c.SeparateUVDeltaQ = s.Flag("separate_uv_delta_q")
	return c
}

// readUVLC reads uvlc(). Runs of 32 or more leading zeros saturate to
// 2^32-1.
func readUVLC(s *bits.Syntax, name string) uint32 {
	leadingZeros := 0
	for s.Err() == nil && !s.Flag(name) {
		leadingZeros++
	}
	if s.Err() != nil {
		return 0
	}
	if leadingZeros >= 32 {
		return 1<<32 - 1
	}
	return s.U(leadingZeros, name) + (1<<uint(leadingZeros) - 1)
}
