package vp9

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
)

// Colour spaces.
const (
	CSUnknown  = 0
	CSBT601    = 1
	CSBT709    = 2
	CSSMPTE170 = 3
	CSSMPTE240 = 4
	CSBT2020   = 5
	CSReserved = 6
	CSRGB      = 7
)

// Interpolation filters. FilterSwitchable means the filter is chosen per
// block.
const (
	FilterEightTap       = 0
	FilterEightTapSmooth = 1
	FilterEightTapSharp  = 2
	FilterBilinear       = 3
	FilterSwitchable     = 4
)

const (
	syncCode = 0x498342

	minTileWidthB64 = 4
	maxTileWidthB64 = 64
	maxSegments     = 8
	segLvlMax       = 4
)

var literalToFilter = [4]uint8{FilterEightTapSmooth, FilterEightTap, FilterEightTapSharp, FilterBilinear}

var segmentationFeatureBits = [segLvlMax]int{8, 6, 2, 0}
var segmentationFeatureSigned = [segLvlMax]bool{true, true, false, false}

// ColorConfig is color_config().
type ColorConfig struct {
	BitDepth     int
	ColorSpace   uint8
	ColorRange   bool
	SubsamplingX bool
	SubsamplingY bool
}

// LoopFilter is loop_filter_params().
type LoopFilter struct {
	Level            uint8
	Sharpness        uint8
	DeltaEnabled     bool
	DeltaUpdate      bool
	RefDeltas        [4]int8
	RefDeltaUpdated  [4]bool
	ModeDeltas       [2]int8
	ModeDeltaUpdated [2]bool
}

// Segmentation is segmentation_params().
type Segmentation struct {
	Enabled        bool
	UpdateMap      bool
	TreeProbs      [7]uint8
	PredProbs      [3]uint8
	TemporalUpdate bool
	UpdateData     bool
	AbsOrDelta     bool
	FeatureEnabled [maxSegments][segLvlMax]bool
	FeatureData    [maxSegments][segLvlMax]int16
}

// FrameHeader is a decoded uncompressed_header().
type FrameHeader struct {
	Profile int

	ShowExistingFrame bool
	FrameToShowMapIdx uint8

	FrameType          uint8
	ShowFrame          bool
	ErrorResilientMode bool
	IntraOnly          bool
	ResetFrameContext  uint8

	Color ColorConfig

	RefreshFrameFlags uint8
	RefFrameIdx       [3]uint8
	RefFrameSignBias  [3]bool
	// FoundRef is the reference slot the frame size was copied from, or -1
	// when the size is coded explicitly. Width and Height are zero and the
	// tile info is not decoded when a reference supplies the size.
	FoundRef int

	Width        uint32
	Height       uint32
	RenderWidth  uint32
	RenderHeight uint32

	AllowHighPrecisionMV bool
	InterpFilter         uint8

	RefreshFrameContext       bool
	FrameParallelDecodingMode bool
	FrameContextIdx           uint8

	LoopFilter LoopFilter

	BaseQIdx   uint8
	DeltaQYDc  int8
	DeltaQUVDc int8
	DeltaQUVAc int8
	Lossless   bool

	Segmentation Segmentation

	TileInfoKnown bool
	TileColsLog2  uint8
	TileRowsLog2  uint8

	HeaderSizeInBytes uint16
	// UncompressedHeaderSize is the byte length of the uncompressed header
	// including its trailing alignment.
	UncompressedHeaderSize int
}

// IsKeyFrame reports frame_type == KEY_FRAME on a newly coded frame.
func (h *FrameHeader) IsKeyFrame() bool {
	return !h.ShowExistingFrame && h.FrameType == CodeKeyFrame
}

// ParseFrameHeader decodes the uncompressed header at the start of a VP9
// frame.
func ParseFrameHeader(frame []byte) (*FrameHeader, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("vp9: frame header: %w", parseerr.ErrEmpty)
	}
	s := bits.NewSyntax(frame)
	h := &FrameHeader{FoundRef: -1}

	if s.U(2, "frame_marker") != 2 && s.Err() == nil {
		s.Fail("frame_marker", parseerr.ErrInvalid)
	}
	low := s.U(1, "profile_low_bit")
	high := s.U(1, "profile_high_bit")
	h.Profile = int(high<<1 | low)
	if h.Profile == 3 {
		readReservedZero(s)
	}

	h.ShowExistingFrame = s.Flag("show_existing_frame")
	if h.ShowExistingFrame {
		h.FrameToShowMapIdx = uint8(s.U(3, "frame_to_show_map_idx"))
		return finishHeader(s, h)
	}

	h.FrameType = uint8(s.U(1, "frame_type"))
	h.ShowFrame = s.Flag("show_frame")
	h.ErrorResilientMode = s.Flag("error_resilient_mode")

	if h.FrameType == CodeKeyFrame {
		readSyncCode(s)
		h.Color = readColorConfig(s, h.Profile)
		readFrameSize(s, h)
		readRenderSize(s, h)
		h.RefreshFrameFlags = 0xFF
	} else {
		if !h.ShowFrame {
			h.IntraOnly = s.Flag("intra_only")
		}
		if !h.ErrorResilientMode {
			h.ResetFrameContext = uint8(s.U(2, "reset_frame_context"))
		}
		if h.IntraOnly {
			readSyncCode(s)
			if h.Profile > 0 {
				h.Color = readColorConfig(s, h.Profile)
			} else {
				h.Color = ColorConfig{BitDepth: 8, ColorSpace: CSBT601, SubsamplingX: true, SubsamplingY: true}
			}
			h.RefreshFrameFlags = uint8(s.U(8, "refresh_frame_flags"))
			readFrameSize(s, h)
			readRenderSize(s, h)
		} else {
			h.RefreshFrameFlags = uint8(s.U(8, "refresh_frame_flags"))
			for i := 0; i < 3; i++ {
				h.RefFrameIdx[i] = uint8(s.U(3, "ref_frame_idx"))
				h.RefFrameSignBias[i] = s.Flag("ref_frame_sign_bias")
			}
			readFrameSizeWithRefs(s, h)
			h.AllowHighPrecisionMV = s.Flag("allow_high_precision_mv")
			if s.Flag("is_filter_switchable") {
				h.InterpFilter = FilterSwitchable
			} else {
				h.InterpFilter = literalToFilter[s.U(2, "raw_interpolation_filter")]
			}
		}
	}

	if !h.ErrorResilientMode {
		h.RefreshFrameContext = s.Flag("refresh_frame_context")
		h.FrameParallelDecodingMode = s.Flag("frame_parallel_decoding_mode")
	} else {
		h.FrameParallelDecodingMode = true
	}
	h.FrameContextIdx = uint8(s.U(2, "frame_context_idx"))

	readLoopFilter(s, &h.LoopFilter)
	readQuantization(s, h)
	readSegmentation(s, &h.Segmentation)

	if h.FoundRef < 0 {
		readTileInfo(s, h)
		h.HeaderSizeInBytes = uint16(s.U(16, "header_size_in_bytes"))
		if s.Err() == nil && h.HeaderSizeInBytes == 0 {
			s.Fail("header_size_in_bytes", parseerr.ErrInvalid)
		}
	}
	return finishHeader(s, h)
}

func finishHeader(s *bits.Syntax, h *FrameHeader) (*FrameHeader, error) {
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("vp9: frame header: %w", err)
	}
	h.UncompressedHeaderSize = s.Reader().BytePos()
	return h, nil
}

func readReservedZero(s *bits.Syntax) {
	if s.Flag("reserved_zero") {
		s.Fail("reserved_zero", parseerr.ErrInvalid)
	}
}

func readSyncCode(s *bits.Syntax) {
	if s.U(24, "frame_sync_code") != syncCode && s.Err() == nil {
		s.Fail("frame_sync_code", parseerr.ErrInvalid)
	}
}

func readColorConfig(s *bits.Syntax, profile int) ColorConfig {
	c := ColorConfig{BitDepth: 8}
	if profile >= 2 {
		c.BitDepth = 10
		if s.Flag("ten_or_twelve_bit") {
			c.BitDepth = 12
		}
	}
	c.ColorSpace = uint8(s.U(3, "color_space"))
	if c.ColorSpace != CSRGB {
		c.ColorRange = s.Flag("color_range")
		if profile == 1 || profile == 3 {
			c.SubsamplingX = s.Flag("subsampling_x")
			c.SubsamplingY = s.Flag("subsampling_y")
			readReservedZero(s)
		} else {
			c.SubsamplingX, c.SubsamplingY = true, true
		}
	} else {
		c.ColorRange = true
		if profile == 1 || profile == 3 {
			readReservedZero(s)
		}
	}
	return c
}

func readFrameSize(s *bits.Syntax, h *FrameHeader) {
	h.Width = s.U(16, "frame_width_minus_1") + 1
	h.Height = s.U(16, "frame_height_minus_1") + 1
}

func readRenderSize(s *bits.Syntax, h *FrameHeader) {
	h.RenderWidth, h.RenderHeight = h.Width, h.Height
	if s.Flag("render_and_frame_size_different") {
		h.RenderWidth = s.U(16, "render_width_minus_1") + 1
		h.RenderHeight = s.U(16, "render_height_minus_1") + 1
	}
}

func readFrameSizeWithRefs(s *bits.Syntax, h *FrameHeader) {
	for i := 0; i < 3; i++ {
		if s.Flag("found_ref") {
			h.FoundRef = i
			break
		}
	}
	if h.FoundRef < 0 {
		readFrameSize(s, h)
		readRenderSize(s, h)
		return
	}
	// The render size is still coded when the frame size is inherited.
	if s.Flag("render_and_frame_size_different") {
		h.RenderWidth = s.U(16, "render_width_minus_1") + 1
		h.RenderHeight = s.U(16, "render_height_minus_1") + 1
	}
}

// readSU reads su(n): n magnitude bits then a sign bit.
func readSU(s *bits.Syntax, n int, name string) int16 {
	v := int16(s.U(n, name))
	if s.Flag(name) {
		return -v
	}
	return v
}

func readLoopFilter(s *bits.Syntax, lf *LoopFilter) {
	lf.Level = uint8(s.U(6, "filter_level"))
	lf.Sharpness = uint8(s.U(3, "sharpness_level"))
	lf.DeltaEnabled = s.Flag("loop_filter_delta_enabled")
	if !lf.DeltaEnabled {
		return
	}
	lf.DeltaUpdate = s.Flag("loop_filter_delta_update")
	if !lf.DeltaUpdate {
		return
	}
	for i := range lf.RefDeltas {
		if s.Flag("update_ref_delta") {
			lf.RefDeltaUpdated[i] = true
			lf.RefDeltas[i] = int8(readSU(s, 6, "loop_filter_ref_deltas"))
		}
	}
	for i := range lf.ModeDeltas {
		if s.Flag("update_mode_delta") {
			lf.ModeDeltaUpdated[i] = true
			lf.ModeDeltas[i] = int8(readSU(s, 6, "loop_filter_mode_deltas"))
		}
	}
}

func readDeltaQ(s *bits.Syntax, name string) int8 {
	if s.Flag("delta_coded") {
		return int8(readSU(s, 4, name))
	}
	return 0
}

func readQuantization(s *bits.Syntax, h *FrameHeader) {
	h.BaseQIdx = uint8(s.U(8, "base_q_idx"))
	h.DeltaQYDc = readDeltaQ(s, "delta_q_y_dc")
	h.DeltaQUVDc = readDeltaQ(s, "delta_q_uv_dc")
	h.DeltaQUVAc = readDeltaQ(s, "delta_q_uv_ac")
	h.Lossless = h.BaseQIdx == 0 && h.DeltaQYDc == 0 && h.DeltaQUVDc == 0 && h.DeltaQUVAc == 0
}

func readProb(s *bits.Syntax, name string) uint8 {
	if s.Flag("prob_coded") {
		return uint8(s.U(8, name))
	}
	return 255
}

func readSegmentation(s *bits.Syntax, seg *Segmentation) {
	seg.Enabled = s.Flag("segmentation_enabled")
	if !seg.Enabled {
		return
	}
	seg.UpdateMap = s.Flag("segmentation_update_map")
	if seg.UpdateMap {
		for i := range seg.TreeProbs {
			seg.TreeProbs[i] = readProb(s, "segmentation_tree_probs")
		}
		seg.TemporalUpdate = s.Flag("segmentation_temporal_update")
		for i := range seg.PredProbs {
			seg.PredProbs[i] = 255
			if seg.TemporalUpdate {
				seg.PredProbs[i] = readProb(s, "segmentation_pred_prob")
			}
		}
	}
	seg.UpdateData = s.Flag("segmentation_update_data")
	if !seg.UpdateData {
		return
	}
	seg.AbsOrDelta = s.Flag("segmentation_abs_or_delta_update")
	for i := 0; i < maxSegments; i++ {
		for j := 0; j < segLvlMax; j++ {
			seg.FeatureEnabled[i][j] = s.Flag("feature_enabled")
			if !seg.FeatureEnabled[i][j] {
				continue
			}
			v := int16(s.U(segmentationFeatureBits[j], "feature_value"))
			if segmentationFeatureSigned[j] && s.Flag("feature_sign") {
				v = -v
			}
			seg.FeatureData[i][j] = v
		}
	}
}

func readTileInfo(s *bits.Syntax, h *FrameHeader) {
	miCols := (h.Width + 7) >> 3
	sb64Cols := (miCols + 7) >> 3

	minLog2 := uint8(0)
	for (maxTileWidthB64 << minLog2) < sb64Cols {
		minLog2++
	}
	maxLog2 := uint8(1)
	for (sb64Cols >> maxLog2) >= minTileWidthB64 {
		maxLog2++
	}
	maxLog2--

	h.TileColsLog2 = minLog2
	for h.TileColsLog2 < maxLog2 {
		if !s.Flag("increment_tile_cols_log2") {
			break
		}
		h.TileColsLog2++
	}
	if s.Flag("tile_rows_log2") {
		h.TileRowsLog2 = 1
		if s.Flag("increment_tile_rows_log2") {
			h.TileRowsLog2++
		}
	}
	h.TileInfoKnown = s.Err() == nil
}
