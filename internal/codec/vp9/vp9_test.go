package vp9

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
	"github.com/zsiec/bitscope/internal/unit"
)

// keyFrameCIF returns a profile 0 352x288 key frame header followed by a few
// bytes standing in for the compressed header.
func keyFrameCIF() []byte {
	w := bits.NewWriter()
	w.PutBits(2, 2)  // frame_marker
	w.PutBits(2, 0)  // profile_low_bit, profile_high_bit
	w.PutFlag(false) // show_existing_frame
	w.PutBits(1, 0)  // frame_type
	w.PutFlag(true)  // show_frame
	w.PutFlag(false) // error_resilient_mode
	w.PutBits(24, syncCode)
	w.PutBits(3, CSBT601) // color_space
	w.PutFlag(false)      // color_range
	w.PutBits(16, 351)    // frame_width_minus_1
	w.PutBits(16, 287)    // frame_height_minus_1
	w.PutFlag(false)      // render_and_frame_size_different
	w.PutFlag(true)       // refresh_frame_context
	w.PutFlag(true)       // frame_parallel_decoding_mode
	w.PutBits(2, 0)       // frame_context_idx
	w.PutBits(6, 10)      // filter_level
	w.PutBits(3, 0)       // sharpness_level
	w.PutFlag(true)       // loop_filter_delta_enabled
	w.PutFlag(true)       // loop_filter_delta_update
	w.PutFlag(true)       // update_ref_delta[0]
	w.PutBits(6, 1)
	w.PutFlag(false)
	w.PutFlag(false) // update_ref_delta[1]
	w.PutFlag(true)  // update_ref_delta[2]
	w.PutBits(6, 1)
	w.PutFlag(true)
	w.PutFlag(true) // update_ref_delta[3]
	w.PutBits(6, 1)
	w.PutFlag(true)
	w.PutFlag(false)   // update_mode_delta[0]
	w.PutFlag(false)   // update_mode_delta[1]
	w.PutBits(8, 60)   // base_q_idx
	w.PutFlag(false)   // delta_q_y_dc
	w.PutFlag(false)   // delta_q_uv_dc
	w.PutFlag(false)   // delta_q_uv_ac
	w.PutFlag(false)   // segmentation_enabled
	w.PutFlag(false)   // tile_rows_log2
	w.PutBits(16, 100) // header_size_in_bytes
	out := w.Bytes()
	return append(out, 0x11, 0x22, 0x33)
}

func interFrameFoundRef() []byte {
	w := bits.NewWriter()
	w.PutBits(2, 2)
	w.PutBits(2, 0)
	w.PutFlag(false) // show_existing_frame
	w.PutBits(1, 1)  // frame_type
	w.PutFlag(true)  // show_frame
	w.PutFlag(false) // error_resilient_mode
	w.PutBits(2, 0)  // reset_frame_context
	w.PutBits(8, 0x01)
	for i := 0; i < 3; i++ {
		w.PutBits(3, uint64(i))
		w.PutFlag(false)
	}
	w.PutFlag(true)  // found_ref
	w.PutFlag(false) // render_and_frame_size_different
	w.PutFlag(true)  // allow_high_precision_mv
	w.PutFlag(true)  // is_filter_switchable
	w.PutFlag(false) // refresh_frame_context
	w.PutFlag(false) // frame_parallel_decoding_mode
	w.PutBits(2, 1)  // frame_context_idx
	w.PutBits(6, 0)
	w.PutBits(3, 0)
	w.PutFlag(false)  // loop_filter_delta_enabled
	w.PutBits(8, 100) // base_q_idx
	w.PutBits(3, 0)   // delta_coded x3
	w.PutFlag(false)  // segmentation_enabled
	return append(w.Bytes(), 0xAA)
}

func TestFrameKeyFrame(t *testing.T) {
	t.Parallel()
	buf := keyFrameCIF()
	u, err := unit.Frame(Descriptor, buf, 0, unit.Options{})
	require.NoError(t, err)
	assert.Equal(t, unit.KindKeyFrame, u.Kind)
	assert.Equal(t, 0, Profile(u.Header))
	assert.True(t, ShowFrame(u.Header))
	assert.False(t, ErrorResilient(u.Header))
	assert.Equal(t, 1, u.HeaderBytes)
	assert.Equal(t, len(buf), u.TotalSize)
	assert.Equal(t, len(buf)-1, u.PayloadSize)
}

func TestFrameMarkerMismatch(t *testing.T) {
	t.Parallel()
	_, err := unit.Frame(Descriptor, []byte{0x42, 0x00}, 0, unit.Options{})
	var pe *parseerr.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.Offset)
	assert.Contains(t, pe.Msg, "frame_marker")
}

func TestProfile3Refine(t *testing.T) {
	t.Parallel()
	// marker 10, profile 11, reserved_zero 0, show_existing 0, frame_type 1,
	// show_frame 1.
	u, err := unit.Frame(Descriptor, []byte{0xB3, 0x00}, 0, unit.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, Profile(u.Header))
	assert.Equal(t, unit.KindInterFrame, u.Kind)
	assert.True(t, ShowFrame(u.Header))
	assert.False(t, ErrorResilient(u.Header))

	_, err = unit.Frame(Descriptor, []byte{0xBB, 0x00}, 0, unit.Options{})
	assert.ErrorIs(t, err, parseerr.ErrInvalid)
}

func TestParseKeyFrameHeader(t *testing.T) {
	t.Parallel()
	h, err := ParseFrameHeader(keyFrameCIF())
	require.NoError(t, err)
	assert.True(t, h.IsKeyFrame())
	assert.True(t, h.ShowFrame)
	assert.Equal(t, uint32(352), h.Width)
	assert.Equal(t, uint32(288), h.Height)
	assert.Equal(t, uint32(352), h.RenderWidth)
	assert.Equal(t, 8, h.Color.BitDepth)
	assert.Equal(t, uint8(CSBT601), h.Color.ColorSpace)
	assert.True(t, h.Color.SubsamplingX)
	assert.Equal(t, uint8(0xFF), h.RefreshFrameFlags)
	assert.Equal(t, uint8(10), h.LoopFilter.Level)
	assert.Equal(t, [4]int8{1, 0, -1, -1}, h.LoopFilter.RefDeltas)
	assert.Equal(t, [4]bool{true, false, true, true}, h.LoopFilter.RefDeltaUpdated)
	assert.Equal(t, uint8(60), h.BaseQIdx)
	assert.False(t, h.Lossless)
	assert.True(t, h.TileInfoKnown)
	assert.Equal(t, uint8(0), h.TileColsLog2)
	assert.Equal(t, uint16(100), h.HeaderSizeInBytes)
	assert.Equal(t, len(keyFrameCIF())-3, h.UncompressedHeaderSize)
}

func TestParseInterFrameFoundRef(t *testing.T) {
	t.Parallel()
	h, err := ParseFrameHeader(interFrameFoundRef())
	require.NoError(t, err)
	assert.False(t, h.IsKeyFrame())
	assert.Equal(t, 0, h.FoundRef)
	assert.Equal(t, [3]uint8{0, 1, 2}, h.RefFrameIdx)
	assert.Equal(t, uint8(FilterSwitchable), h.InterpFilter)
	assert.True(t, h.AllowHighPrecisionMV)
	assert.Equal(t, uint8(1), h.FrameContextIdx)
	assert.Equal(t, uint8(100), h.BaseQIdx)
	assert.False(t, h.TileInfoKnown)
	assert.Zero(t, h.Width)
}

func TestParseShowExisting(t *testing.T) {
	t.Parallel()
	h, err := ParseFrameHeader([]byte{0x8D})
	require.NoError(t, err)
	assert.True(t, h.ShowExistingFrame)
	assert.Equal(t, uint8(5), h.FrameToShowMapIdx)
	assert.Equal(t, 1, h.UncompressedHeaderSize)
}

func TestParseFrameHeaderErrors(t *testing.T) {
	t.Parallel()
	_, err := ParseFrameHeader(nil)
	assert.ErrorIs(t, err, parseerr.ErrEmpty)

	bad := keyFrameCIF()
	bad[1] ^= 0xFF // corrupt the sync code
	_, err = ParseFrameHeader(bad)
	assert.ErrorIs(t, err, parseerr.ErrInvalid)

	_, err = ParseFrameHeader(keyFrameCIF()[:6])
	assert.ErrorIs(t, err, parseerr.ErrUnexpectedEOF)
}

func TestSuperframe(t *testing.T) {
	t.Parallel()
	key := keyFrameCIF()
	show := []byte{0x8D}
	buf := append(append([]byte{}, key...), show...)
	buf = unit.AppendSuperframeIndex(buf, []int{len(key), len(show)})

	idx, ok := unit.ParseSuperframeIndex(buf)
	require.True(t, ok)
	require.Len(t, idx.Frames, 2)
	assert.Equal(t, len(key)+1, idx.Start)
	assert.Equal(t, 4, idx.Size)

	var kinds []unit.Kind
	var syntax []any
	for off := 0; off < len(buf); {
		u, err := unit.Frame(Descriptor, buf, off, unit.Options{})
		require.NoError(t, err)
		kinds = append(kinds, u.Kind)
		s, err := Decoder{}.DecodePayload(u)
		require.NoError(t, err)
		syntax = append(syntax, s)
		off = u.End()
	}
	assert.Equal(t, []unit.Kind{unit.KindKeyFrame, unit.KindShowExistingFrame, unit.KindSuperframeIndex}, kinds)
	require.IsType(t, &FrameHeader{}, syntax[0])
	assert.Equal(t, uint32(352), syntax[0].(*FrameHeader).Width)
	assert.Nil(t, syntax[2])
}

func FuzzParseFrameHeader(f *testing.F) {
	f.Add(keyFrameCIF())
	f.Add(interFrameFoundRef())
	f.Add([]byte{0x8D})
	f.Fuzz(func(t *testing.T, data []byte) {
		// must not panic
		_, _ = ParseFrameHeader(data)
		for off := 0; off < len(data); {
			u, err := unit.Frame(Descriptor, data, off, unit.Options{})
			if err != nil {
				off++
				continue
			}
			off = u.End()
		}
	})
}
