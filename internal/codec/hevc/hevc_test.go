package hevc

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
	"github.com/zsiec/bitscope/internal/unit"
)

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

const (
	vpsMain = "40 01 0c 01 ff ff 01 60 00 00 03 00 90 00 00 03 00 00 03 00 78 95 98 09"
	// Main profile level 4, 1920x1080, 64x64 CTBs, no short-term sets.
	sps1080p = "42 01 01 01 60 00 00 03 00 90 00 00 03 00 00 03 00 78 a0 03 c0 80 10 e5 96 66 69 24 ca e0 10 00 00 03 00 10 00 00 03 01 e0 80"
	// Main 10, high tier.
	sps10bit = "42 01 01 22 20 00 00 03 00 90 00 00 03 00 00 03 00 78 a0 03 c0 80 10 e4 d9 66 66 92 4c af 01 01 00 00 03 00 64 00 00 0b b5 08"
	// 1920x1088 coded, cropped to 1080, one short-term set {-1}, VUI HRD.
	spsNVENC = "42 01 01 01 40 00 00 03 00 00 03 00 00 03 00 00 03 00 7b a0 03 c0 80 11 07 cb 96 b4 a4 25 92 e3 01 6a 02 02 02 08 00 00 03 00 08 00 00 03 01 e3 00 2e f2 88 00 07 27 0c 00 00 98 96 82"
	// RExt 4:4:4 12 bit.
	sps444 = "42 01 01 04 08 00 00 03 00 98 08 00 00 03 00 00 5d 90 00 50 10 05 a2 29 4b 74 94 98 5f fe 00 02 00 02 d4 04 04 04 10 00 00 03 00 10 00 00 03 01 e0 80"
	spsLongTerm = "42 01 01 01 60 00 00 03 00 b0 00 00 03 00 00 03 00 5d a0 02 80 80 2d 16 36 b9 24 cb f0 08 00 00 03 00 08 00 00 03 01 95 08"
	// Truncated after the conformance window.
	spsShort = "42 01 01 01 40 00 00 00 B0 00 00 00 00 00 5D A0 0A 08 0F 10"

	// Weighted prediction and WPP, otherwise default.
	ppsWPP = "44 01 c1 72 b4 62 40"
	// Dependent slices, cabac_init_present, init_qp_minus26 -4, cb/cr
	// offsets 2/-1 with slice offsets, weighted P, WPP, deblocking override
	// (beta 1, tc -1), lists modification.
	ppsFull = "44 01 e0 e2 41 1e 3c 9b 20"
)

// Slice segment payloads, NAL header excluded, decoded against sps1080p and
// ppsFull unless noted.
const (
	// IDR I slice: SAO on, qp delta 3, cb/cr delta 1/0, two 8-bit entry
	// points (100, 200).
	sliceIDR = "af 32 ac 43 26 44"
	// TRAIL_R P slice at CTB 255: poc lsb 5, explicit set {-1, -3}, two
	// active refs with list entries {1, 0}, collocated_ref_idx 1, weights,
	// qp delta -2, deblocking disabled by override.
	sliceP = "4f f4 0a 7d 65 6a 3b 93 0b 20 56 39 97 f0"
	// Dependent segment at CTB 300 with one 4-bit entry point (9).
	sliceDependent = "72 c4 49 80"
	// P slice_type in a CRA picture.
	sliceCRAP = "aa"
	// References pps id 5.
	sliceMissingPPS = "99 40"
	// Against spsNVENC and ppsWPP: P slice selecting SPS set 0.
	sliceSPSRPS = "d0 4e 66 c0"
)

func paramSets(t testing.TB, spsHex, ppsHex string) *ParamSets {
	t.Helper()
	ps := NewParamSets()
	for _, s := range []string{spsHex, ppsHex} {
		nalu := mustHex(t, s)
		u, err := unit.Frame(DescriptorHVCC, lengthPrefixed(nalu), 0, unit.Options{})
		require.NoError(t, err)
		require.NoError(t, ps.Add(u))
	}
	return ps
}

func lengthPrefixed(nalu []byte) []byte {
	n := len(nalu)
	return append([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}, nalu...)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code uint32
		want unit.Kind
	}{
		{NALTypeTrailN, unit.KindSlice},
		{NALTypeRASLR, unit.KindSlice},
		{10, unit.KindReserved},
		{15, unit.KindReserved},
		{NALTypeBLAWLP, unit.KindSliceIRAP},
		{NALTypeIDRWRADL, unit.KindSliceIRAP},
		{NALTypeCRA, unit.KindSliceIRAP},
		{22, unit.KindReserved},
		{31, unit.KindReserved},
		{NALTypeVPS, unit.KindVPS},
		{NALTypeSPS, unit.KindSPS},
		{NALTypePPS, unit.KindPPS},
		{NALTypeAUD, unit.KindAUD},
		{NALTypeEOS, unit.KindEndOfSequence},
		{NALTypeEOB, unit.KindEndOfStream},
		{NALTypeFD, unit.KindFillerData},
		{NALTypePrefixSEI, unit.KindSEI},
		{NALTypeSuffixSEI, unit.KindSEI},
		{41, unit.KindReserved},
		{47, unit.KindReserved},
		{48, unit.KindUnspecified},
		{63, unit.KindUnspecified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.code), "nal_unit_type %d", tt.code)
	}
}

func TestFrameAnnexB(t *testing.T) {
	t.Parallel()
	idr := append([]byte{0x26, 0x01}, mustHex(t, sliceIDR)...)
	au := [][]byte{mustHex(t, vpsMain), mustHex(t, sps1080p), mustHex(t, ppsFull), idr}
	buf, err := h264.AnnexBMarshal(au)
	require.NoError(t, err)

	ps := NewParamSets()
	var units []unit.Unit
	for off := 0; off < len(buf); {
		u, err := unit.Frame(DescriptorAnnexB, buf, off, unit.Options{RejectReserved: true})
		require.NoError(t, err)
		require.NoError(t, ps.Add(u))
		units = append(units, u)
		off = u.End()
	}
	require.Len(t, units, 4)

	wantKinds := []unit.Kind{unit.KindVPS, unit.KindSPS, unit.KindPPS, unit.KindSliceIRAP}
	for i, u := range units {
		assert.Equal(t, wantKinds[i], u.Kind)
		assert.Equal(t, 2, u.HeaderBytes)
		require.NotNil(t, u.TemporalID)
		assert.Equal(t, uint8(0), *u.TemporalID)
		assert.Equal(t, uint8(0), u.LayerID)
	}
	assert.Equal(t, 1, ps.VPS.Len())
	assert.Equal(t, 1, ps.SPS.Len())
	assert.Equal(t, 1, ps.PPS.Len())

	sh, err := Decoder{PS: ps}.DecodePayload(units[3])
	require.NoError(t, err)
	assert.Equal(t, SliceI, sh.(*SliceHeader).Type)
}

func TestFrameTemporalIDZeroIsInvalid(t *testing.T) {
	t.Parallel()
	_, err := unit.Frame(DescriptorHVCC, []byte{0, 0, 0, 3, 0x02, 0x00, 0xAA}, 0, unit.Options{})
	require.ErrorIs(t, err, parseerr.ErrInvalid)
}

func TestParseVPS(t *testing.T) {
	t.Parallel()
	vps, err := ParseVPS(mustHex(t, vpsMain)[2:])
	require.NoError(t, err)
	assert.Equal(t, uint8(0), vps.ID)
	assert.True(t, vps.BaseLayerInternal)
	assert.True(t, vps.BaseLayerAvailable)
	assert.Equal(t, 0, vps.MaxSubLayersMinus1)
	assert.Equal(t, uint8(1), vps.ProfileTierLevel.ProfileIDC)
	assert.Equal(t, uint8(120), vps.ProfileTierLevel.LevelIDC)
	require.Len(t, vps.SubLayerOrdering, 1)
	assert.Equal(t, SubLayerOrdering{MaxDecPicBufferingMinus1: 4, MaxNumReorderPics: 2, MaxLatencyIncreasePlus1: 5}, vps.SubLayerOrdering[0])
	assert.Equal(t, 1, vps.NumLayerSets)
	assert.False(t, vps.TimingInfoPresent)
}

func TestParseVPSReservedBits(t *testing.T) {
	t.Parallel()
	b := mustHex(t, vpsMain)[2:]
	b[2] = 0xFE
	_, err := ParseVPS(b)
	require.ErrorIs(t, err, parseerr.ErrInvalid)
	var fe *parseerr.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "vps_reserved_0xffff_16bits", fe.Field)
}

func TestParseSPS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		hex      string
		width    int
		height   int
		bitDepth int
		chroma   uint32
		log2Ctb  int
		numSets  int
		codec    string
	}{
		{"1080p", sps1080p, 1920, 1080, 8, 1, 6, 0, "hev1.1.6.L120.90"},
		{"10 bit", sps10bit, 1920, 1080, 10, 1, 6, 0, "hev1.2.4.H120.90"},
		{"nvenc", spsNVENC, 1920, 1080, 8, 1, 5, 1, "hev1.1.2.L123"},
		{"444", sps444, 1280, 720, 12, 3, 5, 0, "hev1.4.10.L93.98.8"},
		{"long term", spsLongTerm, 1280, 720, 8, 1, 6, 0, "hev1.1.6.L93.B0"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			nalu := mustHex(t, tt.hex)
			sps, err := ParseSPS(nalu[2:])
			require.NoError(t, err)
			assert.Equal(t, tt.width, sps.Width())
			assert.Equal(t, tt.height, sps.Height())
			assert.Equal(t, tt.bitDepth, sps.BitDepthLuma)
			assert.Equal(t, tt.chroma, sps.ChromaFormatIDC)
			assert.Equal(t, tt.log2Ctb, sps.Log2CtbSize)
			assert.Len(t, sps.ShortTermRPS, tt.numSets)
			assert.Equal(t, tt.codec, CodecString(sps))

			var ref h265.SPS
			require.NoError(t, ref.Unmarshal(nalu))
			assert.Equal(t, ref.Width(), sps.Width())
			assert.Equal(t, ref.Height(), sps.Height())
			assert.Equal(t, uint32(ref.ID), sps.ID)
			assert.Equal(t, int(ref.Log2MaxPicOrderCntLsbMinus4)+4, sps.Log2MaxPicOrderCntLsb)
			assert.Equal(t, ref.TemporalMvpEnabledFlag, sps.TemporalMVPEnabled)
			assert.Equal(t, ref.SampleAdaptiveOffsetEnabledFlag, sps.SAOEnabled)
			assert.Equal(t, ref.LongTermRefPicsPresentFlag, sps.LongTermRefPicsPresent)
		})
	}
}

func TestParseSPSDetails(t *testing.T) {
	t.Parallel()
	sps, err := ParseSPS(mustHex(t, spsNVENC)[2:])
	require.NoError(t, err)

	assert.Equal(t, uint32(1920), sps.PicWidth)
	assert.Equal(t, uint32(1088), sps.PicHeight)
	assert.Equal(t, uint32(4), sps.ConfWinBottom)
	assert.Equal(t, uint32(60), sps.PicWidthInCtbs())
	assert.Equal(t, uint32(34), sps.PicHeightInCtbs())
	assert.Equal(t, uint64(2040), sps.PicSizeInCtbs())
	assert.True(t, sps.AMPEnabled)
	assert.False(t, sps.TemporalMVPEnabled)

	require.Len(t, sps.ShortTermRPS, 1)
	assert.Equal(t, []int32{-1}, sps.ShortTermRPS[0].DeltaPocS0)
	assert.Equal(t, 1, sps.ShortTermRPS[0].NumUsedByCurrPic())

	require.NotNil(t, sps.VUI)
	assert.Equal(t, uint32(1), sps.VUI.NumUnitsInTick)
	assert.Equal(t, uint32(60), sps.VUI.TimeScale)
	assert.Equal(t, uint8(1), sps.VUI.ColourPrimaries)
	require.NotNil(t, sps.VUI.HRD)
	require.Len(t, sps.VUI.HRD.SubLayers, 1)

	hd, err := ParseSPS(mustHex(t, sps1080p)[2:])
	require.NoError(t, err)
	assert.Equal(t, uint32(30), hd.PicWidthInCtbs())
	assert.Equal(t, uint32(17), hd.PicHeightInCtbs())
	assert.Equal(t, uint32(5), hd.MaxDecPicBufferingMinus1())
	assert.Equal(t, 0, hd.QpBdOffsetY())
}

func TestParseSPSErrors(t *testing.T) {
	t.Parallel()
	_, err := ParseSPS(nil)
	require.ErrorIs(t, err, parseerr.ErrUnexpectedEOF)

	_, err = ParseSPS(mustHex(t, spsShort)[2:])
	require.ErrorIs(t, err, parseerr.ErrUnexpectedEOF)

	b := mustHex(t, sps1080p)[2:]
	b[0] = b[0] | 0x0E // sps_max_sub_layers_minus1 = 7
	_, err = ParseSPS(b)
	require.ErrorIs(t, err, parseerr.ErrOutOfRange)
}

func TestParsePPS(t *testing.T) {
	t.Parallel()
	nalu := mustHex(t, ppsWPP)
	pps, err := ParsePPS(nalu[2:])
	require.NoError(t, err)

	var ref h265.PPS
	require.NoError(t, ref.Unmarshal(nalu))
	assert.Equal(t, ref.ID, pps.ID)
	assert.Equal(t, ref.SPSID, pps.SPSID)
	assert.Equal(t, ref.DependentSliceSegmentsEnabledFlag, pps.DependentSliceSegmentsEnabled)
	assert.Equal(t, ref.OutputFlagPresentFlag, pps.OutputFlagPresent)
	assert.Equal(t, int(ref.NumExtraSliceHeaderBits), pps.NumExtraSliceHeaderBits)
	assert.True(t, pps.WeightedPred)
	assert.True(t, pps.EntropyCodingSyncEnabled)
	assert.True(t, pps.LoopFilterAcrossSlices)

	full, err := ParsePPS(mustHex(t, ppsFull)[2:])
	require.NoError(t, err)
	assert.True(t, full.DependentSliceSegmentsEnabled)
	assert.True(t, full.CabacInitPresent)
	assert.Equal(t, int32(-4), full.InitQPMinus26)
	assert.Equal(t, int32(2), full.CbQPOffset)
	assert.Equal(t, int32(-1), full.CrQPOffset)
	assert.True(t, full.SliceChromaQPOffsetsPresent)
	assert.True(t, full.DeblockingFilterOverrideEnabled)
	assert.Equal(t, int32(1), full.BetaOffsetDiv2)
	assert.Equal(t, int32(-1), full.TcOffsetDiv2)
	assert.True(t, full.ListsModificationPresent)
	assert.Equal(t, 1, full.NumTileColumns)
}

func TestParsePPSErrors(t *testing.T) {
	t.Parallel()
	_, err := ParsePPS(nil)
	require.ErrorIs(t, err, parseerr.ErrEmpty)

	w := bits.NewWriter()
	w.PutUE(64) // pps_pic_parameter_set_id
	w.PutTrailingBits()
	_, err = ParsePPS(w.Bytes())
	require.ErrorIs(t, err, parseerr.ErrOutOfRange)

	_, err = ParsePPS(mustHex(t, ppsFull)[2:5])
	require.ErrorIs(t, err, parseerr.ErrUnexpectedEOF)
}

func TestDecodeSliceHeaderIDR(t *testing.T) {
	t.Parallel()
	ps := paramSets(t, sps1080p, ppsFull)
	h, err := DecodeSliceHeader(mustHex(t, sliceIDR), ps, NALTypeIDRWRADL)
	require.NoError(t, err)

	assert.True(t, h.FirstSliceSegmentInPic)
	assert.False(t, h.NoOutputOfPriorPics)
	assert.Equal(t, SliceI, h.Type)
	assert.True(t, h.PicOutput)
	assert.Nil(t, h.ShortTermRPS)
	assert.True(t, h.SAOLuma)
	assert.True(t, h.SAOChroma)
	assert.Equal(t, int32(3), h.SliceQPDelta)
	assert.Equal(t, 25, h.SliceQPY)
	assert.Equal(t, 3, h.CbQPOffset)
	assert.Equal(t, -1, h.CrQPOffset)
	assert.False(t, h.DeblockingFilterOverride)
	assert.False(t, h.DeblockingFilterDisabled)
	assert.Equal(t, int32(1), h.BetaOffsetDiv2)
	assert.Equal(t, int32(-1), h.TcOffsetDiv2)
	assert.True(t, h.LoopFilterAcrossSlices)
	assert.Equal(t, 8, h.OffsetLen)
	assert.Equal(t, []uint32{100, 200}, h.EntryPointOffsets)
	assert.Equal(t, 48, h.HeaderBits)
}

func TestDecodeSliceHeaderP(t *testing.T) {
	t.Parallel()
	ps := paramSets(t, sps1080p, ppsFull)
	h, err := DecodeSliceHeader(mustHex(t, sliceP), ps, NALTypeTrailR)
	require.NoError(t, err)

	assert.False(t, h.FirstSliceSegmentInPic)
	assert.False(t, h.DependentSliceSegment)
	assert.Equal(t, uint32(255), h.SliceSegmentAddress)
	assert.Equal(t, SliceP, h.Type)
	assert.Equal(t, uint32(5), h.PicOrderCntLsb)
	assert.False(t, h.ShortTermRefPicSetSPS)
	require.NotNil(t, h.ShortTermRPS)
	assert.Equal(t, []int32{-1, -3}, h.ShortTermRPS.DeltaPocS0)
	assert.Empty(t, h.ShortTermRPS.DeltaPocS1)
	assert.True(t, h.TemporalMVPEnabled)
	assert.False(t, h.SAOLuma)

	assert.True(t, h.NumRefIdxActiveOverride)
	assert.Equal(t, 2, h.NumRefIdxL0Active)
	assert.Equal(t, []uint32{1, 0}, h.ListEntryL0)
	assert.True(t, h.CabacInit)
	assert.True(t, h.CollocatedFromL0)
	assert.Equal(t, uint32(1), h.CollocatedRefIdx)

	require.NotNil(t, h.PredWeightTable)
	pwt := h.PredWeightTable
	assert.Equal(t, uint32(6), pwt.LumaLog2WeightDenom)
	assert.Equal(t, int32(-1), pwt.DeltaChromaLog2WeightDenom)
	require.Len(t, pwt.L0, 2)
	assert.Equal(t, WeightEntry{LumaFlag: true, DeltaLumaWeight: 3, LumaOffset: -5}, pwt.L0[0])
	assert.Equal(t, WeightEntry{
		ChromaFlag:        true,
		DeltaChromaWeight: [2]int32{2, 0},
		DeltaChromaOffset: [2]int32{-10, 7},
	}, pwt.L0[1])
	assert.Nil(t, pwt.L1)

	assert.Equal(t, 3, h.MaxNumMergeCand)
	assert.Equal(t, 20, h.SliceQPY)
	assert.True(t, h.DeblockingFilterOverride)
	assert.True(t, h.DeblockingFilterDisabled)
	assert.True(t, h.LoopFilterAcrossSlices)
	assert.Empty(t, h.EntryPointOffsets)
	assert.Equal(t, 112, h.HeaderBits)
}

func TestDecodeSliceHeaderDependent(t *testing.T) {
	t.Parallel()
	ps := paramSets(t, sps1080p, ppsFull)
	h, err := DecodeSliceHeader(mustHex(t, sliceDependent), ps, NALTypeTrailN)
	require.NoError(t, err)
	assert.True(t, h.DependentSliceSegment)
	assert.Equal(t, uint32(300), h.SliceSegmentAddress)
	assert.Equal(t, 4, h.OffsetLen)
	assert.Equal(t, []uint32{9}, h.EntryPointOffsets)
	assert.Zero(t, h.SliceQPY)
}

func TestDecodeSliceHeaderSPSShortTermSet(t *testing.T) {
	t.Parallel()
	ps := paramSets(t, spsNVENC, ppsWPP)
	h, err := DecodeSliceHeader(mustHex(t, sliceSPSRPS), ps, NALTypeTrailR)
	require.NoError(t, err)

	sps, err := ps.SPS.Lookup(0)
	require.NoError(t, err)
	assert.True(t, h.ShortTermRefPicSetSPS)
	assert.Same(t, sps.ShortTermRPS[0], h.ShortTermRPS)
	assert.Equal(t, uint32(9), h.PicOrderCntLsb)
	assert.Equal(t, 1, h.NumRefIdxL0Active)
	require.NotNil(t, h.PredWeightTable)
	assert.Len(t, h.PredWeightTable.L0, 1)
	assert.Equal(t, 5, h.MaxNumMergeCand)
	assert.Equal(t, 26, h.SliceQPY)
	assert.True(t, h.SAOLuma)
	assert.False(t, h.LoopFilterAcrossSlices)
}

func TestDecodeSliceHeaderMissingParameterSets(t *testing.T) {
	t.Parallel()
	_, err := DecodeSliceHeader(mustHex(t, sliceIDR), nil, NALTypeIDRWRADL)
	require.ErrorIs(t, err, parseerr.ErrMissingParameterSet)

	ps := paramSets(t, sps1080p, ppsFull)
	_, err = DecodeSliceHeader(mustHex(t, sliceMissingPPS), ps, NALTypeTrailR)
	require.ErrorIs(t, err, parseerr.ErrMissingParameterSet)
	var mps *parseerr.MissingParameterSetError
	require.True(t, errors.As(err, &mps))
	assert.Equal(t, "pps", mps.Class)
	assert.Equal(t, uint32(5), mps.ID)

	noSPS := NewParamSets()
	pps, err := ParsePPS(mustHex(t, ppsFull)[2:])
	require.NoError(t, err)
	noSPS.PPS.Set(pps.ID, pps)
	_, err = DecodeSliceHeader(mustHex(t, sliceIDR), noSPS, NALTypeIDRWRADL)
	require.True(t, errors.As(err, &mps))
	assert.Equal(t, "sps", mps.Class)
}

func TestDecodeSliceHeaderErrors(t *testing.T) {
	t.Parallel()
	ps := paramSets(t, sps1080p, ppsFull)
	tests := []struct {
		name    string
		payload []byte
		nalType uint8
		want    error
	}{
		{"empty", nil, NALTypeTrailR, parseerr.ErrEmpty},
		{"not a slice", mustHex(t, sliceIDR), NALTypeSPS, parseerr.ErrInvalidUnitType},
		{"reserved vcl", mustHex(t, sliceIDR), 10, parseerr.ErrInvalidUnitType},
		{"irap p slice", mustHex(t, sliceCRAP), NALTypeCRA, parseerr.ErrInvalid},
		{"truncated", mustHex(t, sliceP)[:6], NALTypeTrailR, parseerr.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeSliceHeader(tt.payload, ps, tt.nalType)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

// escape inserts emulation prevention bytes into an RBSP.
func escape(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+4)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// longTermParamSets is a 64x64 picture of 16x16 CTBs with one SPS
// short-term set {-1} and three SPS long-term candidates.
func longTermParamSets() *ParamSets {
	ps := NewParamSets()
	ps.SPS.Set(0, &SPS{
		ChromaFormatIDC:        1,
		PicWidth:               64,
		PicHeight:              64,
		BitDepthLuma:           8,
		BitDepthChroma:         8,
		Log2MaxPicOrderCntLsb:  8,
		Log2CtbSize:            4,
		ShortTermRPS:           []*ShortTermRPS{{DeltaPocS0: []int32{-1}, UsedByCurrPicS0: []bool{true}}},
		LongTermRefPicsPresent: true,
		LtRefPicPocLsb:         []uint32{10, 20, 30},
		UsedByCurrPicLt:        []bool{true, false, true},
	})
	ps.PPS.Set(0, &PPS{
		NumRefIdxL0DefaultActive: 1,
		NumRefIdxL1DefaultActive: 1,
		ListsModificationPresent: true,
	})
	return ps
}

type longTermSlice struct {
	numSPS       uint32
	ltIdx        uint64
	explicitUsed bool
	entryBits    int
	entries      []uint64
}

// payload writes a TRAIL_R P slice with two SPS long-term pictures, the
// first at ltIdx and the second at index 1, and one explicit picture.
func (c longTermSlice) payload() []byte {
	w := bits.NewWriter()
	w.PutFlag(true)   // first_slice_segment_in_pic_flag
	w.PutUE(0)        // slice_pic_parameter_set_id
	w.PutUE(1)        // slice_type: P
	w.PutBits(8, 7)   // slice_pic_order_cnt_lsb
	w.PutFlag(true)   // short_term_ref_pic_set_sps_flag
	w.PutUE(c.numSPS) // num_long_term_sps
	w.PutUE(1)        // num_long_term_pics
	w.PutBits(2, c.ltIdx)
	w.PutFlag(true) // delta_poc_msb_present_flag
	w.PutUE(4)      // delta_poc_msb_cycle_lt
	w.PutBits(2, 1)
	w.PutFlag(false)
	w.PutBits(8, 77)          // poc_lsb_lt
	w.PutFlag(c.explicitUsed) // used_by_curr_pic_lt_flag
	w.PutFlag(false)
	w.PutFlag(true) // num_ref_idx_active_override_flag
	w.PutUE(uint32(len(c.entries) - 1))
	w.PutFlag(true) // ref_pic_list_modification_flag_l0
	for _, e := range c.entries {
		w.PutBits(c.entryBits, e)
	}
	w.PutUE(0) // five_minus_max_num_merge_cand
	w.PutSE(0) // slice_qp_delta
	w.PutTrailingBits()
	return escape(w.Bytes())
}

func TestDecodeSliceHeaderLongTermPics(t *testing.T) {
	t.Parallel()
	ps := longTermParamSets()

	// Short-term {-1} plus SPS candidate 2 and the explicit picture make
	// NumPicTotalCurr 3, so list entries take two bits.
	h, err := DecodeSliceHeader(longTermSlice{
		numSPS: 2, ltIdx: 2, explicitUsed: true, entryBits: 2, entries: []uint64{2, 0, 1},
	}.payload(), ps, NALTypeTrailR)
	require.NoError(t, err)

	assert.Equal(t, SliceP, h.Type)
	assert.Equal(t, uint32(7), h.PicOrderCntLsb)
	assert.True(t, h.ShortTermRefPicSetSPS)
	assert.Equal(t, uint32(2), h.NumLongTermSPS)
	assert.Equal(t, uint32(1), h.NumLongTermPics)
	assert.Equal(t, []LongTermPic{
		{LtIdxSPS: 2, FromSPS: true, PocLsbLt: 30, UsedByCurrPic: true, DeltaPocMsbPresent: true, DeltaPocMsbCycleLt: 4},
		{LtIdxSPS: 1, FromSPS: true, PocLsbLt: 20},
		{PocLsbLt: 77, UsedByCurrPic: true},
	}, h.LongTerm)
	assert.Equal(t, 3, h.NumRefIdxL0Active)
	assert.Equal(t, []uint32{2, 0, 1}, h.ListEntryL0)
	assert.Equal(t, 5, h.MaxNumMergeCand)
	assert.Equal(t, 26, h.SliceQPY)
	assert.Equal(t, 56, h.HeaderBits)

	// An unused explicit picture drops NumPicTotalCurr to 2 and the entry
	// width to one bit.
	h, err = DecodeSliceHeader(longTermSlice{
		numSPS: 2, ltIdx: 2, entryBits: 1, entries: []uint64{1, 0},
	}.payload(), ps, NALTypeTrailR)
	require.NoError(t, err)
	assert.False(t, h.LongTerm[2].UsedByCurrPic)
	assert.Equal(t, []uint32{1, 0}, h.ListEntryL0)
	assert.Equal(t, 56, h.HeaderBits)
}

func TestDecodeSliceHeaderLongTermErrors(t *testing.T) {
	t.Parallel()
	ps := longTermParamSets()
	tests := []struct {
		name  string
		slice longTermSlice
		want  error
		field string
	}{
		{"too many sps candidates", longTermSlice{numSPS: 4, entryBits: 2, entries: []uint64{0}}, parseerr.ErrOutOfRange, "num_long_term_sps"},
		{"lt_idx_sps past the list", longTermSlice{numSPS: 2, ltIdx: 3, entryBits: 2, entries: []uint64{0}}, parseerr.ErrOutOfRange, "lt_idx_sps"},
		{"list entry past NumPicTotalCurr", longTermSlice{numSPS: 2, ltIdx: 0, explicitUsed: true, entryBits: 2, entries: []uint64{3}}, parseerr.ErrOutOfRange, "list_entry_l0"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeSliceHeader(tt.slice.payload(), ps, NALTypeTrailR)
			require.ErrorIs(t, err, tt.want)
			var fe *parseerr.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestShortTermRPSInterPrediction(t *testing.T) {
	t.Parallel()
	// Set 0: {-1, -3 | +2}, all used. Set 1 (slice form): predicted from
	// set 0 with deltaRps -1, dropping the -3 entry.
	s := bits.NewSyntax([]byte{0x6b, 0x55, 0xf9, 0x80})
	set0 := readShortTermRPS(s, 0, 1, nil, 15)
	require.NoError(t, s.Err())
	assert.Equal(t, []int32{-1, -3}, set0.DeltaPocS0)
	assert.Equal(t, []int32{2}, set0.DeltaPocS1)

	set1 := readShortTermRPS(s, 1, 1, []*ShortTermRPS{set0}, 15)
	require.NoError(t, s.Err())
	assert.True(t, set1.InterRPSPrediction)
	assert.Equal(t, int32(-1), set1.DeltaRPS)
	assert.Equal(t, []int32{-1, -2}, set1.DeltaPocS0)
	assert.Equal(t, []bool{true, true}, set1.UsedByCurrPicS0)
	assert.Equal(t, []int32{1}, set1.DeltaPocS1)
	assert.Equal(t, 3, set1.NumUsedByCurrPic())
	assert.Equal(t, 25, s.Reader().BitPos())
}

func TestDecoderDispatch(t *testing.T) {
	t.Parallel()
	ps := paramSets(t, sps1080p, ppsFull)
	d := Decoder{PS: ps}

	frame := func(nalu []byte) unit.Unit {
		u, err := unit.Frame(DescriptorHVCC, lengthPrefixed(nalu), 0, unit.Options{})
		require.NoError(t, err)
		return u
	}

	v, err := d.DecodePayload(frame(mustHex(t, vpsMain)))
	require.NoError(t, err)
	assert.IsType(t, &VPS{}, v)

	v, err = d.DecodePayload(frame(mustHex(t, sps1080p)))
	require.NoError(t, err)
	assert.IsType(t, &SPS{}, v)

	v, err = d.DecodePayload(frame(append([]byte{0x02, 0x01}, mustHex(t, sliceP)...)))
	require.NoError(t, err)
	assert.Equal(t, SliceP, v.(*SliceHeader).Type)

	v, err = d.DecodePayload(frame([]byte{0x46, 0x01, 0x50}))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParamSetsAddSkipsEnhancementLayers(t *testing.T) {
	t.Parallel()
	nalu := mustHex(t, sps1080p)
	nalu[1] = 0x09 // nuh_layer_id 1
	u, err := unit.Frame(DescriptorHVCC, lengthPrefixed(nalu), 0, unit.Options{})
	require.NoError(t, err)

	ps := NewParamSets()
	require.NoError(t, ps.Add(u))
	assert.Zero(t, ps.SPS.Len())
}

func TestSliceTypeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "B", SliceB.String())
	assert.Equal(t, "P", SliceP.String())
	assert.Equal(t, "I", SliceI.String())
	assert.Equal(t, "unknown", SliceType(7).String())
}

func FuzzParseSPS(f *testing.F) {
	for _, s := range []string{sps1080p, sps10bit, spsNVENC, sps444, spsLongTerm} {
		b, _ := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
		f.Add(b[2:])
	}
	f.Fuzz(func(t *testing.T, b []byte) {
		// must not panic
		_, _ = ParseSPS(b)
		_, _ = ParseVPS(b)
		_, _ = ParsePPS(b)
	})
}

func FuzzDecodeSliceHeader(f *testing.F) {
	ps := paramSets(f, sps1080p, ppsFull)
	for _, s := range []string{sliceIDR, sliceP, sliceDependent} {
		b, _ := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
		f.Add(b, uint8(NALTypeTrailR))
	}
	f.Fuzz(func(t *testing.T, b []byte, nalType uint8) {
		// must not panic
		_, _ = DecodeSliceHeader(b, ps, nalType%64)
	})
}
