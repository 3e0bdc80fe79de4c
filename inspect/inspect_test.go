package inspect

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/bitscope/internal/codec/av1"
	"github.com/zsiec/bitscope/internal/codec/avc"
	"github.com/zsiec/bitscope/internal/codec/hevc"
	"github.com/zsiec/bitscope/internal/codec/vp9"
	"github.com/zsiec/bitscope/internal/codec/vvc"
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
	// High profile 1280x720.
	sps720p = "67 64 00 1f ac d9 40 50 05 bb ff 00 03 00 04 6a 02 02 02 80 00 01 f4 80 00 5d c0 07 8c 18 cb"
	// CABAC, deblocking control present.
	ppsCABAC = "68 ee 3c 80"
	// IDR I slice with slice_qp_delta -4.
	idrSlice = "65 88 84 00 4f a5 80"
	// P slice naming pic_parameter_set_id 5.
	orphanSlice = "41 88 34"
)

func annexB(t testing.TB, nalus ...[]byte) []byte {
	t.Helper()
	buf, err := h264.AnnexBMarshal(nalus)
	require.NoError(t, err)
	return buf
}

func captionSEI() []byte {
	cc := []byte{
		0xB5, 0x00, 0x31,
		'G', 'A', '9', '4',
		0x03,
		0xC1,
		0xFF,
		0xFC, 0x94, 0x20,
		0xFF,
	}
	nalu := append([]byte{0x06, avc.SEIUserDataRegistered, byte(len(cc))}, cc...)
	return append(nalu, 0x80)
}

func TestParseCodec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want unit.Codec
	}{
		{"av1", unit.CodecAV1},
		{"H264", unit.CodecAVC},
		{"avc", unit.CodecAVC},
		{"hevc", unit.CodecHEVC},
		{"h.265", unit.CodecHEVC},
		{" vvc ", unit.CodecVVC},
		{"vp9", unit.CodecVP9},
	}
	for _, tt := range tests {
		got, err := ParseCodec(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseCodec("mpeg2")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestParseFraming(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "annexb", "LENGTH", "obu"} {
		_, err := ParseFraming(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFraming("rtp")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDescriptor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		codec   unit.Codec
		framing Framing
		want    *unit.Descriptor
	}{
		{unit.CodecAV1, FramingDefault, av1.Descriptor},
		{unit.CodecAV1, FramingOBU, av1.Descriptor},
		{unit.CodecVP9, FramingDefault, vp9.Descriptor},
		{unit.CodecAVC, FramingDefault, avc.DescriptorAnnexB},
		{unit.CodecAVC, FramingLength, avc.DescriptorAVCC},
		{unit.CodecHEVC, FramingAnnexB, hevc.DescriptorAnnexB},
		{unit.CodecHEVC, FramingLength, hevc.DescriptorHVCC},
		{unit.CodecVVC, FramingDefault, vvc.DescriptorAnnexB},
		{unit.CodecVVC, FramingLength, vvc.DescriptorVVCC},
	}
	for _, tt := range tests {
		got, err := Descriptor(tt.codec, tt.framing)
		require.NoError(t, err)
		assert.Same(t, tt.want, got, "%s/%s", tt.codec, tt.framing)
	}

	for _, bad := range []struct {
		codec   unit.Codec
		framing Framing
	}{
		{unit.CodecAV1, FramingAnnexB},
		{unit.CodecVP9, FramingOBU},
		{unit.CodecAVC, FramingOBU},
		{unit.CodecUnknown, FramingDefault},
	} {
		_, err := Descriptor(bad.codec, bad.framing)
		assert.ErrorIs(t, err, ErrUnsupported, "%s/%s", bad.codec, bad.framing)
	}
}

func TestScanDecodesAgainstPrecedingParameterSets(t *testing.T) {
	t.Parallel()
	buf := annexB(t, mustHex(t, sps720p), mustHex(t, ppsCABAC), mustHex(t, idrSlice))

	rep, err := Scan(buf, Options{Codec: unit.CodecAVC, Decode: true})
	require.NoError(t, err)
	assert.Empty(t, rep.Diagnostics)
	require.Len(t, rep.Units, 3)

	sh, ok := rep.Units[2].Syntax.(*avc.SliceHeader)
	require.True(t, ok, "slice syntax is %T", rep.Units[2].Syntax)
	assert.True(t, sh.IDR)
	assert.Equal(t, 22, sh.SliceQPY)

	require.NotNil(t, rep.ParamSets)
	assert.Equal(t, 1, rep.ParamSets.AVC.SPS.Len())
	assert.Equal(t, 1, rep.ParamSets.AVC.PPS.Len())

	s := rep.Summary()
	assert.Equal(t, "avc", s.Codec)
	assert.Equal(t, len(buf), s.Bytes)
	assert.Equal(t, 3, s.Units)
	assert.Equal(t, map[string]int{"sps": 1, "pps": 1, "slice_irap": 1}, s.Kinds)
	assert.Nil(t, s.Severities)
	assert.Equal(t, 1280, s.Width)
	assert.Equal(t, 720, s.Height)
	assert.Equal(t, "avc1.64001F", s.CodecString)
}

func TestScanSliceBeforeParameterSets(t *testing.T) {
	t.Parallel()
	buf := annexB(t, mustHex(t, idrSlice), mustHex(t, sps720p), mustHex(t, ppsCABAC), mustHex(t, idrSlice))

	rep, err := Scan(buf, Options{Codec: unit.CodecAVC, Decode: true, StreamID: "cam1", FirstID: 3})
	require.NoError(t, err)
	require.Len(t, rep.Units, 4)
	require.Len(t, rep.Diagnostics, 1)

	d := rep.Diagnostics[0]
	assert.Equal(t, uint64(3), d.ID)
	assert.Equal(t, "cam1", d.StreamID)
	assert.Equal(t, "missing_parameter_set", d.Kind)
	assert.Zero(t, d.OffsetBytes)
	assert.Equal(t, uint64(4), rep.NextID)

	assert.Nil(t, rep.Units[0].Syntax)
	assert.IsType(t, &avc.SliceHeader{}, rep.Units[3].Syntax)
	assert.Equal(t, map[string]int{"error": 1}, rep.Summary().Severities)
}

func TestScanStrict(t *testing.T) {
	t.Parallel()
	good := annexB(t, mustHex(t, sps720p), mustHex(t, ppsCABAC), mustHex(t, idrSlice))
	units, err := ScanStrict(good, Options{Codec: unit.CodecAVC, Decode: true})
	require.NoError(t, err)
	assert.Len(t, units, 3)

	orphan := annexB(t, mustHex(t, sps720p), mustHex(t, ppsCABAC), mustHex(t, orphanSlice))
	_, err = ScanStrict(orphan, Options{Codec: unit.CodecAVC, Decode: true})
	require.ErrorIs(t, err, parseerr.ErrMissingParameterSet)

	// Framing alone does not consult parameter sets.
	units, err = ScanStrict(orphan, Options{Codec: unit.CodecAVC})
	require.NoError(t, err)
	assert.Len(t, units, 3)
	for _, u := range units {
		assert.Nil(t, u.Syntax)
	}

	_, err = ScanStrict(good, Options{Codec: unit.CodecVP9, Framing: FramingLength})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestHarvest(t *testing.T) {
	t.Parallel()
	buf := annexB(t, mustHex(t, sps720p), mustHex(t, ppsCABAC), mustHex(t, idrSlice))
	units, err := ScanStrict(buf, Options{Codec: unit.CodecAVC})
	require.NoError(t, err)

	ps, err := Harvest(unit.CodecAVC, units)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, ps.AVC.SPS.IDs())
	assert.Equal(t, []uint32{0}, ps.AVC.PPS.IDs())

	// Seeded tables let a stream without in-band parameter sets decode.
	rep, err := Scan(annexB(t, mustHex(t, idrSlice)), Options{Codec: unit.CodecAVC, Decode: true, ParamSets: ps})
	require.NoError(t, err)
	assert.Empty(t, rep.Diagnostics)
	assert.Same(t, ps, rep.ParamSets)

	broken := annexB(t, mustHex(t, "67 64"), mustHex(t, sps720p))
	units, err = ScanStrict(broken, Options{Codec: unit.CodecAVC})
	require.NoError(t, err)
	ps, err = Harvest(unit.CodecAVC, units)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sps at offset 0")
	assert.Equal(t, 1, ps.AVC.SPS.Len())
}

func TestScanPartialParamSets(t *testing.T) {
	t.Parallel()
	buf := annexB(t, mustHex(t, sps720p), mustHex(t, ppsCABAC), mustHex(t, idrSlice))
	for name, seed := range map[string]*ParamSets{
		"empty":       {},
		"avc only":    {AVC: avc.NewParamSets()},
		"empty avc":   {AVC: &avc.ParamSets{}},
		"hevc seeded": {HEVC: NewParamSets().HEVC},
	} {
		seed := seed
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var rep *Report
			require.NotPanics(t, func() {
				var err error
				rep, err = Scan(buf, Options{Codec: unit.CodecAVC, Decode: true, ParamSets: seed})
				require.NoError(t, err)
			})
			assert.Empty(t, rep.Diagnostics)
			assert.Same(t, seed, rep.ParamSets)
			assert.Equal(t, 1, seed.AVC.SPS.Len())
			assert.Equal(t, 1, seed.AVC.PPS.Len())
			assert.IsType(t, &avc.SliceHeader{}, rep.Units[2].Syntax)
		})
	}

	var ps ParamSets
	require.NoError(t, ps.Add(unit.CodecHEVC, unit.Unit{Header: unit.Header{Kind: unit.KindAUD}}))
	assert.NotNil(t, ps.HEVC)
}

func TestScanAV1(t *testing.T) {
	t.Parallel()
	buf := av1.AppendOBU(nil, av1.OBUTemporalDelimiter, nil, nil)
	buf = av1.AppendOBU(buf, av1.OBUPadding, nil, []byte{0xAA, 0xBB})
	buf = append(buf, 0x80) // forbidden bit set

	rep, err := Scan(buf, Options{Codec: unit.CodecAV1, Decode: true})
	require.NoError(t, err)
	require.Len(t, rep.Units, 2)
	require.Len(t, rep.Diagnostics, 1)
	assert.Equal(t, uint64(len(buf)-1), rep.Diagnostics[0].OffsetBytes)

	s := rep.Summary()
	assert.Equal(t, map[string]int{"temporal_delimiter": 1, "padding": 1}, s.Kinds)
	assert.Zero(t, s.Width)
}

func TestCaptionsWithoutSEI(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Captions(nil, nil))
	assert.Empty(t, Captions([]unit.Unit{{Syntax: &avc.SEI{}}}, nil))
}

// tsPackets splits payload into 188-byte packets on pid.
func tsPackets(pid uint16, cc *uint8, payload []byte) []byte {
	var out []byte
	first := true
	for first || len(payload) > 0 {
		pkt := make([]byte, 188)
		pkt[0] = 0x47
		pkt[1] = byte(pid>>8) & 0x1F
		if first {
			pkt[1] |= 0x40
		}
		pkt[2] = byte(pid)
		if n := len(payload); n >= 184 {
			pkt[3] = 0x10 | *cc
			copy(pkt[4:], payload[:184])
			payload = payload[184:]
		} else {
			pkt[3] = 0x30 | *cc
			afLen := 183 - n
			pkt[4] = byte(afLen)
			for i := 6; i < 5+afLen; i++ {
				pkt[i] = 0xFF
			}
			copy(pkt[5+afLen:], payload)
			payload = nil
		}
		*cc = (*cc + 1) & 0x0F
		first = false
		out = append(out, pkt...)
	}
	return out
}

// mpegCRC is the MPEG-2 section CRC.
func mpegCRC(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func section(s []byte) []byte {
	s = binary.BigEndian.AppendUint32(s, mpegCRC(s))
	return append([]byte{0x00}, s...)
}

func ptsPES(pts int64, data []byte) []byte {
	buf := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x80, 0x05,
		0x21 | byte((pts>>29)&0x0E),
		byte(pts >> 22),
		byte((pts>>14)&0xFE) | 0x01,
		byte(pts >> 7),
		byte((pts<<1)&0xFE) | 0x01,
	}
	return append(buf, data...)
}

func TestScanTS(t *testing.T) {
	t.Parallel()
	pat := section([]byte{0x00, 0xB0, 0x0D, 0x00, 0x01, 0xC1, 0x00, 0x00, 0x00, 0x01, 0xF0, 0x00})
	pmt := section([]byte{0x02, 0xB0, 0x12, 0x00, 0x01, 0xC1, 0x00, 0x00, 0xE1, 0x00, 0xF0, 0x00,
		0x1B, 0xE1, 0x00, 0xF0, 0x00})
	first := annexB(t, mustHex(t, sps720p), mustHex(t, ppsCABAC), captionSEI(), mustHex(t, idrSlice))
	second := annexB(t, mustHex(t, orphanSlice))

	var cc [3]uint8
	var ts []byte
	ts = append(ts, tsPackets(0x0000, &cc[0], pat)...)
	ts = append(ts, tsPackets(0x1000, &cc[1], pmt)...)
	ts = append(ts, tsPackets(0x0100, &cc[2], ptsPES(90000, first))...)
	ts = append(ts, tsPackets(0x0100, &cc[2], ptsPES(180000, second))...)

	rep, err := ScanTS(context.Background(), bytes.NewReader(ts), TSOptions{StreamID: "mux"})
	require.NoError(t, err)
	assert.Empty(t, rep.Diagnostics)
	assert.Equal(t, len(ts)/188, rep.Packets)
	require.Len(t, rep.Streams, 1)

	s := rep.Streams[0]
	assert.Equal(t, uint16(0x100), s.PID)
	assert.Equal(t, 2, s.AccessUnits)
	require.NotNil(t, s.Report)
	assert.Equal(t, unit.CodecAVC, s.Report.Codec)
	require.Len(t, s.Report.Units, 5)
	sei, ok := s.Report.Units[2].Syntax.(*avc.SEI)
	require.True(t, ok)
	assert.True(t, sei.HasCaptions())

	require.Len(t, s.Report.Diagnostics, 1)
	d := s.Report.Diagnostics[0]
	assert.Equal(t, "mux/pid-256", d.StreamID)
	assert.Equal(t, uint64(len(first)), d.OffsetBytes)
	assert.Equal(t, uint64(2000), d.TimestampMs)
	assert.Equal(t, "missing_parameter_set", d.Kind)
}

func TestScanTSCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ScanTS(ctx, bytes.NewReader(make([]byte, 188)), TSOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func FuzzScan(f *testing.F) {
	f.Add(uint8(unit.CodecAVC), []byte{0, 0, 0, 1, 0x67, 0x64, 0x00, 0x1F})
	f.Add(uint8(unit.CodecHEVC), []byte{0, 0, 1, 0x40, 0x01, 0x0C})
	f.Add(uint8(unit.CodecAV1), []byte{0x12, 0x00})
	f.Add(uint8(unit.CodecVP9), []byte{0x82, 0x49, 0x83})
	f.Add(uint8(unit.CodecVVC), []byte{0, 0, 1, 0x00, 0x79})
	f.Fuzz(func(t *testing.T, codec uint8, data []byte) {
		c := unit.Codec(codec % 6)
		if c == unit.CodecUnknown {
			return
		}
		// must not panic
		rep, err := Scan(data, Options{Codec: c, Decode: true})
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		for _, d := range rep.Diagnostics {
			if d.OffsetBytes >= uint64(len(data)) {
				t.Fatalf("diagnostic offset %d outside %d bytes", d.OffsetBytes, len(data))
			}
		}
		_ = rep.Summary()
	})
}
