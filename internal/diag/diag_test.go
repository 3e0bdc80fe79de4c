package diag

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/bitscope/internal/parseerr"
)

func intPtr(v int) *int { return &v }

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		err   error
		sev   Severity
		score uint32
	}{
		{"parse", parseerr.Parse(3, "forbidden bit set"), SeverityError, 85},
		{"invalid", fmt.Errorf("x: %w", parseerr.Field("f", parseerr.ErrInvalid)), SeverityError, 85},
		{"invalid format", parseerr.ErrInvalidFormat, SeverityError, 85},
		{"eof", fmt.Errorf("unit: %w", parseerr.ErrUnexpectedEOF), SeverityFatal, 100},
		{"unit type", parseerr.ErrInvalidUnitType, SeverityError, 90},
		{"missing parameter set", &parseerr.MissingParameterSetError{Class: "pps", ID: 1}, SeverityError, 80},
		{"out of range", parseerr.ErrOutOfRange, SeverityError, 80},
		{"foreign", errors.New("boom"), SeverityError, 80},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sev, score := Classify(tt.err)
			assert.Equal(t, tt.sev, sev)
			assert.Equal(t, tt.score, score)
		})
	}
}

func TestFromError(t *testing.T) {
	t.Parallel()
	d := FromError(7, "cam1", 42, 3, parseerr.Parse(42, "forbidden bit set"))
	assert.Equal(t, uint64(7), d.ID)
	assert.Equal(t, "cam1", d.StreamID)
	assert.Equal(t, CategoryBitstream, d.Category)
	assert.Equal(t, "parse", d.Kind)
	assert.Equal(t, uint64(42), d.OffsetBytes)
	require.NotNil(t, d.FrameIndex)
	assert.Equal(t, 3, *d.FrameIndex)
	assert.Equal(t, uint32(1), d.Count)
	assert.Equal(t, uint32(85), d.ImpactScore)
	assert.Contains(t, d.Message, "forbidden bit set")
	assert.Contains(t, d.String(), "error bitstream @42")
}

func TestJSONShape(t *testing.T) {
	t.Parallel()
	d := Diagnostic{
		ID: 1, Severity: SeverityFatal, Category: CategoryContainer, Kind: "unexpected_eof",
		Message: "truncated", OffsetBytes: 188, FrameIndex: intPtr(0), Count: 1, ImpactScore: 100,
	}
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"severity":"fatal","category":"container","kind":"unexpected_eof",
		"message":"truncated","offset_bytes":188,"timestamp_ms":0,"frame_index":0,"count":1,"impact_score":100}`, string(b))

	var back Diagnostic
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, d, back)

	require.Error(t, json.Unmarshal([]byte(`{"severity":"loud"}`), &back))
	_, err = json.Marshal(Diagnostic{Severity: 9})
	require.Error(t, err)
}

func TestCoalesce(t *testing.T) {
	t.Parallel()
	garbage := func(off int) Diagnostic {
		return FromError(uint64(off), "s", off, 0, parseerr.Parse(off, "forbidden bit set"))
	}
	in := []Diagnostic{garbage(10), garbage(11), garbage(12), garbage(20), garbage(21)}
	in = append(in, FromError(99, "s", 22, 0, parseerr.ErrUnexpectedEOF))

	out := Coalesce(in)
	require.Len(t, out, 3)
	assert.Equal(t, uint64(10), out[0].OffsetBytes)
	assert.Equal(t, uint32(3), out[0].Count)
	assert.Equal(t, uint64(20), out[1].OffsetBytes)
	assert.Equal(t, uint32(2), out[1].Count)
	assert.Equal(t, SeverityFatal, out[2].Severity)
	assert.Equal(t, uint32(1), in[0].Count, "input must not be modified")

	assert.Nil(t, Coalesce(nil))

	big := []Diagnostic{garbage(0), garbage(1)}
	big[0].Count = ^uint32(0) - 1
	big[1].OffsetBytes = uint64(big[0].Count)
	assert.Equal(t, ^uint32(0), Coalesce(big)[0].Count)
}

func TestBinaryRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		d    Diagnostic
	}{
		{"minimal", Diagnostic{Count: 1}},
		{"full", Diagnostic{
			ID: 1 << 40, Severity: SeverityWarn, Category: CategoryContainer, Kind: "parse",
			StreamID: "studio-b", Message: "continuity error", OffsetBytes: 1 << 33,
			TimestampMs: 1_700_000_000_000, FrameIndex: intPtr(12345), Count: 7, ImpactScore: 85,
		}},
		{"frame zero", Diagnostic{FrameIndex: intPtr(0), Count: 1, ImpactScore: 100}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf, err := AppendBinary([]byte{0xEE}, tt.d)
			require.NoError(t, err)
			got, n, err := ParseBinary(buf[1:])
			require.NoError(t, err)
			assert.Equal(t, len(buf)-1, n)
			assert.Equal(t, tt.d, got)
		})
	}
}

func TestAppendBinaryRejectsWideValues(t *testing.T) {
	t.Parallel()
	buf := []byte{1}
	out, err := AppendBinary(buf, Diagnostic{OffsetBytes: quicvarint.Max + 1, Count: 1})
	require.ErrorIs(t, err, parseerr.ErrOutOfRange)
	assert.Equal(t, buf, out)
}

func TestParseBinaryErrors(t *testing.T) {
	t.Parallel()
	valid, err := AppendBinary(nil, Diagnostic{Kind: "parse", Message: "m", Count: 1, ImpactScore: 85})
	require.NoError(t, err)
	for i := 0; i < len(valid); i++ {
		_, _, err := ParseBinary(valid[:i])
		require.ErrorIs(t, err, parseerr.ErrUnexpectedEOF, "truncated at %d", i)
	}

	badSeverity := append([]byte{}, valid...)
	badSeverity[1] = 9
	_, _, err = ParseBinary(badSeverity)
	require.ErrorIs(t, err, parseerr.ErrInvalid)

	zeroCount, err := AppendBinary(nil, Diagnostic{})
	require.NoError(t, err)
	_, _, err = ParseBinary(zeroCount)
	require.ErrorIs(t, err, parseerr.ErrOutOfRange)

	highScore, err := AppendBinary(nil, Diagnostic{Count: 1, ImpactScore: 101})
	require.NoError(t, err)
	_, _, err = ParseBinary(highScore)
	require.ErrorIs(t, err, parseerr.ErrOutOfRange)
}

func TestRecordStream(t *testing.T) {
	t.Parallel()
	in := []Diagnostic{
		FromError(0, "a", 0, 0, parseerr.Parse(0, "forbidden bit set")),
		FromError(1, "a", 5, 1, parseerr.ErrUnexpectedEOF),
	}
	var buf bytes.Buffer
	for _, d := range in {
		require.NoError(t, WriteRecord(&buf, d))
	}

	var out []Diagnostic
	for {
		d, err := ReadRecord(&buf)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		out = append(out, d)
	}
	assert.Equal(t, in, out)
}

func TestReadRecordErrors(t *testing.T) {
	t.Parallel()
	_, err := ReadRecord(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)

	_, err = ReadRecord(bytes.NewReader([]byte{0x05, 0x00}))
	assert.ErrorIs(t, err, parseerr.ErrUnexpectedEOF)

	_, err = ReadRecord(bytes.NewReader(quicvarint.Append(nil, maxRecordSize+1)))
	assert.ErrorIs(t, err, parseerr.ErrTooLong)

	rec, err := AppendBinary(nil, Diagnostic{Count: 1})
	require.NoError(t, err)
	rec = append(rec, 0x00)
	framed := append(quicvarint.Append(nil, uint64(len(rec))), rec...)
	_, err = ReadRecord(bytes.NewReader(framed))
	assert.ErrorIs(t, err, parseerr.ErrInvalidFormat)
}

func FuzzParseBinary(f *testing.F) {
	seed, _ := AppendBinary(nil, Diagnostic{Kind: "parse", StreamID: "s", Message: "m", FrameIndex: intPtr(2), Count: 1})
	f.Add(seed)
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		// must not panic
		d, n, err := ParseBinary(data)
		if err != nil {
			return
		}
		if n > len(data) {
			t.Fatalf("consumed %d of %d bytes", n, len(data))
		}
		if _, err := AppendBinary(nil, d); err != nil {
			t.Fatalf("re-encode: %v", err)
		}
	})
}
