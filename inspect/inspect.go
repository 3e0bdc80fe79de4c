package inspect

import (
	"log/slog"

	"github.com/zsiec/bitscope/internal/codec/av1"
	"github.com/zsiec/bitscope/internal/codec/avc"
	"github.com/zsiec/bitscope/internal/codec/hevc"
	"github.com/zsiec/bitscope/internal/codec/vp9"
	"github.com/zsiec/bitscope/internal/diag"
	"github.com/zsiec/bitscope/internal/scan"
	"github.com/zsiec/bitscope/internal/unit"
)

// Options configures Scan and ScanStrict.
type Options struct {
	Codec          unit.Codec
	Framing        Framing
	StreamID       string
	RejectReserved bool
	// Decode enables structured payload decoding. Parameter sets are added
	// to ParamSets as they are decoded, so slices decode against the sets
	// that precede them in the stream.
	Decode bool
	// ParamSets seeds the tables, e.g. from out-of-band codec configuration.
	// Nil starts empty.
	ParamSets   *ParamSets
	FirstID     uint64
	TimestampMs uint64
	Logger      *slog.Logger
}

func (o Options) prepare() (*unit.Descriptor, scan.Options, *ParamSets, error) {
	d, err := Descriptor(o.Codec, o.Framing)
	if err != nil {
		return nil, scan.Options{}, nil, err
	}
	so := scan.Options{
		StreamID:    o.StreamID,
		Unit:        unit.Options{RejectReserved: o.RejectReserved},
		FirstID:     o.FirstID,
		TimestampMs: o.TimestampMs,
		Logger:      o.Logger,
	}
	var ps *ParamSets
	if o.Decode {
		ps = o.ParamSets
		if ps == nil {
			ps = NewParamSets()
		}
		ps.fill()
		so.Decoder = harvester{codec: o.Codec, ps: ps, dec: decoderFor(o.Codec, ps)}
	}
	return d, so, ps, nil
}

// Report is the outcome of a resilient scan.
type Report struct {
	Codec       unit.Codec
	Bytes       int
	Units       []unit.Unit
	Diagnostics []diag.Diagnostic
	Stopped     bool
	NextID      uint64
	// ParamSets is nil unless decoding was enabled.
	ParamSets *ParamSets
}

// Scan runs the resilient scanner over buf. It only fails for a codec and
// framing combination that does not exist; damage in buf is reported as
// diagnostics.
func Scan(buf []byte, opts Options) (*Report, error) {
	d, so, ps, err := opts.prepare()
	if err != nil {
		return nil, err
	}
	res := scan.ParseAllResilient(d, buf, so)
	return &Report{
		Codec:       opts.Codec,
		Bytes:       len(buf),
		Units:       res.Units,
		Diagnostics: res.Diagnostics,
		Stopped:     res.Stopped,
		NextID:      res.NextID,
		ParamSets:   ps,
	}, nil
}

// ScanStrict frames, and when enabled decodes, every unit in buf and
// returns the first failure.
func ScanStrict(buf []byte, opts Options) ([]unit.Unit, error) {
	d, so, _, err := opts.prepare()
	if err != nil {
		return nil, err
	}
	return scan.ParseAll(d, buf, so)
}

// Summary condenses a report for display.
type Summary struct {
	Codec       string         `json:"codec"`
	Bytes       int            `json:"bytes"`
	Units       int            `json:"units"`
	Kinds       map[string]int `json:"kinds"`
	Severities  map[string]int `json:"severities,omitempty"`
	Stopped     bool           `json:"stopped,omitempty"`
	Width       int            `json:"width,omitempty"`
	Height      int            `json:"height,omitempty"`
	CodecString string         `json:"codec_string,omitempty"`
}

// Summary counts units per kind and diagnostics per severity, and takes the
// picture size from the first decoded header that carries one.
func (r *Report) Summary() Summary {
	s := Summary{
		Codec:   r.Codec.String(),
		Bytes:   r.Bytes,
		Units:   len(r.Units),
		Kinds:   make(map[string]int),
		Stopped: r.Stopped,
	}
	for _, u := range r.Units {
		s.Kinds[u.Kind.String()]++
		if s.Width == 0 {
			s.describe(u.Syntax)
		}
	}
	for _, d := range r.Diagnostics {
		if s.Severities == nil {
			s.Severities = make(map[string]int)
		}
		s.Severities[d.Severity.String()] += int(d.Count)
	}
	return s
}

func (s *Summary) describe(syntax any) {
	switch v := syntax.(type) {
	case *avc.SPS:
		s.Width, s.Height = v.Width(), v.Height()
		s.CodecString = avc.CodecString(v)
	case *hevc.SPS:
		s.Width, s.Height = v.Width(), v.Height()
		s.CodecString = hevc.CodecString(v)
	case *av1.SequenceHeader:
		s.Width, s.Height = int(v.MaxFrameWidth), int(v.MaxFrameHeight)
	case *vp9.FrameHeader:
		s.Width, s.Height = int(v.Width), int(v.Height)
	}
}
