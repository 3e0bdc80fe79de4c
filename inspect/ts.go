package inspect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/zsiec/ccx"

	"github.com/zsiec/bitscope/internal/codec/avc"
	"github.com/zsiec/bitscope/internal/diag"
	"github.com/zsiec/bitscope/internal/tsextract"
	"github.com/zsiec/bitscope/internal/unit"
)

// TSOptions configures ScanTS.
type TSOptions struct {
	StreamID string
	// PacketSize is 188 (default), 192 or 204.
	PacketSize     int
	RejectReserved bool
	Logger         *slog.Logger
}

// TSStream is the scan of one video elementary stream. Offsets in Report
// are relative to the reassembled elementary stream.
type TSStream struct {
	PID         uint16
	StreamType  uint8
	AccessUnits int
	Report      *Report
	// Captions holds CEA-608/708 caption frames for H.264 streams.
	Captions []*ccx.CaptionFrame
}

// TSReport is the outcome of ScanTS.
type TSReport struct {
	Streams []TSStream
	// Diagnostics are container diagnostics. Bitstream diagnostics live in
	// each stream's Report.
	Diagnostics []diag.Diagnostic
	Packets     int
}

// ScanTS extracts every video elementary stream from a transport stream and
// scans each one with decoding enabled. Diagnostic ids run on from the
// container diagnostics across all streams, and each bitstream diagnostic is
// stamped with the presentation time of the access unit it falls in.
func ScanTS(ctx context.Context, r io.Reader, opts TSOptions) (*TSReport, error) {
	ex, err := tsextract.Extract(ctx, r, tsextract.Options{
		StreamID:   opts.StreamID,
		PacketSize: opts.PacketSize,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	out := &TSReport{Diagnostics: ex.Diagnostics, Packets: ex.Packets}
	next := ex.NextID
	for _, s := range ex.Streams {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep, err := Scan(s.Bytes(), Options{
			Codec:          s.Codec,
			StreamID:       pidStreamID(opts.StreamID, s.PID),
			RejectReserved: opts.RejectReserved,
			Decode:         true,
			FirstID:        next,
			Logger:         opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("inspect: pid 0x%04X: %w", s.PID, err)
		}
		next = rep.NextID

		idx := newPTSIndex(s.Units)
		for i := range rep.Diagnostics {
			rep.Diagnostics[i].TimestampMs = idx.ms(int(rep.Diagnostics[i].OffsetBytes))
		}
		ts := TSStream{
			PID:         s.PID,
			StreamType:  s.StreamType,
			AccessUnits: len(s.Units),
			Report:      rep,
		}
		if s.Codec == unit.CodecAVC {
			ts.Captions = Captions(rep.Units, idx.pts)
		}
		out.Streams = append(out.Streams, ts)
	}
	return out, nil
}

func pidStreamID(base string, pid uint16) string {
	if base == "" {
		return fmt.Sprintf("pid-%d", pid)
	}
	return fmt.Sprintf("%s/pid-%d", base, pid)
}

// Captions feeds the SEI units of a decoded H.264 scan through a caption
// decoder. pts maps a unit offset to its presentation time; nil stamps
// every frame with zero.
func Captions(units []unit.Unit, pts func(offset int) int64) []*ccx.CaptionFrame {
	dec := avc.NewCaptionDecoder()
	var out []*ccx.CaptionFrame
	var last int64
	for _, u := range units {
		sei, ok := u.Syntax.(*avc.SEI)
		if !ok || !sei.HasCaptions() {
			continue
		}
		if pts != nil {
			last = pts(u.Offset)
		}
		out = append(out, dec.Feed(sei, last)...)
	}
	return append(out, dec.Flush(last)...)
}

// ptsIndex maps elementary stream offsets back to the access unit they were
// carried in.
type ptsIndex struct {
	starts []int
	stamps []int64
}

func newPTSIndex(aus []tsextract.AccessUnit) *ptsIndex {
	idx := &ptsIndex{
		starts: make([]int, len(aus)),
		stamps: make([]int64, len(aus)),
	}
	pos := 0
	for i, au := range aus {
		idx.starts[i] = pos
		idx.stamps[i] = -1
		if au.PTS != nil {
			idx.stamps[i] = *au.PTS
		}
		pos += len(au.Data)
	}
	return idx
}

// pts returns the 90 kHz PTS of the access unit holding offset, or 0 when it
// has none.
func (p *ptsIndex) pts(offset int) int64 {
	i := sort.Search(len(p.starts), func(i int) bool { return p.starts[i] > offset }) - 1
	if i < 0 || p.stamps[i] < 0 {
		return 0
	}
	return p.stamps[i]
}

func (p *ptsIndex) ms(offset int) uint64 {
	return uint64(p.pts(offset) / 90)
}
